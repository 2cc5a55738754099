package tool

import (
	"fmt"
	"strings"

	"github.com/prometheus-agent/prometheus/core"
)

// ScratchpadTool exposes the owning task's working memory to plan steps.
//
// The orchestrator clears working memory when the task reaches a terminal
// state, so notes stored here never leak across tasks.
type ScratchpadTool struct {
	name        string
	description string
}

// NewScratchpadTool creates the working-memory scratchpad tool.
//
// Supported operations:
//   - store_note: persist a scratch note scoped to the current task
//   - search_notes: query the task's notes by keyword
func NewScratchpadTool() *ScratchpadTool {
	return &ScratchpadTool{
		name: "scratchpad",
		description: "Stores and searches per-task scratch notes in working memory. " +
			"Supports operations: store_note, search_notes.",
	}
}

// Name returns the tool identifier.
func (t *ScratchpadTool) Name() string {
	return t.name
}

// Description returns the tool description.
func (t *ScratchpadTool) Description() string {
	return t.description
}

// Parameters returns the JSON schema for tool parameters.
func (t *ScratchpadTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"operation": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"store_note", "search_notes"},
				"description": "The scratchpad operation to perform",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Note text for store_note",
			},
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Keyword query for search_notes",
			},
			"limit": map[string]interface{}{
				"type":        "number",
				"description": "Maximum results for search_notes (default 5)",
			},
		},
		"required": []string{"operation"},
	}
}

// Call dispatches on the operation argument.
func (t *ScratchpadTool) Call(toolCtx *core.ToolContext, args map[string]interface{}) (interface{}, error) {
	operation, ok := args["operation"].(string)
	if !ok {
		return nil, NewToolError(t.name, "operation must be a string", "VALIDATION_ERROR")
	}

	switch operation {
	case "store_note":
		content, ok := args["content"].(string)
		if !ok || strings.TrimSpace(content) == "" {
			return nil, NewToolError(t.name, "content is required for store_note", "VALIDATION_ERROR")
		}
		id, err := toolCtx.Scratch(content)
		if err != nil {
			return nil, NewToolError(t.name, fmt.Sprintf("store failed: %v", err), "EXECUTION_ERROR")
		}
		return map[string]interface{}{"note_id": id}, nil

	case "search_notes":
		query, _ := args["query"].(string)
		limit := 5
		if raw, ok := args["limit"].(float64); ok && raw > 0 {
			limit = int(raw)
		}
		entries, err := toolCtx.RecallWorking(query, limit)
		if err != nil {
			return nil, NewToolError(t.name, fmt.Sprintf("search failed: %v", err), "EXECUTION_ERROR")
		}
		notes := make([]string, 0, len(entries))
		for _, entry := range entries {
			notes = append(notes, entry.Content)
		}
		return map[string]interface{}{"notes": notes}, nil

	default:
		return nil, NewToolError(t.name, fmt.Sprintf("unknown operation %q", operation), "VALIDATION_ERROR")
	}
}
