package router

import (
	"context"
	"fmt"

	"github.com/prometheus-agent/prometheus/core"
	"github.com/prometheus-agent/prometheus/model"
)

// LocalDelegate handles tasks routed away from the orchestrator. With a model
// it answers in a single generation; without one it returns a deterministic
// acknowledgment, which keeps simple-tier routing testable offline.
type LocalDelegate struct {
	model model.Model
}

var _ core.Delegate = (*LocalDelegate)(nil)

// NewLocalDelegate creates a delegate backed by the given model. A nil model
// is allowed.
func NewLocalDelegate(m model.Model) *LocalDelegate {
	return &LocalDelegate{model: m}
}

// Handle answers the task directly, without planning or reflection.
func (d *LocalDelegate) Handle(ctx context.Context, task core.Task) (core.TaskResult, error) {
	if d.model == nil {
		return core.TaskResult{
			TaskID:         task.ID,
			Output:         fmt.Sprintf("Handled directly: %s", task.Description),
			Confidence:     1.0,
			IterationsUsed: 0,
		}, nil
	}
	resp, err := d.model.Generate(ctx, model.Request{
		System: "Answer the request directly and briefly.",
		Prompt: task.Description,
	})
	if err != nil {
		return core.TaskResult{}, &core.TransientError{Op: "delegate.handle", Err: err}
	}
	return core.TaskResult{
		TaskID:         task.ID,
		Output:         resp.Text,
		Confidence:     1.0,
		IterationsUsed: 0,
	}, nil
}
