package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus-agent/prometheus/core"
	"github.com/prometheus-agent/prometheus/evolution"
	"github.com/prometheus-agent/prometheus/logging"
	"github.com/prometheus-agent/prometheus/model"
	"github.com/prometheus-agent/prometheus/tool"
)

// ModelStepRunner adapts a model into an evolution.StepRunner so promoted
// skill procedures run through the same generation path as plan steps.
func ModelStepRunner(m model.Model, logger logging.Logger) evolution.StepRunner {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return func(ctx context.Context, step string) (string, error) {
		start := time.Now()
		resp, err := m.Generate(ctx, model.Request{
			System: "You carry out one step of a larger plan. Respond with the step's result only.",
			Prompt: "Step to perform now: " + step,
		})
		logging.ModelCall(logger, m.Info().Name, time.Since(start), err)
		if err != nil {
			return "", &core.TransientError{Op: "executor.step", Err: err}
		}
		return resp.Text, nil
	}
}

// executor carries out a plan's steps one at a time. With a model each step
// is a single generation grounded in the step outputs so far; without one the
// step text itself stands in as the output, which keeps the loop fully
// testable offline. Step outputs are mirrored into working memory through the
// scratchpad tool when one is registered.
type executor struct {
	model  model.Model
	tools  *tool.Registry
	memory core.Memory
	logger logging.Logger
}

// run executes every step of the plan. A step failure is recorded and
// execution continues, so reflection sees the full picture; only context
// cancellation aborts the remainder.
func (e *executor) run(ctx context.Context, task core.Task, plan core.PlanCandidate) core.Outcome {
	outcome := core.Outcome{}
	var outputs []string

	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			outcome.Err = err.Error()
			break
		}

		out, err := e.runStep(ctx, task, step, outputs)
		outcome.StepsExecuted++
		if err != nil {
			outcome.StepErrors = append(outcome.StepErrors, fmt.Sprintf("%s: %v", step, err))
			continue
		}
		outputs = append(outputs, out)
		e.scratch(ctx, task, step, out)
	}

	outcome.Output = strings.Join(outputs, "\n")
	return outcome
}

func (e *executor) runStep(ctx context.Context, task core.Task, step string, priorOutputs []string) (string, error) {
	if e.model == nil {
		return fmt.Sprintf("completed: %s", step), nil
	}

	prompt := fmt.Sprintf("Task: %s\nStep to perform now: %s", task.Description, step)
	if len(priorOutputs) > 0 {
		prompt += "\nResults so far:\n" + strings.Join(priorOutputs, "\n")
	}
	start := time.Now()
	resp, err := e.model.Generate(ctx, model.Request{
		System: "You carry out one step of a larger plan. Respond with the step's result only.",
		Prompt: prompt,
	})
	logging.ModelCall(e.logger, e.model.Info().Name, time.Since(start), err)
	if err != nil {
		return "", &core.TransientError{Op: "executor.step", Err: err}
	}
	return resp.Text, nil
}

// scratch mirrors a step output into working memory via the scratchpad tool.
// Failures only log; scratch notes are an aid, not part of the outcome.
func (e *executor) scratch(ctx context.Context, task core.Task, step, output string) {
	if e.tools == nil {
		return
	}
	pad, ok := e.tools.Get("scratchpad")
	if !ok {
		return
	}
	toolCtx := core.NewToolContext(ctx, task, step, e.memory, e.logger)
	start := time.Now()
	_, err := pad.Call(toolCtx, map[string]any{
		"operation": "store_note",
		"content":   fmt.Sprintf("%s: %s", step, output),
	})
	logging.ToolCall(e.logger, "scratchpad", time.Since(start), err)
}
