package reflection

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus-agent/prometheus/core"
	"github.com/prometheus-agent/prometheus/internal/util"
	"github.com/prometheus-agent/prometheus/logging"
)

// Options configures the scoring thresholds.
type Options struct {
	// AcceptScore is the minimum outcome score for an ACCEPT verdict.
	AcceptScore float64

	// RetryScore is the minimum outcome score for a RETRY verdict when
	// iteration budget remains. Below it the task is abandoned as
	// unrecoverable.
	RetryScore float64

	Logger logging.Logger
}

// Engine is a deterministic critic. It is stateless and safe for concurrent
// use across tasks.
type Engine struct {
	opts Options
}

var _ core.Critic = (*Engine)(nil)

// NewEngine creates a reflection engine with the given options applied.
func NewEngine(optFns ...func(o *Options)) *Engine {
	opts := Options{
		AcceptScore: 0.7,
		RetryScore:  0.3,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{opts: opts}
}

// Critique scores the outcome against the task goal and maps the score to a
// verdict. A terminal execution error forces the score to zero. With no
// iteration budget left the only possible verdicts are ACCEPT and ABANDON.
func (e *Engine) Critique(task core.Task, outcome core.Outcome, iterationsLeft int) core.ReflectionVerdict {
	score := e.score(task, outcome)

	var decision core.Decision
	switch {
	case score >= e.opts.AcceptScore:
		decision = core.DecisionAccept
	case iterationsLeft <= 0:
		decision = core.DecisionAbandon
	case score >= e.opts.RetryScore:
		decision = core.DecisionRetry
	default:
		decision = core.DecisionAbandon
	}

	verdict := core.ReflectionVerdict{
		TaskID:       task.ID,
		OutcomeScore: score,
		Critique:     e.critiqueText(task, outcome, score, decision),
		Decision:     decision,
		CreatedAt:    time.Now(),
	}
	e.opts.Logger.Debug("reflection verdict",
		"task_id", task.ID,
		"score", score,
		"decision", decision.String(),
		"iterations_left", iterationsLeft,
	)
	return verdict
}

// score combines goal coverage of the output with execution health. Step
// errors shave the score proportionally; a terminal error zeroes it.
func (e *Engine) score(task core.Task, outcome core.Outcome) float64 {
	if outcome.Err != "" {
		return 0
	}
	if strings.TrimSpace(outcome.Output) == "" {
		return 0
	}

	coverage := util.Overlap(task.Description, outcome.Output)

	health := 1.0
	if outcome.StepsExecuted > 0 {
		failed := len(outcome.StepErrors)
		if failed > outcome.StepsExecuted {
			failed = outcome.StepsExecuted
		}
		health = 1.0 - float64(failed)/float64(outcome.StepsExecuted)
	}

	return 0.7*coverage + 0.3*health
}

// critiqueText names the concrete discrepancies behind the score so a retry
// attempt can address them.
func (e *Engine) critiqueText(task core.Task, outcome core.Outcome, score float64, decision core.Decision) string {
	var parts []string

	if outcome.Err != "" {
		parts = append(parts, fmt.Sprintf("execution failed: %s", outcome.Err))
	}
	if strings.TrimSpace(outcome.Output) == "" {
		parts = append(parts, "no output was produced")
	}
	if missing := util.MissingTerms(task.Description, outcome.Output); len(missing) > 0 {
		parts = append(parts, fmt.Sprintf("output does not address: %s", strings.Join(missing, ", ")))
	}
	for _, stepErr := range outcome.StepErrors {
		parts = append(parts, fmt.Sprintf("step failed: %s", stepErr))
	}
	if len(parts) == 0 {
		parts = append(parts, "output addresses all goal terms")
	}

	return fmt.Sprintf("%s (score %.2f): %s", decision.String(), score, strings.Join(parts, "; "))
}
