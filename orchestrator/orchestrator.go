package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/prometheus-agent/prometheus/core"
	"github.com/prometheus-agent/prometheus/evolution"
	"github.com/prometheus-agent/prometheus/logging"
	"github.com/prometheus-agent/prometheus/model"
	"github.com/prometheus-agent/prometheus/tool"
)

// MemorySystem is the slice of the memory manager the orchestrator needs:
// the read/write contract plus per-task cleanup.
type MemorySystem interface {
	core.Memory
	ClearWorking(taskID string) error
	ReleaseResources(taskID string) error
}

// Options configures the orchestrator.
type Options struct {
	// MaxIterations bounds plan/act/reflect iterations per task.
	MaxIterations int

	// MaxConcurrentTasks bounds tasks executing at once. Execute blocks
	// until a slot frees.
	MaxConcurrentTasks int64

	// RecallLimit caps memory entries loaded as planning context.
	RecallLimit int

	// Model is the optional language backend for step execution.
	Model model.Model

	// Tools is the registry available to plan steps.
	Tools *tool.Registry

	Logger logging.Logger
}

// Orchestrator composes the planner, executor, critic, memory system and
// evolution engine into one execution loop per task.
type Orchestrator struct {
	planner   core.Planner
	critic    core.Critic
	memory    MemorySystem
	evolution *evolution.Engine
	store     core.Store
	bus       core.Bus
	opts      Options

	sem    *semaphore.Weighted
	active atomic.Int64
	exec   *executor
}

// New wires an orchestrator from its collaborators.
func New(
	planner core.Planner,
	critic core.Critic,
	memory MemorySystem,
	evo *evolution.Engine,
	store core.Store,
	bus core.Bus,
	optFns ...func(o *Options),
) *Orchestrator {
	opts := Options{
		MaxIterations:      5,
		MaxConcurrentTasks: 3,
		RecallLimit:        10,
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxConcurrentTasks < 1 {
		opts.MaxConcurrentTasks = 1
	}
	o := &Orchestrator{
		planner:   planner,
		critic:    critic,
		memory:    memory,
		evolution: evo,
		store:     store,
		bus:       bus,
		opts:      opts,
		sem:       semaphore.NewWeighted(opts.MaxConcurrentTasks),
	}
	o.exec = &executor{
		model:  opts.Model,
		tools:  opts.Tools,
		memory: memory,
		logger: opts.Logger,
	}
	return o
}

// Load reports current utilization as a ratio in [0,1], for the router.
func (o *Orchestrator) Load() float64 {
	return float64(o.active.Load()) / float64(o.opts.MaxConcurrentTasks)
}

// Execute runs the full state machine for one task and always returns a
// terminal result, abandoned or done. It blocks while the concurrency limit
// is saturated. A panic anywhere in the loop is recovered into an abandoned
// result so one broken task cannot take down its siblings.
func (o *Orchestrator) Execute(ctx context.Context, task core.Task) (result core.TaskResult, err error) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return core.TaskResult{TaskID: task.ID, Abandoned: true}, &core.TransientError{Op: "orchestrator.acquire", Err: err}
	}
	o.active.Add(1)
	defer func() {
		o.active.Add(-1)
		o.sem.Release(1)
	}()

	traceID := core.NewID()
	limiter := core.NewIterationLimiter(o.iterationBudget(task.Tier))
	logger := o.opts.Logger

	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked", "task_id", task.ID, "panic", fmt.Sprint(r))
			result = o.abandon(task, traceID, limiter.Count(), "", fmt.Sprintf("panic: %v", r))
			err = nil
		}
	}()

	logger.Info("task accepted", "task_id", task.ID, "trace_id", traceID, "tier", task.Tier.String())

	memoryContext := o.loadContext(task)

	state := core.StatePlanning
	var lastOutcome core.Outcome
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return o.abandon(task, traceID, limiter.Count(), lastOutcome.Output, "cancelled: "+ctxErr.Error()), nil
		}

		switch state {
		case core.StatePlanning, core.StateRetrying:
			if err := limiter.Increment(); err != nil {
				return o.abandon(task, traceID, limiter.Count()-1, lastOutcome.Output, "iteration budget exhausted"), nil
			}
			plan, err := o.planner.Simulate(ctx, task.Description, memoryContext)
			if err != nil {
				return o.abandon(task, traceID, limiter.Count(), "", "planning failed: "+err.Error()), nil
			}
			o.transition(task.ID, state, core.StateExecuting, limiter.Count())

			lastOutcome = o.executePhase(ctx, task, plan)
			o.transition(task.ID, core.StateExecuting, core.StateReflecting, limiter.Count())

			verdict := o.critic.Critique(task, lastOutcome, limiter.Remaining())
			if err := o.persistVerdict(task, verdict); err != nil {
				o.storageAlert(task, "verdict persistence failed: "+err.Error())
				return o.abandon(task, traceID, limiter.Count(), lastOutcome.Output, "storage failure: "+err.Error()), nil
			}

			switch verdict.Decision {
			case core.DecisionRetry:
				o.transition(task.ID, core.StateReflecting, core.StateRetrying, limiter.Count())
				state = core.StateRetrying

			case core.DecisionAccept:
				o.transition(task.ID, core.StateReflecting, core.StateLearning, limiter.Count())
				if err := o.learn(task, plan, verdict); err != nil {
					o.storageAlert(task, "trace recording failed: "+err.Error())
					return o.abandon(task, traceID, limiter.Count(), lastOutcome.Output, "storage failure: "+err.Error()), nil
				}
				o.transition(task.ID, core.StateLearning, core.StateDone, limiter.Count())

				result := core.TaskResult{
					TaskID:         task.ID,
					Output:         lastOutcome.Output,
					Confidence:     verdict.OutcomeScore,
					TraceID:        traceID,
					IterationsUsed: limiter.Count(),
				}
				o.finish(task, core.NewTaskCompletedEvent(result), limiter.Count())
				return result, nil

			case core.DecisionAbandon:
				return o.abandon(task, traceID, limiter.Count(), lastOutcome.Output, verdict.Critique), nil
			}

		default:
			return o.abandon(task, traceID, limiter.Count(), lastOutcome.Output, "unexpected state "+state.String()), nil
		}
	}
}

// executePhase carries out the plan. A task pinned to a promoted skill runs
// the skill's procedure instead; an unknown skill name falls back to the
// plan so practice tasks for not-yet-promoted procedures still run.
func (o *Orchestrator) executePhase(ctx context.Context, task core.Task, plan core.PlanCandidate) core.Outcome {
	if name := task.Constraints["skill"]; name != "" && o.evolution != nil {
		res, err := o.evolution.Invoke(ctx, name)
		switch {
		case err == nil:
			outcome := core.Outcome{Output: res.Output, StepsExecuted: res.StepsExecuted}
			if !res.Success {
				outcome.StepErrors = []string{"skill procedure did not complete"}
			}
			return outcome
		case errors.Is(err, core.ErrNotFound):
			o.opts.Logger.Debug("pinned skill not promoted yet, executing plan", "task_id", task.ID, "skill", name)
		default:
			return core.Outcome{Err: err.Error()}
		}
	}
	return o.exec.run(ctx, task, plan)
}

// learn records the successful trace for promotion and clears the task's
// transient memory. A storage failure is returned so the caller can abandon
// the task; anything else only logs.
func (o *Orchestrator) learn(task core.Task, plan core.PlanCandidate, verdict core.ReflectionVerdict) error {
	trace := core.Trace{
		TaskID:     task.ID,
		Steps:      plan.Steps,
		Category:   taskCategory(task),
		Success:    true,
		Score:      verdict.OutcomeScore,
		RecordedAt: time.Now(),
	}
	if o.evolution != nil {
		if _, err := o.evolution.RecordTrace(trace); err != nil {
			if core.IsStorage(err) {
				return err
			}
			o.opts.Logger.Error("trace recording failed", "task_id", task.ID, "error", err)
		}
	}
	o.cleanup(task)
	return nil
}

// abandon produces the unsuccessful terminal result, releases the task's
// resources, and emits exactly one task.abandoned event.
func (o *Orchestrator) abandon(task core.Task, traceID string, iterations int, output, reason string) core.TaskResult {
	o.opts.Logger.Warn("task abandoned", "task_id", task.ID, "iterations", iterations, "reason", reason)
	o.cleanup(task)
	result := core.TaskResult{
		TaskID:         task.ID,
		Output:         output,
		TraceID:        traceID,
		IterationsUsed: iterations,
		Abandoned:      true,
	}
	o.finish(task, core.NewTaskAbandonedEvent(result, reason), iterations)
	return result
}

// finish emits the terminal event and checkpoints durable state. A failing
// checkpoint escalates through a storage.alert event; the result itself is
// already decided and still returned to the caller.
func (o *Orchestrator) finish(task core.Task, terminal core.Event, iterations int) {
	if err := o.bus.Publish(terminal); err != nil {
		o.opts.Logger.Error("terminal event publish failed", "task_id", task.ID, "error", err)
	}
	if err := o.store.SaveState(core.OrchestratorState{
		CurrentTaskID:    task.ID,
		IterationCount:   iterations,
		LastCheckpointAt: time.Now(),
	}); err != nil {
		o.storageAlert(task, "state save failed: "+err.Error())
		return
	}
	start := time.Now()
	err := o.store.Checkpoint()
	logging.Checkpoint(o.opts.Logger, task.ID, time.Since(start), err)
	if err != nil {
		o.storageAlert(task, "checkpoint failed: "+err.Error())
	}
}

func (o *Orchestrator) storageAlert(task core.Task, reason string) {
	o.opts.Logger.Error("storage failure", "task_id", task.ID, "reason", reason)
	if err := o.bus.Publish(core.NewStorageAlertEvent(reason, 0)); err != nil {
		o.opts.Logger.Error("storage alert publish failed", "task_id", task.ID, "error", err)
	}
}

// cleanup drops the task's working memory and releases its resource handles.
func (o *Orchestrator) cleanup(task core.Task) {
	if o.memory == nil {
		return
	}
	if err := o.memory.ClearWorking(task.ID); err != nil {
		o.opts.Logger.Error("working memory cleanup failed", "task_id", task.ID, "error", err)
	}
	if err := o.memory.ReleaseResources(task.ID); err != nil {
		o.opts.Logger.Error("resource release failed", "task_id", task.ID, "error", err)
	}
}

// loadContext pulls the memory entries relevant to the task for planning.
func (o *Orchestrator) loadContext(task core.Task) []core.MemoryEntry {
	if o.memory == nil {
		return nil
	}
	var context []core.MemoryEntry
	for _, kind := range []core.MemoryKind{core.MemoryEpisodic, core.MemorySemantic, core.MemoryProcedural} {
		entries, err := o.memory.Recall(kind, task.Description, o.opts.RecallLimit)
		if err != nil {
			o.opts.Logger.Warn("memory recall failed", "task_id", task.ID, "kind", string(kind), "error", err)
			continue
		}
		context = append(context, entries...)
	}
	return context
}

// persistVerdict writes the reflection verdict to episodic memory so later
// tasks can recall what worked and what did not. A storage failure is
// returned so the caller can abandon the task; anything else only logs.
func (o *Orchestrator) persistVerdict(task core.Task, verdict core.ReflectionVerdict) error {
	if o.memory == nil {
		return nil
	}
	content, err := json.Marshal(verdict)
	if err != nil {
		return nil
	}
	if _, err := o.memory.Remember(core.MemoryEpisodic, string(content), map[string]string{
		"task_id": task.ID,
		"type":    "reflection_verdict",
	}); err != nil {
		if core.IsStorage(err) {
			return err
		}
		o.opts.Logger.Warn("verdict persistence failed", "task_id", task.ID, "error", err)
	}
	return nil
}

// transition emits a trace event for a state change. Trace publishes are
// best-effort; the bus may also sample them out.
func (o *Orchestrator) transition(taskID string, from, to core.TaskState, iteration int) {
	logging.Transition(o.opts.Logger, taskID, from.String(), to.String(), iteration)
	if err := o.bus.Publish(core.NewTraceEvent(taskID, from.String(), to.String(), iteration)); err != nil {
		o.opts.Logger.Warn("trace publish failed", "task_id", taskID, "error", err)
	}
}

// iterationBudget maps a tier to its iteration allowance. Critical and
// complex tasks get the full budget; medium tasks get a short one.
func (o *Orchestrator) iterationBudget(tier core.Tier) int {
	switch tier {
	case core.TierMedium:
		if o.opts.MaxIterations > 2 {
			return 2
		}
		return o.opts.MaxIterations
	default:
		return o.opts.MaxIterations
	}
}

func taskCategory(task core.Task) string {
	if c := task.Constraints["category"]; c != "" {
		return c
	}
	return "general"
}
