// Package prometheus provides a high-level façade over the orchestration
// core (routing, memory, world model, reflection, evolution, persistence and
// the event bus) enabling rapid construction of self-improving task runners.
// Most applications interact with this package by:
//  1. Creating a Prometheus via New() (optionally overriding the store,
//     model backend and configuration)
//  2. Calling Start() to recover durable state and replay undelivered events
//  3. Submitting tasks (Submit) and subscribing to events (Subscribe)
//
// The façade delegates execution to orchestrator.Orchestrator while keeping
// setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a durable
// store path and a structured logger.
package prometheus

import (
	"context"

	"github.com/prometheus-agent/prometheus/config"
	"github.com/prometheus-agent/prometheus/core"
	"github.com/prometheus-agent/prometheus/eventbus"
	"github.com/prometheus-agent/prometheus/evolution"
	"github.com/prometheus-agent/prometheus/logging"
	"github.com/prometheus-agent/prometheus/memory"
	"github.com/prometheus-agent/prometheus/model"
	"github.com/prometheus-agent/prometheus/orchestrator"
	"github.com/prometheus-agent/prometheus/reflection"
	"github.com/prometheus-agent/prometheus/router"
	"github.com/prometheus-agent/prometheus/store"
	"github.com/prometheus-agent/prometheus/tool"
	"github.com/prometheus-agent/prometheus/world"
)

// Options configures the Prometheus instance.
type Options struct {
	// Config supplies every tunable threshold. Defaults to config.Default().
	Config config.Config

	// StorePath, when set, opens a durable SQLite store at that path. When
	// empty an in-memory store is used, which is fine for tests and local
	// experiments but survives nothing.
	StorePath string

	// Store overrides the persistence layer entirely. Takes precedence over
	// StorePath.
	Store core.Store

	// Model is the optional language backend shared by the world model, the
	// executor and the simple-tier delegate. Without one every component
	// falls back to its deterministic offline behavior.
	Model model.Model

	// Delegate handles simple-tier tasks. Defaults to router.LocalDelegate.
	Delegate core.Delegate

	// Tools is the registry available to plan steps. Defaults to a registry
	// holding the scratchpad tool.
	Tools *tool.Registry

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Prometheus is the high-level façade aggregating the orchestration core.
type Prometheus struct {
	opts Options
	cfg  config.Config

	store     core.Store
	bus       *eventbus.OutboxBus
	memory    *memory.Manager
	evolution *evolution.Engine
	router    *router.FeatureRouter
	delegate  core.Delegate
	orch      *orchestrator.Orchestrator

	started bool
}

// New creates a Prometheus instance with optional overrides. Any unset
// collaborator is initialized with a sensible default.
func New(optFns ...func(o *Options)) (*Prometheus, error) {
	opts := Options{
		Config: config.Default(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	cfg := opts.Config

	p := &Prometheus{opts: opts, cfg: cfg}

	st := opts.Store
	if st == nil {
		if opts.StorePath != "" {
			sqliteStore, err := store.Open(opts.StorePath, func(o *store.Options) {
				o.Compress = cfg.Store.Compress
				o.CompactThresholdBytes = cfg.Store.CompactThresholdBytes
				o.AlertThresholdBytes = cfg.Store.AlertThresholdBytes
				o.Logger = opts.Logger
				o.OnAlert = func(reason string, sizeBytes int64) {
					p.publish(core.NewStorageAlertEvent(reason, sizeBytes))
				}
			})
			if err != nil {
				return nil, err
			}
			st = sqliteStore
		} else {
			st = store.NewInMemoryStore()
		}
	}
	p.store = st

	p.bus = eventbus.New(st, func(o *eventbus.Options) {
		o.SubscriberBuffer = cfg.Bus.SubscriberBuffer
		o.TraceSampleRate = cfg.Bus.TraceSampleRate
		o.MaxRetries = cfg.Bus.MaxRetries
		o.Logger = opts.Logger
	})

	p.memory = memory.NewManager(st, func(o *memory.Options) {
		o.EpisodicMaxEntries = cfg.Memory.EpisodicMaxEntries
		o.RecencyHalfLife = cfg.Memory.RecencyHalfLife.Std()
		o.Logger = opts.Logger
		o.OnEvict = func(entryID string, kind core.MemoryKind, vaultID string) {
			p.publish(core.NewMemoryEvictedEvent(entryID, kind, vaultID))
		}
	})

	p.evolution = evolution.NewEngine(st, func(o *evolution.Options) {
		o.MinSamples = cfg.Evolution.MinSamples
		o.MinSuccessRate = cfg.Evolution.MinSuccessRate
		o.Logger = opts.Logger
		if opts.Model != nil {
			o.RunStep = orchestrator.ModelStepRunner(opts.Model, opts.Logger)
		}
		o.OnPromote = func(skill core.Skill, samples int) {
			p.publish(core.NewSkillPromotedEvent(skill, samples))
		}
	})

	planner := world.NewSimulator(func(o *world.Options) {
		o.TimeBudget = cfg.World.TimeBudget.Std()
		o.MaxDepth = cfg.World.MaxDepth
		o.BeamWidth = cfg.World.BeamWidth
		o.MinConfidence = cfg.World.MinConfidence
		o.Model = opts.Model
		o.Logger = opts.Logger
	})

	critic := reflection.NewEngine(func(o *reflection.Options) {
		o.AcceptScore = cfg.Reflection.AcceptScore
		o.RetryScore = cfg.Reflection.RetryScore
		o.Logger = opts.Logger
	})

	tools := opts.Tools
	if tools == nil {
		tools = tool.NewRegistry()
		if err := tools.Register(tool.NewScratchpadTool()); err != nil {
			return nil, err
		}
	}

	p.orch = orchestrator.New(planner, critic, p.memory, p.evolution, st, p.bus, func(o *orchestrator.Options) {
		o.MaxIterations = cfg.Orchestrator.MaxIterations
		o.MaxConcurrentTasks = int64(cfg.Orchestrator.MaxConcurrentTasks)
		o.RecallLimit = cfg.Memory.RecallLimit
		o.Model = opts.Model
		o.Tools = tools
		o.Logger = opts.Logger
	})

	p.router = router.New(func(o *router.Options) {
		o.MediumWordCount = cfg.Router.MediumWordCount
		o.ComplexWordCount = cfg.Router.ComplexWordCount
		o.MultiStepBoost = cfg.Router.MultiStepBoost
		o.ToolCountComplex = cfg.Router.ToolCountComplex
		o.LoadCriticalRatio = cfg.Router.LoadCriticalRatio
		o.Load = p.orch.Load
		o.Logger = opts.Logger
	})

	p.delegate = opts.Delegate
	if p.delegate == nil {
		p.delegate = router.NewLocalDelegate(opts.Model)
	}

	return p, nil
}

// Start recovers durable state and replays events left undelivered by a
// previous run. It must be called before Submit.
func (p *Prometheus) Start(ctx context.Context) error {
	if p.started {
		return nil
	}
	if err := p.store.Recover(); err != nil {
		return err
	}
	if state, err := p.store.LoadState(); err == nil && !state.LastCheckpointAt.IsZero() {
		p.opts.Logger.Info("orchestrator state restored",
			"last_task_id", state.CurrentTaskID,
			"last_checkpoint_at", state.LastCheckpointAt)
	}
	if err := p.bus.Start(ctx); err != nil {
		return err
	}
	p.started = true
	return nil
}

// Submit classifies the task and executes it. Simple-tier tasks go to the
// delegate and never touch the orchestrator; everything else runs the full
// loop. The returned result is always terminal.
func (p *Prometheus) Submit(ctx context.Context, description string, constraints map[string]string, priority int) (core.TaskResult, error) {
	task := core.NewTask(description, constraints, priority)
	task.Tier = p.router.Classify(task)

	if task.Tier == core.TierSimple {
		result, err := p.delegate.Handle(ctx, task)
		if err != nil {
			p.publish(core.NewTaskFailedEvent(task.ID, err.Error()))
			return result, err
		}
		result.TaskID = task.ID
		p.publish(core.NewTaskCompletedEvent(result))
		return result, nil
	}
	return p.orch.Execute(ctx, task)
}

// RunPracticeCycle asks the evolution engine for a practice task targeting
// the weakest skill and executes it through the full loop. It returns
// core.ErrNotFound when no skill needs practice.
func (p *Prometheus) RunPracticeCycle(ctx context.Context) (core.TaskResult, error) {
	task, err := p.evolution.ProposePracticeTask()
	if err != nil {
		return core.TaskResult{}, err
	}
	p.publish(core.NewEvent(core.EventPracticeGenerated, task.ID, map[string]any{
		"description": task.Description,
		"skill":       task.Constraints["skill"],
	}))
	task.Tier = core.TierMedium
	return p.orch.Execute(ctx, task)
}

// Remember stores content in the given memory kind.
func (p *Prometheus) Remember(kind core.MemoryKind, content string, metadata map[string]string) (string, error) {
	return p.memory.Remember(kind, content, metadata)
}

// QueryMemory searches a memory kind by keyword relevance and recency.
func (p *Prometheus) QueryMemory(kind core.MemoryKind, query string, limit int) ([]core.MemoryEntry, error) {
	return p.memory.Recall(kind, query, limit)
}

// AcquireResource registers an external resource handle (a file, connection
// or session identifier) against a task. Handles are reference counted
// across tasks and released automatically when their last task finishes.
func (p *Prometheus) AcquireResource(handle, taskID string) (string, error) {
	return p.memory.AcquireResource(handle, taskID)
}

// ReleaseResources drops a task's references to its resource handles. The
// orchestrator calls this on every terminal path; it is exposed for callers
// that acquire handles outside a submitted task.
func (p *Prometheus) ReleaseResources(taskID string) error {
	return p.memory.ReleaseResources(taskID)
}

// InvokeSkill runs a promoted skill by name and records the invocation.
func (p *Prometheus) InvokeSkill(ctx context.Context, name string) (core.SkillResult, error) {
	result, err := p.evolution.Invoke(ctx, name)
	if err != nil {
		return result, err
	}
	p.publish(core.NewEvent(core.EventSkillInvoked, "", map[string]any{
		"skill":   name,
		"success": result.Success,
	}))
	return result, nil
}

// ListSkills returns promoted skills matching the filter.
func (p *Prometheus) ListSkills(filter core.SkillFilter) ([]core.Skill, error) {
	return p.evolution.List(filter)
}

// Subscribe registers a handler for an event type (eventbus.Wildcard for all).
func (p *Prometheus) Subscribe(eventType string, handler core.Handler) error {
	return p.bus.Subscribe(eventType, handler)
}

// Stats reports persistence-layer health.
func (p *Prometheus) Stats() (core.StoreStats, error) {
	return p.store.Stats()
}

// Shutdown drains the bus and closes the store. The instance cannot be
// reused afterwards.
func (p *Prometheus) Shutdown() error {
	busErr := p.bus.Close()
	if err := p.store.Close(); err != nil {
		return err
	}
	return busErr
}

func (p *Prometheus) publish(event core.Event) {
	if err := p.bus.Publish(event); err != nil {
		p.opts.Logger.Error("event publish failed", "type", event.Type, "error", err)
	}
}
