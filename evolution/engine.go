package evolution

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus-agent/prometheus/core"
	"github.com/prometheus-agent/prometheus/internal/util"
	"github.com/prometheus-agent/prometheus/logging"
)

// StepRunner executes a single procedure step during skill invocation and
// returns its output. The default runner echoes the step, which is enough for
// deterministic tests; production wiring injects the orchestrator's executor.
type StepRunner func(ctx context.Context, step string) (string, error)

// Options configures promotion thresholds and invocation behavior.
type Options struct {
	// MinSamples is the number of independent traces of the same procedure
	// required before promotion is considered.
	MinSamples int

	// MinSuccessRate is the observed success rate a procedure must reach
	// across its samples to be promoted.
	MinSuccessRate float64

	// RunStep executes one procedure step during Invoke.
	RunStep StepRunner

	// OnPromote is called once per newly promoted skill, after the skill is
	// durable, with the number of trace samples behind the promotion. Used
	// by the facade to publish skill.promoted events.
	OnPromote func(skill core.Skill, samples int)

	Logger logging.Logger
}

// Engine is the skill promotion and invocation engine. All durable state
// lives in the store; the engine itself only serializes promotion decisions.
type Engine struct {
	store core.Store
	opts  Options

	// mu serializes promotion so two concurrent traces of the same
	// procedure cannot both promote it.
	mu sync.Mutex
}

// NewEngine creates an evolution engine over the given store.
func NewEngine(store core.Store, optFns ...func(o *Options)) *Engine {
	opts := Options{
		MinSamples:     3,
		MinSuccessRate: 0.8,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MinSamples < 1 {
		opts.MinSamples = 1
	}
	if opts.RunStep == nil {
		opts.RunStep = func(_ context.Context, step string) (string, error) {
			return step, nil
		}
	}
	return &Engine{store: store, opts: opts}
}

// RecordTrace persists an execution trace and then checks whether its
// procedure now qualifies for promotion. It returns the promoted skill when
// this trace tipped the procedure over the threshold, and nil otherwise.
func (e *Engine) RecordTrace(trace core.Trace) (*core.Skill, error) {
	if trace.RecordedAt.IsZero() {
		trace.RecordedAt = time.Now()
	}
	if err := e.store.SaveTrace(trace); err != nil {
		return nil, err
	}
	return e.promoteIfQualified(trace)
}

// promoteIfQualified aggregates all traces sharing the fingerprint and
// promotes when sample count and success rate both clear their thresholds.
// Already promoted procedures are left untouched.
func (e *Engine) promoteIfQualified(trace core.Trace) (*core.Skill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := SkillName(trace)
	if _, err := e.store.LoadSkill(name); err == nil {
		return nil, nil
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	traces, err := e.store.ListTraces(trace.Fingerprint())
	if err != nil {
		return nil, err
	}
	if len(traces) < e.opts.MinSamples {
		return nil, nil
	}
	succeeded := 0
	for _, t := range traces {
		if t.Success {
			succeeded++
		}
	}
	rate := float64(succeeded) / float64(len(traces))
	if rate < e.opts.MinSuccessRate {
		return nil, nil
	}

	skill := core.Skill{
		Name:           name,
		ProcedureSteps: append([]string(nil), trace.Steps...),
		SuccessRate:    rate,
		UsageCount:     0,
		Category:       trace.Category,
		Tags:           []string{"promoted"},
		LearnedAt:      time.Now(),
	}
	if err := e.store.SaveSkill(skill); err != nil {
		return nil, err
	}
	e.opts.Logger.Info("skill promoted",
		"skill", skill.Name,
		"category", skill.Category,
		"success_rate", rate,
		"samples", len(traces),
	)
	if e.opts.OnPromote != nil {
		e.opts.OnPromote(skill, len(traces))
	}
	return &skill, nil
}

// Invoke runs a promoted skill's procedure steps in order. Each invocation is
// recorded durably and the skill's live stats are recomputed from the full
// invocation history before being saved back. An unknown name returns
// core.ErrNotFound via the store.
func (e *Engine) Invoke(ctx context.Context, name string) (core.SkillResult, error) {
	skill, err := e.store.LoadSkill(name)
	if err != nil {
		return core.SkillResult{}, err
	}

	result := core.SkillResult{Success: true}
	var outputs []string
	for _, step := range skill.ProcedureSteps {
		if err := ctx.Err(); err != nil {
			result.Success = false
			break
		}
		out, err := e.opts.RunStep(ctx, step)
		result.StepsExecuted++
		if err != nil {
			result.Success = false
			outputs = append(outputs, fmt.Sprintf("step %d failed: %v", result.StepsExecuted, err))
			break
		}
		outputs = append(outputs, out)
	}
	result.Output = strings.Join(outputs, "\n")

	if err := e.store.SaveInvocation(core.SkillInvocation{
		SkillName: name,
		Success:   result.Success,
		At:        time.Now(),
	}); err != nil {
		return result, err
	}
	if err := e.refreshStats(skill); err != nil {
		return result, err
	}
	return result, nil
}

// refreshStats recomputes SuccessRate and UsageCount from the durable
// invocation history. Promotion-time samples count as the baseline when no
// invocations exist yet; once invocations accumulate they take over.
func (e *Engine) refreshStats(skill core.Skill) error {
	invs, err := e.store.ListInvocations(skill.Name)
	if err != nil {
		return err
	}
	if len(invs) == 0 {
		return nil
	}
	succeeded := 0
	for _, inv := range invs {
		if inv.Success {
			succeeded++
		}
	}
	skill.UsageCount = len(invs)
	skill.SuccessRate = float64(succeeded) / float64(len(invs))
	return e.store.SaveSkill(skill)
}

// List returns promoted skills matching the filter, ordered by descending
// success rate.
func (e *Engine) List(filter core.SkillFilter) ([]core.Skill, error) {
	skills, err := e.store.ListSkills()
	if err != nil {
		return nil, err
	}
	var out []core.Skill
	for _, s := range skills {
		if filter.Matches(s) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SuccessRate > out[j].SuccessRate })
	return out, nil
}

// practiceTemplate renders the description of a self-generated practice task.
const practiceTemplate = `Practice the {{.category}} skill "{{.skill}}": run its procedure and improve on the weakest observed outcome (current success rate {{.rate}}).`

// ProposePracticeTask generates a task targeting the weakest skill that has
// real usage behind it. It returns core.ErrNotFound when no skill is weak
// enough to need practice.
func (e *Engine) ProposePracticeTask() (core.Task, error) {
	skills, err := e.store.ListSkills()
	if err != nil {
		return core.Task{}, err
	}
	var weakest *core.Skill
	for i := range skills {
		s := &skills[i]
		if s.UsageCount == 0 {
			continue
		}
		if weakest == nil || s.SuccessRate < weakest.SuccessRate {
			weakest = s
		}
	}
	if weakest == nil || weakest.SuccessRate >= 1.0 {
		return core.Task{}, &core.NotFoundError{Entity: "practice candidate", Key: "weakest skill"}
	}

	desc, err := util.RenderTemplate(practiceTemplate, map[string]any{
		"category": weakest.Category,
		"skill":    weakest.Name,
		"rate":     fmt.Sprintf("%.2f", weakest.SuccessRate),
	})
	if err != nil {
		return core.Task{}, err
	}
	return core.Task{
		ID:          core.NewID(),
		Description: desc,
		Constraints: map[string]string{
			"practice": "true",
			"skill":    weakest.Name,
		},
		CreatedAt: time.Now(),
	}, nil
}

// SkillName derives a stable, human-readable skill name from a trace. The
// category carries the meaning; the fingerprint hash keeps distinct
// procedures in the same category apart.
func SkillName(trace core.Trace) string {
	sum := sha256.Sum256([]byte(trace.Fingerprint()))
	category := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(trace.Category)), " ", "-")
	if category == "" {
		category = "general"
	}
	return fmt.Sprintf("%s-%s", category, hex.EncodeToString(sum[:4]))
}
