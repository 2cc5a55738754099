package world

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus-agent/prometheus/core"
	"github.com/prometheus-agent/prometheus/internal/util"
	"github.com/prometheus-agent/prometheus/logging"
	"github.com/prometheus-agent/prometheus/model"
)

// Options configures the simulator.
type Options struct {
	// TimeBudget caps wall-clock time for a single Simulate call. When it
	// expires the best candidate found so far is returned.
	TimeBudget time.Duration

	// MaxDepth bounds how many steps a candidate plan may contain.
	MaxDepth int

	// BeamWidth bounds how many partial plans survive each expansion round.
	BeamWidth int

	// MinConfidence is the score below which a returned candidate is
	// considered low-confidence. Simulate still returns it; callers decide
	// what to do with the uncertainty.
	MinConfidence float64

	// Model, when set, is asked to propose candidate steps for the goal.
	// Without a model the simulator falls back to deterministic heuristic
	// step templates.
	Model model.Model

	Logger logging.Logger
}

// Simulator performs bounded look-ahead over candidate step sequences.
type Simulator struct {
	opts Options
}

var _ core.Planner = (*Simulator)(nil)

// NewSimulator creates a simulator with the given options applied.
func NewSimulator(optFns ...func(o *Options)) *Simulator {
	opts := Options{
		TimeBudget:    200 * time.Millisecond,
		MaxDepth:      4,
		BeamWidth:     3,
		MinConfidence: 0.4,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxDepth < 1 {
		opts.MaxDepth = 1
	}
	if opts.BeamWidth < 1 {
		opts.BeamWidth = 1
	}
	return &Simulator{opts: opts}
}

// candidate is a partial plan under evaluation.
type candidate struct {
	steps []string
	score float64
}

// Simulate searches for the step sequence that best advances the goal. The
// search expands partial plans breadth-first, keeps the BeamWidth highest
// scoring at each depth, and stops at MaxDepth, at the time budget, or on
// context cancellation, whichever comes first. It always returns a candidate;
// the only error condition is a context that was cancelled before any plan
// could be scored.
func (s *Simulator) Simulate(ctx context.Context, goal string, memoryContext []core.MemoryEntry) (core.PlanCandidate, error) {
	start := time.Now()
	deadline := start.Add(s.opts.TimeBudget)
	if s.opts.TimeBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	pool := s.stepPool(ctx, goal, memoryContext)

	beam := []candidate{{steps: nil, score: 0}}
	best := candidate{steps: []string{fmt.Sprintf("Attempt directly: %s", strings.TrimSpace(goal))}}
	best.score = s.score(goal, memoryContext, best.steps)
	scored := 0

	for depth := 0; depth < s.opts.MaxDepth; depth++ {
		if err := ctx.Err(); err != nil {
			break
		}
		var next []candidate
		for _, c := range beam {
			for _, step := range pool {
				if containsStep(c.steps, step) {
					continue
				}
				ext := candidate{steps: append(append([]string(nil), c.steps...), step)}
				ext.score = s.score(goal, memoryContext, ext.steps)
				scored++
				next = append(next, ext)
				if ext.score > best.score {
					best = ext
				}
			}
			if ctx.Err() != nil {
				break
			}
		}
		if len(next) == 0 {
			break
		}
		sort.SliceStable(next, func(i, j int) bool { return next[i].score > next[j].score })
		if len(next) > s.opts.BeamWidth {
			next = next[:s.opts.BeamWidth]
		}
		beam = next
	}

	if scored == 0 && ctx.Err() != nil && len(best.steps) == 0 {
		return core.PlanCandidate{}, &core.TransientError{Op: "world.simulate", Err: ctx.Err()}
	}

	confidence := clamp01(best.score)
	plan := core.PlanCandidate{
		Steps:            best.steps,
		PredictedOutcome: s.predictOutcome(goal, best.steps, confidence),
		Confidence:       confidence,
	}
	s.opts.Logger.Debug("simulation complete",
		"steps", len(plan.Steps),
		"confidence", plan.Confidence,
		"candidates_scored", scored,
		"elapsed", time.Since(start).String(),
		"low_confidence", confidence < s.opts.MinConfidence,
	)
	return plan, nil
}

// LowConfidence reports whether the candidate fell below the configured
// confidence threshold.
func (s *Simulator) LowConfidence(p core.PlanCandidate) bool {
	return p.Confidence < s.opts.MinConfidence
}

// stepPool builds the set of steps the search may draw from. Heuristic
// templates derived from the goal always participate; procedural memory
// contributes known procedure steps, and the model, when present and within
// budget, contributes free-form proposals.
func (s *Simulator) stepPool(ctx context.Context, goal string, memoryContext []core.MemoryEntry) []string {
	goal = strings.TrimSpace(goal)
	pool := []string{
		fmt.Sprintf("Gather context relevant to: %s", goal),
		fmt.Sprintf("Break down the goal into sub-problems: %s", goal),
		fmt.Sprintf("Execute the core action for: %s", goal),
		fmt.Sprintf("Verify the result against: %s", goal),
		"Record the outcome for future recall",
	}
	for _, entry := range memoryContext {
		if entry.Kind != core.MemoryProcedural {
			continue
		}
		for _, line := range strings.Split(entry.Content, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || containsStep(pool, line) {
				continue
			}
			pool = append(pool, line)
		}
	}
	if s.opts.Model != nil && ctx.Err() == nil {
		pool = append(pool, s.proposeSteps(ctx, goal)...)
	}
	return pool
}

// proposeSteps asks the model for step candidates, one per line. Failures
// degrade silently to the heuristic pool.
func (s *Simulator) proposeSteps(ctx context.Context, goal string) []string {
	resp, err := s.opts.Model.Generate(ctx, model.Request{
		System:    "You propose concrete action steps for a goal. Respond with one short imperative step per line, nothing else.",
		Prompt:    fmt.Sprintf("Goal: %s\nPropose up to %d steps.", goal, s.opts.MaxDepth),
		MaxTokens: 256,
	})
	if err != nil {
		s.opts.Logger.Debug("model step proposal failed, using heuristics only", "error", err)
		return nil
	}
	var steps []string
	for _, line := range strings.Split(resp.Text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789. "))
		if line == "" {
			continue
		}
		steps = append(steps, line)
		if len(steps) >= s.opts.MaxDepth {
			break
		}
	}
	return steps
}

// score rates a step sequence by goal fit and memory support minus a length
// cost. Scores land roughly in [0,1]; clamp happens at the end of Simulate.
func (s *Simulator) score(goal string, memoryContext []core.MemoryEntry, steps []string) float64 {
	if len(steps) == 0 {
		return 0
	}
	joined := strings.Join(steps, " ")
	fit := util.Overlap(goal, joined)

	support := 0.0
	if len(memoryContext) > 0 {
		for _, entry := range memoryContext {
			support += util.Overlap(joined, entry.Content)
		}
		support /= float64(len(memoryContext))
	}

	cost := 0.05 * float64(len(steps))
	return 0.7*fit + 0.3*support - cost
}

func (s *Simulator) predictOutcome(goal string, steps []string, confidence float64) string {
	switch {
	case confidence >= s.opts.MinConfidence:
		return fmt.Sprintf("Goal %q achieved after %d steps", strings.TrimSpace(goal), len(steps))
	default:
		return fmt.Sprintf("Uncertain progress toward %q; best known sequence has %d steps", strings.TrimSpace(goal), len(steps))
	}
}

func containsStep(steps []string, step string) bool {
	for _, s := range steps {
		if strings.EqualFold(s, step) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
