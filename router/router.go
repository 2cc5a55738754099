package router

import (
	"strings"

	"github.com/prometheus-agent/prometheus/core"
	"github.com/prometheus-agent/prometheus/internal/util"
	"github.com/prometheus-agent/prometheus/logging"
)

// Options holds the classification thresholds. Exact values are
// configuration, not contract; defaults come from config.Default.
type Options struct {
	// MediumWordCount is the description length at which a task stops being
	// simple. A count exactly at the threshold rounds up.
	MediumWordCount int

	// ComplexWordCount is the description length at which a task needs the
	// full plan/act/reflect loop.
	ComplexWordCount int

	// MultiStepBoost is how many tiers the presence of multi-step language
	// raises the classification.
	MultiStepBoost int

	// ToolCountComplex is the estimated tool-call count at which a task is
	// at least complex regardless of length.
	ToolCountComplex int

	// LoadCriticalRatio is the orchestrator load ratio above which complex
	// tasks are promoted to critical, so near-capacity work gets the
	// maximum iteration budget rather than being under-provisioned.
	LoadCriticalRatio float64

	// Load reports current orchestrator load as a ratio in [0,1]. Nil means
	// load is ignored.
	Load func() float64

	Logger logging.Logger
}

// FeatureRouter scores task text features against configured thresholds. It
// holds no mutable state beyond read-only configuration and is safe for
// concurrent use.
type FeatureRouter struct {
	opts Options
}

var _ core.Router = (*FeatureRouter)(nil)

// New creates a router with the given options applied.
func New(optFns ...func(o *Options)) *FeatureRouter {
	opts := Options{
		MediumWordCount:   8,
		ComplexWordCount:  20,
		MultiStepBoost:    1,
		ToolCountComplex:  3,
		LoadCriticalRatio: 0.8,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &FeatureRouter{opts: opts}
}

// multiStepMarkers are words signaling an ordered sequence of actions.
var multiStepMarkers = []string{"then", "after", "next", "finally", "first", "second", "step", "steps", "sequential", "sequentially"}

// toolVerbs approximate how many distinct tool calls the description implies.
var toolVerbs = []string{
	"list", "read", "write", "fetch", "search", "download", "upload",
	"create", "delete", "run", "execute", "compile", "calculate",
	"analyze", "summarize", "compare", "deploy", "parse", "query",
}

// Classify maps the task's text features plus current load to a tier. Ties
// round up to the more capable tier.
func (r *FeatureRouter) Classify(task core.Task) core.Tier {
	words := util.Tokenize(task.Description)

	tier := core.TierSimple
	switch {
	case len(words) >= r.opts.ComplexWordCount:
		tier = core.TierComplex
	case len(words) >= r.opts.MediumWordCount:
		tier = core.TierMedium
	}

	if countMarkers(words, multiStepMarkers) > 0 {
		tier = raise(tier, r.opts.MultiStepBoost)
	}
	if countMarkers(words, toolVerbs) >= r.opts.ToolCountComplex && tier < core.TierComplex {
		tier = core.TierComplex
	}

	load := 0.0
	if r.opts.Load != nil {
		load = r.opts.Load()
	}
	if tier == core.TierComplex && (task.Priority > 0 || load >= r.opts.LoadCriticalRatio) {
		tier = core.TierCritical
	}

	r.opts.Logger.Debug("task classified",
		"task_id", task.ID,
		"tier", tier.String(),
		"words", len(words),
		"load", load,
	)
	return tier
}

func countMarkers(words []string, markers []string) int {
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[strings.ToLower(w)] = true
	}
	n := 0
	for _, m := range markers {
		if seen[m] {
			n++
		}
	}
	return n
}

func raise(t core.Tier, by int) core.Tier {
	raised := t + core.Tier(by)
	if raised > core.TierCritical {
		return core.TierCritical
	}
	return raised
}
