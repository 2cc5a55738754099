// Package config holds every tunable of the orchestration core in one
// validated structure. Thresholds treated as configuration rather than
// contract (router cutoffs, promotion minimums, compaction sizes) live here
// so deployments can adjust them without code changes.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/prometheus-agent/prometheus/core"
)

// Duration wraps time.Duration so YAML files can use human-readable values
// like "200ms" or "6h".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return &core.ConfigurationError{Field: "duration", Reason: err.Error()}
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all Prometheus configuration.
type Config struct {
	// Orchestrator loop settings.
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`

	// Task router thresholds.
	Router RouterConfig `yaml:"router"`

	// Memory retention settings.
	Memory MemoryConfig `yaml:"memory"`

	// World model search budget.
	World WorldConfig `yaml:"world"`

	// Reflection thresholds.
	Reflection ReflectionConfig `yaml:"reflection"`

	// Skill promotion settings.
	Evolution EvolutionConfig `yaml:"evolution"`

	// Durable storage settings.
	Store StoreConfig `yaml:"store"`

	// Event bus settings.
	Bus BusConfig `yaml:"bus"`
}

// OrchestratorConfig bounds the execution loop.
type OrchestratorConfig struct {
	// MaxIterations caps state-machine iterations per task before the loop
	// abandons with a partial result.
	MaxIterations int `yaml:"max_iterations"`
	// MaxConcurrentTasks bounds orchestrator-tier tasks running at once.
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks"`
}

// RouterConfig holds the complexity classification thresholds. The exact
// formula is deliberately configuration, not contract.
type RouterConfig struct {
	// MediumWordCount and up classifies at least MEDIUM.
	MediumWordCount int `yaml:"medium_word_count"`
	// ComplexWordCount and up classifies at least COMPLEX.
	ComplexWordCount int `yaml:"complex_word_count"`
	// MultiStepBoost is how many tiers a multi-step indicator raises.
	MultiStepBoost int `yaml:"multi_step_boost"`
	// ToolCountComplex is the estimated tool count that forces COMPLEX.
	ToolCountComplex int `yaml:"tool_count_complex"`
	// LoadCriticalRatio is the orchestrator load fraction above which
	// COMPLEX rounds up to CRITICAL.
	LoadCriticalRatio float64 `yaml:"load_critical_ratio"`
}

// MemoryConfig bounds per-kind retention.
type MemoryConfig struct {
	// EpisodicMaxEntries is the LRU bound for the raw experience log.
	EpisodicMaxEntries int `yaml:"episodic_max_entries"`
	// RecencyHalfLife weights recall relevance toward recent entries.
	RecencyHalfLife Duration `yaml:"recency_half_life"`
	// RecallLimit is the default result cap for recall queries.
	RecallLimit int `yaml:"recall_limit"`
}

// WorldConfig bounds plan search.
type WorldConfig struct {
	// TimeBudget is the hard wall-clock bound for one simulation.
	TimeBudget Duration `yaml:"time_budget"`
	// MaxDepth bounds the look-ahead step count.
	MaxDepth int `yaml:"max_depth"`
	// BeamWidth bounds candidates kept per depth.
	BeamWidth int `yaml:"beam_width"`
	// MinConfidence is the threshold below which a plan is tagged
	// low-confidence rather than rejected.
	MinConfidence float64 `yaml:"min_confidence"`
}

// ReflectionConfig holds ACCEPT/RETRY cutoffs.
type ReflectionConfig struct {
	// AcceptScore is the outcome score at or above which the verdict is ACCEPT.
	AcceptScore float64 `yaml:"accept_score"`
	// RetryScore is the outcome score at or above which a shortfall is
	// still considered recoverable.
	RetryScore float64 `yaml:"retry_score"`
}

// EvolutionConfig holds skill promotion thresholds.
type EvolutionConfig struct {
	// MinSamples is the minimum number of independent successful attempts
	// before a procedure qualifies for promotion.
	MinSamples int `yaml:"min_samples"`
	// MinSuccessRate is the aggregate success rate floor for promotion.
	MinSuccessRate float64 `yaml:"min_success_rate"`
}

// StoreConfig configures the durable medium.
type StoreConfig struct {
	// Path is the database file location. Empty selects in-memory storage.
	Path string `yaml:"path"`
	// CompactThresholdBytes triggers automatic compaction when exceeded.
	CompactThresholdBytes int64 `yaml:"compact_threshold_bytes"`
	// AlertThresholdBytes triggers a critical storage alert when exceeded.
	AlertThresholdBytes int64 `yaml:"alert_threshold_bytes"`
	// Compress enables gzip compression of stored payloads. Reads remain
	// backward compatible with uncompressed legacy rows either way.
	Compress bool `yaml:"compress"`
}

// BusConfig configures event delivery.
type BusConfig struct {
	// SubscriberBuffer is the bounded queue size per subscriber.
	SubscriberBuffer int `yaml:"subscriber_buffer"`
	// TraceSampleRate is the retained fraction of routine trace events in
	// [0,1]. Error-class events are always retained.
	TraceSampleRate float64 `yaml:"trace_sample_rate"`
	// MaxRetries bounds redelivery attempts for a failing event.
	MaxRetries int `yaml:"max_retries"`
}

// Default returns the baseline configuration every deployment starts from.
func Default() Config {
	return Config{
		Orchestrator: OrchestratorConfig{
			MaxIterations:      5,
			MaxConcurrentTasks: 3,
		},
		Router: RouterConfig{
			MediumWordCount:   8,
			ComplexWordCount:  20,
			MultiStepBoost:    1,
			ToolCountComplex:  3,
			LoadCriticalRatio: 0.8,
		},
		Memory: MemoryConfig{
			EpisodicMaxEntries: 500,
			RecencyHalfLife:    Duration(6 * time.Hour),
			RecallLimit:        10,
		},
		World: WorldConfig{
			TimeBudget:    Duration(200 * time.Millisecond),
			MaxDepth:      4,
			BeamWidth:     3,
			MinConfidence: 0.4,
		},
		Reflection: ReflectionConfig{
			AcceptScore: 0.7,
			RetryScore:  0.3,
		},
		Evolution: EvolutionConfig{
			MinSamples:     3,
			MinSuccessRate: 0.8,
		},
		Store: StoreConfig{
			CompactThresholdBytes: 64 << 20,
			AlertThresholdBytes:   256 << 20,
			Compress:              true,
		},
		Bus: BusConfig{
			SubscriberBuffer: 64,
			TraceSampleRate:  0.1,
			MaxRetries:       5,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, &core.ConfigurationError{Field: "path", Reason: err.Error()}
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &core.ConfigurationError{Field: "yaml", Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations that would break loop or delivery bounds.
func (c Config) Validate() error {
	if c.Orchestrator.MaxIterations < 1 {
		return &core.ConfigurationError{Field: "orchestrator.max_iterations", Reason: "must be at least 1"}
	}
	if c.Orchestrator.MaxConcurrentTasks < 1 {
		return &core.ConfigurationError{Field: "orchestrator.max_concurrent_tasks", Reason: "must be at least 1"}
	}
	if c.Evolution.MinSamples < 1 {
		return &core.ConfigurationError{Field: "evolution.min_samples", Reason: "must be at least 1"}
	}
	if c.Evolution.MinSuccessRate < 0 || c.Evolution.MinSuccessRate > 1 {
		return &core.ConfigurationError{Field: "evolution.min_success_rate", Reason: "must be in [0,1]"}
	}
	if c.Bus.TraceSampleRate < 0 || c.Bus.TraceSampleRate > 1 {
		return &core.ConfigurationError{Field: "bus.trace_sample_rate", Reason: "must be in [0,1]"}
	}
	if c.Bus.SubscriberBuffer < 1 {
		return &core.ConfigurationError{Field: "bus.subscriber_buffer", Reason: "must be at least 1"}
	}
	if c.Router.ComplexWordCount <= c.Router.MediumWordCount {
		return &core.ConfigurationError{Field: "router.complex_word_count", Reason: "must exceed medium_word_count"}
	}
	if c.Store.AlertThresholdBytes > 0 && c.Store.CompactThresholdBytes > c.Store.AlertThresholdBytes {
		return &core.ConfigurationError{Field: "store.compact_threshold_bytes", Reason: "must not exceed alert_threshold_bytes"}
	}
	if c.World.MaxDepth < 1 || c.World.BeamWidth < 1 {
		return &core.ConfigurationError{Field: "world", Reason: "max_depth and beam_width must be at least 1"}
	}
	if err := validateScoreOrder(c.Reflection); err != nil {
		return err
	}
	return nil
}

func validateScoreOrder(r ReflectionConfig) error {
	if r.AcceptScore < 0 || r.AcceptScore > 1 || r.RetryScore < 0 || r.RetryScore > 1 {
		return &core.ConfigurationError{Field: "reflection", Reason: "scores must be in [0,1]"}
	}
	if r.RetryScore >= r.AcceptScore {
		return &core.ConfigurationError{Field: "reflection.retry_score", Reason: fmt.Sprintf("must be below accept_score (%.2f)", r.AcceptScore)}
	}
	return nil
}
