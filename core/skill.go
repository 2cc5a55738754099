package core

import "time"

// Skill is a named, reusable procedure promoted from repeated successful
// executions. ProcedureSteps are immutable after promotion; SuccessRate and
// UsageCount are live and recomputed by the evolution engine from the full
// durable invocation history, never estimated from a single run.
type Skill struct {
	Name           string    `json:"name"`
	ProcedureSteps []string  `json:"procedure_steps"`
	SuccessRate    float64   `json:"success_rate"`
	UsageCount     int       `json:"usage_count"`
	Category       string    `json:"category"`
	Tags           []string  `json:"tags,omitempty"`
	LearnedAt      time.Time `json:"learned_at"`
}

// SkillResult is the outcome of invoking a skill by name.
type SkillResult struct {
	StepsExecuted int    `json:"steps_executed"`
	Success       bool   `json:"success"`
	Output        string `json:"output"`
}

// SkillFilter narrows List results. Zero values match everything.
type SkillFilter struct {
	Category       string
	Tag            string
	MinSuccessRate float64
}

// Matches reports whether the skill passes every set filter field.
func (f SkillFilter) Matches(s Skill) bool {
	if f.Category != "" && s.Category != f.Category {
		return false
	}
	if f.MinSuccessRate > 0 && s.SuccessRate < f.MinSuccessRate {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, t := range s.Tags {
			if t == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Trace captures one completed execution attempt of a procedure, recorded by
// the orchestrator during LEARNING and consumed by the evolution engine when
// deciding promotion.
type Trace struct {
	TaskID     string    `json:"task_id"`
	Steps      []string  `json:"steps"`
	Category   string    `json:"category"`
	Success    bool      `json:"success"`
	Score      float64   `json:"score"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Fingerprint returns a stable identity for the procedure independent of the
// task that ran it, so independent attempts of the same procedure aggregate.
func (t Trace) Fingerprint() string {
	fp := t.Category
	for _, s := range t.Steps {
		fp += "\x1f" + s
	}
	return fp
}
