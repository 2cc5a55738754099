package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierAndStateNames(t *testing.T) {
	assert.Equal(t, "SIMPLE", TierSimple.String())
	assert.Equal(t, "CRITICAL", TierCritical.String())
	assert.Equal(t, "UNKNOWN", Tier(42).String())

	assert.Equal(t, "PLANNING", StatePlanning.String())
	assert.Equal(t, "ABANDONED", StateAbandoned.String())

	assert.Equal(t, "RETRY", DecisionRetry.String())
	assert.Equal(t, "ACCEPT", DecisionAccept.String())
	assert.Equal(t, "ABANDON", DecisionAbandon.String())
}

func TestIterationLimiter(t *testing.T) {
	limiter := NewIterationLimiter(2)
	assert.NoError(t, limiter.Increment())
	assert.NoError(t, limiter.Increment())
	assert.Equal(t, 2, limiter.Count())
	assert.Equal(t, 0, limiter.Remaining())
	assert.Error(t, limiter.Increment())
}

func TestIterationLimiterUnlimited(t *testing.T) {
	limiter := NewIterationLimiter(0)
	for i := 0; i < 100; i++ {
		assert.NoError(t, limiter.Increment())
	}
	assert.Equal(t, -1, limiter.Remaining())
}

func TestMemoryKinds(t *testing.T) {
	assert.Len(t, Kinds(), 6)
	assert.True(t, MemoryEpisodic.Valid())
	assert.True(t, MemoryVault.Valid())
	assert.False(t, MemoryKind("short_term").Valid())
}

func TestTraceFingerprint(t *testing.T) {
	a := Trace{Category: "reporting", Steps: []string{"fetch", "summarize"}}
	b := Trace{Category: "reporting", Steps: []string{"fetch", "summarize"}, TaskID: "other"}
	c := Trace{Category: "reporting", Steps: []string{"fetch"}}

	// Identity is category plus steps, independent of the task that ran it
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())

	// Step boundaries matter
	d := Trace{Category: "reporting", Steps: []string{"fetch summarize"}}
	assert.NotEqual(t, a.Fingerprint(), d.Fingerprint())
}

func TestSkillFilter(t *testing.T) {
	skill := Skill{Name: "s", Category: "reporting", Tags: []string{"promoted"}, SuccessRate: 0.9}

	assert.True(t, SkillFilter{}.Matches(skill))
	assert.True(t, SkillFilter{Category: "reporting"}.Matches(skill))
	assert.False(t, SkillFilter{Category: "coding"}.Matches(skill))
	assert.True(t, SkillFilter{Tag: "promoted"}.Matches(skill))
	assert.False(t, SkillFilter{Tag: "manual"}.Matches(skill))
	assert.True(t, SkillFilter{MinSuccessRate: 0.8}.Matches(skill))
	assert.False(t, SkillFilter{MinSuccessRate: 0.95}.Matches(skill))
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent(EventTaskCompleted, "task-1", map[string]any{"output": "done"})
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "task-1", ev.TaskID)
	assert.False(t, ev.Delivered)
	assert.JSONEq(t, `{"output":"done"}`, string(ev.Payload))

	// Nil payload becomes an empty object, never dropped
	empty := NewEvent(EventTrace, "", nil)
	assert.JSONEq(t, `{}`, string(empty.Payload))
}

func TestEventErrorClass(t *testing.T) {
	assert.True(t, NewStorageAlertEvent("disk", 1).IsErrorClass())
	assert.True(t, NewEvent(EventTaskFailed, "t", nil).IsErrorClass())
	assert.False(t, NewTraceEvent("t", "PLANNING", "EXECUTING", 1).IsErrorClass())
	assert.False(t, NewEvent(EventSkillPromoted, "", nil).IsErrorClass())
}
