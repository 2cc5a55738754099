package evolution

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prometheus-agent/prometheus/core"
	"github.com/prometheus-agent/prometheus/internal/testutil"
	"github.com/prometheus-agent/prometheus/store"
)

func TestNoPromotionBelowSampleThreshold(t *testing.T) {
	e := NewEngine(store.NewInMemoryStore())

	skill, err := e.RecordTrace(testutil.NewTrace("reporting", "collect numbers", "write summary"))
	require.NoError(t, err)
	assert.Nil(t, skill)

	skill, err = e.RecordTrace(testutil.NewTrace("reporting", "collect numbers", "write summary"))
	require.NoError(t, err)
	assert.Nil(t, skill)

	skills, err := e.List(core.SkillFilter{})
	require.NoError(t, err)
	assert.Empty(t, skills)
}

func TestPromotionAtThreshold(t *testing.T) {
	var promoted []core.Skill
	var samples []int
	e := NewEngine(store.NewInMemoryStore(), func(o *Options) {
		o.OnPromote = func(skill core.Skill, n int) {
			promoted = append(promoted, skill)
			samples = append(samples, n)
		}
	})

	var last *core.Skill
	for i := 0; i < 3; i++ {
		skill, err := e.RecordTrace(testutil.NewTrace("reporting", "collect numbers", "write summary"))
		require.NoError(t, err)
		last = skill
	}

	require.NotNil(t, last, "third identical successful trace should promote")
	assert.Equal(t, "reporting", last.Category)
	assert.Equal(t, []string{"collect numbers", "write summary"}, last.ProcedureSteps)
	assert.Equal(t, 1.0, last.SuccessRate)
	assert.Equal(t, 0, last.UsageCount)
	assert.Contains(t, last.Tags, "promoted")

	require.Len(t, promoted, 1)
	assert.Equal(t, last.Name, promoted[0].Name)
	assert.Equal(t, []int{3}, samples)
}

func TestPromotionHappensOnce(t *testing.T) {
	calls := 0
	e := NewEngine(store.NewInMemoryStore(), func(o *Options) {
		o.OnPromote = func(core.Skill, int) { calls++ }
	})

	for i := 0; i < 6; i++ {
		_, err := e.RecordTrace(testutil.NewTrace("reporting", "collect numbers", "write summary"))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)
}

func TestNoPromotionBelowSuccessRate(t *testing.T) {
	e := NewEngine(store.NewInMemoryStore(), func(o *Options) { o.MinSamples = 4 })

	for i := 0; i < 4; i++ {
		trace := testutil.NewTrace("ingest", "pull feed", "normalize records")
		if i%2 == 0 {
			trace.Success = false
		}
		skill, err := e.RecordTrace(trace)
		require.NoError(t, err)
		// 50% observed success never clears the 80% bar.
		assert.Nil(t, skill)
	}
}

func TestPromotionOverTenSamples(t *testing.T) {
	e := NewEngine(store.NewInMemoryStore(), func(o *Options) { o.MinSamples = 10 })

	var last *core.Skill
	for i := 0; i < 10; i++ {
		skill, err := e.RecordTrace(testutil.NewTrace("parsing", "tokenize input", "emit tree"))
		require.NoError(t, err)
		if i < 9 {
			assert.Nil(t, skill)
		}
		last = skill
	}
	require.NotNil(t, last)
	assert.Equal(t, 1.0, last.SuccessRate)
}

func TestDistinctProceduresAggregateSeparately(t *testing.T) {
	e := NewEngine(store.NewInMemoryStore())

	for i := 0; i < 2; i++ {
		_, err := e.RecordTrace(testutil.NewTrace("reporting", "collect numbers", "write summary"))
		require.NoError(t, err)
	}
	// A different step sequence in the same category is a different
	// procedure and must not inherit the other's samples.
	skill, err := e.RecordTrace(testutil.NewTrace("reporting", "collect numbers", "email summary"))
	require.NoError(t, err)
	assert.Nil(t, skill)
}

func TestInvokeRunsStepsAndRecordsStats(t *testing.T) {
	var ran []string
	e := NewEngine(store.NewInMemoryStore(), func(o *Options) {
		o.RunStep = func(_ context.Context, step string) (string, error) {
			ran = append(ran, step)
			return "did: " + step, nil
		}
	})

	var name string
	for i := 0; i < 3; i++ {
		skill, err := e.RecordTrace(testutil.NewTrace("reporting", "collect numbers", "write summary"))
		require.NoError(t, err)
		if skill != nil {
			name = skill.Name
		}
	}
	require.NotEmpty(t, name)

	result, err := e.Invoke(context.Background(), name)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.StepsExecuted)
	assert.Equal(t, "did: collect numbers\ndid: write summary", result.Output)
	assert.Equal(t, []string{"collect numbers", "write summary"}, ran)

	skills, err := e.List(core.SkillFilter{})
	require.NoError(t, err)
	require.Len(t, skills, 1)
	assert.Equal(t, 1, skills[0].UsageCount)
	assert.Equal(t, 1.0, skills[0].SuccessRate)
}

func TestInvokeUnknownSkill(t *testing.T) {
	e := NewEngine(store.NewInMemoryStore())

	_, err := e.Invoke(context.Background(), "no-such-skill")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestInvokeFailureLowersSuccessRate(t *testing.T) {
	fail := false
	e := NewEngine(store.NewInMemoryStore(), func(o *Options) {
		o.RunStep = func(_ context.Context, step string) (string, error) {
			if fail {
				return "", errors.New("tool unavailable")
			}
			return step, nil
		}
	})

	var name string
	for i := 0; i < 3; i++ {
		skill, err := e.RecordTrace(testutil.NewTrace("reporting", "collect numbers", "write summary"))
		require.NoError(t, err)
		if skill != nil {
			name = skill.Name
		}
	}
	require.NotEmpty(t, name)

	_, err := e.Invoke(context.Background(), name)
	require.NoError(t, err)

	fail = true
	result, err := e.Invoke(context.Background(), name)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.StepsExecuted)
	assert.Contains(t, result.Output, "step 1 failed")

	skills, err := e.List(core.SkillFilter{})
	require.NoError(t, err)
	require.Len(t, skills, 1)
	assert.Equal(t, 2, skills[0].UsageCount)
	assert.InDelta(t, 0.5, skills[0].SuccessRate, 0.0001)
}

func TestListFiltersAndOrders(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s)

	require.NoError(t, s.SaveSkill(core.Skill{Name: "a", Category: "reporting", SuccessRate: 0.6, Tags: []string{"promoted"}}))
	require.NoError(t, s.SaveSkill(core.Skill{Name: "b", Category: "reporting", SuccessRate: 0.9, Tags: []string{"promoted"}}))
	require.NoError(t, s.SaveSkill(core.Skill{Name: "c", Category: "ingest", SuccessRate: 0.8, Tags: []string{"promoted"}}))

	all, err := e.List(core.SkillFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[0].Name)

	reporting, err := e.List(core.SkillFilter{Category: "reporting"})
	require.NoError(t, err)
	require.Len(t, reporting, 2)
	assert.Equal(t, []string{"b", "a"}, []string{reporting[0].Name, reporting[1].Name})

	strong, err := e.List(core.SkillFilter{MinSuccessRate: 0.8})
	require.NoError(t, err)
	assert.Len(t, strong, 2)
}

func TestProposePracticeTaskTargetsWeakestSkill(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s)

	require.NoError(t, s.SaveSkill(core.Skill{Name: "reporting-aaaa", Category: "reporting", SuccessRate: 0.9, UsageCount: 5}))
	require.NoError(t, s.SaveSkill(core.Skill{Name: "ingest-bbbb", Category: "ingest", SuccessRate: 0.5, UsageCount: 2}))
	require.NoError(t, s.SaveSkill(core.Skill{Name: "parsing-cccc", Category: "parsing", SuccessRate: 0.1, UsageCount: 0}))

	task, err := e.ProposePracticeTask()
	require.NoError(t, err)

	// The unused parsing skill is skipped; the weakest skill with real
	// usage behind it wins.
	assert.Equal(t, "ingest-bbbb", task.Constraints["skill"])
	assert.Equal(t, "true", task.Constraints["practice"])
	assert.Contains(t, task.Description, `ingest skill "ingest-bbbb"`)
	assert.Contains(t, task.Description, "0.50")
	assert.NotEmpty(t, task.ID)
}

func TestProposePracticeTaskNoCandidate(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s)

	require.NoError(t, s.SaveSkill(core.Skill{Name: "reporting-aaaa", Category: "reporting", SuccessRate: 1.0, UsageCount: 5}))

	_, err := e.ProposePracticeTask()
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSkillNameStableAndReadable(t *testing.T) {
	trace := testutil.NewTrace("Data Reporting", "collect numbers", "write summary")

	name := SkillName(trace)
	assert.Equal(t, name, SkillName(trace))
	assert.Contains(t, name, "data-reporting-")

	other := testutil.NewTrace("Data Reporting", "collect numbers", "email summary")
	assert.NotEqual(t, name, SkillName(other))

	assert.Contains(t, SkillName(core.Trace{Steps: []string{"x"}}), "general-")
}

func TestConcurrentRecordTracePromotesOnce(t *testing.T) {
	calls := 0
	e := NewEngine(store.NewInMemoryStore(), func(o *Options) {
		o.MinSamples = 1
		o.OnPromote = func(core.Skill, int) { calls++ }
	})

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, _ = e.RecordTrace(testutil.NewTrace("reporting", "collect numbers", "write summary"))
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	assert.Equal(t, 1, calls)
}
