package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/prometheus-agent/prometheus/core"
	"github.com/prometheus-agent/prometheus/internal/testutil"
)

func TestClassifyShortDirectTask(t *testing.T) {
	r := New()

	task := testutil.NewTaskBuilder("list files in /tmp").Build()
	assert.Equal(t, core.TierSimple, r.Classify(task))
}

func TestClassifyWordCountThresholds(t *testing.T) {
	r := New()

	tests := []struct {
		name        string
		description string
		want        core.Tier
	}{
		{
			name:        "seven words stays simple",
			description: "rename the report file to final version",
			want:        core.TierSimple,
		},
		{
			name:        "eight words rounds up to medium",
			description: "rename the quarterly report file to final version",
			want:        core.TierMedium,
		},
		{
			name: "twenty words rounds up to complex",
			description: "produce a reconciliation of the quarterly revenue figures " +
				"against the ledger using the archived statements from every " +
				"regional office worldwide",
			want: core.TierComplex,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := testutil.NewTaskBuilder(tt.description).Build()
			assert.Equal(t, tt.want, r.Classify(task))
		})
	}
}

func TestClassifyMultiStepLanguageRaisesTier(t *testing.T) {
	r := New()

	// Short on its own, but the ordering language signals a dependent
	// sequence that needs more than a direct answer.
	task := testutil.NewTaskBuilder("gather the figures then reconcile them").Build()
	assert.Equal(t, core.TierMedium, r.Classify(task))

	task = testutil.NewTaskBuilder(
		"first gather the quarterly figures for each office then reconcile them against the ledger",
	).Build()
	assert.Equal(t, core.TierComplex, r.Classify(task))
}

func TestClassifyManyToolCallsForcesComplex(t *testing.T) {
	r := New()

	task := testutil.NewTaskBuilder("fetch the report, analyze it, summarize findings").Build()
	assert.Equal(t, core.TierComplex, r.Classify(task))
}

func TestClassifyPriorityPromotesComplexToCritical(t *testing.T) {
	r := New()

	b := testutil.NewTaskBuilder("fetch the report, analyze it, summarize findings")
	assert.Equal(t, core.TierComplex, r.Classify(b.Build()))
	assert.Equal(t, core.TierCritical, r.Classify(b.Priority(1).Build()))
}

func TestClassifyLoadPromotesComplexToCritical(t *testing.T) {
	load := 0.0
	r := New(func(o *Options) { o.Load = func() float64 { return load } })
	task := testutil.NewTaskBuilder("fetch the report, analyze it, summarize findings").Build()

	assert.Equal(t, core.TierComplex, r.Classify(task))

	load = 0.8
	assert.Equal(t, core.TierCritical, r.Classify(task))
}

func TestClassifyLoadDoesNotPromoteSimpleTasks(t *testing.T) {
	r := New(func(o *Options) { o.Load = func() float64 { return 1.0 } })

	task := testutil.NewTaskBuilder("list files in /tmp").Priority(5).Build()
	assert.Equal(t, core.TierSimple, r.Classify(task))
}

func TestClassifyThresholdsConfigurable(t *testing.T) {
	strict := New(func(o *Options) {
		o.MediumWordCount = 3
		o.ComplexWordCount = 5
	})

	task := testutil.NewTaskBuilder("list files in /tmp").Build()
	assert.Equal(t, core.TierMedium, strict.Classify(task))
}
