package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"list", "files", "in", "tmp"}, Tokenize("List files in /tmp"))
	assert.Empty(t, Tokenize("!!! ---"))
}

func TestOverlap(t *testing.T) {
	// Full overlap regardless of punctuation and case
	assert.Equal(t, 1.0, Overlap("fetch data", "Fetched the data? fetch data."))
	// Partial overlap
	assert.InDelta(t, 0.5, Overlap("fetch data", "only the data arrived"), 0.001)
	// Empty query matches everything
	assert.Equal(t, 1.0, Overlap("", "anything"))
	// No overlap
	assert.Equal(t, 0.0, Overlap("alpha beta", "gamma delta"))
}

func TestMissingTerms(t *testing.T) {
	missing := MissingTerms("compare sales numbers", "the numbers are in")
	assert.Equal(t, []string{"compare", "sales"}, missing)

	// Duplicates in the query are reported once
	missing = MissingTerms("go go gadget", "nothing relevant")
	assert.Equal(t, []string{"go", "gadget"}, missing)

	assert.Empty(t, MissingTerms("numbers", "numbers everywhere"))
}

func TestRecencyWeight(t *testing.T) {
	now := time.Now()

	// Fresh entries score 1
	assert.Equal(t, 1.0, RecencyWeight(now, now, time.Hour))
	// One half-life halves the weight
	assert.InDelta(t, 0.5, RecencyWeight(now.Add(-time.Hour), now, time.Hour), 0.001)
	// Two half-lives quarter it
	assert.InDelta(t, 0.25, RecencyWeight(now.Add(-2*time.Hour), now, time.Hour), 0.001)
	// Disabled weighting
	assert.Equal(t, 1.0, RecencyWeight(now.Add(-100*time.Hour), now, 0))
}
