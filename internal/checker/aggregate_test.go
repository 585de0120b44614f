package checker

// Rating extraction and aggregation tests.

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRating(t *testing.T) {
	cases := []struct {
		content string
		want    int
		ok      bool
	}{
		{"Rating: 85/100\nVerdict: mostly accurate.", 85, true},
		{"rating: 7", 7, true},
		{"After weighing the evidence I'd say 60/100.", 60, true},
		{"Accuracy score: 42 given the sources.", 42, true},
		{"The accuracy is 90 for this claim.", 90, true},
		{"Rating: 250/100", 100, true},
		{"I cannot rate this text.", 0, false},
		{"The bridge opened in 1932.", 0, false},
		{"", 0, false},
	}

	for _, tc := range cases {
		got, ok := ParseRating(tc.content)
		require.Equal(t, tc.ok, ok, "content %q", tc.content)
		if ok {
			assert.Equal(t, tc.want, got, "content %q", tc.content)
		}
	}
}

func TestAggregate_Empty(t *testing.T) {
	rating, confidence := Aggregate(nil)
	assert.Equal(t, defaultRating, rating)
	assert.Equal(t, ConfidenceLow, confidence)
}

func TestAggregate_SingleRatingStaysLow(t *testing.T) {
	rating, confidence := Aggregate([]int{80})
	assert.Equal(t, 80, rating)
	assert.Equal(t, ConfidenceLow, confidence)
}

func TestAggregate_SpreadBands(t *testing.T) {
	rating, confidence := Aggregate([]int{80, 90})
	assert.Equal(t, 85, rating)
	assert.Equal(t, ConfidenceHigh, confidence)

	rating, confidence = Aggregate([]int{60, 82})
	assert.Equal(t, 71, rating)
	assert.Equal(t, ConfidenceModerate, confidence)

	rating, confidence = Aggregate([]int{20, 80})
	assert.Equal(t, 50, rating)
	assert.Equal(t, ConfidenceLow, confidence)
}

func TestAggregate_RoundsMean(t *testing.T) {
	rating, confidence := Aggregate([]int{80, 85})
	assert.Equal(t, 83, rating)
	assert.Equal(t, ConfidenceHigh, confidence)
}
