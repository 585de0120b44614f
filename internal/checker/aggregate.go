// Rating extraction and aggregation.
//
// DESIGN: models are instructed to answer "Rating: <n>/100" but do not
// always comply, so extraction falls through a list of patterns from
// strict to loose and ignores answers none of them match. Aggregation
// takes the rounded mean and labels confidence by the spread between
// opinions; a single opinion can never earn more than Low.
package checker

import (
	"math"
	"regexp"
	"strconv"
)

// Confidence labels how much the aggregated rating can be trusted.
type Confidence string

const (
	ConfidenceLow      Confidence = "low"
	ConfidenceModerate Confidence = "moderate"
	ConfidenceHigh     Confidence = "high"
)

const (
	// defaultRating is the neutral midpoint used when no model answer
	// yielded a parseable rating.
	defaultRating = 50

	highSpread     = 15
	moderateSpread = 30
)

var ratingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rating:\s*(\d{1,3})`),
	regexp.MustCompile(`(\d{1,3})\s*/\s*100`),
	regexp.MustCompile(`(?i)(?:score|accuracy)(?:\s+is)?[:\s]\s*(\d{1,3})`),
}

// ParseRating extracts a 0-100 rating from a model answer. Values
// above 100 clamp rather than discard, since they are always format
// noise around a real rating.
func ParseRating(content string) (int, bool) {
	for _, re := range ratingPatterns {
		m := re.FindStringSubmatch(content)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > 100 {
			n = 100
		}
		return n, true
	}
	return 0, false
}

// Aggregate combines parsed ratings into one rating plus a confidence
// label. No ratings yields the neutral default at Low confidence.
func Aggregate(ratings []int) (int, Confidence) {
	if len(ratings) == 0 {
		return defaultRating, ConfidenceLow
	}

	sum := 0
	lowest, highest := ratings[0], ratings[0]
	for _, r := range ratings {
		sum += r
		if r < lowest {
			lowest = r
		}
		if r > highest {
			highest = r
		}
	}
	rating := int(math.Round(float64(sum) / float64(len(ratings))))

	if len(ratings) < 2 {
		return rating, ConfidenceLow
	}
	switch spread := highest - lowest; {
	case spread <= highSpread:
		return rating, ConfidenceHigh
	case spread <= moderateSpread:
		return rating, ConfidenceModerate
	default:
		return rating, ConfidenceLow
	}
}
