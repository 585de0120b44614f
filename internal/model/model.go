// Deterministic model-tier selection.
//
// DESIGN: every decision in this package is a pure function of its
// inputs. Complexity scoring sums three signals (sentence length, raw
// length, technical-term density) on fixed thresholds, and Select maps
// task, urgency, complexity and cost sensitivity onto a Tier. Keeping
// this free of I/O and clocks makes tier choices reproducible, which
// the checker relies on when it re-runs a degraded request.
package model

import (
	"fmt"
	"strings"
)

// Tier orders model quality and cost. The order matters: downgrade
// logic walks toward TierFast, and consistency probes run one step
// below the primary tier.
type Tier int

const (
	TierExtraction Tier = iota
	TierFast
	TierStandard
	TierPremium
)

func (t Tier) String() string {
	switch t {
	case TierExtraction:
		return "extraction"
	case TierFast:
		return "fast"
	case TierStandard:
		return "standard"
	case TierPremium:
		return "premium"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier maps a config string onto a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "extraction":
		return TierExtraction, nil
	case "fast":
		return TierFast, nil
	case "standard":
		return TierStandard, nil
	case "premium":
		return TierPremium, nil
	default:
		return TierFast, fmt.Errorf("unknown model tier %q", s)
	}
}

// Tiers serialize as their names in JSON and YAML.

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Below returns the evaluation tier one step down. TierFast is the
// floor: probes and downgrades never land on TierExtraction, which
// maps to utility models unsuited for scored evaluation.
func Below(t Tier) Tier {
	switch t {
	case TierPremium:
		return TierStandard
	default:
		return TierFast
	}
}

// Complexity buckets a text for tier selection.
type Complexity int

const (
	ComplexityLow Complexity = iota
	ComplexityMedium
	ComplexityHigh
)

func (c Complexity) String() string {
	switch c {
	case ComplexityLow:
		return "low"
	case ComplexityMedium:
		return "medium"
	case ComplexityHigh:
		return "high"
	default:
		return fmt.Sprintf("complexity(%d)", int(c))
	}
}

// Urgency expresses how long the caller is willing to wait.
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyHigh
)

func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyHigh:
		return "high"
	default:
		return "normal"
	}
}

// ParseUrgency maps a request string onto an Urgency; empty means
// normal.
func ParseUrgency(s string) (Urgency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return UrgencyLow, nil
	case "", "normal":
		return UrgencyNormal, nil
	case "high":
		return UrgencyHigh, nil
	default:
		return UrgencyNormal, fmt.Errorf("unknown urgency %q", s)
	}
}

// Task names the kind of model call being planned.
type Task string

const (
	TaskCheck      Task = "check"
	TaskExtraction Task = "extract"
	TaskQuery      Task = "query"
)

// Scoring thresholds. Each signal contributes 0-3 points; >=6 total is
// High, >=3 Medium.
const (
	highTotal   = 6
	mediumTotal = 3

	longSentenceWords   = 25
	mediumSentenceWords = 18
	shortSentenceWords  = 12

	longTextChars   = 4000
	mediumTextChars = 1500
	shortTextChars  = 500

	denseTermRatio    = 0.05
	moderateTermRatio = 0.025
	sparseTermRatio   = 0.01

	// Premium is only worth its cost on long high-complexity texts.
	premiumLengthFloor = 2000
)

// technicalStems match domain vocabulary across science, engineering,
// medicine, law and finance. Substring matching keeps plurals and
// inflections covered without a stemmer.
var technicalStems = []string{
	"algorithm", "quantum", "neural", "protein", "genome", "enzyme",
	"molecul", "photon", "voltage", "bandwidth", "latency", "kernel",
	"compiler", "cryptograph", "theorem", "coefficient", "statistic",
	"hypothes", "relativit", "antibod", "vaccin", "pathogen",
	"inflation", "derivative", "litigation", "statute", "regulat",
	"infrastructur",
}

// EstimateComplexity scores text into Low, Medium or High.
func EstimateComplexity(text string) Complexity {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ComplexityLow
	}

	total := scorePoints(avgSentenceWords(text), longSentenceWords, mediumSentenceWords, shortSentenceWords) +
		scorePoints(float64(len(text)), longTextChars, mediumTextChars, shortTextChars) +
		scorePoints(termDensity(text, len(words)), denseTermRatio, moderateTermRatio, sparseTermRatio)

	switch {
	case total >= highTotal:
		return ComplexityHigh
	case total >= mediumTotal:
		return ComplexityMedium
	default:
		return ComplexityLow
	}
}

func scorePoints(value, high, medium, low float64) int {
	switch {
	case value > high:
		return 3
	case value > medium:
		return 2
	case value > low:
		return 1
	default:
		return 0
	}
}

func avgSentenceWords(text string) float64 {
	sentences := 0
	words := 0
	for _, s := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		n := len(strings.Fields(s))
		if n == 0 {
			continue
		}
		sentences++
		words += n
	}
	if sentences == 0 {
		return float64(len(strings.Fields(text)))
	}
	return float64(words) / float64(sentences)
}

func termDensity(text string, words int) float64 {
	lower := strings.ToLower(text)
	hits := 0
	for _, stem := range technicalStems {
		hits += strings.Count(lower, stem)
	}
	return float64(hits) / float64(words)
}

// Input carries everything Select needs. Provider is informational;
// tier-to-model mapping happens in the provider adapter.
type Input struct {
	Provider      string
	TextLength    int
	Complexity    Complexity
	Urgency       Urgency
	CostSensitive bool
	Task          Task
}

// Select picks a tier. Utility tasks always run on the extraction
// tier, urgent checks force the fast tier, and Premium requires high
// complexity on a long text with low urgency and no cost pressure.
func Select(in Input) Tier {
	if in.Task == TaskExtraction || in.Task == TaskQuery {
		return TierExtraction
	}
	if in.Urgency == UrgencyHigh {
		return TierFast
	}
	if in.Complexity == ComplexityHigh && in.TextLength > premiumLengthFloor &&
		in.Urgency == UrgencyLow && !in.CostSensitive {
		return TierPremium
	}
	if (in.Complexity >= ComplexityMedium || in.TextLength > mediumTextChars) && !in.CostSensitive {
		return TierStandard
	}
	return TierFast
}
