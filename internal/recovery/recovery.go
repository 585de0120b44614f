// Error classification and recovery strategies.
//
// DESIGN: Classify buckets any upstream error into a small taxonomy
// using the HTTP status when one is attached and message phrasing
// otherwise, checked in strict priority order so a message matching
// several buckets lands in the most actionable one. StrategyFor maps
// each category onto a fixed recovery plan: how often to retry, how
// long to wait, whether to downgrade the model tier and shrink the
// input, and what to tell the user. The checker drives its degraded
// path entirely off these strategies.
package recovery

import (
	"strings"
	"time"

	"github.com/verascope/verascope/external"
	"github.com/verascope/verascope/internal/model"
)

// Category is the failure taxonomy. CategoryUnknown is the zero value
// so an unclassified error never gets an optimistic strategy.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryRateLimit
	CategoryAuth
	CategoryTemporary
	CategoryContentPolicy
	CategoryContextLength
)

func (c Category) String() string {
	switch c {
	case CategoryRateLimit:
		return "rate_limit"
	case CategoryAuth:
		return "auth"
	case CategoryTemporary:
		return "temporary"
	case CategoryContentPolicy:
		return "content_policy"
	case CategoryContextLength:
		return "context_length"
	default:
		return "unknown"
	}
}

var (
	rateLimitPhrases = []string{
		"rate limit", "rate_limit", "too many requests", "quota exceeded",
	}
	authPhrases = []string{
		"unauthorized", "invalid api key", "invalid x-api-key",
		"authentication", "permission denied", "forbidden",
	}
	temporaryPhrases = []string{
		"timeout", "timed out", "deadline exceeded", "connection refused",
		"connection reset", "unavailable", "overloaded", "bad gateway",
		"no such host", "temporarily", "unexpected eof",
	}
	contentPolicyPhrases = []string{
		"content policy", "content_policy", "usage policy", "safety",
		"blocked", "filtered",
	}
	contextLengthPhrases = []string{
		"context length", "context_length", "token limit", "maximum context",
		"too many tokens", "prompt too long", "input too long", "max_tokens",
	}
)

// Classify maps an error onto a Category. Status codes win over
// phrasing; phrasing is matched case-insensitively against the full
// error chain text.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	status := external.StatusOf(err)
	msg := strings.ToLower(err.Error())

	switch {
	case status == 429 || containsAny(msg, rateLimitPhrases):
		return CategoryRateLimit
	case status == 401 || status == 403 || containsAny(msg, authPhrases):
		return CategoryAuth
	case status >= 500 || containsAny(msg, temporaryPhrases):
		return CategoryTemporary
	case containsAny(msg, contentPolicyPhrases):
		return CategoryContentPolicy
	case containsAny(msg, contextLengthPhrases):
		return CategoryContextLength
	default:
		return CategoryUnknown
	}
}

func containsAny(msg string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Strategy is the fixed recovery plan for one failure category.
type Strategy struct {
	Retry        bool
	Wait         time.Duration
	MaxRetries   int
	Fallback     bool
	FallbackTier model.Tier
	ShrinkInput  bool
	UserMessage  string
}

// FallbackTier returns the downgrade target for a failing tier. Fast
// is the idempotent floor, so any downgrade chain terminates within
// two steps.
func FallbackTier(current model.Tier) model.Tier {
	switch current {
	case model.TierFast:
		return model.TierFast
	case model.TierPremium:
		return model.TierStandard
	default:
		return model.TierFast
	}
}

// StrategyFor looks up the recovery plan for a category. The current
// tier only matters when the plan downgrades.
func StrategyFor(cat Category, current model.Tier) Strategy {
	switch cat {
	case CategoryRateLimit:
		return Strategy{
			Retry:       true,
			Wait:        5 * time.Second,
			MaxRetries:  3,
			UserMessage: "The AI provider is rate limiting requests. Retrying shortly.",
		}
	case CategoryAuth:
		return Strategy{
			UserMessage: "Authentication with the AI provider failed. Check the configured API key.",
		}
	case CategoryTemporary:
		return Strategy{
			Retry:       true,
			Wait:        2 * time.Second,
			MaxRetries:  3,
			UserMessage: "The AI provider hit a temporary problem. Retrying.",
		}
	case CategoryContentPolicy:
		return Strategy{
			Fallback:     true,
			FallbackTier: FallbackTier(current),
			ShrinkInput:  true,
			UserMessage:  "The provider declined this text under its content policy. Trying a reduced version.",
		}
	case CategoryContextLength:
		return Strategy{
			Retry:        true,
			Wait:         time.Second,
			MaxRetries:   1,
			Fallback:     true,
			FallbackTier: FallbackTier(current),
			ShrinkInput:  true,
			UserMessage:  "The text exceeds the model's context window. Trying a reduced version.",
		}
	default:
		return Strategy{
			Retry:        true,
			Wait:         2 * time.Second,
			MaxRetries:   2,
			Fallback:     true,
			FallbackTier: FallbackTier(current),
			UserMessage:  "The check failed unexpectedly. Trying a simpler model.",
		}
	}
}
