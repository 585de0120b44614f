package recovery

// Classifier and strategy-table tests.

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/verascope/verascope/external"
	"github.com/verascope/verascope/internal/model"
)

func TestClassify_StatusWinsOverPhrasing(t *testing.T) {
	cases := []struct {
		status int
		want   Category
	}{
		{429, CategoryRateLimit},
		{401, CategoryAuth},
		{403, CategoryAuth},
		{500, CategoryTemporary},
		{529, CategoryTemporary},
	}

	for _, tc := range cases {
		err := &external.CallError{Provider: "anthropic", Status: tc.status, Message: "opaque upstream failure"}
		assert.Equal(t, tc.want, Classify(err), "status %d", tc.status)
	}
}

func TestClassify_WrappedErrorKeepsStatus(t *testing.T) {
	wrapped := fmt.Errorf("calling upstream: %w", &external.CallError{Provider: "openai", Status: 429})
	assert.Equal(t, CategoryRateLimit, Classify(wrapped))
}

func TestClassify_Phrasing(t *testing.T) {
	cases := []struct {
		msg  string
		want Category
	}{
		{"Rate limit exceeded, slow down", CategoryRateLimit},
		{"HTTP 400: too many requests", CategoryRateLimit},
		{"invalid API key provided", CategoryAuth},
		{"permission denied for this resource", CategoryAuth},
		{"read tcp: connection reset by peer", CategoryTemporary},
		{"request timed out after 60s", CategoryTemporary},
		{"model is overloaded, try again", CategoryTemporary},
		{"response blocked by safety settings", CategoryContentPolicy},
		{"this request violates our usage policy", CategoryContentPolicy},
		{"maximum context length exceeded", CategoryContextLength},
		{"prompt too long for this model", CategoryContextLength},
		{"something inexplicable happened", CategoryUnknown},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(errors.New(tc.msg)), "message %q", tc.msg)
	}
}

func TestClassify_PriorityOrder(t *testing.T) {
	// Rate limiting outranks auth phrasing, and network trouble
	// outranks content-policy phrasing.
	assert.Equal(t, CategoryRateLimit, Classify(errors.New("unauthorized: rate limit reached")))
	assert.Equal(t, CategoryTemporary, Classify(errors.New("timeout while applying content policy")))
}

func TestClassify_Nil(t *testing.T) {
	assert.Equal(t, CategoryUnknown, Classify(nil))
}

func TestStrategyFor_Table(t *testing.T) {
	rate := StrategyFor(CategoryRateLimit, model.TierStandard)
	assert.True(t, rate.Retry)
	assert.Equal(t, 3, rate.MaxRetries)
	assert.Equal(t, 5*time.Second, rate.Wait)
	assert.False(t, rate.Fallback)

	auth := StrategyFor(CategoryAuth, model.TierStandard)
	assert.False(t, auth.Retry)
	assert.False(t, auth.Fallback)
	assert.NotEmpty(t, auth.UserMessage)

	temp := StrategyFor(CategoryTemporary, model.TierStandard)
	assert.True(t, temp.Retry)
	assert.Equal(t, 3, temp.MaxRetries)
	assert.False(t, temp.Fallback)

	policy := StrategyFor(CategoryContentPolicy, model.TierPremium)
	assert.False(t, policy.Retry)
	assert.True(t, policy.Fallback)
	assert.True(t, policy.ShrinkInput)
	assert.Equal(t, model.TierStandard, policy.FallbackTier)

	length := StrategyFor(CategoryContextLength, model.TierStandard)
	assert.True(t, length.Retry)
	assert.Equal(t, 1, length.MaxRetries)
	assert.True(t, length.Fallback)
	assert.True(t, length.ShrinkInput)
	assert.Equal(t, model.TierFast, length.FallbackTier)

	unknown := StrategyFor(CategoryUnknown, model.TierFast)
	assert.True(t, unknown.Retry)
	assert.Equal(t, 2, unknown.MaxRetries)
	assert.True(t, unknown.Fallback)
	assert.Equal(t, model.TierFast, unknown.FallbackTier)
}

func TestFallbackTier_ConvergesToFast(t *testing.T) {
	tier := model.TierPremium
	tier = FallbackTier(tier)
	assert.Equal(t, model.TierStandard, tier)
	tier = FallbackTier(tier)
	assert.Equal(t, model.TierFast, tier)
	tier = FallbackTier(tier)
	assert.Equal(t, model.TierFast, tier)

	assert.Equal(t, model.TierFast, FallbackTier(model.TierExtraction))
}
