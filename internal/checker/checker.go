// Package checker runs the end-to-end evaluation pipeline.
//
// DESIGN: Check deduplicates concurrent identical texts by content
// fingerprint, then runs one pipeline per unique text: derive a search
// query, gather web evidence while the tier is selected, fan out
// scored prompts, and aggregate the ratings into a Verdict. Evidence
// search may fail without consequence; the primary model call may not.
// When it does, the failure is classified and resolved into a degraded
// verdict, with an emergency shrunk re-check on a downgraded tier when
// the strategy allows one. The only error Check ever returns is its
// caller's own context ending; everything else becomes a structured
// Verdict.
//
// Every upstream provider gets its own dispatch queue, so one
// rate-limited provider never stalls calls to another.
package checker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/verascope/verascope/internal/cache"
	"github.com/verascope/verascope/internal/model"
	"github.com/verascope/verascope/internal/monitoring"
	"github.com/verascope/verascope/internal/prompt"
	"github.com/verascope/verascope/internal/providers"
	"github.com/verascope/verascope/internal/queue"
	"github.com/verascope/verascope/internal/ratelimit"
	"github.com/verascope/verascope/internal/recovery"
	"github.com/verascope/verascope/internal/retry"
	"github.com/verascope/verascope/internal/search"
)

const (
	// fingerprintBytes bounds how much text feeds the dedup hash;
	// texts differing only beyond this prefix count as the same check.
	fingerprintBytes = 1000

	defaultAnswerTokens = 1024
	defaultQueryTokens  = 64
	defaultProbeCount   = 1
	heuristicQueryWords = 10

	defaultCheckTimeout = 2 * time.Minute
)

// Request is one evaluation submission.
type Request struct {
	Text    string
	Urgency model.Urgency
}

// Verdict is the structured outcome of a check. Rating is nil only
// when even the emergency re-check failed.
type Verdict struct {
	Result     string          `json:"result,omitempty"`
	Query      string          `json:"query,omitempty"`
	Rating     *int            `json:"rating"`
	Confidence Confidence      `json:"confidence"`
	Sources    []search.Result `json:"sources,omitempty"`
	Model      string          `json:"model,omitempty"`
	Tier       model.Tier      `json:"tier"`
	Degraded   bool            `json:"degraded,omitempty"`
	Message    string          `json:"message,omitempty"`
	ElapsedMS  int64           `json:"elapsed_ms"`
}

// Options wires a Checker. Adapter is required; everything else is
// optional or defaulted.
type Options struct {
	Adapter providers.Adapter

	// Probes are the adapters used for consistency probes in
	// multi-model mode. Empty means probe on the primary adapter.
	Probes []providers.Adapter

	Search  search.Client
	Cache   *cache.Cache
	Metrics *monitoring.MetricsCollector
	Events  *monitoring.Stream

	MultiModel    bool
	ProbeCount    int
	CostSensitive bool

	// Per-upstream dispatch pacing.
	QueueLimit  int
	QueueWindow time.Duration
	Backoff     ratelimit.Backoff

	// Retry sets the delay shape for transparent retries; the retry
	// filter itself always comes from the recovery strategy table.
	Retry retry.Policy

	AnswerTokens int
	QueryTokens  int
	ShrinkTokens int

	// CheckTimeout bounds one shared pipeline run. The run is detached
	// from any single caller's context, so this is its only deadline.
	CheckTimeout time.Duration
}

// Checker is the orchestrator. Safe for concurrent use.
type Checker struct {
	opts Options

	mu      sync.Mutex
	pending map[string]*inflight
	queues  map[string]*queue.Queue[*providers.Response]
}

type inflight struct {
	done    chan struct{}
	verdict *Verdict
}

func New(opts Options) (*Checker, error) {
	if opts.Adapter == nil {
		return nil, errors.New("checker: adapter required")
	}
	if opts.Metrics == nil {
		opts.Metrics = monitoring.NewMetricsCollector()
	}
	if opts.ProbeCount <= 0 {
		opts.ProbeCount = defaultProbeCount
	}
	if opts.AnswerTokens <= 0 {
		opts.AnswerTokens = defaultAnswerTokens
	}
	if opts.QueryTokens <= 0 {
		opts.QueryTokens = defaultQueryTokens
	}
	if opts.ShrinkTokens <= 0 {
		opts.ShrinkTokens = prompt.DefaultShrinkTokens
	}
	if opts.Retry.MaxRetries <= 0 {
		opts.Retry.MaxRetries = retry.DefaultPolicy().MaxRetries
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = defaultCheckTimeout
	}

	return &Checker{
		opts:    opts,
		pending: make(map[string]*inflight),
		queues:  make(map[string]*queue.Queue[*providers.Response]),
	}, nil
}

// Fingerprint identifies a text for deduplication.
func Fingerprint(text string) string {
	head := text
	if len(head) > fingerprintBytes {
		head = head[:fingerprintBytes]
	}
	sum := sha256.Sum256([]byte(head))
	return hex.EncodeToString(sum[:8])
}

// Check evaluates text. Concurrent calls with the same fingerprint
// share a single pipeline run and all receive its verdict; the
// registry entry is removed as soon as the run settles, so a
// follow-up check starts fresh. The run itself is detached from any
// one caller's context: a caller that cancels abandons its wait, but
// other callers parked on the same fingerprint still get the verdict.
func (c *Checker) Check(ctx context.Context, req Request) (*Verdict, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, errors.New("checker: empty text")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fp := Fingerprint(text)

	c.mu.Lock()
	f, ok := c.pending[fp]
	if ok {
		c.mu.Unlock()
		c.opts.Metrics.RecordDedupHit()
		log.Debug().Str("fingerprint", fp).Msg("Joining in-flight check")
	} else {
		f = &inflight{done: make(chan struct{})}
		c.pending[fp] = f
		c.mu.Unlock()

		go func() {
			runCtx, cancel := context.WithTimeout(context.Background(), c.opts.CheckTimeout)
			defer cancel()
			f.verdict = c.run(runCtx, fp, text, req.Urgency)

			c.mu.Lock()
			delete(c.pending, fp)
			c.mu.Unlock()
			close(f.done)
		}()
	}

	select {
	case <-f.done:
		return f.verdict, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending reports how many checks are currently in flight.
func (c *Checker) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// run executes one shared pipeline and always yields a verdict; a
// pipeline failure, including the shared run timing out, degrades
// rather than erroring.
func (c *Checker) run(ctx context.Context, fp, text string, urgency model.Urgency) *Verdict {
	start := time.Now()
	c.opts.Events.Publish(monitoring.Event{Kind: monitoring.EventCheckStarted, Fingerprint: fp})
	log.Info().Str("fingerprint", fp).Int("text_len", len(text)).Msg("Check started")

	verdict, err := c.pipeline(ctx, fp, text, urgency)
	if err != nil {
		verdict = c.degrade(ctx, fp, text, urgency, err)
	}

	verdict.ElapsedMS = time.Since(start).Milliseconds()
	c.opts.Metrics.RecordCheck(verdict.Degraded, time.Since(start))
	c.opts.Events.Publish(monitoring.Event{
		Kind:        monitoring.EventCheckCompleted,
		Fingerprint: fp,
		Model:       verdict.Model,
		Rating:      verdict.Rating,
		Confidence:  string(verdict.Confidence),
		ElapsedMS:   verdict.ElapsedMS,
	})
	log.Info().
		Str("fingerprint", fp).
		Str("tier", verdict.Tier.String()).
		Bool("degraded", verdict.Degraded).
		Int64("elapsed_ms", verdict.ElapsedMS).
		Msg("Check completed")

	return verdict
}

func (c *Checker) pipeline(ctx context.Context, fp, text string, urgency model.Urgency) (*Verdict, error) {
	query := c.deriveQuery(ctx, text)

	// Evidence fetch runs while the tier is selected and the prompts
	// are prepared; nothing below blocks on it until the fan-out.
	evidenceCh := make(chan []search.Result, 1)
	if c.opts.Search != nil && query != "" {
		go func() {
			results, err := c.opts.Search.Search(ctx, query)
			if err != nil {
				log.Warn().Err(err).Str("fingerprint", fp).
					Msg("Evidence search failed, continuing without evidence")
				c.opts.Events.Publish(monitoring.Event{
					Kind:     monitoring.EventProviderError,
					Upstream: "search",
					Detail:   err.Error(),
				})
				evidenceCh <- nil
				return
			}
			evidenceCh <- results
		}()
	} else {
		evidenceCh <- nil
	}

	tier := c.tierFor(text, urgency)

	var sources []search.Result
	select {
	case sources = <-evidenceCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	primaryPrompt := prompt.Evidence(text, search.FormatEvidence(sources))

	if !c.opts.MultiModel {
		res, err := c.callModel(ctx, c.opts.Adapter, tier, primaryPrompt, c.opts.AnswerTokens, true)
		if err != nil {
			return nil, err
		}
		return buildVerdict(query, tier, sources, res, nil), nil
	}

	probes := c.probeAdapters()
	probeTier := model.Below(tier)
	probeResults := make([]*providers.Response, len(probes))
	var primary *providers.Response

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := c.callModel(gctx, c.opts.Adapter, tier, primaryPrompt, c.opts.AnswerTokens, true)
		if err != nil {
			return err
		}
		primary = res
		return nil
	})
	probePrompt := prompt.Consistency(text)
	for i, pa := range probes {
		g.Go(func() error {
			res, err := c.callModel(gctx, pa, probeTier, probePrompt, c.opts.AnswerTokens, true)
			if err != nil {
				// A lost probe costs confidence, not the check.
				log.Warn().Err(err).Str("provider", pa.Name()).
					Msg("Consistency probe failed")
				return nil
			}
			probeResults[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return buildVerdict(query, tier, sources, primary, probeResults), nil
}

// probeAdapters resolves which adapters answer consistency probes.
func (c *Checker) probeAdapters() []providers.Adapter {
	if len(c.opts.Probes) > 0 {
		return c.opts.Probes
	}
	probes := make([]providers.Adapter, c.opts.ProbeCount)
	for i := range probes {
		probes[i] = c.opts.Adapter
	}
	return probes
}

func (c *Checker) tierFor(text string, urgency model.Urgency) model.Tier {
	return model.Select(model.Input{
		Provider:      c.opts.Adapter.Name(),
		TextLength:    len(text),
		Complexity:    model.EstimateComplexity(text),
		Urgency:       urgency,
		CostSensitive: c.opts.CostSensitive,
		Task:          model.TaskCheck,
	})
}

func buildVerdict(query string, tier model.Tier, sources []search.Result, primary *providers.Response, probes []*providers.Response) *Verdict {
	contents := []string{primary.Content}
	for _, pr := range probes {
		if pr != nil {
			contents = append(contents, pr.Content)
		}
	}

	var ratings []int
	for _, content := range contents {
		if r, ok := ParseRating(content); ok {
			ratings = append(ratings, r)
		}
	}
	rating, confidence := Aggregate(ratings)

	return &Verdict{
		Result:     primary.Content,
		Query:      query,
		Rating:     &rating,
		Confidence: confidence,
		Sources:    sources,
		Model:      primary.Model,
		Tier:       tier,
	}
}

// degrade resolves a failed pipeline into a verdict. It classifies
// the cause, optionally waits and re-checks a shrunk input on the
// downgraded tier, and never returns nil.
func (c *Checker) degrade(ctx context.Context, fp, text string, urgency model.Urgency, cause error) *Verdict {
	tier := c.tierFor(text, urgency)
	category := recovery.Classify(cause)
	strategy := recovery.StrategyFor(category, tier)

	log.Warn().Err(cause).
		Str("fingerprint", fp).
		Str("category", category.String()).
		Bool("fallback", strategy.Fallback).
		Msg("Check pipeline failed, degrading")
	c.opts.Events.Publish(monitoring.Event{
		Kind:        monitoring.EventDegraded,
		Fingerprint: fp,
		Category:    category.String(),
		Detail:      cause.Error(),
	})

	if strategy.Fallback && c.sleep(ctx, strategy.Wait) {
		shrunk := text
		if strategy.ShrinkInput {
			shrunk = prompt.Shrink(text, c.opts.ShrinkTokens)
		}
		res, err := c.callModel(ctx, c.opts.Adapter, strategy.FallbackTier,
			prompt.Emergency(shrunk), c.opts.AnswerTokens, false)
		if err == nil {
			rating := defaultRating
			if r, ok := ParseRating(res.Content); ok {
				rating = r
			}
			return &Verdict{
				Result:     res.Content,
				Rating:     &rating,
				Confidence: ConfidenceLow,
				Model:      res.Model,
				Tier:       strategy.FallbackTier,
				Degraded:   true,
				Message:    strategy.UserMessage,
			}
		}
		log.Error().Err(err).Str("fingerprint", fp).Msg("Emergency re-check failed")
	}

	message := strategy.UserMessage
	if message == "" {
		message = "The check could not be completed."
	}
	return &Verdict{
		Confidence: ConfidenceLow,
		Tier:       tier,
		Degraded:   true,
		Message:    message,
	}
}

// sleep waits d and reports whether the context survived it.
func (c *Checker) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// deriveQuery asks the extraction tier for a search query, falling
// back to the text's leading words when the model call fails or
// returns noise.
func (c *Checker) deriveQuery(ctx context.Context, text string) string {
	tier := model.Select(model.Input{
		Provider:   c.opts.Adapter.Name(),
		TextLength: len(text),
		Task:       model.TaskQuery,
	})
	p := prompt.DeriveQuery(prompt.Shrink(text, c.opts.ShrinkTokens))

	res, err := c.callModel(ctx, c.opts.Adapter, tier, p, c.opts.QueryTokens, true)
	if err != nil {
		log.Warn().Err(err).Msg("Query derivation failed, using heuristic query")
		return heuristicQuery(text)
	}

	query := strings.TrimSpace(res.Content)
	if i := strings.IndexByte(query, '\n'); i >= 0 {
		query = strings.TrimSpace(query[:i])
	}
	query = strings.Trim(query, `"`)
	if query == "" {
		return heuristicQuery(text)
	}
	return query
}

func heuristicQuery(text string) string {
	words := strings.Fields(text)
	if len(words) > heuristicQueryWords {
		words = words[:heuristicQueryWords]
	}
	return strings.Join(words, " ")
}

// callModel is the single funnel for upstream calls: cache lookup,
// queue dispatch, strategy-driven retries, cache fill.
func (c *Checker) callModel(ctx context.Context, adapter providers.Adapter, tier model.Tier, p prompt.Prompt, maxTokens int, cacheable bool) (*providers.Response, error) {
	modelID := adapter.ModelFor(tier)

	if cacheable && c.opts.Cache != nil {
		if content, ok := c.opts.Cache.Get(p.User, modelID, maxTokens); ok {
			c.opts.Metrics.RecordCacheHit()
			c.opts.Events.Publish(monitoring.Event{
				Kind:     monitoring.EventCacheHit,
				Upstream: adapter.Name(),
				Model:    modelID,
			})
			return &providers.Response{Content: content, Model: modelID, Provider: adapter.Name()}, nil
		}
		c.opts.Metrics.RecordCacheMiss()
	}

	q := c.queueFor(adapter.Name())
	var res *providers.Response
	err := retry.Do(ctx, c.retryPolicy(tier, adapter.Name()), func(ctx context.Context) error {
		r, err := q.Do(ctx, func(ctx context.Context) (*providers.Response, error) {
			return adapter.Call(ctx, providers.Request{
				System:    p.System,
				User:      p.User,
				Tier:      tier,
				MaxTokens: maxTokens,
			})
		})
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cacheable && c.opts.Cache != nil {
		c.opts.Cache.Put(p.User, modelID, maxTokens, res.Content)
	}
	return res, nil
}

func (c *Checker) queueFor(name string) *queue.Queue[*providers.Response] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if q, ok := c.queues[name]; ok {
		return q
	}
	q := queue.New[*providers.Response](name, queue.Options{
		Limit:   c.opts.QueueLimit,
		Window:  c.opts.QueueWindow,
		Backoff: c.opts.Backoff,
		Metrics: c.opts.Metrics,
		Events:  c.opts.Events,
	})
	c.queues[name] = q
	return q
}

// retryPolicy binds the configured delay shape to the recovery table.
// Each category spends its own retry budget within one logical call.
func (c *Checker) retryPolicy(tier model.Tier, upstream string) retry.Policy {
	p := c.opts.Retry
	attempts := make(map[recovery.Category]int)
	p.ShouldRetry = func(err error) bool {
		category := recovery.Classify(err)
		strategy := recovery.StrategyFor(category, tier)
		attempts[category]++
		return strategy.Retry && attempts[category] <= strategy.MaxRetries
	}
	p.OnRetry = func(err error, attempt int, delay time.Duration) {
		c.opts.Metrics.RecordRetry()
		c.opts.Events.Publish(monitoring.Event{
			Kind:     monitoring.EventRetry,
			Upstream: upstream,
			Attempt:  attempt,
			WaitMS:   delay.Milliseconds(),
			Detail:   err.Error(),
		})
		log.Warn().Err(err).
			Int("attempt", attempt).
			Dur("delay", delay).
			Str("upstream", upstream).
			Msg("Retrying model call")
	}
	return p
}
