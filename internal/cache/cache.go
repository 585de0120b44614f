// Content-addressed response cache.
//
// DESIGN: Responses are memoized under a truncated SHA-256 of the
// prompt combined with the model id (and token budget when one was
// set). Because the hash is truncated, every hit re-verifies the
// stored (query, model) pair exactly before returning. Capacity is
// bounded: once an insert pushes the cache past MaxEntries, entries
// are evicted oldest-first by insertion timestamp.
//
// Persistence is optional and debounced: bursts of inserts coalesce
// into one snapshot write. On load, entries older than the TTL are
// dropped.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/verascope/verascope/internal/store"
)

// keyHashLen is how many hex characters of the prompt hash survive in
// the cache key. Truncation keeps keys short; the exact secondary
// match in Get guards against the resulting collisions.
const keyHashLen = 50

// Defaults applied by New for zero config fields.
const (
	DefaultMaxEntries = 200
	DefaultTTL        = 24 * time.Hour
	DefaultDebounce   = 5 * time.Second
)

// saveTimeout bounds a single snapshot write.
const saveTimeout = 10 * time.Second

// Config configures a Cache.
type Config struct {
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
	Debounce   time.Duration `yaml:"debounce"`

	// Path is the SQLite file for persistence; empty disables it.
	Path string `yaml:"path"`
}

// Entry is one memoized response. Query and Model are retained so a
// lookup can verify them exactly despite the truncated key hash.
type Entry struct {
	Query     string    `json:"query"`
	Model     string    `json:"model"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// Cache memoizes model responses.
type Cache struct {
	cfg   Config
	store store.Store

	mu        sync.Mutex
	entries   map[string]Entry
	saveTimer *time.Timer
	dirty     bool
	now       func() time.Time
}

// New creates a cache. A nil store disables persistence.
func New(cfg Config, st store.Store) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Cache{
		cfg:     cfg,
		store:   st,
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// Key derives the cache key for a prompt under a model and optional
// token budget. Identical prompts under different models or budgets
// never share a key.
func Key(prompt, model string, tokenBudget int) string {
	sum := sha256.Sum256([]byte(prompt))
	key := hex.EncodeToString(sum[:])[:keyHashLen] + ":" + model
	if tokenBudget > 0 {
		key += ":" + strconv.Itoa(tokenBudget)
	}
	return key
}

// Get returns the memoized response for the prompt, if present. The
// stored query and model must match exactly; a truncated-hash
// collision therefore reads as a miss, never as a wrong answer.
func (c *Cache) Get(prompt, model string, tokenBudget int) (string, bool) {
	key := Key(prompt, model, tokenBudget)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if e.Query != prompt || e.Model != model {
		return "", false
	}
	return e.Response, true
}

// Put memoizes a response and evicts oldest-first past capacity.
func (c *Cache) Put(prompt, model string, tokenBudget int, response string) {
	key := Key(prompt, model, tokenBudget)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = Entry{
		Query:     prompt,
		Model:     model,
		Response:  response,
		Timestamp: c.now(),
	}
	c.evictLocked()
	c.dirty = true
	c.scheduleSaveLocked()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked removes oldest entries until the cache is back at
// capacity. Caller holds the lock.
func (c *Cache) evictLocked() {
	if len(c.entries) <= c.cfg.MaxEntries {
		return
	}

	type aged struct {
		key string
		ts  time.Time
	}
	byAge := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		byAge = append(byAge, aged{key: k, ts: e.Timestamp})
	}
	sort.Slice(byAge, func(i, j int) bool { return byAge[i].ts.Before(byAge[j].ts) })

	for _, a := range byAge {
		if len(c.entries) <= c.cfg.MaxEntries {
			break
		}
		delete(c.entries, a.key)
	}
}

// scheduleSaveLocked arms the debounce timer if persistence is enabled
// and no write is already pending. Caller holds the lock.
func (c *Cache) scheduleSaveLocked() {
	if c.store == nil || c.saveTimer != nil {
		return
	}
	c.saveTimer = time.AfterFunc(c.cfg.Debounce, c.flush)
}

// flush writes the current snapshot to the store.
func (c *Cache) flush() {
	c.mu.Lock()
	c.saveTimer = nil
	if !c.dirty || c.store == nil {
		c.mu.Unlock()
		return
	}
	c.dirty = false
	payload, err := json.Marshal(c.entries)
	c.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("cache: failed to encode snapshot")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := c.store.Save(ctx, payload); err != nil {
		log.Error().Err(err).Msg("cache: failed to persist snapshot")
		return
	}
	log.Debug().Int("bytes", len(payload)).Msg("cache: snapshot persisted")
}

// Load restores the snapshot from the store, dropping entries older
// than the TTL. Call once at startup, before the cache is shared.
func (c *Cache) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	payload, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("cache load: %w", err)
	}
	if payload == nil {
		return nil
	}

	var entries map[string]Entry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return fmt.Errorf("cache load: corrupt snapshot: %w", err)
	}

	cutoff := c.now().Add(-c.cfg.TTL)
	dropped := 0
	c.mu.Lock()
	for k, e := range entries {
		if e.Timestamp.Before(cutoff) {
			dropped++
			continue
		}
		c.entries[k] = e
	}
	kept := len(c.entries)
	c.mu.Unlock()

	log.Info().Int("entries", kept).Int("expired", dropped).Msg("cache: snapshot loaded")
	return nil
}

// Close cancels any pending debounce and writes a final snapshot.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.saveTimer != nil {
		c.saveTimer.Stop()
		c.saveTimer = nil
	}
	c.mu.Unlock()

	c.flush()
	return nil
}
