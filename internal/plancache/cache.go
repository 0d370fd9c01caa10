// Package plancache keeps trained question→plan associations in memory,
// refreshed from the persistent store on a TTL, and answers similarity
// lookups so repeated questions skip the reasoning service entirely.
package plancache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"datachat/internal/domain"
	"datachat/internal/textnorm"
)

// Options tune matching behavior. Zero values fall back to the defaults
// used in production.
type Options struct {
	TTL        time.Duration
	MaxEntries int

	// AcceptThreshold is the word-set similarity at which a cached plan is
	// reused outright.
	AcceptThreshold float64
	// RelaxedThreshold admits near-misses, but only in forced-data mode and
	// only when the question shares a word with DomainKeywords.
	RelaxedThreshold float64
	// ShortRunes is the normalized length below which only exact matches
	// count; short strings make word-set similarity meaningless.
	ShortRunes int

	DomainKeywords []string

	// Now is injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

// Match is a cache hit: the stored entry plus how it matched.
type Match struct {
	Entry *domain.TrainedPlanEntry
	Score float64
	Exact bool
}

// Cache is safe for concurrent use. Reads are served from memory; the
// backing store is consulted at most once per TTL window, deduplicated
// across callers.
type Cache struct {
	store  domain.TrainedPlanStore
	opts   Options
	logger *slog.Logger

	keywords map[string]struct{}
	reload   singleflight.Group

	mu       sync.RWMutex
	entries  []domain.TrainedPlanEntry
	byNorm   map[string]int
	loadedAt time.Time
}

// New creates a Cache over the given store. The first Lookup or Refresh
// populates it.
func New(store domain.TrainedPlanStore, opts Options, logger *slog.Logger) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = 120 * time.Second
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 300
	}
	if opts.AcceptThreshold == 0 {
		opts.AcceptThreshold = 0.88
	}
	if opts.RelaxedThreshold == 0 {
		opts.RelaxedThreshold = 0.70
	}
	if opts.ShortRunes == 0 {
		opts.ShortRunes = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	keywords := make(map[string]struct{}, len(opts.DomainKeywords))
	for _, kw := range opts.DomainKeywords {
		keywords[textnorm.Normalize(kw)] = struct{}{}
	}
	return &Cache{store: store, opts: opts, logger: logger, keywords: keywords, byNorm: map[string]int{}}
}

// Lookup finds a reusable plan for the question, or nil on a miss. mode
// gates the relaxed path. A stale or failed store never blocks a lookup:
// the previous snapshot keeps serving.
func (c *Cache) Lookup(ctx context.Context, question string, mode domain.Mode) (*Match, error) {
	if err := c.ensureFresh(ctx); err != nil {
		c.logger.Warn("plan cache refresh failed, serving stale snapshot", "error", err)
	}

	norm := textnorm.Normalize(question)
	if norm == "" {
		return nil, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if i, ok := c.byNorm[norm]; ok {
		return &Match{Entry: cloneEntry(&c.entries[i]), Score: 1.0, Exact: true}, nil
	}
	if utf8.RuneCountInString(norm) < c.opts.ShortRunes {
		// Too short for word-set similarity; exact only.
		return nil, nil
	}

	bestScore := 0.0
	bestIdx := -1
	for i := range c.entries {
		score := textnorm.Jaccard(norm, c.entries[i].NormalizedQuestion)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return nil, nil
	}

	if bestScore >= c.opts.AcceptThreshold {
		return &Match{Entry: cloneEntry(&c.entries[bestIdx]), Score: bestScore}, nil
	}
	if mode == domain.ModeForcedData && bestScore >= c.opts.RelaxedThreshold && c.hasDomainKeyword(norm) {
		return &Match{Entry: cloneEntry(&c.entries[bestIdx]), Score: bestScore}, nil
	}
	return nil, nil
}

// Put persists the entry and makes it visible to lookups immediately,
// without waiting for the next TTL refresh.
func (c *Cache) Put(ctx context.Context, entry *domain.TrainedPlanEntry) error {
	if entry.NormalizedQuestion == "" {
		entry.NormalizedQuestion = textnorm.Normalize(entry.Question)
	}
	if err := c.store.Append(ctx, entry); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.byNorm[entry.NormalizedQuestion]; ok {
		c.entries[i] = *entry
		return nil
	}
	c.entries = append(c.entries, *entry)
	c.byNorm[entry.NormalizedQuestion] = len(c.entries) - 1
	return nil
}

// Refresh reloads the snapshot from the store regardless of TTL.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err, _ := c.reload.Do("reload", func() (interface{}, error) {
		return nil, c.load(ctx)
	})
	return err
}

// Len reports the current snapshot size.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) ensureFresh(ctx context.Context) error {
	c.mu.RLock()
	fresh := !c.loadedAt.IsZero() && c.opts.Now().Sub(c.loadedAt) < c.opts.TTL
	c.mu.RUnlock()
	if fresh {
		return nil
	}
	return c.Refresh(ctx)
}

func (c *Cache) load(ctx context.Context) error {
	all, err := c.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	// Newest entries win the budget; LoadAll returns oldest first.
	if len(all) > c.opts.MaxEntries {
		all = all[len(all)-c.opts.MaxEntries:]
	}
	byNorm := make(map[string]int, len(all))
	for i := range all {
		if all[i].NormalizedQuestion == "" {
			all[i].NormalizedQuestion = textnorm.Normalize(all[i].Question)
		}
		byNorm[all[i].NormalizedQuestion] = i
	}

	c.mu.Lock()
	c.entries = all
	c.byNorm = byNorm
	c.loadedAt = c.opts.Now()
	c.mu.Unlock()

	c.logger.Debug("plan cache reloaded", "entries", len(all))
	return nil
}

func (c *Cache) hasDomainKeyword(norm string) bool {
	if len(c.keywords) == 0 {
		return false
	}
	for _, w := range strings.Fields(norm) {
		if _, ok := c.keywords[w]; ok {
			return true
		}
	}
	return false
}

func cloneEntry(e *domain.TrainedPlanEntry) *domain.TrainedPlanEntry {
	out := *e
	return &out
}
