// Package cache implements a two-tier in-memory cache. L1 holds decoded
// values; L2 holds serialized bytes, gzip-compressed above a size
// threshold. A Bloom filter in front of both tiers turns lookups for
// never-seen keys into cheap negative hits. Eviction victims from L1 are
// demoted to L2 when they have been accessed; otherwise they are dropped.
package cache

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/openindex-dev/openindex/internal/index/bloom"
	"github.com/openindex-dev/openindex/internal/logger"
)

// Config tunes a Cache.
type Config struct {
	// L1MaxEntries bounds the decoded tier.
	L1MaxEntries int
	// L2MaxEntries bounds the serialized tier.
	L2MaxEntries int
	// CompressionThreshold is the serialized size above which L2 payloads
	// are gzipped. Defaults to 1 KiB.
	CompressionThreshold int
	// Policy selects the eviction strategy for both tiers.
	Policy Policy
	// TTL expires entries on read when positive.
	TTL time.Duration
	// BloomExpectedItems and BloomFPR size the negative-lookup filter.
	BloomExpectedItems int
	BloomFPR           float64
}

// DefaultConfig returns the tuning used by the search index document cache.
func DefaultConfig() Config {
	return Config{
		L1MaxEntries:         1000,
		L2MaxEntries:         10000,
		CompressionThreshold: 1024,
		Policy:               PolicyLRU,
		BloomExpectedItems:   10000,
		BloomFPR:             0.01,
	}
}

func (c Config) withDefaults() Config {
	if c.L1MaxEntries <= 0 {
		c.L1MaxEntries = 1000
	}
	if c.L2MaxEntries <= 0 {
		c.L2MaxEntries = 10000
	}
	if c.CompressionThreshold <= 0 {
		c.CompressionThreshold = 1024
	}
	if c.Policy == "" {
		c.Policy = PolicyLRU
	}
	if c.BloomExpectedItems <= 0 {
		c.BloomExpectedItems = 10000
	}
	if c.BloomFPR <= 0 || c.BloomFPR >= 1 {
		c.BloomFPR = 0.01
	}
	return c
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	L1Hits            uint64
	L2Hits            uint64
	Misses            uint64
	NegativeHits      uint64
	Evictions         uint64
	Demotions         uint64
	Promotions        uint64
	Compressions      uint64
	Decompressions    uint64
	CompressionMs     float64
	DecompressionMs   float64
	L1Entries         int
	L2Entries         int
	BloomEstimatedFPR float64
}

type l1Entry[V any] struct {
	value V
	meta  EntryMeta
}

type l2Entry struct {
	data       []byte
	compressed bool
	meta       EntryMeta
}

// Cache is a two-tier cache for values of type V. V must round-trip
// through JSON. All operations on a single key are linearizable; one
// lock covers both tiers so promotions and demotions are atomic.
type Cache[V any] struct {
	cfg    Config
	engine *Engine

	mu    sync.Mutex
	l1    map[string]*l1Entry[V]
	l2    map[string]*l2Entry
	bloom *bloom.Filter
	stats Stats

	now func() time.Time
}

// New creates a cache with the given configuration.
func New[V any](cfg Config) *Cache[V] {
	cfg = cfg.withDefaults()
	return &Cache[V]{
		cfg:    cfg,
		engine: NewEngine(cfg.Policy, cfg.TTL),
		l1:     make(map[string]*l1Entry[V]),
		l2:     make(map[string]*l2Entry),
		bloom:  bloom.New(cfg.BloomExpectedItems, cfg.BloomFPR),
		now:    time.Now,
	}
}

// Get returns the value for key. Lookup order is Bloom filter, L1, then
// L2; an L2 hit promotes the entry back to L1.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.bloom.Contains(key) {
		c.stats.NegativeHits++
		return zero, false
	}

	if e, ok := c.l1[key]; ok {
		if c.expired(e.meta) {
			delete(c.l1, key)
			c.stats.Misses++
			return zero, false
		}
		c.touch(&e.meta)
		c.stats.L1Hits++
		return e.value, true
	}

	if e, ok := c.l2[key]; ok {
		if c.expired(e.meta) {
			delete(c.l2, key)
			c.stats.Misses++
			return zero, false
		}
		value, err := c.decode(e)
		if err != nil {
			logger.Warn("cache: dropping corrupt L2 entry %q: %v", key, err)
			delete(c.l2, key)
			c.stats.Misses++
			return zero, false
		}
		delete(c.l2, key)
		c.touch(&e.meta)
		c.insertL1(key, value, e.meta)
		c.stats.L2Hits++
		c.stats.Promotions++
		return value, true
	}

	c.stats.Misses++
	return zero, false
}

// Set stores value under key in L1, evicting and demoting as needed.
// The newest value wins; Set is idempotent.
func (c *Cache[V]) Set(key string, value V) {
	size := 0
	if data, err := json.Marshal(value); err == nil {
		size = len(data)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	meta := EntryMeta{
		Key:         key,
		CreatedAt:   now,
		LastAccess:  now,
		AccessCount: 1,
		Size:        size,
	}

	delete(c.l2, key)
	c.insertL1(key, value, meta)
	c.bloom.Insert(key)
}

// Delete removes key from both tiers. The Bloom filter retains the key
// until the next Clear; lookups degrade to ordinary misses.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.l1, key)
	delete(c.l2, key)
}

// Clear empties both tiers and rebuilds the Bloom filter.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.l1 = make(map[string]*l1Entry[V])
	c.l2 = make(map[string]*l2Entry)
	c.bloom = bloom.New(c.cfg.BloomExpectedItems, c.cfg.BloomFPR)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.L1Entries = len(c.l1)
	s.L2Entries = len(c.l2)
	s.BloomEstimatedFPR = c.bloom.EstimatedFPR()
	return s
}

// insertL1 places a value in L1, evicting first when full. Victims that
// were ever accessed are demoted to L2; untouched victims are dropped.
// Callers hold c.mu.
func (c *Cache[V]) insertL1(key string, value V, meta EntryMeta) {
	if _, exists := c.l1[key]; !exists && len(c.l1) >= c.cfg.L1MaxEntries {
		needed := len(c.l1) - c.cfg.L1MaxEntries + 1
		for _, victim := range c.engine.SelectVictims(c.l1Metas(), needed) {
			e, ok := c.l1[victim]
			if !ok {
				continue
			}
			delete(c.l1, victim)
			c.stats.Evictions++
			if e.meta.AccessCount >= 1 {
				c.demote(victim, e)
			}
		}
	}
	c.l1[key] = &l1Entry[V]{value: value, meta: meta}
}

// demote serializes an L1 victim into L2, evicting from L2 when full.
// Serialization failures are logged and the entry is dropped. Callers
// hold c.mu.
func (c *Cache[V]) demote(key string, e *l1Entry[V]) {
	data, err := json.Marshal(e.value)
	if err != nil {
		logger.Warn("cache: cannot demote %q: %v", key, err)
		return
	}

	start := c.now()
	payload, compressed, err := compress(data, c.cfg.CompressionThreshold)
	if err != nil {
		logger.Warn("cache: compression failed for %q: %v", key, err)
		return
	}
	if compressed {
		c.stats.Compressions++
		c.stats.CompressionMs += float64(c.now().Sub(start).Microseconds()) / 1000
	}

	if _, exists := c.l2[key]; !exists && len(c.l2) >= c.cfg.L2MaxEntries {
		needed := len(c.l2) - c.cfg.L2MaxEntries + 1
		for _, victim := range c.engine.SelectVictims(c.l2Metas(), needed) {
			delete(c.l2, victim)
			c.stats.Evictions++
		}
	}

	c.l2[key] = &l2Entry{data: payload, compressed: compressed, meta: e.meta}
	c.stats.Demotions++
}

// decode inflates and deserializes an L2 entry. Callers hold c.mu.
func (c *Cache[V]) decode(e *l2Entry) (V, error) {
	var value V

	start := c.now()
	data, err := decompress(e.data, e.compressed)
	if err != nil {
		return value, err
	}
	if e.compressed {
		c.stats.Decompressions++
		c.stats.DecompressionMs += float64(c.now().Sub(start).Microseconds()) / 1000
	}

	err = json.Unmarshal(data, &value)
	return value, err
}

// expired reports whether an entry has outlived the TTL. An entry is
// valid up to and including the boundary instant.
func (c *Cache[V]) expired(meta EntryMeta) bool {
	return c.cfg.TTL > 0 && c.now().Sub(meta.CreatedAt) > c.cfg.TTL
}

func (c *Cache[V]) touch(meta *EntryMeta) {
	meta.LastAccess = c.now()
	meta.AccessCount++
}

func (c *Cache[V]) l1Metas() []EntryMeta {
	metas := make([]EntryMeta, 0, len(c.l1))
	for _, e := range c.l1 {
		metas = append(metas, e.meta)
	}
	return metas
}

func (c *Cache[V]) l2Metas() []EntryMeta {
	metas := make([]EntryMeta, 0, len(c.l2))
	for _, e := range c.l2 {
		metas = append(metas, e.meta)
	}
	return metas
}
