package cache

import (
	"math/rand"
	"sort"
	"time"
)

// Policy names an eviction strategy shared by both cache tiers.
type Policy string

const (
	PolicyLRU       Policy = "lru"
	PolicyLFU       Policy = "lfu"
	PolicyTTL       Policy = "ttl"
	PolicyRandom    Policy = "random"
	PolicySizeBased Policy = "size"
	PolicyARC       Policy = "arc"
)

// EntryMeta is the access metadata the eviction engine ranks entries by.
type EntryMeta struct {
	Key         string
	CreatedAt   time.Time
	LastAccess  time.Time
	AccessCount uint64
	Size        int
}

// Engine ranks a tier's entries and picks eviction victims.
type Engine struct {
	policy Policy
	ttl    time.Duration
	now    func() time.Time
	rand   *rand.Rand
}

// NewEngine creates an eviction engine for the given policy. The ttl is
// only consulted by PolicyTTL.
func NewEngine(policy Policy, ttl time.Duration) *Engine {
	return &Engine{
		policy: policy,
		ttl:    ttl,
		now:    time.Now,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SelectVictims returns up to count keys to evict, best victims first.
// Callers remove the returned keys themselves.
func (e *Engine) SelectVictims(entries []EntryMeta, count int) []string {
	if count <= 0 || len(entries) == 0 {
		return nil
	}
	if count > len(entries) {
		count = len(entries)
	}

	switch e.policy {
	case PolicyLFU:
		return keys(byFrequency(entries), count)
	case PolicyTTL:
		return e.ttlVictims(entries, count)
	case PolicyRandom:
		return e.randomVictims(entries, count)
	case PolicySizeBased:
		return keys(bySizeDesc(entries), count)
	case PolicyARC:
		return e.arcVictims(entries, count)
	default:
		return keys(byRecency(entries), count)
	}
}

// byRecency orders oldest access first.
func byRecency(entries []EntryMeta) []EntryMeta {
	sorted := append([]EntryMeta(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LastAccess.Before(sorted[j].LastAccess)
	})
	return sorted
}

// byFrequency orders least used first, ties broken by oldest insertion.
func byFrequency(entries []EntryMeta) []EntryMeta {
	sorted := append([]EntryMeta(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].AccessCount != sorted[j].AccessCount {
			return sorted[i].AccessCount < sorted[j].AccessCount
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted
}

// bySizeDesc orders largest first.
func bySizeDesc(entries []EntryMeta) []EntryMeta {
	sorted := append([]EntryMeta(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Size > sorted[j].Size
	})
	return sorted
}

// ttlVictims picks expired entries first (oldest creation first), then
// pads with the oldest remaining entries when the expired set is too
// small to satisfy count.
func (e *Engine) ttlVictims(entries []EntryMeta, count int) []string {
	now := e.now()
	var expired, live []EntryMeta
	for _, m := range entries {
		if e.ttl > 0 && now.Sub(m.CreatedAt) >= e.ttl {
			expired = append(expired, m)
		} else {
			live = append(live, m)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].CreatedAt.Before(expired[j].CreatedAt)
	})
	victims := keys(expired, count)
	if len(victims) < count {
		sort.Slice(live, func(i, j int) bool {
			return live[i].CreatedAt.Before(live[j].CreatedAt)
		})
		victims = append(victims, keys(live, count-len(victims))...)
	}
	return victims
}

func (e *Engine) randomVictims(entries []EntryMeta, count int) []string {
	perm := e.rand.Perm(len(entries))
	victims := make([]string, 0, count)
	for _, i := range perm[:count] {
		victims = append(victims, entries[i].Key)
	}
	return victims
}

// arcVictims unions half-LRU and half-LFU candidates, truncated to count.
func (e *Engine) arcVictims(entries []EntryMeta, count int) []string {
	half := (count + 1) / 2
	lru := keys(byRecency(entries), half)
	lfu := keys(byFrequency(entries), half)

	seen := make(map[string]struct{}, count)
	victims := make([]string, 0, count)
	for _, k := range append(lru, lfu...) {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		victims = append(victims, k)
		if len(victims) == count {
			break
		}
	}
	return victims
}

func keys(sorted []EntryMeta, count int) []string {
	if count > len(sorted) {
		count = len(sorted)
	}
	out := make([]string, count)
	for i := 0; i < count; i++ {
		out[i] = sorted[i].Key
	}
	return out
}
