// Package trie implements a character-keyed prefix tree for autocomplete
// and prefix search over indexed tokens.
//
// Nodes live in a flat arena addressed by int32 indices rather than a
// pointer graph with per-node locks. One tree-level RWMutex covers the
// whole structure; child sets are snapshotted before any recursive
// descent, so no lock is ever held across recursion.
package trie

import (
	"sort"
	"sync"
)

type node struct {
	children map[rune]int32
	terminal bool
	freq     uint32
	payload  string
}

// Entry is a single prefix-search result.
type Entry struct {
	Word      string
	Frequency uint32
	Payload   string
}

// Trie is a concurrency-safe prefix tree. Readers proceed in parallel;
// writers are exclusive.
type Trie struct {
	mu    sync.RWMutex
	arena []node
	words int
}

const root int32 = 0

// New creates an empty trie.
func New() *Trie {
	return &Trie{arena: []node{{children: make(map[rune]int32)}}}
}

// Insert adds word with an optional payload. Re-inserting an existing
// word increments its frequency; a non-empty payload replaces the stored
// one.
func (t *Trie) Insert(word, payload string) {
	if word == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cur := root
	for _, ch := range word {
		next, ok := t.arena[cur].children[ch]
		if !ok {
			t.arena = append(t.arena, node{children: make(map[rune]int32)})
			next = int32(len(t.arena) - 1)
			t.arena[cur].children[ch] = next
		}
		cur = next
	}

	n := &t.arena[cur]
	if !n.terminal {
		n.terminal = true
		t.words++
	}
	n.freq++
	if payload != "" {
		n.payload = payload
	}
}

// Remove decrements the frequency of word. When the frequency reaches
// zero the word stops being a terminal; arena slots are not reclaimed.
// Returns true if the word was present.
func (t *Trie) Remove(word string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.descend(word)
	if !ok || !t.arena[cur].terminal {
		return false
	}
	n := &t.arena[cur]
	n.freq--
	if n.freq == 0 {
		n.terminal = false
		n.payload = ""
		t.words--
	}
	return true
}

// SearchPrefix returns every word beginning with prefix, ordered by
// descending frequency with ties broken lexicographically.
func (t *Trie) SearchPrefix(prefix string) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	start, ok := t.descend(prefix)
	if !ok {
		return nil
	}

	var results []Entry
	t.collect(start, prefix, &results)

	sort.Slice(results, func(i, j int) bool {
		if results[i].Frequency != results[j].Frequency {
			return results[i].Frequency > results[j].Frequency
		}
		return results[i].Word < results[j].Word
	})
	return results
}

// Autocomplete returns up to limit words beginning with prefix, best
// first.
func (t *Trie) Autocomplete(prefix string, limit int) []string {
	entries := t.SearchPrefix(prefix)
	if limit >= 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	words := make([]string, len(entries))
	for i, e := range entries {
		words[i] = e.Word
	}
	return words
}

// Len returns the number of distinct words.
func (t *Trie) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.words
}

// Clear removes all words.
func (t *Trie) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.arena = []node{{children: make(map[rune]int32)}}
	t.words = 0
}

// descend walks from the root along word. Callers hold t.mu.
func (t *Trie) descend(word string) (int32, bool) {
	cur := root
	for _, ch := range word {
		next, ok := t.arena[cur].children[ch]
		if !ok {
			return 0, false
		}
		cur = next
	}
	return cur, true
}

// collect gathers terminal descendants of idx. The child set is copied
// into a sorted slice before recursing so iteration order is stable and
// the walk never observes a child map mid-mutation. Callers hold t.mu.
func (t *Trie) collect(idx int32, word string, out *[]Entry) {
	n := t.arena[idx]
	if n.terminal {
		*out = append(*out, Entry{Word: word, Frequency: n.freq, Payload: n.payload})
	}

	type edge struct {
		ch   rune
		next int32
	}
	edges := make([]edge, 0, len(n.children))
	for ch, next := range n.children {
		edges = append(edges, edge{ch, next})
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ch < edges[j].ch })

	for _, e := range edges {
		t.collect(e.next, word+string(e.ch), out)
	}
}
