package cache

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intCache(cfg Config) *Cache[int] {
	return New[int](cfg)
}

func TestPromotionAndDemotion(t *testing.T) {
	c := intCache(Config{L1MaxEntries: 1, L2MaxEntries: 4})

	c.Set("a", 1)
	c.Set("b", 2) // evicts "a" from L1; it was accessed once by its own set

	stats := c.Stats()
	assert.Equal(t, 1, stats.L1Entries)
	assert.Equal(t, 1, stats.L2Entries)
	assert.Equal(t, uint64(1), stats.Demotions)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	stats = c.Stats()
	assert.Equal(t, uint64(1), stats.L2Hits)
	assert.Equal(t, uint64(1), stats.Promotions)

	// "b" took the demotion slot in turn.
	v, ok = c.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestLatestSetWins(t *testing.T) {
	c := intCache(Config{L1MaxEntries: 10, L2MaxEntries: 10})
	c.Set("k", 1)
	c.Set("k", 2)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestNegativeHit(t *testing.T) {
	c := intCache(Config{L1MaxEntries: 10, L2MaxEntries: 10})
	c.Set("present", 1)

	_, ok := c.Get("never-set")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.NegativeHits)
	assert.Zero(t, stats.Misses)
}

func TestDelete(t *testing.T) {
	c := intCache(Config{L1MaxEntries: 10, L2MaxEntries: 10})
	c.Set("k", 1)
	c.Delete("k")

	_, ok := c.Get("k")
	assert.False(t, ok)
	// Bloom still remembers the key, so this counts as a plain miss.
	assert.Equal(t, uint64(1), c.Stats().Misses)
}

func TestTTLExpiry(t *testing.T) {
	c := intCache(Config{L1MaxEntries: 10, L2MaxEntries: 10, TTL: time.Minute})
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("k", 1)
	_, ok := c.Get("k")
	require.True(t, ok)

	// Exactly at the TTL boundary the entry is still valid.
	now = now.Add(time.Minute)
	_, ok = c.Get("k")
	assert.True(t, ok)

	now = now.Add(time.Nanosecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestClearRebuildsBloom(t *testing.T) {
	c := intCache(Config{L1MaxEntries: 10, L2MaxEntries: 10})
	c.Set("k", 1)
	c.Clear()

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Stats().NegativeHits)
	assert.Zero(t, c.Stats().L1Entries)
}

func TestLargeValuesAreCompressed(t *testing.T) {
	c := New[string](Config{L1MaxEntries: 1, L2MaxEntries: 4, CompressionThreshold: 64})

	big := ""
	for i := 0; i < 100; i++ {
		big += "repetitive payload segment "
	}
	c.Set("big", big)
	c.Set("other", "x") // demotes "big" to L2

	require.Equal(t, uint64(1), c.Stats().Compressions)

	v, ok := c.Get("big")
	require.True(t, ok)
	assert.Equal(t, big, v)
	assert.Equal(t, uint64(1), c.Stats().Decompressions)
}

func TestCompressRoundTrip(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte("short"),
		bytes.Repeat([]byte("abcdef0123456789"), 256),
	}
	for _, in := range inputs {
		out, compressed, err := compress(in, 64)
		require.NoError(t, err)
		back, err := decompress(out, compressed)
		require.NoError(t, err)
		assert.Equal(t, in, back)
	}
}

func TestSmallPayloadStaysUncompressed(t *testing.T) {
	out, compressed, err := compress([]byte("tiny"), 1024)
	require.NoError(t, err)
	assert.False(t, compressed)
	assert.Equal(t, []byte("tiny"), out)
}

func TestL2Eviction(t *testing.T) {
	c := intCache(Config{L1MaxEntries: 1, L2MaxEntries: 2})

	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}

	stats := c.Stats()
	assert.Equal(t, 1, stats.L1Entries)
	assert.LessOrEqual(t, stats.L2Entries, 2)
}
