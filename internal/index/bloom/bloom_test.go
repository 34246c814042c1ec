package bloom

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMembership(t *testing.T) {
	f := New(1000, 0.01)

	f.Insert("test1")
	f.Insert("test2")

	assert.True(t, f.Contains("test1"))
	assert.True(t, f.Contains("test2"))
	assert.False(t, f.Contains("test3"))
}

func TestNoFalseNegatives(t *testing.T) {
	f := New(500, 0.01)
	for i := 0; i < 500; i++ {
		f.Insert(fmt.Sprintf("key-%d", i))
	}
	for i := 0; i < 500; i++ {
		require.True(t, f.Contains(fmt.Sprintf("key-%d", i)), "key-%d must be present", i)
	}
}

func TestSizing(t *testing.T) {
	f := New(1000, 0.01)

	// m = ceil(-n ln p / (ln 2)^2) = 9586 for n=1000, p=0.01
	assert.Equal(t, uint64(9586), f.BitSize())
	// k = ceil(m/n * ln 2) = 7
	assert.Equal(t, uint32(7), f.HashCount())
}

func TestEstimatedFPR(t *testing.T) {
	f := New(100, 0.01)
	assert.Zero(t, f.EstimatedFPR())

	for i := 0; i < 100; i++ {
		f.Insert(fmt.Sprintf("k%d", i))
	}
	fpr := f.EstimatedFPR()
	assert.Greater(t, fpr, 0.0)
	assert.Less(t, fpr, 0.05)

	// Overfilling pushes the estimate up.
	for i := 100; i < 1000; i++ {
		f.Insert(fmt.Sprintf("k%d", i))
	}
	assert.Greater(t, f.EstimatedFPR(), fpr)
}

func TestClear(t *testing.T) {
	f := New(100, 0.01)
	f.Insert("a")
	require.True(t, f.Contains("a"))

	f.Clear()
	assert.False(t, f.Contains("a"))
	assert.Zero(t, f.Len())
}

func TestClampedInputs(t *testing.T) {
	f := New(0, -1)
	f.Insert("x")
	assert.True(t, f.Contains("x"))
}
