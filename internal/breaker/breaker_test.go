package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func newTestBreaker(cfg Config) (*Breaker, *time.Time) {
	b := New(cfg)
	now := time.Now()
	b.now = func() time.Time { return now }
	return b, &now
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3, SuccessThreshold: 1, OpenTimeout: time.Minute, MaxHalfOpen: 1})

	for i := 0; i < 3; i++ {
		require.Equal(t, StateClosed, b.State())
		err := b.Execute(func() error { return errBoom })
		require.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, StateOpen, b.State())

	err := b.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3, SuccessThreshold: 1, OpenTimeout: time.Minute, MaxHalfOpen: 1})

	b.Execute(func() error { return errBoom })
	b.Execute(func() error { return errBoom })
	b.Execute(func() error { return nil })
	b.Execute(func() error { return errBoom })
	b.Execute(func() error { return errBoom })

	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenRecovery(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: 10 * time.Second, MaxHalfOpen: 1})

	b.Execute(func() error { return errBoom })
	require.Equal(t, StateOpen, b.State())

	*now = now.Add(11 * time.Second)

	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: 10 * time.Second, MaxHalfOpen: 1})

	b.Execute(func() error { return errBoom })
	*now = now.Add(11 * time.Second)

	err := b.Execute(func() error { return errBoom })
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateOpen, b.State())

	// Still within the new open window.
	assert.ErrorIs(t, b.Execute(func() error { return nil }), ErrOpen)
}

func TestHalfOpenTrialBudget(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 5, OpenTimeout: 10 * time.Second, MaxHalfOpen: 2})

	b.Execute(func() error { return errBoom })
	*now = now.Add(11 * time.Second)

	done1, err := b.Allow()
	require.NoError(t, err)
	done2, err := b.Allow()
	require.NoError(t, err)

	_, err = b.Allow()
	assert.ErrorIs(t, err, ErrTooManyTrials)

	done1(true)
	done2(true)

	// A released slot admits the next trial.
	_, err = b.Allow()
	assert.NoError(t, err)
}

func TestGroupIsolatesOrigins(t *testing.T) {
	g := NewGroup(Config{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Minute, MaxHalfOpen: 1})

	g.For("api.example.com").Execute(func() error { return errBoom })

	assert.Equal(t, StateOpen, g.For("api.example.com").State())
	assert.Equal(t, StateClosed, g.For("api.other.com").State())
	assert.Same(t, g.For("api.example.com"), g.For("api.example.com"))
}
