package incremental

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memOrdinals is an in-memory OrdinalStore.
type memOrdinals struct {
	mu    sync.Mutex
	state map[string]string
	saves int
}

func newMemOrdinals() *memOrdinals {
	return &memOrdinals{state: make(map[string]string)}
}

func (m *memOrdinals) LoadOrdinal(_ context.Context, sourceKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state[sourceKey], nil
}

func (m *memOrdinals) SaveOrdinal(_ context.Context, sourceKey, ordinal string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[sourceKey] = ordinal
	m.saves++
	return nil
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.TempDir()+"/driver.db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE events (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'doc',
			payload TEXT NOT NULL DEFAULT ''
		)
	`)
	require.NoError(t, err)
	return db
}

func insertEvent(t *testing.T, db *sql.DB, id string, seq int, updatedAt, kind string) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO events (id, seq, updated_at, kind) VALUES (?, ?, ?, ?)`,
		id, seq, updatedAt, kind,
	)
	require.NoError(t, err)
}

func sequenceConfig() Config {
	return Config{
		SourceKey:      "test:events",
		Table:          "events",
		PKColumn:       "id",
		OrdinalColumns: []string{"seq"},
		Kind:           OrdinalSequence,
	}
}

func TestPullAdvancesOrdinal(t *testing.T) {
	db := newTestDB(t)
	store := newMemOrdinals()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		insertEvent(t, db, string(rune('a'+i-1)), i, "2026-01-01T00:00:00Z", "doc")
	}

	cfg := sequenceConfig()
	cfg.BatchSize = 3
	d, err := NewDriver(ctx, db, store, cfg)
	require.NoError(t, err)
	assert.Equal(t, "", d.Ordinal())

	batch, err := d.Pull(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, "a", batch[0].PK)
	assert.Equal(t, "3", d.Ordinal())
	assert.Equal(t, "3", store.state["test:events"])

	batch, err = d.Pull(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "5", d.Ordinal())

	// Prior ordinal pushed into history on the second advance.
	assert.Equal(t, []string{"3"}, d.History())

	// Drained: no rows, no state change, no extra persistence.
	saves := store.saves
	batch, err = d.Pull(ctx)
	require.NoError(t, err)
	assert.Empty(t, batch)
	assert.Equal(t, "5", d.Ordinal())
	assert.Equal(t, saves, store.saves)
}

func TestPullResumesFromStoredOrdinal(t *testing.T) {
	db := newTestDB(t)
	store := newMemOrdinals()
	ctx := context.Background()

	insertEvent(t, db, "a", 1, "2026-01-01T00:00:00Z", "doc")
	insertEvent(t, db, "b", 2, "2026-01-01T00:00:00Z", "doc")
	store.state["test:events"] = "1"

	d, err := NewDriver(ctx, db, store, sequenceConfig())
	require.NoError(t, err)
	assert.Equal(t, "1", d.Ordinal())

	batch, err := d.Pull(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "b", batch[0].PK)
}

func TestOverlapReobservesRecentRows(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		insertEvent(t, db, string(rune('a'+i-1)), i*10, "2026-01-01T00:00:00Z", "doc")
	}

	cfg := sequenceConfig()
	cfg.OverlapCount = 15
	d, err := NewDriver(ctx, db, nil, cfg)
	require.NoError(t, err)

	batch, err := d.Pull(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 4)
	assert.Equal(t, "40", d.Ordinal())

	// A row committed "in the past" relative to the high-water mark
	// lands inside the overlap window and is re-observed alongside a
	// re-emission of rows above ordinal-buffer. Consumers dedupe by PK.
	insertEvent(t, db, "late", 35, "2026-01-01T00:00:00Z", "doc")

	batch, err = d.Pull(ctx)
	require.NoError(t, err)
	pks := make([]string, len(batch))
	for i, row := range batch {
		pks[i] = row.PK
	}
	// Predicate weakened to seq > 25: rows 30, 35, 40.
	assert.Equal(t, []string{"c", "late", "d"}, pks)
}

func TestTimestampOverlap(t *testing.T) {
	cfg := Config{
		SourceKey:      "test:ts",
		Table:          "events",
		PKColumn:       "id",
		OrdinalColumns: []string{"updated_at"},
		Kind:           OrdinalTimestamp,
	}
	require.NoError(t, cfg.withDefaults())
	d := &Driver{cfg: cfg}

	// No buffer: unchanged.
	assert.Equal(t, "2026-01-01T00:10:00Z", d.weaken("2026-01-01T00:10:00Z"))

	d.cfg.OverlapDuration = 300e9 // 5 minutes
	assert.Equal(t, "2026-01-01T00:05:00Z", d.weaken("2026-01-01T00:10:00Z"))

	// Unparseable ordinals pass through untouched.
	assert.Equal(t, "not-a-time", d.weaken("not-a-time"))
}

func TestCompositeOrdinal(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	insertEvent(t, db, "a", 1, "2026-01-01T00:00:00Z", "doc")
	insertEvent(t, db, "b", 1, "2026-01-02T00:00:00Z", "doc")
	insertEvent(t, db, "c", 2, "2026-01-01T00:00:00Z", "doc")

	cfg := Config{
		SourceKey:      "test:composite",
		Table:          "events",
		PKColumn:       "id",
		OrdinalColumns: []string{"seq", "updated_at"},
		Kind:           OrdinalComposite,
		BatchSize:      2,
	}
	d, err := NewDriver(ctx, db, nil, cfg)
	require.NoError(t, err)

	batch, err := d.Pull(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "1|2026-01-02T00:00:00Z", d.Ordinal())

	batch, err = d.Pull(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "c", batch[0].PK)
	assert.Equal(t, "2|2026-01-01T00:00:00Z", d.Ordinal())
}

func TestUserFilterApplied(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	insertEvent(t, db, "a", 1, "2026-01-01T00:00:00Z", "doc")
	insertEvent(t, db, "b", 2, "2026-01-01T00:00:00Z", "note")
	insertEvent(t, db, "c", 3, "2026-01-01T00:00:00Z", "doc")

	cfg := sequenceConfig()
	cfg.Filter = "kind = 'doc'"
	d, err := NewDriver(ctx, db, nil, cfg)
	require.NoError(t, err)

	batch, err := d.Pull(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "a", batch[0].PK)
	assert.Equal(t, "c", batch[1].PK)
}

func TestConfigValidation(t *testing.T) {
	ctx := context.Background()

	_, err := NewDriver(ctx, nil, nil, Config{})
	assert.Error(t, err)

	_, err = NewDriver(ctx, nil, nil, Config{
		SourceKey:      "k",
		Table:          "t",
		PKColumn:       "id",
		OrdinalColumns: []string{"a", "b"},
		Kind:           OrdinalSequence,
	})
	assert.Error(t, err)

	_, err = NewDriver(ctx, nil, nil, Config{
		SourceKey:      "k",
		Table:          "t",
		PKColumn:       "id",
		OrdinalColumns: []string{"a"},
		Kind:           OrdinalComposite,
	})
	assert.Error(t, err)
}

func TestHistoryIsBounded(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	cfg := sequenceConfig()
	cfg.BatchSize = 1
	d, err := NewDriver(ctx, db, nil, cfg)
	require.NoError(t, err)

	for i := 1; i <= historySize+10; i++ {
		insertEvent(t, db, fmt.Sprintf("id-%03d", i), i, "2026-01-01T00:00:00Z", "doc")
	}
	for i := 1; i <= historySize+10; i++ {
		_, err := d.Pull(ctx)
		require.NoError(t, err)
	}

	history := d.History()
	assert.Len(t, history, historySize)
	// Oldest retained entry reflects the trim.
	assert.Equal(t, "10", history[0])
}
