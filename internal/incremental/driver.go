// Package incremental pulls changed rows from an SQL backing store by
// ordering on an ordinal column and remembering the high-water mark
// between pulls. A redis-backed notifier coalesces change events into
// catch-up pull triggers.
package incremental

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/openindex-dev/openindex/internal/core/ports/driven"
	"github.com/openindex-dev/openindex/internal/logger"
)

// OrdinalKind classifies the ordinal column driving incremental pulls.
type OrdinalKind string

const (
	OrdinalTimestamp OrdinalKind = "timestamp"
	OrdinalSequence  OrdinalKind = "sequence"
	OrdinalUUID      OrdinalKind = "uuid"
	OrdinalOpaque    OrdinalKind = "opaque"
	OrdinalComposite OrdinalKind = "composite"
)

const (
	// defaultBatchSize caps rows per pull.
	defaultBatchSize = 1000
	// defaultBudget bounds the wall time of one pull.
	defaultBudget = 300 * time.Second
	// historySize bounds retained prior ordinals.
	historySize = 100
	// compositeSeparator joins composite ordinal values.
	compositeSeparator = "|"
)

// Config describes one incremental source.
type Config struct {
	// SourceKey identifies this source in the ordinal store.
	SourceKey string

	// Table is the backing table or view.
	Table string

	// Columns are the selected columns. Empty selects all.
	Columns []string

	// PKColumn is the primary key used for downstream deduplication.
	PKColumn string

	// OrdinalColumns order the pull. One entry except for composite
	// ordinals, where the listed order is the comparison order.
	OrdinalColumns []string

	// Kind classifies the ordinal.
	Kind OrdinalKind

	// Filter is an optional SQL predicate appended to the query.
	Filter string

	// BatchSize caps rows per pull. Defaults to 1000.
	BatchSize int

	// Budget bounds the wall time of one pull. Defaults to 300 s.
	Budget time.Duration

	// OverlapDuration weakens a timestamp predicate to re-observe rows
	// committed concurrently with the previous pull.
	OverlapDuration time.Duration

	// OverlapCount weakens a sequence predicate likewise.
	OverlapCount int64
}

func (c *Config) withDefaults() error {
	if c.SourceKey == "" || c.Table == "" || c.PKColumn == "" {
		return fmt.Errorf("incremental config requires source key, table and pk column")
	}
	if len(c.OrdinalColumns) == 0 {
		return fmt.Errorf("incremental config requires at least one ordinal column")
	}
	if c.Kind == OrdinalComposite && len(c.OrdinalColumns) < 2 {
		return fmt.Errorf("composite ordinal requires at least two columns")
	}
	if c.Kind != OrdinalComposite && len(c.OrdinalColumns) > 1 {
		return fmt.Errorf("%s ordinal takes exactly one column", c.Kind)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.Budget <= 0 {
		c.Budget = defaultBudget
	}
	return nil
}

// Row is one pulled row with its deduplication key and ordinal.
type Row struct {
	// PK is the row's primary key rendered as a string. Overlapping
	// pulls can re-emit rows; consumers dedupe by PK.
	PK string

	// Ordinal is the row's ordinal value, composite values joined.
	Ordinal string

	// Values maps column name to scanned value.
	Values map[string]any
}

// Driver performs ordinal-ordered incremental pulls over database/sql.
// Queries use plain placeholders so any conforming driver serves.
type Driver struct {
	db    *sql.DB
	store driven.OrdinalStore
	cfg   Config

	mu      sync.Mutex
	current string
	history []string
}

// NewDriver creates a driver and restores its ordinal from the store.
// A nil store keeps state in memory only.
func NewDriver(ctx context.Context, db *sql.DB, store driven.OrdinalStore, cfg Config) (*Driver, error) {
	if err := cfg.withDefaults(); err != nil {
		return nil, err
	}
	d := &Driver{db: db, store: store, cfg: cfg}
	if store != nil {
		ordinal, err := store.LoadOrdinal(ctx, cfg.SourceKey)
		if err != nil {
			return nil, fmt.Errorf("restoring ordinal for %s: %w", cfg.SourceKey, err)
		}
		d.current = ordinal
	}
	return d, nil
}

// Ordinal returns the current high-water mark, "" before the first pull.
func (d *Driver) Ordinal() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// History returns prior ordinals, oldest first.
func (d *Driver) History() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.history))
	copy(out, d.history)
	return out
}

// Pull fetches the next batch of changed rows, advances the ordinal and
// persists it before returning. An empty batch leaves state untouched.
func (d *Driver) Pull(ctx context.Context) ([]Row, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Budget)
	defer cancel()

	d.mu.Lock()
	current := d.current
	d.mu.Unlock()

	query, args := d.buildQuery(current)
	logger.Debug("incremental pull %s: %s", d.cfg.SourceKey, query)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pulling %s: %w", d.cfg.SourceKey, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	var batch []Row //nolint:prealloc
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		row := Row{Values: make(map[string]any, len(columns))}
		for i, col := range columns {
			row.Values[col] = values[i]
		}
		row.PK = renderValue(row.Values[d.cfg.PKColumn])
		row.Ordinal = d.ordinalOf(row.Values)
		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	if len(batch) == 0 {
		return nil, nil
	}

	next := batch[len(batch)-1].Ordinal
	if err := d.advance(ctx, current, next); err != nil {
		return nil, err
	}
	return batch, nil
}

// advance pushes the prior ordinal into history and persists the new
// one before the batch is acknowledged to the caller.
func (d *Driver) advance(ctx context.Context, prior, next string) error {
	if d.store != nil {
		if err := d.store.SaveOrdinal(ctx, d.cfg.SourceKey, next); err != nil {
			return fmt.Errorf("persisting ordinal for %s: %w", d.cfg.SourceKey, err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if prior != "" {
		d.history = append(d.history, prior)
		if len(d.history) > historySize {
			d.history = d.history[len(d.history)-historySize:]
		}
	}
	d.current = next
	return nil
}

// buildQuery assembles the ordinal-ordered select for the given state.
func (d *Driver) buildQuery(current string) (string, []any) {
	cols := "*"
	if len(d.cfg.Columns) > 0 {
		cols = strings.Join(d.cfg.Columns, ", ")
	}

	var (
		where []string
		args  []any
	)
	if current != "" {
		predicate, predArgs := d.ordinalPredicate(current)
		where = append(where, predicate)
		args = append(args, predArgs...)
	}
	if d.cfg.Filter != "" {
		where = append(where, "("+d.cfg.Filter+")")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", cols, d.cfg.Table)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY %s ASC LIMIT %d",
		strings.Join(d.cfg.OrdinalColumns, " ASC, "), d.cfg.BatchSize)
	return b.String(), args
}

// ordinalPredicate renders `ordinal > ?`, weakened by the configured
// overlap buffer so concurrently committed rows are re-observed.
func (d *Driver) ordinalPredicate(current string) (string, []any) {
	if d.cfg.Kind == OrdinalComposite {
		parts := strings.Split(current, compositeSeparator)
		cols := "(" + strings.Join(d.cfg.OrdinalColumns, ", ") + ")"
		marks := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(parts)), ", ") + ")"
		args := make([]any, len(parts))
		for i, p := range parts {
			args[i] = p
		}
		return cols + " > " + marks, args
	}
	return d.cfg.OrdinalColumns[0] + " > ?", []any{d.weaken(current)}
}

// weaken shifts the ordinal back by the overlap buffer when configured.
func (d *Driver) weaken(ordinal string) string {
	switch d.cfg.Kind {
	case OrdinalTimestamp:
		if d.cfg.OverlapDuration <= 0 {
			return ordinal
		}
		t, err := time.Parse(time.RFC3339Nano, ordinal)
		if err != nil {
			return ordinal
		}
		return t.Add(-d.cfg.OverlapDuration).Format(time.RFC3339Nano)
	case OrdinalSequence:
		if d.cfg.OverlapCount <= 0 {
			return ordinal
		}
		n, err := strconv.ParseInt(ordinal, 10, 64)
		if err != nil {
			return ordinal
		}
		return strconv.FormatInt(n-d.cfg.OverlapCount, 10)
	default:
		// UUID and opaque ordinals have no meaningful subtraction.
		return ordinal
	}
}

// ordinalOf renders a row's ordinal value.
func (d *Driver) ordinalOf(values map[string]any) string {
	parts := make([]string, len(d.cfg.OrdinalColumns))
	for i, col := range d.cfg.OrdinalColumns {
		parts[i] = renderValue(values[col])
	}
	return strings.Join(parts, compositeSeparator)
}

func renderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
