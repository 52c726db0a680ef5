package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Sequences allocates monotonically increasing numbers keyed by composite
// strings, e.g. "JRN:DT01:202608". Numbers are never reused; a rolled-back
// caller leaves a gap.
type Sequences struct{}

// NewSequences constructs the allocator.
func NewSequences() *Sequences {
	return &Sequences{}
}

// SequenceKey builds the composite key for a module/branch/period counter.
func SequenceKey(module, branchCode, period string) string {
	return strings.ToUpper(module) + ":" + strings.ToUpper(branchCode) + ":" + period
}

// Next increments the counter for key inside the supplied transaction and
// returns the new value. The upsert takes a row lock, so concurrent callers
// serialize per key and values stay strictly increasing.
func (s *Sequences) Next(ctx context.Context, tx pgx.Tx, key string) (int64, error) {
	if s == nil {
		return 0, errors.New("sequences not initialised")
	}
	if key == "" {
		return 0, errors.New("sequence key required")
	}
	var value int64
	err := tx.QueryRow(ctx, `INSERT INTO sequences (key, value) VALUES ($1, 1)
ON CONFLICT (key) DO UPDATE SET value = sequences.value + 1
RETURNING value`, key).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("shared: next sequence %s: %w", key, err)
	}
	return value, nil
}
