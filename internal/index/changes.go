package index

import (
	"context"
	"fmt"

	"readit/internal/store"
)

// ChangeDetector decides whether a file needs to be (re-)indexed.
type ChangeDetector struct {
	store store.Store
}

// NewChangeDetector creates a detector reading from s.
func NewChangeDetector(s store.Store) *ChangeDetector {
	return &ChangeDetector{store: s}
}

// HasChanged reports whether no row records path with this fingerprint.
// New files and modified files are not distinguished.
func (d *ChangeDetector) HasChanged(ctx context.Context, path, fingerprint string) (bool, error) {
	rows, err := d.store.SelectWhere(ctx,
		store.Eq(store.ColFile, path).And(store.ColContentHash, fingerprint),
		[]store.Column{store.ColFile},
		1,
	)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", path, err)
	}
	return len(rows) == 0, nil
}
