package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownColumn is returned for predicates or projections naming a column
// that is not part of the descriptor table.
var ErrUnknownColumn = errors.New("unknown column")

// Column names a descriptor table column.
type Column string

const (
	ColFile        Column = "file"
	ColContentHash Column = "content_hash"
	ColKind        Column = "entity_kind"
	ColLanguage    Column = "language"
	ColName        Column = "name"
	ColPurpose     Column = "purpose"
	ColSource      Column = "source"
	ColContent     Column = "content"
)

// AllColumns is the projection used by All. The derived content column can
// be filtered on but is never projected; callers use Descriptor.Content.
var AllColumns = []Column{ColFile, ColContentHash, ColKind, ColLanguage, ColName, ColPurpose, ColSource}

func (c Column) valid() bool {
	if c == ColContent {
		return true
	}
	for _, k := range AllColumns {
		if c == k {
			return true
		}
	}
	return false
}

// Condition is a single column = value test.
type Condition struct {
	Column Column
	Value  string
}

// Predicate is a conjunction of equality conditions. The empty predicate
// matches every row.
type Predicate []Condition

// Eq starts a predicate with one condition.
func Eq(c Column, value string) Predicate {
	return Predicate{{Column: c, Value: value}}
}

// And returns p extended with another condition.
func (p Predicate) And(c Column, value string) Predicate {
	out := make(Predicate, 0, len(p)+1)
	out = append(out, p...)
	return append(out, Condition{Column: c, Value: value})
}

// sql renders the predicate as a WHERE clause (including the keyword) and
// its bind arguments. Column names are checked against the known set, so they
// are safe to interpolate.
func (p Predicate) sql() (string, []any, error) {
	if len(p) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(p))
	args := make([]any, 0, len(p))
	for _, c := range p {
		if !c.Column.valid() {
			return "", nil, fmt.Errorf("%w: %q", ErrUnknownColumn, c.Column)
		}
		parts = append(parts, string(c.Column)+" = ?")
		args = append(args, c.Value)
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func (p Predicate) String() string {
	if len(p) == 0 {
		return "<all>"
	}
	parts := make([]string, len(p))
	for i, c := range p {
		parts[i] = fmt.Sprintf("%s=%q", c.Column, c.Value)
	}
	return strings.Join(parts, " AND ")
}
