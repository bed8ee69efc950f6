package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

var (
	// ErrDimensionMismatch is returned when an embedding is not exactly D wide.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrInvalidRecord is returned for descriptors missing a file, name or valid kind.
	ErrInvalidRecord = errors.New("invalid descriptor")
	// ErrCorruptRow is returned when a stored row cannot be read back.
	ErrCorruptRow = errors.New("corrupt descriptor row")
)

// Store persists descriptors and their embeddings.
type Store interface {
	// Insert appends one descriptor row.
	Insert(ctx context.Context, d Descriptor) error
	// DeleteWhere removes every row matching p and returns how many were removed.
	// The empty predicate removes everything.
	DeleteWhere(ctx context.Context, p Predicate) (int64, error)
	// SelectWhere reads rows matching p. Only the requested columns are
	// populated; limit <= 0 means unbounded.
	SelectWhere(ctx context.Context, p Predicate, cols []Column, limit int) ([]Descriptor, error)
	// NearestNeighbors returns up to k rows closest to vec, nearest first.
	NearestNeighbors(ctx context.Context, vec []float32, k int) ([]Hit, error)
	// All returns every row without embeddings.
	All(ctx context.Context) ([]Descriptor, error)
	// Replace deletes every row of file and inserts ds in their place.
	Replace(ctx context.Context, file string, ds []Descriptor) error
	// GetMeta returns a metadata value by key, or "" if not set.
	GetMeta(ctx context.Context, key string) (string, error)
	// SetMeta sets a metadata key-value pair.
	SetMeta(ctx context.Context, key, value string) error
	// Dim is the embedding width every row must have.
	Dim() int
	Close() error
}

// SQLiteStore implements Store backed by SQLite + sqlite-vec.
type SQLiteStore struct {
	db  *sql.DB
	dim int
	// mu serializes writers; a single connection serializes the rest.
	mu sync.Mutex
}

var _ Store = (*SQLiteStore)(nil)

// Open creates or opens a SQLite database at the given path and initializes
// the schema for embeddings of width dim.
func Open(dbPath string, dim int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := Init(db, dim); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db, dim: dim}, nil
}

func (s *SQLiteStore) Dim() int { return s.dim }

func (s *SQLiteStore) validate(d Descriptor) error {
	if d.File == "" || d.Name == "" || !d.Kind.Valid() {
		return fmt.Errorf("%w: file=%q name=%q kind=%q", ErrInvalidRecord, d.File, d.Name, d.Kind)
	}
	if len(d.Embedding) != s.dim {
		return fmt.Errorf("%w: %s/%s has %d components, want %d", ErrDimensionMismatch, d.File, d.Name, len(d.Embedding), s.dim)
	}
	return nil
}

func (s *SQLiteStore) Insert(ctx context.Context, d Descriptor) error {
	if err := s.validate(d); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertTx(ctx, tx, d); err != nil {
		return err
	}
	return tx.Commit()
}

func insertTx(ctx context.Context, tx *sql.Tx, d Descriptor) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO descriptors (file, content_hash, entity_kind, language, name, purpose, source, content)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.File, d.ContentHash, string(d.Kind), d.Language, d.Name, d.Purpose, d.Source, d.Content(),
	)
	if err != nil {
		return fmt.Errorf("insert descriptor %s/%s: %w", d.File, d.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	blob, err := sqlite_vec.SerializeFloat32(d.Embedding)
	if err != nil {
		return fmt.Errorf("serialize embedding for %s/%s: %w", d.File, d.Name, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO vec_descriptors (descriptor_id, embedding) VALUES (?, ?)", id, blob); err != nil {
		return fmt.Errorf("insert embedding for %s/%s: %w", d.File, d.Name, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteWhere(ctx context.Context, p Predicate) (int64, error) {
	where, args, err := p.sql()
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	n, err := deleteTx(ctx, tx, where, args)
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func deleteTx(ctx context.Context, tx *sql.Tx, where string, args []any) (int64, error) {
	rows, err := tx.QueryContext(ctx, "SELECT id FROM descriptors"+where, args...)
	if err != nil {
		return 0, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("%w: %v", ErrCorruptRow, err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM vec_descriptors WHERE descriptor_id = ?", id); err != nil {
			return 0, err
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM descriptors"+where, args...); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

func (s *SQLiteStore) Replace(ctx context.Context, file string, ds []Descriptor) error {
	for _, d := range ds {
		if d.File != file {
			return fmt.Errorf("%w: row %q belongs to %q, not %q", ErrInvalidRecord, d.Name, d.File, file)
		}
		if err := s.validate(d); err != nil {
			return err
		}
	}
	where, args, err := Eq(ColFile, file).sql()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := deleteTx(ctx, tx, where, args); err != nil {
		return fmt.Errorf("delete rows of %s: %w", file, err)
	}
	for _, d := range ds {
		if err := insertTx(ctx, tx, d); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) SelectWhere(ctx context.Context, p Predicate, cols []Column, limit int) ([]Descriptor, error) {
	if len(cols) == 0 {
		cols = AllColumns
	}
	names := make([]string, 0, len(cols)+1)
	names = append(names, "id")
	for _, c := range cols {
		if c == ColContent || !c.valid() {
			return nil, fmt.Errorf("%w: cannot select %q", ErrUnknownColumn, c)
		}
		names = append(names, string(c))
	}
	where, args, err := p.sql()
	if err != nil {
		return nil, err
	}

	q := "SELECT " + strings.Join(names, ", ") + " FROM descriptors" + where + " ORDER BY id"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Descriptor
	for rows.Next() {
		d, err := scanProjection(rows, cols)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanProjection(rows *sql.Rows, cols []Column) (Descriptor, error) {
	var d Descriptor
	vals := make([]string, len(cols))
	dest := make([]any, 0, len(cols)+1)
	dest = append(dest, &d.ID)
	for i := range vals {
		dest = append(dest, &vals[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return d, fmt.Errorf("%w: %v", ErrCorruptRow, err)
	}
	for i, c := range cols {
		switch c {
		case ColFile:
			d.File = vals[i]
		case ColContentHash:
			d.ContentHash = vals[i]
		case ColKind:
			d.Kind = EntityKind(vals[i])
			if !d.Kind.Valid() {
				return d, fmt.Errorf("%w: row %d has kind %q", ErrCorruptRow, d.ID, vals[i])
			}
		case ColLanguage:
			d.Language = vals[i]
		case ColName:
			d.Name = vals[i]
		case ColPurpose:
			d.Purpose = vals[i]
		case ColSource:
			d.Source = vals[i]
		}
	}
	return d, nil
}

func (s *SQLiteStore) All(ctx context.Context) ([]Descriptor, error) {
	return s.SelectWhere(ctx, nil, AllColumns, 0)
}

func (s *SQLiteStore) NearestNeighbors(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	if len(vec) != s.dim {
		return nil, fmt.Errorf("%w: query has %d components, want %d", ErrDimensionMismatch, len(vec), s.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return nil, fmt.Errorf("serialize query embedding: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		WITH knn AS (
			SELECT descriptor_id, distance
			FROM vec_descriptors
			WHERE embedding MATCH ? AND k = ?
		)
		SELECT d.id, d.file, d.content_hash, d.entity_kind, d.language, d.name, d.purpose, d.source, d.content,
		       knn.distance
		FROM knn
		JOIN descriptors d ON d.id = knn.descriptor_id
		ORDER BY knn.distance
	`, blob, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Hit
	for rows.Next() {
		var h Hit
		var kind string
		err := rows.Scan(
			&h.ID, &h.File, &h.ContentHash, &kind, &h.Language, &h.Name, &h.Purpose, &h.Source, &h.Text,
			&h.Distance,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptRow, err)
		}
		h.Kind = EntityKind(kind)
		results = append(results, h)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
