// Package rag answers questions about an indexed codebase: it retrieves the
// descriptors nearest to a question and has the chat model answer from them.
package rag

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"readit/internal/store"
)

// DefaultK is the number of descriptors retrieved per question.
const DefaultK = 10

// DefaultCacheSize bounds the query-embedding cache.
const DefaultCacheSize = 256

// Embedder turns one text into a vector of the store's width.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, int, error)
}

// Responder streams an answer grounded on retrieved texts.
type Responder interface {
	Respond(ctx context.Context, query string, texts []string, w io.Writer) (int, error)
}

// Usage reports the tokens one question cost.
type Usage struct {
	EmbedTokens int
	ChatTokens  int
}

// Total is the sum of all token counts.
func (u Usage) Total() int { return u.EmbedTokens + u.ChatTokens }

// Config tunes an Engine.
type Config struct {
	K         int
	CacheSize int
	Logger    *slog.Logger
}

// Engine runs retrieval against a store.
type Engine struct {
	store     store.Store
	embedder  Embedder
	responder Responder
	k         int
	cache     *lru.Cache[[32]byte, []float32]
	log       *slog.Logger
}

// New creates an Engine. responder may be nil when only search is needed.
func New(s store.Store, emb Embedder, responder Responder, cfg Config) (*Engine, error) {
	if cfg.K <= 0 {
		cfg.K = DefaultK
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	cache, err := lru.New[[32]byte, []float32](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:     s,
		embedder:  emb,
		responder: responder,
		k:         cfg.K,
		cache:     cache,
		log:       log,
	}, nil
}

// embedQuery returns the query's vector, from the cache when possible.
func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, int, error) {
	key := sha256.Sum256([]byte(query))
	if vec, ok := e.cache.Get(key); ok {
		return vec, 0, nil
	}
	vec, tokens, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("embed query: %w", err)
	}
	e.cache.Add(key, vec)
	return vec, tokens, nil
}

// SearchHits returns the k descriptors nearest to query, nearest first, and
// the tokens spent embedding the query.
func (e *Engine) SearchHits(ctx context.Context, query string) ([]store.Hit, int, error) {
	vec, tokens, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	hits, err := e.store.NearestNeighbors(ctx, vec, e.k)
	if err != nil {
		return nil, tokens, fmt.Errorf("vector search: %w", err)
	}
	e.log.Debug("search", "query_chars", len(query), "hits", len(hits))
	return hits, tokens, nil
}

// Search returns the stored content of the k descriptors nearest to query.
func (e *Engine) Search(ctx context.Context, query string) ([]string, int, error) {
	hits, tokens, err := e.SearchHits(ctx, query)
	if err != nil {
		return nil, tokens, err
	}
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return texts, tokens, nil
}

// Ask retrieves context for query and streams the model's answer to w.
func (e *Engine) Ask(ctx context.Context, query string, w io.Writer) (Usage, error) {
	if e.responder == nil {
		return Usage{}, fmt.Errorf("engine has no responder")
	}
	texts, tokens, err := e.Search(ctx, query)
	usage := Usage{EmbedTokens: tokens}
	if err != nil {
		return usage, err
	}
	n, err := e.responder.Respond(ctx, query, texts, w)
	usage.ChatTokens = n
	if err != nil {
		return usage, fmt.Errorf("answer: %w", err)
	}
	return usage, nil
}

// Summary returns the stored project summary, if any.
func (e *Engine) Summary(ctx context.Context) (string, bool, error) {
	rows, err := e.store.SelectWhere(ctx, store.Eq(store.ColFile, store.WholeProject), []store.Column{store.ColPurpose}, 1)
	if err != nil {
		return "", false, err
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[0].Purpose, true, nil
}

// Describe returns every descriptor of one file, the file row first.
func (e *Engine) Describe(ctx context.Context, path string) ([]store.Descriptor, error) {
	rows, err := e.store.SelectWhere(ctx, store.Eq(store.ColFile, path), nil, 0)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Kind == store.KindFile && rows[j].Kind != store.KindFile
	})
	return rows, nil
}

// Files lists the indexed files with their purposes, sorted by path.
func (e *Engine) Files(ctx context.Context) ([]store.Descriptor, error) {
	rows, err := e.store.SelectWhere(ctx,
		store.Eq(store.ColKind, string(store.KindFile)),
		[]store.Column{store.ColFile, store.ColLanguage, store.ColPurpose},
		0,
	)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, r := range rows {
		if r.File != store.WholeProject {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out, nil
}
