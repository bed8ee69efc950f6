package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// DefaultChunkChars is the character ceiling for one fallback chunk.
const DefaultChunkChars = 8192

// Client embeds single texts into vectors of exactly Dim components.
type Client struct {
	svc        Service
	dim        int
	chunkChars int
	log        *slog.Logger
}

// NewClient wraps svc. chunkChars <= 0 selects DefaultChunkChars.
func NewClient(svc Service, dim, chunkChars int, log *slog.Logger) *Client {
	if chunkChars <= 0 {
		chunkChars = DefaultChunkChars
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{svc: svc, dim: dim, chunkChars: chunkChars, log: log}
}

// Dim returns the vector width every Embed result has.
func (c *Client) Dim() int { return c.dim }

// Model returns the underlying service's model name.
func (c *Client) Model() string { return c.svc.Model() }

// Embed returns the embedding of text and the tokens spent on it. If the
// service rejects text as too long, text is split on line boundaries, each
// chunk is embedded separately and the concatenated vectors are average
// pooled back to Dim components.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, int, error) {
	vec, tokens, err := c.embedOne(ctx, text)
	if err == nil {
		return vec, tokens, nil
	}
	if !errors.Is(err, ErrContextTooLong) {
		return nil, 0, err
	}

	chunks := splitText(text, c.chunkChars)
	c.log.Debug("embedding input too long, pooling chunks", "chars", len(text), "chunks", len(chunks))

	buf := make([]float32, 0, c.dim*len(chunks))
	total := 0
	for i, chunk := range chunks {
		v, n, err := c.embedOne(ctx, chunk)
		if err != nil {
			return nil, 0, fmt.Errorf("embed chunk %d/%d: %w", i+1, len(chunks), err)
		}
		buf = append(buf, v...)
		total += n
	}

	pooled, err := AveragePool(buf, c.dim)
	if err != nil {
		return nil, 0, err
	}
	if len(pooled) != c.dim {
		return nil, 0, fmt.Errorf("pooled embedding has %d components, want %d", len(pooled), c.dim)
	}
	return pooled, total, nil
}

func (c *Client) embedOne(ctx context.Context, text string) ([]float32, int, error) {
	vecs, tokens, err := c.svc.Embed(ctx, []string{text}, c.dim)
	if err != nil {
		return nil, 0, err
	}
	if len(vecs) != 1 {
		return nil, 0, fmt.Errorf("expected 1 embedding, got %d", len(vecs))
	}
	if len(vecs[0]) != c.dim {
		return nil, 0, fmt.Errorf("embedding has %d components, want %d", len(vecs[0]), c.dim)
	}
	return vecs[0], tokens, nil
}

// splitText packs whole lines into chunks while the accumulated character
// count stays under limit. A single line of limit characters or more is cut
// into pieces of limit-1 runes, so every chunk is strictly shorter than limit.
func splitText(text string, limit int) []string {
	var chunks []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		n := utf8.RuneCountInString(line)
		if n >= limit {
			flush()
			chunks = append(chunks, cutRunes(line, max(limit-1, 1))...)
			continue
		}
		if curLen+n >= limit {
			flush()
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return chunks
}

func cutRunes(s string, size int) []string {
	var out []string
	runes := []rune(s)
	for len(runes) > 0 {
		end := min(size, len(runes))
		out = append(out, string(runes[:end]))
		runes = runes[end:]
	}
	return out
}
