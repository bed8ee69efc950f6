package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"readit/internal/chunker"
	"readit/internal/llm"
	"readit/internal/store"
)

// processFile analyzes one file, embeds every row built from the analysis
// and replaces the file's rows with them in one transaction. A file is never
// left with its fingerprint stored but some of its entities missing.
func (idx *Indexer) processFile(ctx context.Context, job fileJob, c *counters, log *slog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := job.file.Path

	src := job.src
	if src == nil {
		var err error
		if src, err = os.ReadFile(path); err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		job.hash = Fingerprint(src)
	}

	symbols := idx.outline(ctx, path, src, log)
	hints := make([]string, 0, len(symbols))
	for _, s := range symbols {
		hints = append(hints, s.Name)
	}

	analysis, tokens, err := idx.analyzer.Analyze(ctx, string(src), job.file.Language, hints...)
	c.analyzeTokens.Add(int64(tokens))
	if err != nil {
		return fmt.Errorf("analyze %s: %w", path, err)
	}

	rows := buildRecords(job, string(src), analysis, symbols)
	embedTokens := 0
	for i := range rows {
		vec, n, err := idx.embedder.Embed(ctx, rows[i].Content())
		embedTokens += n
		if err != nil {
			c.embedTokens.Add(int64(embedTokens))
			return fmt.Errorf("embed %s/%s: %w", path, rows[i].Name, err)
		}
		rows[i].Embedding = vec
	}
	c.embedTokens.Add(int64(embedTokens))

	if err := idx.store.Replace(ctx, path, rows); err != nil {
		return fmt.Errorf("store %s: %w", path, err)
	}
	c.rows.Add(int64(len(rows)))

	log.Info("indexed file",
		"file", job.file.RelPath,
		"rows", len(rows),
		"analyze_tokens", tokens,
		"embed_tokens", embedTokens,
	)
	return nil
}

// outline returns the file's parsed definitions, or nil when the language
// has no grammar or parsing fails. A failed parse only costs precision.
func (idx *Indexer) outline(ctx context.Context, path string, src []byte, log *slog.Logger) []chunker.Symbol {
	o := idx.config.Outliner
	if o == nil || !o.Supports(path) {
		return nil
	}
	symbols, err := o.Outline(ctx, path, src)
	if err != nil {
		log.Warn("outline failed", "file", path, "error", err)
		return nil
	}
	return symbols
}

// buildRecords turns an analysis into one file row plus one row per class
// and function, all sharing the file's path and fingerprint. An entity the
// parser also found gets the parser's exact source text.
func buildRecords(job fileJob, src string, a llm.Analysis, symbols []chunker.Symbol) []store.Descriptor {
	base := store.Descriptor{
		File:        job.file.Path,
		ContentHash: job.hash,
		Language:    job.file.Language,
	}

	fileRow := base
	fileRow.Kind = store.KindFile
	fileRow.Name = job.file.Path
	fileRow.Purpose = a.Purpose
	fileRow.Source = src
	rows := []store.Descriptor{fileRow}

	add := func(kind store.EntityKind, symKind chunker.SymbolKind, entities []llm.Entity) {
		for _, e := range entities {
			r := base
			r.Kind = kind
			r.Name = e.Name
			r.Purpose = e.Purpose
			r.Source = e.SourceCode
			if s, ok := chunker.Find(symbols, e.Name, symKind); ok {
				r.Source = s.Source
			}
			rows = append(rows, r)
		}
	}
	add(store.KindClass, chunker.SymbolClass, a.Classes)
	add(store.KindFunction, chunker.SymbolFunction, a.Functions)
	return rows
}
