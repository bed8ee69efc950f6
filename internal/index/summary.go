package index

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"readit/internal/store"
)

// summaryNeeded reports whether the project summary is stale: files were
// processed or pruned by this run or by an earlier one that did not finish,
// or no summary exists yet.
func (idx *Indexer) summaryNeeded(ctx context.Context, stats *Stats) (bool, error) {
	if stats.FilesProcessed > 0 || stats.FilesPruned > 0 {
		return true, nil
	}
	stale, err := idx.store.GetMeta(ctx, MetaSummaryStale)
	if err != nil {
		return false, fmt.Errorf("get meta: %w", err)
	}
	if stale == "1" {
		return true, nil
	}
	rows, err := idx.store.SelectWhere(ctx, store.Eq(store.ColFile, store.WholeProject), []store.Column{store.ColFile}, 1)
	if err != nil {
		return false, fmt.Errorf("check project summary: %w", err)
	}
	return len(rows) == 0, nil
}

// Digest joins the file-kind purposes of rows into "path: purpose" lines
// sorted by path. The project summary row itself is excluded.
func Digest(rows []store.Descriptor) string {
	purposes := make(map[string]string)
	for _, r := range rows {
		if r.Kind != store.KindFile || r.File == store.WholeProject {
			continue
		}
		purposes[r.File] = r.Purpose
	}
	paths := make([]string, 0, len(purposes))
	for p := range purposes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for i, p := range paths {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", p, purposes[p])
	}
	return b.String()
}

// RegenerateSummary replaces the project summary row with a fresh summary
// of every indexed file. It reports whether a summary was written; nothing
// is written when no file is indexed.
func (idx *Indexer) RegenerateSummary(ctx context.Context) (int, bool, error) {
	if _, err := idx.store.DeleteWhere(ctx, store.Eq(store.ColFile, store.WholeProject)); err != nil {
		return 0, false, fmt.Errorf("delete project summary: %w", err)
	}
	rows, err := idx.store.All(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("read descriptors: %w", err)
	}
	digest := Digest(rows)
	if digest == "" {
		idx.log.Info("no indexed files, skipping project summary")
		return 0, false, idx.clearSummaryStale(ctx)
	}

	summary, tokens, err := idx.summarizer.Summarize(ctx, digest)
	if err != nil {
		return tokens, false, fmt.Errorf("summarize project: %w", err)
	}

	d := store.Descriptor{
		File:    store.WholeProject,
		Kind:    store.KindFile,
		Name:    store.WholeProject,
		Purpose: summary,
	}
	vec, n, err := idx.embedder.Embed(ctx, d.Content())
	tokens += n
	if err != nil {
		return tokens, false, fmt.Errorf("embed project summary: %w", err)
	}
	d.Embedding = vec
	if err := idx.store.Insert(ctx, d); err != nil {
		return tokens, false, fmt.Errorf("store project summary: %w", err)
	}
	return tokens, true, idx.clearSummaryStale(ctx)
}

func (idx *Indexer) clearSummaryStale(ctx context.Context) error {
	if err := idx.store.SetMeta(ctx, MetaSummaryStale, ""); err != nil {
		return fmt.Errorf("set meta: %w", err)
	}
	return nil
}
