package index

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readit/internal/chunker"
	"readit/internal/chunker/languages"
	"readit/internal/embedder"
	"readit/internal/logger"
	"readit/internal/store"
	"readit/internal/walker"
)

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("package a"))
	assert.Equal(t, a, Fingerprint([]byte("package a")))
	assert.NotEqual(t, a, Fingerprint([]byte("package b")))
	assert.Len(t, a, 64)
	assert.Equal(t, strings.ToLower(a), a)
}

func TestChangeDetector(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := NewChangeDetector(h.store)

	changed, err := d.HasChanged(ctx, "/p/a.go", "h1")
	require.NoError(t, err)
	assert.True(t, changed, "unknown file")

	vec := make([]float32, testDim)
	require.NoError(t, h.store.Insert(ctx, store.Descriptor{
		File: "/p/a.go", ContentHash: "h1", Kind: store.KindFile, Name: "/p/a.go", Embedding: vec,
	}))

	changed, err = d.HasChanged(ctx, "/p/a.go", "h1")
	require.NoError(t, err)
	assert.False(t, changed, "same fingerprint")

	changed, err = d.HasChanged(ctx, "/p/a.go", "h2")
	require.NoError(t, err)
	assert.True(t, changed, "new fingerprint")
}

func TestIndex_FullEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	files := []walker.SourceFile{
		h.write("a.go", "parses command line flags", "ParseFlags"),
		h.write("b.go", "stores vectors in sqlite database tables", "Open", "Insert"),
		h.write("c.go", "renders the terminal user interface"),
	}

	stats, err := h.indexer.Index(ctx, files, Options{Full: true})
	require.NoError(t, err)
	assert.True(t, stats.Full)
	assert.Equal(t, 3, stats.FilesProcessed)
	assert.Equal(t, 3+3, stats.Rows)
	assert.True(t, stats.SummaryUpdated)
	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, 3*5, stats.AnalyzeTokens)
	assert.Positive(t, stats.EmbedTokens)

	all, err := h.store.All(ctx)
	require.NoError(t, err)
	fileRows := 0
	for _, r := range all {
		if r.Kind == store.KindFile && r.File != store.WholeProject {
			fileRows++
		}
	}
	assert.Equal(t, 3, fileRows)

	b := h.rowsOf(files[1].Path)
	require.Len(t, b, 3)
	for _, r := range b {
		assert.Equal(t, Fingerprint(mustRead(t, files[1].Path)), r.ContentHash)
		assert.Equal(t, "Go", r.Language)
	}

	query, _, err := h.client.Embed(ctx, "stores vectors in sqlite database tables")
	require.NoError(t, err)
	hits, err := h.store.NearestNeighbors(ctx, query, 10)
	require.NoError(t, err)

	var texts []string
	for _, hit := range hits {
		texts = append(texts, hit.Text)
	}
	var bFileRow store.Descriptor
	for _, r := range b {
		if r.Kind == store.KindFile {
			bFileRow = r
		}
	}
	assert.Contains(t, texts, bFileRow.Content())
}

func TestIndex_UnchangedRerunWritesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	files := []walker.SourceFile{
		h.write("a.go", "first", "A"),
		h.write("b.go", "second"),
	}

	_, err := h.indexer.Index(ctx, files, Options{})
	require.NoError(t, err)
	writes := h.store.writeCount()
	calls := h.analyzer.callCount()

	stats, err := h.indexer.Index(ctx, files, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FilesChanged)
	assert.Equal(t, 0, stats.FilesProcessed)
	assert.False(t, stats.SummaryUpdated)
	assert.Equal(t, writes, h.store.writeCount())
	assert.Equal(t, calls, h.analyzer.callCount())
	assert.Len(t, h.summarizer.digests, 1)
}

func TestIndex_ChangedFileHasExactlyNewRows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.write("a.go", "old purpose", "Old", "Gone")
	other := h.write("b.go", "other")

	_, err := h.indexer.Index(ctx, []walker.SourceFile{a, other}, Options{})
	require.NoError(t, err)
	require.Len(t, h.rowsOf(a.Path), 3)

	a = h.write("a.go", "new purpose", "Fresh")
	stats, err := h.indexer.Index(ctx, []walker.SourceFile{a, other}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesProcessed)

	rows := h.rowsOf(a.Path)
	require.Len(t, rows, 2)
	names := map[string]bool{}
	for _, r := range rows {
		names[r.Name] = true
		assert.Equal(t, Fingerprint(mustRead(t, a.Path)), r.ContentHash)
	}
	assert.Equal(t, map[string]bool{a.Path: true, "Fresh": true}, names)
	assert.Len(t, h.rowsOf(other.Path), 1)
}

func TestIndex_SummaryIsSingleAndSorted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	files := []walker.SourceFile{
		h.write("zeta.go", "last alphabetically"),
		h.write("alpha.go", "first alphabetically"),
	}

	for i := 0; i < 2; i++ {
		_, err := h.indexer.Index(ctx, files, Options{Full: true})
		require.NoError(t, err)

		summary := h.rowsOf(store.WholeProject)
		require.Len(t, summary, 1)
		assert.Equal(t, store.KindFile, summary[0].Kind)
		assert.Equal(t, store.WholeProject, summary[0].Name)
		assert.Equal(t, "project with 2 files", summary[0].Purpose)
	}

	want := files[1].Path + ": first alphabetically\n" + files[0].Path + ": last alphabetically"
	require.Len(t, h.summarizer.digests, 2)
	assert.Equal(t, want, h.summarizer.digests[1])
}

func TestIndex_Approver(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.write("a.go", "first")
	b := h.write("b.go", "second")

	var offered []walker.SourceFile
	onlyB := ApproverFunc(func(_ context.Context, changed []walker.SourceFile) ([]walker.SourceFile, error) {
		offered = changed
		return []walker.SourceFile{b}, nil
	})

	stats, err := h.indexer.Index(ctx, []walker.SourceFile{a, b}, Options{Approver: onlyB})
	require.NoError(t, err)
	assert.Len(t, offered, 2)
	assert.Equal(t, 2, stats.FilesChanged)
	assert.Equal(t, 1, stats.FilesProcessed)
	assert.Empty(t, h.rowsOf(a.Path))
	assert.Len(t, h.rowsOf(b.Path), 1)

	declineAll := ApproverFunc(func(context.Context, []walker.SourceFile) ([]walker.SourceFile, error) {
		return nil, nil
	})
	stats, err = h.indexer.Index(ctx, []walker.SourceFile{a, b}, Options{Approver: declineAll})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesChanged)
	assert.Equal(t, 0, stats.FilesProcessed)
	assert.Empty(t, h.rowsOf(a.Path))
}

func TestIndex_PrunesRemovedFiles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.write("a.go", "kept")
	b := h.write("b.go", "removed", "B")

	_, err := h.indexer.Index(ctx, []walker.SourceFile{a, b}, Options{})
	require.NoError(t, err)

	stats, err := h.indexer.Index(ctx, []walker.SourceFile{a}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesPruned)
	assert.True(t, stats.SummaryUpdated)
	assert.Empty(t, h.rowsOf(b.Path))
	assert.Len(t, h.rowsOf(store.WholeProject), 1)
	assert.Equal(t, a.Path+": kept", h.summarizer.digests[len(h.summarizer.digests)-1])
}

func TestIndex_ModelChangeForcesFull(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	files := []walker.SourceFile{h.write("a.go", "first")}

	_, err := h.indexer.Index(ctx, files, Options{})
	require.NoError(t, err)

	h.service.model = "bag-v2"
	stats, err := h.indexer.Index(ctx, files, Options{})
	require.NoError(t, err)
	assert.True(t, stats.Full)
	assert.Equal(t, 1, stats.FilesProcessed)

	model, err := h.store.GetMeta(ctx, MetaEmbeddingModel)
	require.NoError(t, err)
	assert.Equal(t, "bag-v2", model)
}

func TestIndex_AbortsOnFatalError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	boom := errors.New("model unavailable")
	h.analyzer.fail = map[string]error{"broken": boom}
	files := []walker.SourceFile{
		h.write("a.go", "fine"),
		h.write("b.go", "broken"),
	}

	stats, err := h.indexer.Index(ctx, files, Options{Full: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), files[1].Path)
	assert.False(t, stats.SummaryUpdated)
	assert.Empty(t, h.summarizer.digests)
	assert.Empty(t, h.rowsOf(store.WholeProject))
}

func TestIndex_OversizedFileIsPooled(t *testing.T) {
	h := newHarness(t)
	h.service.limit = 300
	ctx := context.Background()

	funcs := make([]string, 60)
	for i := range funcs {
		funcs[i] = "Handler" + strings.Repeat("x", i%7) + string(rune('A'+i%26))
	}
	f := h.write("big.go", "a very large file", funcs...)
	require.Greater(t, len(mustRead(t, f.Path)), 300)

	stats, err := h.indexer.Index(ctx, []walker.SourceFile{f}, Options{Full: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesProcessed)

	hits, err := h.store.NearestNeighbors(ctx, bagVector("a very large file", testDim), 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestIndex_OutlinerSuppliesSourceAndHints(t *testing.T) {
	h := newHarness(t)
	h.indexer = New(h.store, h.client, h.analyzer, h.summarizer, Config{
		Workers:  1,
		Logger:   logger.Discard(),
		Outliner: chunker.NewOutliner(languages.Default()),
	})
	ctx := context.Background()
	f := h.write("a.go", "outlined", "Run")

	_, err := h.indexer.Index(ctx, []walker.SourceFile{f}, Options{Full: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Run"}, h.analyzer.hints["outlined"])

	for _, r := range h.rowsOf(f.Path) {
		if r.Name == "Run" {
			assert.Equal(t, "func Run() {}", r.Source)
		}
	}
}

func TestIndex_EmptyTreeSkipsSummary(t *testing.T) {
	h := newHarness(t)
	stats, err := h.indexer.Index(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.False(t, stats.SummaryUpdated)
	assert.Empty(t, h.summarizer.digests)
}

func TestIndex_AbortedFullRunLeavesNoPartialFile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	writeErr := errors.New("disk full")
	f := h.write("a.go", "two funcs", "First", "Second")

	h.store.failFile = f.Path
	h.store.failErr = writeErr
	_, err := h.indexer.Index(ctx, []walker.SourceFile{f}, Options{Full: true})
	require.ErrorIs(t, err, writeErr)
	assert.Empty(t, h.rowsOf(f.Path), "a failed write stores none of the file's rows")

	h.store.failFile = ""
	stats, err := h.indexer.Index(ctx, []walker.SourceFile{f}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesChanged)
	assert.Equal(t, 1, stats.FilesProcessed)
	assert.Len(t, h.rowsOf(f.Path), 3)
}

func TestIndex_SummaryRegeneratedAfterAbortedRun(t *testing.T) {
	h := newHarness(t)
	h.sequential()
	ctx := context.Background()
	boom := errors.New("model unavailable")

	a := h.write("a.go", "alpha v1")
	b := h.write("b.go", "beta v1")
	_, err := h.indexer.Index(ctx, []walker.SourceFile{a, b}, Options{})
	require.NoError(t, err)

	// a is replaced, then b fails and the run stops before the summary.
	h.analyzer.fail = map[string]error{"beta broken": boom}
	a = h.write("a.go", "alpha v2")
	b = h.write("b.go", "beta broken")
	_, err = h.indexer.Index(ctx, []walker.SourceFile{a, b}, Options{})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "alpha v2", h.rowsOf(a.Path)[0].Purpose)

	b = h.write("b.go", "beta v1")
	stats, err := h.indexer.Index(ctx, []walker.SourceFile{a, b}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FilesProcessed)
	assert.True(t, stats.SummaryUpdated)
	assert.Contains(t, h.summarizer.digests[len(h.summarizer.digests)-1], a.Path+": alpha v2")

	stale, err := h.store.GetMeta(ctx, MetaSummaryStale)
	require.NoError(t, err)
	assert.Empty(t, stale)

	stats, err = h.indexer.Index(ctx, []walker.SourceFile{a, b}, Options{})
	require.NoError(t, err)
	assert.False(t, stats.SummaryUpdated)
}

func TestIndex_FailedApprovalWritesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.write("a.go", "kept")
	b := h.write("b.go", "removed", "B")
	_, err := h.indexer.Index(ctx, []walker.SourceFile{a, b}, Options{})
	require.NoError(t, err)
	writes := h.store.writeCount()

	cancelled := ApproverFunc(func(ctx context.Context, _ []walker.SourceFile) ([]walker.SourceFile, error) {
		return nil, context.Canceled
	})
	a = h.write("a.go", "kept but edited")
	_, err = h.indexer.Index(ctx, []walker.SourceFile{a}, Options{Approver: cancelled})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, writes, h.store.writeCount())
	assert.NotEmpty(t, h.rowsOf(b.Path), "removed files are pruned only after approval")
}

func TestDigest(t *testing.T) {
	rows := []store.Descriptor{
		{File: "/p/b.go", Kind: store.KindFile, Purpose: "bee"},
		{File: "/p/b.go", Kind: store.KindFunction, Name: "F", Purpose: "ignored"},
		{File: store.WholeProject, Kind: store.KindFile, Purpose: "old summary"},
		{File: "/p/a.go", Kind: store.KindFile, Purpose: "ay"},
	}
	assert.Equal(t, "/p/a.go: ay\n/p/b.go: bee", Digest(rows))
	assert.Empty(t, Digest(nil))
}

func TestBuildRecords(t *testing.T) {
	job := fileJob{file: walker.SourceFile{Path: "/p/a.go", Language: "Go"}, hash: "h"}
	a := llmAnalysis("reads config", []string{"Config"}, []string{"Load"})
	symbols := []chunker.Symbol{{Name: "Load", Kind: chunker.SymbolFunction, Source: "func Load() error { return nil }"}}

	rows := buildRecords(job, "package a", a, symbols)
	require.Len(t, rows, 3)
	assert.Equal(t, store.KindFile, rows[0].Kind)
	assert.Equal(t, "/p/a.go", rows[0].Name)
	assert.Equal(t, "package a", rows[0].Source)
	assert.Equal(t, store.KindClass, rows[1].Kind)
	assert.Equal(t, "src of Config", rows[1].Source)
	assert.Equal(t, store.KindFunction, rows[2].Kind)
	assert.Equal(t, "func Load() error { return nil }", rows[2].Source)
	for _, r := range rows {
		assert.Equal(t, "h", r.ContentHash)
		assert.Equal(t, "/p/a.go", r.File)
	}
}

func TestClientInterfaceFits(t *testing.T) {
	var _ Embedder = (*embedder.Client)(nil)
}
