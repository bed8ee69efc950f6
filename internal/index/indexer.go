// Package index keeps the descriptor store in step with a source tree. It
// finds changed files, has each one analyzed and embedded concurrently, and
// regenerates the project summary once every file is done.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"readit/internal/chunker"
	"readit/internal/llm"
	"readit/internal/store"
	"readit/internal/walker"
)

const (
	// MetaEmbeddingModel records which model produced the stored vectors.
	MetaEmbeddingModel = "embedding_model"
	// MetaSummaryStale is "1" while descriptor changes are not yet reflected
	// in the project summary.
	MetaSummaryStale = "summary_stale"
)

// Embedder turns one text into a vector of the store's width.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, int, error)
	Model() string
}

// Analyzer describes a source file.
type Analyzer interface {
	Analyze(ctx context.Context, code, language string, hints ...string) (llm.Analysis, int, error)
}

// Summarizer condenses the per-file digest into a project summary.
type Summarizer interface {
	Summarize(ctx context.Context, digest string) (string, int, error)
}

// Approver is asked once per incremental run which changed files may be
// processed. Returning an empty slice processes nothing.
type Approver interface {
	Approve(ctx context.Context, changed []walker.SourceFile) ([]walker.SourceFile, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, changed []walker.SourceFile) ([]walker.SourceFile, error)

func (f ApproverFunc) Approve(ctx context.Context, changed []walker.SourceFile) ([]walker.SourceFile, error) {
	return f(ctx, changed)
}

// ApproveAll approves every changed file.
var ApproveAll = ApproverFunc(func(_ context.Context, changed []walker.SourceFile) ([]walker.SourceFile, error) {
	return changed, nil
})

// ProgressFunc receives the current phase and how many of total files are
// done in it.
type ProgressFunc func(phase string, processed, total int)

// Config holds the indexer configuration.
type Config struct {
	// Workers bounds concurrent file jobs. Zero selects runtime.NumCPU().
	Workers    int
	Logger     *slog.Logger
	OnProgress ProgressFunc
	// Outliner, when set, supplies exact entity source for known languages.
	Outliner *chunker.Outliner
}

// Options selects the mode of one Index run.
type Options struct {
	// Full wipes the store and processes every file.
	Full bool
	// Approver gates incremental runs. Nil approves everything.
	Approver Approver
}

// Stats reports indexing results.
type Stats struct {
	RunID          string
	Full           bool
	FilesTotal     int
	FilesChanged   int
	FilesProcessed int
	FilesSkipped   int
	FilesPruned    int
	Rows           int
	AnalyzeTokens  int
	EmbedTokens    int
	SummaryTokens  int
	SummaryUpdated bool
}

// Tokens is the total spent on external calls during the run.
func (s *Stats) Tokens() int { return s.AnalyzeTokens + s.EmbedTokens + s.SummaryTokens }

type counters struct {
	processed     atomic.Int64
	rows          atomic.Int64
	analyzeTokens atomic.Int64
	embedTokens   atomic.Int64
}

// Indexer is the public API for indexing a codebase into a store.
type Indexer struct {
	store      store.Store
	embedder   Embedder
	analyzer   Analyzer
	summarizer Summarizer
	detector   *ChangeDetector
	config     Config
	log        *slog.Logger
}

// New creates an Indexer.
func New(s store.Store, emb Embedder, an Analyzer, sum Summarizer, cfg Config) *Indexer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{
		store:      s,
		embedder:   emb,
		analyzer:   an,
		summarizer: sum,
		detector:   NewChangeDetector(s),
		config:     cfg,
		log:        log,
	}
}

// fileJob is a file that needs to be (re-)indexed.
type fileJob struct {
	file walker.SourceFile
	hash string
	src  []byte
}

// Index brings the store up to date with files. The first fatal error from
// any file job cancels the others and is returned once they have stopped;
// rows already written stay in the store. Nothing is written before the
// approver has answered.
func (idx *Indexer) Index(ctx context.Context, files []walker.SourceFile, opts Options) (*Stats, error) {
	stats := &Stats{RunID: uuid.NewString(), Full: opts.Full, FilesTotal: len(files)}
	log := idx.log.With("run_id", stats.RunID)

	lastModel, err := idx.store.GetMeta(ctx, MetaEmbeddingModel)
	if err != nil {
		return stats, fmt.Errorf("get meta: %w", err)
	}
	if lastModel != "" && lastModel != idx.embedder.Model() && !stats.Full {
		log.Info("embedding model changed, re-indexing all files", "from", lastModel, "to", idx.embedder.Model())
		stats.Full = true
	}

	var jobs []fileJob
	var removed []string
	if stats.Full {
		for _, f := range files {
			jobs = append(jobs, fileJob{file: f})
		}
		stats.FilesChanged = len(files)
	} else {
		jobs, err = idx.changedFiles(ctx, files)
		if err != nil {
			return stats, err
		}
		stats.FilesChanged = len(jobs)

		if len(jobs) > 0 {
			jobs, err = idx.approve(ctx, jobs, opts.Approver)
			if err != nil {
				return stats, err
			}
		}
		if removed, err = idx.removedFiles(ctx, files); err != nil {
			return stats, err
		}
	}
	log.Info("indexing", "full", stats.Full, "files", len(files), "changed", stats.FilesChanged, "approved", len(jobs), "removed", len(removed))

	// The flag outlives an aborted run so the next run regenerates the
	// summary even when it finds nothing left to do.
	if stats.Full || len(jobs) > 0 || len(removed) > 0 {
		if err := idx.store.SetMeta(ctx, MetaSummaryStale, "1"); err != nil {
			return stats, fmt.Errorf("set meta: %w", err)
		}
	}

	if stats.Full {
		if _, err := idx.store.DeleteWhere(ctx, nil); err != nil {
			return stats, fmt.Errorf("wipe store: %w", err)
		}
	}
	pruned, err := idx.prune(ctx, removed, log)
	stats.FilesPruned = pruned
	if err != nil {
		return stats, err
	}

	var c counters
	err = idx.runJobs(ctx, jobs, &c, log)
	stats.FilesProcessed = int(c.processed.Load())
	stats.FilesSkipped = stats.FilesTotal - stats.FilesProcessed
	stats.Rows = int(c.rows.Load())
	stats.AnalyzeTokens = int(c.analyzeTokens.Load())
	stats.EmbedTokens = int(c.embedTokens.Load())
	if err != nil {
		return stats, err
	}

	if err := idx.store.SetMeta(ctx, MetaEmbeddingModel, idx.embedder.Model()); err != nil {
		return stats, fmt.Errorf("set meta: %w", err)
	}

	need, err := idx.summaryNeeded(ctx, stats)
	if err != nil {
		return stats, err
	}
	if need {
		idx.progress("Summarizing project...", 0, 1)
		tokens, updated, err := idx.RegenerateSummary(ctx)
		stats.SummaryTokens = tokens
		stats.SummaryUpdated = updated
		if err != nil {
			return stats, err
		}
		idx.progress("Summarizing project...", 1, 1)
	}

	log.Info("indexing done",
		"processed", stats.FilesProcessed,
		"pruned", stats.FilesPruned,
		"rows", stats.Rows,
		"summary", stats.SummaryUpdated,
		"tokens", stats.Tokens(),
	)
	return stats, nil
}

// changedFiles fingerprints every file and keeps those the detector flags.
func (idx *Indexer) changedFiles(ctx context.Context, files []walker.SourceFile) ([]fileJob, error) {
	var jobs []fileJob
	for i, f := range files {
		idx.progress("Checking for changes...", i, len(files))
		src, err := os.ReadFile(f.Path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Path, err)
		}
		hash := Fingerprint(src)
		changed, err := idx.detector.HasChanged(ctx, f.Path, hash)
		if err != nil {
			return nil, err
		}
		if changed {
			jobs = append(jobs, fileJob{file: f, hash: hash, src: src})
		}
	}
	idx.progress("Checking for changes...", len(files), len(files))
	return jobs, nil
}

// removedFiles lists indexed files that are no longer part of the tree.
func (idx *Indexer) removedFiles(ctx context.Context, files []walker.SourceFile) ([]string, error) {
	rows, err := idx.store.SelectWhere(ctx, store.Eq(store.ColKind, string(store.KindFile)), []store.Column{store.ColFile}, 0)
	if err != nil {
		return nil, fmt.Errorf("list indexed files: %w", err)
	}
	current := make(map[string]bool, len(files))
	for _, f := range files {
		current[f.Path] = true
	}

	var removed []string
	for _, r := range rows {
		if r.File == store.WholeProject || current[r.File] {
			continue
		}
		current[r.File] = true
		removed = append(removed, r.File)
	}
	return removed, nil
}

// prune deletes every row of the removed files.
func (idx *Indexer) prune(ctx context.Context, removed []string, log *slog.Logger) (int, error) {
	pruned := 0
	for _, file := range removed {
		if _, err := idx.store.DeleteWhere(ctx, store.Eq(store.ColFile, file)); err != nil {
			return pruned, fmt.Errorf("prune %s: %w", file, err)
		}
		log.Info("pruned file no longer in tree", "file", file)
		pruned++
	}
	return pruned, nil
}

func (idx *Indexer) approve(ctx context.Context, jobs []fileJob, approver Approver) ([]fileJob, error) {
	if approver == nil {
		return jobs, nil
	}
	changed := make([]walker.SourceFile, len(jobs))
	for i, j := range jobs {
		changed[i] = j.file
	}
	approved, err := approver.Approve(ctx, changed)
	if err != nil {
		return nil, fmt.Errorf("approve changed files: %w", err)
	}
	ok := make(map[string]bool, len(approved))
	for _, f := range approved {
		ok[f.Path] = true
	}
	var out []fileJob
	for _, j := range jobs {
		if ok[j.file.Path] {
			out = append(out, j)
		}
	}
	return out, nil
}

// runJobs fans the jobs out and waits for all of them.
func (idx *Indexer) runJobs(ctx context.Context, jobs []fileJob, c *counters, log *slog.Logger) error {
	if len(jobs) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.config.Workers)

	total := len(jobs)
	idx.progress("Indexing files...", 0, total)
	for _, job := range jobs {
		g.Go(func() error {
			if err := idx.processFile(gctx, job, c, log); err != nil {
				return err
			}
			done := int(c.processed.Add(1))
			idx.progress("Indexing files...", done, total)
			return nil
		})
	}
	return g.Wait()
}

func (idx *Indexer) progress(phase string, processed, total int) {
	if idx.config.OnProgress != nil {
		idx.config.OnProgress(phase, processed, total)
	}
}
