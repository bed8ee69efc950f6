package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"readit/internal/chunker"
	"readit/internal/chunker/languages"
	"readit/internal/config"
	"readit/internal/embedder"
	"readit/internal/index"
	"readit/internal/llm"
	"readit/internal/logger"
	"readit/internal/rag"
	"readit/internal/store"
	"readit/internal/walker"
)

// DataDir is the per-project directory holding the index and logs.
const DataDir = ".readit"

// app wires the components every command shares.
type app struct {
	cfg      config.Config
	root     string
	log      *slog.Logger
	logFile  *os.File
	store    *store.SQLiteStore
	embedder *embedder.Client
	llm      *llm.Service
}

// newApp loads configuration for the project at --path and opens its index.
// When logToFile is set, logs go to <project>/.readit/readit.log instead of
// stderr so they do not tear the TUI.
func newApp(logToFile bool) (*app, error) {
	root, err := filepath.Abs(flagPath)
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	cfg, err := config.Load(flagConfig, root)
	if err != nil {
		return nil, err
	}
	if flagProvider != "" {
		cfg.Provider = flagProvider
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dataDir := filepath.Join(root, DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	a := &app{cfg: cfg, root: root}
	var out io.Writer = os.Stderr
	if logToFile {
		f, err := os.OpenFile(filepath.Join(dataDir, "readit.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		a.logFile = f
		out = f
	}
	a.log = logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: out})

	dbPath := flagDB
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "index.db")
	}
	a.store, err = store.Open(dbPath, cfg.Dim)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open index: %w", err)
	}

	embSvc, analyse, chat := providers(cfg)
	a.embedder = embedder.NewClient(embSvc, cfg.Dim, cfg.ChunkChars, a.log)
	a.llm = llm.NewService(analyse, chat, cfg.Language, a.log)
	a.log.Debug("app ready", "root", root, "db", dbPath, "provider", cfg.Provider, "dim", cfg.Dim)
	return a, nil
}

// providers builds the embedding service and the analysis and chat models.
func providers(cfg config.Config) (embedder.Service, llm.ChatModel, llm.ChatModel) {
	if cfg.Provider == config.ProviderOllama {
		return embedder.NewOllamaService(cfg.OllamaURL, cfg.EmbeddingModel),
			llm.NewOllamaChat(cfg.OllamaURL, cfg.AnalyseModel),
			llm.NewOllamaChat(cfg.OllamaURL, cfg.ChatModel)
	}
	return embedder.NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIBase, cfg.EmbeddingModel),
		llm.NewOpenAIChat(cfg.OpenAIKey, cfg.OpenAIBase, cfg.AnalyseModel),
		llm.NewOpenAIChat(cfg.OpenAIKey, cfg.OpenAIBase, cfg.ChatModel)
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

func (a *app) indexer(onProgress index.ProgressFunc) *index.Indexer {
	return index.New(a.store, a.embedder, a.llm, a.llm, index.Config{
		Workers:    a.cfg.Workers,
		Logger:     a.log,
		OnProgress: onProgress,
		Outliner:   chunker.NewOutliner(languages.Default()),
	})
}

func (a *app) engine() (*rag.Engine, error) {
	return rag.New(a.store, a.embedder, a.llm, rag.Config{K: a.cfg.SearchK, Logger: a.log})
}

// runIndex enumerates the project and runs one indexing pass over it.
func (a *app) runIndex(ctx context.Context, full bool, approver index.Approver, onProgress index.ProgressFunc) (*index.Stats, error) {
	files, err := walker.List(a.root, walker.Options{})
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	a.log.Info("files enumerated", "root", a.root, "files", len(files))
	return a.indexer(onProgress).Index(ctx, files, index.Options{Full: full, Approver: approver})
}
