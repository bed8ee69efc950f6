package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider names accepted in the config file.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

const (
	DefaultDim        = 1024
	DefaultChunkChars = 8192
	DefaultSearchK    = 10
)

var (
	// ErrAPIKeyNotSet is returned by Validate when the openai provider has no key.
	ErrAPIKeyNotSet = errors.New("openai key not set: export OPENAI_KEY or set openai_key in ~/.readit/config.yaml")
	// ErrInvalidConfig wraps every other validation failure.
	ErrInvalidConfig = errors.New("invalid config")
)

// Config is the process-wide configuration. It is built once by Load and
// passed by value into every component constructor.
type Config struct {
	Provider       string `yaml:"provider"`
	OpenAIKey      string `yaml:"openai_key"`
	OpenAIBase     string `yaml:"openai_base"`
	OllamaURL      string `yaml:"ollama_url"`
	ChatModel      string `yaml:"chat_model"`
	AnalyseModel   string `yaml:"analyse_model"`
	EmbeddingModel string `yaml:"embedding_model"`
	Dim            int    `yaml:"dim"`
	// Language is the natural language LLM output should be written in.
	Language   string `yaml:"language"`
	ChunkChars int    `yaml:"chunk_chars"`
	Workers    int    `yaml:"workers"`
	SearchK    int    `yaml:"search_k"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
}

// Default returns the configuration written to a fresh config file.
func Default() Config {
	return Config{
		Provider:       ProviderOpenAI,
		OpenAIBase:     "https://api.openai.com/v1",
		OllamaURL:      "http://localhost:11434",
		ChatModel:      "gpt-4o",
		AnalyseModel:   "gpt-4o",
		EmbeddingModel: "text-embedding-3-large",
		Dim:            DefaultDim,
		Language:       "English",
		ChunkChars:     DefaultChunkChars,
		Workers:        runtime.NumCPU(),
		SearchK:        DefaultSearchK,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// HomeDir returns ~/.readit.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".readit"), nil
}

// Load reads the YAML config at path, creating it with defaults if it does not
// exist, then applies the project .env file (if any) and environment overrides.
// An empty path means ~/.readit/config.yaml.
func Load(path, projectDir string) (Config, error) {
	if path == "" {
		home, err := HomeDir()
		if err != nil {
			return Config{}, err
		}
		path = filepath.Join(home, "config.yaml")
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		if err := Save(path, cfg); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	if projectDir != "" {
		envPath := filepath.Join(projectDir, ".env")
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	cfg.applyEnv()
	cfg.fillDefaults()
	return cfg, nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := firstEnv("OPENAI_KEY", "OPENAI_API_KEY"); v != "" {
		c.OpenAIKey = v
	}
	if v := os.Getenv("OPENAI_BASE"); v != "" {
		c.OpenAIBase = v
	}
	if v := os.Getenv("READIT_PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("READIT_OLLAMA_URL"); v != "" {
		c.OllamaURL = v
	}
	c.Dim = getEnvAsInt("READIT_DIM", c.Dim)
	c.Workers = getEnvAsInt("READIT_WORKERS", c.Workers)
	if v := os.Getenv("READIT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// fillDefaults replaces zero values left by a partial config file.
func (c *Config) fillDefaults() {
	d := Default()
	if c.Provider == "" {
		c.Provider = d.Provider
	}
	if c.OpenAIBase == "" {
		c.OpenAIBase = d.OpenAIBase
	}
	if c.OllamaURL == "" {
		c.OllamaURL = d.OllamaURL
	}
	if c.ChatModel == "" {
		c.ChatModel = d.ChatModel
	}
	if c.AnalyseModel == "" {
		c.AnalyseModel = c.ChatModel
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = d.EmbeddingModel
	}
	if c.Dim == 0 {
		c.Dim = d.Dim
	}
	if c.Language == "" {
		c.Language = d.Language
	}
	if c.ChunkChars == 0 {
		c.ChunkChars = d.ChunkChars
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.SearchK <= 0 {
		c.SearchK = d.SearchK
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
}

// Validate reports configuration that would make the pipeline fail later.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAIKey == "" {
			return ErrAPIKeyNotSet
		}
	case ProviderOllama:
		if c.OllamaURL == "" {
			return fmt.Errorf("%w: ollama_url is empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	if c.Dim <= 0 {
		return fmt.Errorf("%w: dim must be positive, got %d", ErrInvalidConfig, c.Dim)
	}
	if c.ChunkChars <= 0 {
		return fmt.Errorf("%w: chunk_chars must be positive, got %d", ErrInvalidConfig, c.ChunkChars)
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// getEnvAsInt returns the integer value of key, or def when unset or malformed.
func getEnvAsInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
