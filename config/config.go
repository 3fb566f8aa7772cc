package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the abstract RAG service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Source     SourceConfig     `yaml:"source"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieve   RetrieveConfig   `yaml:"retrieve"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr                  string `yaml:"addr"`
	RequestTimeoutSecs    int    `yaml:"request_timeout_secs"`
	ReadHeaderTimeoutSecs int    `yaml:"read_header_timeout_secs"`
	ShutdownTimeoutSecs   int    `yaml:"shutdown_timeout_secs"`
}

// SourceConfig selects where documents are loaded from on ingestion.
type SourceConfig struct {
	Type   string       `yaml:"type"`  // "json" or "pubmed"
	Paths  []string     `yaml:"paths"` // glob patterns, relative to the root dir
	PubMed PubMedConfig `yaml:"pubmed"`
}

// PubMedConfig holds NCBI E-utilities settings.
type PubMedConfig struct {
	IDs         []string `yaml:"ids"`
	Email       string   `yaml:"email"`
	Tool        string   `yaml:"tool"`
	BaseURL     string   `yaml:"base_url"`
	Concurrency int      `yaml:"concurrency"`
	TimeoutSecs int      `yaml:"timeout_secs"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"`    // "openai", "ollama", "mock"
	Model       string `yaml:"model"`       // e.g., "text-embedding-3-small"
	APIKeyEnv   string `yaml:"api_key_env"` // Environment variable for API key
	BaseURL     string `yaml:"base_url"`
	Dimension   int    `yaml:"dimension"` // 0 infers it from the model
	BatchSize   int    `yaml:"batch_size"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	CachePath   string `yaml:"cache_path"` // bbolt file; empty disables the cache
}

// GenerationConfig holds LLM configuration.
type GenerationConfig struct {
	Provider    string  `yaml:"provider"` // "openai", "ollama"
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK      int `yaml:"top_k"`
	CacheSize int `yaml:"cache_size"` // 0 disables the query cache
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                  ":8000",
			RequestTimeoutSecs:    60,
			ReadHeaderTimeoutSecs: 10,
			ShutdownTimeoutSecs:   15,
		},
		Source: SourceConfig{
			Type:  "json",
			Paths: []string{"data/abstracts.json"},
			PubMed: PubMedConfig{
				IDs:         []string{"15858239", "20598273", "6650562"},
				Tool:        "abstractrag",
				Concurrency: 3,
				TimeoutSecs: 30,
			},
		},
		Embedding: EmbeddingConfig{
			Provider:    "openai",
			Model:       "text-embedding-3-small",
			APIKeyEnv:   "OPENAI_API_KEY",
			Dimension:   0,
			BatchSize:   100,
			TimeoutSecs: 30,
			CachePath:   filepath.Join(".abstractrag", "embeddings.db"),
		},
		Generation: GenerationConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0,
			MaxTokens:   512,
			TimeoutSecs: 60,
		},
		Retrieve: RetrieveConfig{
			TopK:      1,
			CacheSize: 256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file and applies env overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for abstractrag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "abstractrag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".abstractrag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	cfg := DefaultConfig()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATA_PATH"); v != "" {
		c.Source.Paths = []string{v}
	}
	if v := os.Getenv("ABSTRACTRAG_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("ABSTRACTRAG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	switch c.Source.Type {
	case "json":
		if len(c.Source.Paths) == 0 {
			return fmt.Errorf("source.paths must not be empty for json source")
		}
	case "pubmed":
		if c.Source.PubMed.Concurrency <= 0 {
			return fmt.Errorf("source.pubmed.concurrency must be positive")
		}
	default:
		return fmt.Errorf("unknown source type %q", c.Source.Type)
	}

	switch c.Embedding.Provider {
	case "openai", "ollama", "mock":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive")
	}

	switch c.Generation.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unknown generation provider %q", c.Generation.Provider)
	}

	if c.Retrieve.TopK <= 0 {
		return fmt.Errorf("retrieve.top_k must be positive")
	}
	if c.Retrieve.CacheSize < 0 {
		return fmt.Errorf("retrieve.cache_size must not be negative")
	}

	timeouts := map[string]int{
		"server.request_timeout_secs":     c.Server.RequestTimeoutSecs,
		"server.read_header_timeout_secs": c.Server.ReadHeaderTimeoutSecs,
		"server.shutdown_timeout_secs":    c.Server.ShutdownTimeoutSecs,
		"embedding.timeout_secs":          c.Embedding.TimeoutSecs,
		"generation.timeout_secs":         c.Generation.TimeoutSecs,
	}
	for name, v := range timeouts {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Seconds converts a config timeout to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// DataDir returns the directory for local state such as the embedding cache.
func DataDir(dir string) string {
	return filepath.Join(dir, ".abstractrag")
}

// EnsureDataDir ensures the .abstractrag directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(DataDir(dir), 0755)
}
