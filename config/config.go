package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the quote search service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	StaticDir      string        `yaml:"static_dir"`      // serves index.html and styles.css when set
	RequestTimeout time.Duration `yaml:"request_timeout"` // bounds encode+query per request
	RateLimit      float64       `yaml:"rate_limit"`      // requests per second, 0 = unlimited
	RateBurst      int           `yaml:"rate_burst"`
	MaxInFlight    int           `yaml:"max_in_flight"` // concurrent index queries
	CORSOrigins    []string      `yaml:"cors_origins"`  // "*" allows any origin, empty disables CORS
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`    // "openai", "jina", "deepseek", "ollama", "hash"
	Model     string `yaml:"model"`       // e.g., "text-embedding-3-small"
	BaseURL   string `yaml:"base_url"`    // for ollama or self-hosted OpenAI-compatible servers
	APIKeyEnv string `yaml:"api_key_env"` // Environment variable for API key
	Dimension int    `yaml:"dimension"`   // 0 = model default
}

// IndexConfig holds vector index configuration.
type IndexConfig struct {
	Backend   string        `yaml:"backend"`     // "bolt", "sqlite", "memory", "pinecone"
	Path      string        `yaml:"path"`        // database file for bolt and sqlite
	Name      string        `yaml:"name"`        // logical index name, e.g. "simpsons-index"
	Host      string        `yaml:"host"`        // pinecone index host
	APIKeyEnv string        `yaml:"api_key_env"` // Environment variable for API key
	Timeout   time.Duration `yaml:"timeout"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	DefaultTopK     int           `yaml:"default_top_k"`
	MaxTopK         int           `yaml:"max_top_k"`
	Namespaces      []string      `yaml:"namespaces"` // allowed namespace glob patterns, empty = any
	Format          string        `yaml:"format"`     // "html" or "json"
	TrustIndexOrder bool          `yaml:"trust_index_order"`
	CacheSize       int           `yaml:"cache_size"` // 0 disables the result cache
	CacheTTL        time.Duration `yaml:"cache_ttl"`
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
			Addr:           ":5002",
			RequestTimeout: 10 * time.Second,
			RateLimit:      0,
			RateBurst:      20,
			MaxInFlight:    16,
			CORSOrigins:    []string{"*"},
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Model:     "",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 0,
		},
		Index: IndexConfig{
			Backend:   "bolt",
			Path:      filepath.Join(".quotesearch", "index.db"),
			Name:      "simpsons-index",
			APIKeyEnv: "PINECONE_API_KEY",
			Timeout:   30 * time.Second,
		},
		Retrieve: RetrieveConfig{
			DefaultTopK:     5,
			MaxTopK:         100,
			Format:          "html",
			TrustIndexOrder: true,
			CacheSize:       0,
			CacheTTL:        5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for quotesearch.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "quotesearch.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".quotesearch", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports configuration errors that would only surface later at
// request time.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "openai", "jina", "deepseek", "ollama", "hash":
	default:
		return fmt.Errorf("unsupported embedding provider: %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("embedding.dimension must not be negative")
	}

	switch c.Index.Backend {
	case "bolt", "sqlite":
		if c.Index.Path == "" {
			return fmt.Errorf("index.path is required for the %s backend", c.Index.Backend)
		}
	case "memory":
	case "pinecone":
		if c.Index.Host == "" {
			return fmt.Errorf("index.host is required for the pinecone backend")
		}
	default:
		return fmt.Errorf("unsupported index backend: %q", c.Index.Backend)
	}

	if c.Retrieve.DefaultTopK < 1 {
		return fmt.Errorf("retrieve.default_top_k must be at least 1")
	}
	if c.Retrieve.MaxTopK < c.Retrieve.DefaultTopK {
		return fmt.Errorf("retrieve.max_top_k (%d) is below default_top_k (%d)", c.Retrieve.MaxTopK, c.Retrieve.DefaultTopK)
	}

	switch c.Retrieve.Format {
	case "html", "json":
	default:
		return fmt.Errorf("unsupported retrieve.format: %q", c.Retrieve.Format)
	}
	return nil
}

// ResolvePath makes a relative index path relative to dir.
func (c *Config) ResolvePath(dir string) string {
	if c.Index.Path == "" || filepath.IsAbs(c.Index.Path) {
		return c.Index.Path
	}
	return filepath.Join(dir, c.Index.Path)
}
