package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// MinIndexM is the smallest accepted index.m. Sparser graphs leave nodes
// that no search can reach.
const MinIndexM = 4

// EnvPrefix is prepended to every environment override, e.g. RAG_EMBEDDING_MODEL.
const EnvPrefix = "RAG"

// Config holds all configuration for the application
type Config struct {
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Chat      ChatConfig      `mapstructure:"chat" yaml:"chat"`
	Index     IndexConfig     `mapstructure:"index" yaml:"index"`
	Ingest    IngestSettings  `mapstructure:"ingest" yaml:"ingest"`
	Query     QuerySettings   `mapstructure:"query" yaml:"query"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
}

// LogConfig holds logging related configuration
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// EmbeddingConfig holds embedding service configuration
type EmbeddingConfig struct {
	Provider      string        `mapstructure:"provider" yaml:"provider"`
	Model         string        `mapstructure:"model" yaml:"model"`
	Endpoint      string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey        string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxAttempts   int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay     time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxInputChars int           `mapstructure:"max_input_chars" yaml:"max_input_chars"`
	MinDimension  int           `mapstructure:"min_dimension" yaml:"min_dimension"`
}

// ChatConfig holds chat service configuration
type ChatConfig struct {
	Provider string        `mapstructure:"provider" yaml:"provider"`
	Model    string        `mapstructure:"model" yaml:"model"`
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey   string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// IndexConfig holds HNSW construction parameters. They are fixed when an
// index is built and recorded in its dump.
type IndexConfig struct {
	M              int    `mapstructure:"m" yaml:"m"`
	EfConstruction int    `mapstructure:"ef_construction" yaml:"ef_construction"`
	EfSearch       int    `mapstructure:"ef_search" yaml:"ef_search"`
	MaxLayer       int    `mapstructure:"max_layer" yaml:"max_layer"`
	MaxElements    int    `mapstructure:"max_elements" yaml:"max_elements"`
	Seed           int64  `mapstructure:"seed" yaml:"seed"`
	Basename       string `mapstructure:"basename" yaml:"basename"`
}

// IngestSettings holds ingestion configuration
type IngestSettings struct {
	Root             string   `mapstructure:"root" yaml:"root"`
	OutputDir        string   `mapstructure:"output_dir" yaml:"output_dir"`
	Strategy         string   `mapstructure:"strategy" yaml:"strategy"`
	ChunkSize        int      `mapstructure:"chunk_size" yaml:"chunk_size"`
	MaxChunkSize     int      `mapstructure:"max_chunk_size" yaml:"max_chunk_size"`
	MaxFileChars     int      `mapstructure:"max_file_chars" yaml:"max_file_chars"`
	Concurrency      int      `mapstructure:"concurrency" yaml:"concurrency"`
	ProgressInterval int      `mapstructure:"progress_interval" yaml:"progress_interval"`
	SkipDirs         []string `mapstructure:"skip_dirs" yaml:"skip_dirs"`
	Extensions       []string `mapstructure:"extensions" yaml:"extensions"`
	Fields           []string `mapstructure:"fields" yaml:"fields"`
}

// QuerySettings holds query configuration
type QuerySettings struct {
	DataDir         string `mapstructure:"data_dir" yaml:"data_dir"`
	NumResults      int    `mapstructure:"num_results" yaml:"num_results"`
	MaxContextChars int    `mapstructure:"max_context_chars" yaml:"max_context_chars"`
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns the configuration every run starts from. It is the only
// place default values are defined.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Embedding: EmbeddingConfig{
			Provider:      "ollama",
			Model:         "harald-phi4",
			Endpoint:      "http://127.0.0.1:11434/api/embeddings",
			Timeout:       60 * time.Second,
			MaxAttempts:   3,
			BaseDelay:     time.Second,
			MaxInputChars: 100000,
			MinDimension:  100,
		},
		Chat: ChatConfig{
			Provider: "ollama",
			Model:    "harald-phi4",
			Endpoint: "http://127.0.0.1:11434/api/chat",
			Timeout:  120 * time.Second,
		},
		Index: IndexConfig{
			M:              16,
			EfConstruction: 200,
			EfSearch:       20,
			MaxLayer:       16,
			MaxElements:    100000,
			Seed:           42,
			Basename:       "index",
		},
		Ingest: IngestSettings{
			Root:             ".",
			Strategy:         "word",
			ChunkSize:        250,
			MaxChunkSize:     250,
			MaxFileChars:     800,
			Concurrency:      runtime.NumCPU(),
			ProgressInterval: 10,
			SkipDirs: []string{
				".git", ".venv", ".cargo", ".github", ".vscode",
				"target", "node_modules", "build", "dist",
			},
			Extensions: []string{".md", ".json", ".jsonl"},
		},
		Query: QuerySettings{
			DataDir:         "data",
			NumResults:      3,
			MaxContextChars: 800,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ShutdownTimeout: 5 * time.Second,
		},
	}
}

// LoadConfig loads configuration from defaults, an optional file, a .env
// file in the working directory and RAG_* environment variables, in
// increasing order of precedence.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	return load(v, configPath)
}

// LoadWithViper is LoadConfig over a caller supplied viper instance, so
// command line flags bound to v take precedence over everything else.
func LoadWithViper(v *viper.Viper, configPath string) (*Config, error) {
	return load(v, configPath)
}

func load(v *viper.Viper, configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers every key of Default() so AutomaticEnv can see it.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	// Embedding defaults
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.endpoint", d.Embedding.Endpoint)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.timeout", d.Embedding.Timeout)
	v.SetDefault("embedding.max_attempts", d.Embedding.MaxAttempts)
	v.SetDefault("embedding.base_delay", d.Embedding.BaseDelay)
	v.SetDefault("embedding.max_input_chars", d.Embedding.MaxInputChars)
	v.SetDefault("embedding.min_dimension", d.Embedding.MinDimension)

	// Chat defaults
	v.SetDefault("chat.provider", d.Chat.Provider)
	v.SetDefault("chat.model", d.Chat.Model)
	v.SetDefault("chat.endpoint", d.Chat.Endpoint)
	v.SetDefault("chat.api_key", d.Chat.APIKey)
	v.SetDefault("chat.timeout", d.Chat.Timeout)

	// Index defaults
	v.SetDefault("index.m", d.Index.M)
	v.SetDefault("index.ef_construction", d.Index.EfConstruction)
	v.SetDefault("index.ef_search", d.Index.EfSearch)
	v.SetDefault("index.max_layer", d.Index.MaxLayer)
	v.SetDefault("index.max_elements", d.Index.MaxElements)
	v.SetDefault("index.seed", d.Index.Seed)
	v.SetDefault("index.basename", d.Index.Basename)

	// Ingest defaults
	v.SetDefault("ingest.root", d.Ingest.Root)
	v.SetDefault("ingest.output_dir", d.Ingest.OutputDir)
	v.SetDefault("ingest.strategy", d.Ingest.Strategy)
	v.SetDefault("ingest.chunk_size", d.Ingest.ChunkSize)
	v.SetDefault("ingest.max_chunk_size", d.Ingest.MaxChunkSize)
	v.SetDefault("ingest.max_file_chars", d.Ingest.MaxFileChars)
	v.SetDefault("ingest.concurrency", d.Ingest.Concurrency)
	v.SetDefault("ingest.progress_interval", d.Ingest.ProgressInterval)
	v.SetDefault("ingest.skip_dirs", d.Ingest.SkipDirs)
	v.SetDefault("ingest.extensions", d.Ingest.Extensions)
	v.SetDefault("ingest.fields", d.Ingest.Fields)

	// Query defaults
	v.SetDefault("query.data_dir", d.Query.DataDir)
	v.SetDefault("query.num_results", d.Query.NumResults)
	v.SetDefault("query.max_context_chars", d.Query.MaxContextChars)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding model cannot be empty")
	}
	if c.Embedding.Endpoint == "" {
		return fmt.Errorf("embedding endpoint cannot be empty")
	}
	if c.Embedding.MaxAttempts < 1 {
		return fmt.Errorf("embedding max_attempts must be at least 1, got %d", c.Embedding.MaxAttempts)
	}
	if c.Chat.Model == "" {
		return fmt.Errorf("chat model cannot be empty")
	}
	if c.Index.M < MinIndexM {
		return fmt.Errorf("index m must be at least %d, got %d", MinIndexM, c.Index.M)
	}
	if c.Index.EfSearch < 1 {
		return fmt.Errorf("index ef_search must be positive, got %d", c.Index.EfSearch)
	}
	if c.Ingest.ChunkSize < 1 || c.Ingest.MaxChunkSize < 1 {
		return fmt.Errorf("invalid chunk sizes: chunk_size=%d max_chunk_size=%d",
			c.Ingest.ChunkSize, c.Ingest.MaxChunkSize)
	}
	if c.Ingest.Concurrency < 1 {
		return fmt.Errorf("ingest concurrency must be at least 1, got %d", c.Ingest.Concurrency)
	}
	if c.Query.NumResults < 1 {
		return fmt.Errorf("query num_results must be at least 1, got %d", c.Query.NumResults)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Dump renders the configuration as YAML.
func (c *Config) Dump() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return out, nil
}

// IngestOutputDir returns the snapshot directory for an ingestion run: the
// configured output_dir, or <root>/data when unset.
func (c Config) IngestOutputDir() string {
	if c.Ingest.OutputDir != "" {
		return c.Ingest.OutputDir
	}
	return filepath.Join(c.Ingest.Root, "data")
}
