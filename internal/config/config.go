package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no config file is given. It may be absent.
const DefaultPath = "config.yaml"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	RAG      RAGConfig      `yaml:"rag"`
	Session  SessionConfig  `yaml:"session"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Address             string `yaml:"address"`
	Port                string `yaml:"port"`
	ShutdownTimeoutSecs int    `yaml:"shutdown_timeout_secs"`
}

type DatabaseConfig struct {
	Driver           string `yaml:"driver"` // "postgres" | "sqlite" | "memory"
	ConnectionString string `yaml:"connection_string"`
	Path             string `yaml:"path"` // SQLite file
}

type LLMConfig struct {
	Endpoint          string  `yaml:"endpoint"`
	EmbeddingEndpoint string  `yaml:"embedding_endpoint"`
	APIKey            string  `yaml:"api_key"`
	DefaultModel      string  `yaml:"default_model"`
	EmbeddingModel    string  `yaml:"embedding_model"`
	Dimensions        int     `yaml:"dimensions"`
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	SystemPrompt      string  `yaml:"system_prompt,omitempty"`
}

type RAGConfig struct {
	ChunkSize int `yaml:"chunk_size"`
}

type SessionConfig struct {
	BaselineQuery     string `yaml:"baseline_query"`
	BaselineMaxChunks int    `yaml:"baseline_max_chunks"`
	TurnMaxChunks     int    `yaml:"turn_max_chunks"`
	// GenerateReplies sends each turn's instructions to the chat endpoint.
	GenerateReplies bool `yaml:"generate_replies"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// Load reads path, overlays environment variables and applies defaults.
// An empty path reads DefaultPath if it exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	setString(&c.Database.ConnectionString, "DB_CONNECTION_STRING")
	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.Path, "DB_PATH")
	setString(&c.LLM.Endpoint, "LLM_ENDPOINT")
	setString(&c.LLM.EmbeddingEndpoint, "LLM_EMBEDDING_ENDPOINT")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.DefaultModel, "LLM_DEFAULT_MODEL")
	setString(&c.LLM.EmbeddingModel, "EMBEDDING_MODEL")
	setString(&c.Server.Address, "IP_ADDRESS")
	setString(&c.Server.Port, "PORT")
	setString(&c.Log.Level, "LOG_LEVEL")

	if v, ok := os.LookupEnv("EMBEDDING_DIMENSIONS"); ok {
		dims, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid EMBEDDING_DIMENSIONS %q: %w", v, err)
		}
		c.LLM.Dimensions = dims
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ShutdownTimeoutSecs <= 0 {
		c.Server.ShutdownTimeoutSecs = 15
	}

	// a connection string alone implies postgres
	if c.Database.Driver == "" {
		if c.Database.ConnectionString == "" && c.Database.Path != "" {
			c.Database.Driver = "sqlite"
		} else {
			c.Database.Driver = "postgres"
		}
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "salesagent.db"
	}

	if c.LLM.DefaultModel == "" {
		c.LLM.DefaultModel = "gpt-4o-mini"
	}
	if c.LLM.EmbeddingModel == "" {
		c.LLM.EmbeddingModel = "all-MiniLM-L6-v2"
	}
	if c.LLM.Dimensions == 0 {
		c.LLM.Dimensions = 384
	}
	if c.LLM.BatchSize <= 0 {
		c.LLM.BatchSize = 32
	}
	if c.LLM.TimeoutSecs <= 0 {
		c.LLM.TimeoutSecs = 30
	}

	if c.RAG.ChunkSize <= 0 {
		c.RAG.ChunkSize = 500
	}

	if c.Session.BaselineQuery == "" {
		c.Session.BaselineQuery = "Company overview"
	}
	if c.Session.BaselineMaxChunks <= 0 {
		c.Session.BaselineMaxChunks = 15
	}
	if c.Session.TurnMaxChunks <= 0 {
		c.Session.TurnMaxChunks = 5
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// ValidateDatabase checks the settings needed to open the store.
func (c *Config) ValidateDatabase() error {
	var errs []error

	switch c.Database.Driver {
	case "postgres":
		if c.Database.ConnectionString == "" {
			errs = append(errs, errors.New("DB_CONNECTION_STRING is required for the postgres driver"))
		}
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}

	if c.LLM.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding dimensions must be positive, got %d", c.LLM.Dimensions))
	}

	return errors.Join(errs...)
}

// Validate checks everything needed to index and serve.
func (c *Config) Validate() error {
	errs := []error{c.ValidateDatabase()}

	if c.LLM.EmbeddingEndpoint == "" {
		errs = append(errs, errors.New("LLM_EMBEDDING_ENDPOINT is required"))
	}
	if c.Session.GenerateReplies && c.LLM.Endpoint == "" {
		errs = append(errs, errors.New("LLM_ENDPOINT is required when session replies are enabled"))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// DSN returns the data source for the configured driver.
func (c *Config) DSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.Path
	}
	return c.Database.ConnectionString
}

// ListenAddress joins the server address and port.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Address, c.Server.Port)
}

func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(c.Log.Level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	return level, nil
}
