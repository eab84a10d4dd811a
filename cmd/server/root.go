package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mrhollen/SalesAgent/internal/config"
	"github.com/mrhollen/SalesAgent/internal/db"
	"github.com/mrhollen/SalesAgent/internal/llm"
	"github.com/mrhollen/SalesAgent/internal/rag"
)

var (
	configPath string
	envPath    string
)

var rootCmd = &cobra.Command{
	Use:          "salesagent",
	Short:        "Document grounding for voice sales agents",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file (default ./config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&envPath, "env-file", ".env", "dotenv file loaded before reading the environment")
}

// app holds everything a command needs, built from config in dependency order.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   db.Store
	client  *llm.OpenAIClient
	service *rag.Service
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("error loading %s: %w", envPath, err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	return cfg, logger, nil
}

// newApp opens the store and, when withEmbedder is set, the LLM client and
// rag service. Stores that manage their own schema are migrated first.
func newApp(ctx context.Context, withEmbedder bool) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if withEmbedder {
		err = cfg.Validate()
	} else {
		err = cfg.ValidateDatabase()
	}
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := db.Open(cfg.Database.Driver, cfg.DSN(), cfg.LLM.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if m, ok := store.(db.Migrator); ok {
		if err := m.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}

	a := &app{cfg: cfg, logger: logger, store: store}
	if !withEmbedder {
		return a, nil
	}

	a.client, err = llm.NewOpenAIClient(llm.Config{
		Endpoint:          cfg.LLM.Endpoint,
		EmbeddingEndpoint: cfg.LLM.EmbeddingEndpoint,
		APIKey:            cfg.LLM.APIKey,
		DefaultModel:      cfg.LLM.DefaultModel,
		EmbeddingModel:    cfg.LLM.EmbeddingModel,
		Dimensions:        cfg.LLM.Dimensions,
		BatchSize:         cfg.LLM.BatchSize,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Timeout:           time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
		SystemPrompt:      cfg.LLM.SystemPrompt,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	a.service = rag.NewService(store, a.client,
		rag.WithChunkSize(cfg.RAG.ChunkSize),
		rag.WithLogger(logger),
	)

	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close database", "error", err)
	}
}
