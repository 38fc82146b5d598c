package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Velsaravanan-kafka/Second-brain/internal/definer"
	"github.com/Velsaravanan-kafka/Second-brain/internal/storage"
	"github.com/Velsaravanan-kafka/Second-brain/pkg/config"
)

var (
	configPath string
	devLogging bool

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "notetree",
	Short: "Hierarchical notes with questions, highlights and vocabulary",
	Long: `notetree stores a tree of rich-text notes per owner and keeps inline
annotation marks in sync with their question, important and vocabulary rows.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if devLogging {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the config file")
	rootCmd.PersistentFlags().BoolVar(&devLogging, "dev", false, "Human readable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore builds the configured storage backend.
func openStore(ctx context.Context) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		logger.Info("Using PostgreSQL storage", zap.String("host", cfg.Database.Host), zap.String("dbname", cfg.Database.DBName))
		return storage.NewPostgresStorage(ctx, storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}, logger)
	case config.BackendBadger:
		logger.Info("Using Badger storage", zap.String("path", cfg.Badger.Path), zap.Bool("in_memory", cfg.Badger.InMemory))
		return storage.NewBadgerStorage(storage.BadgerConfig{
			Path:           cfg.Badger.Path,
			InMemory:       cfg.Badger.InMemory,
			SyncWrites:     cfg.Badger.SyncWrites,
			GCInterval:     cfg.Badger.GCInterval,
			GCDiscardRatio: cfg.Badger.GCDiscardRatio,
		}, logger)
	}
	logger.Info("Using in-memory storage")
	return storage.NewMemoryStorage(), nil
}

// newDefiner returns the GPT definer when an API key is configured.
func newDefiner() definer.Definer {
	if cfg.OpenAI.APIKey == "" {
		logger.Info("No OpenAI API key configured, vocabulary definitions are disabled")
		return definer.NopDefiner{}
	}
	return definer.NewGPTDefiner(definer.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Temperature: cfg.OpenAI.Temperature,
	}, logger)
}
