package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeefy/mindjournal/internal/config"
	"github.com/jeefy/mindjournal/internal/journal"
	"github.com/jeefy/mindjournal/internal/slm"
	"github.com/jeefy/mindjournal/internal/store"
)

var configPath string
var globalConfig *config.Config

var rootCmd = &cobra.Command{
	Use:   "mindjournal",
	Short: "Journal with semantic memory and persona reflections",
	Long: `mindjournal stores journal entries with vector embeddings and asks a
local language model for three short reflections (stoic, coach, friend)
informed by your most similar past entries.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		globalConfig = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/mindjournal/config.yaml)")
}

// app holds the long-lived handles shared by the commands. The store is
// opened once and closed by the caller.
type app struct {
	store   store.Store
	backend slm.Backend
	journal *journal.Service
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := store.Open(ctx, store.Options{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	backend, err := slm.New(cfg.Ollama.Backend, ollamaOptions(cfg))
	if err != nil {
		st.Close()
		return nil, err
	}
	svc := journal.New(st, backend, backend, journal.Options{
		ContextSize:      cfg.Journal.ContextSize,
		MaxContentLength: cfg.Journal.MaxContentLength,
		Emotion:          cfg.Journal.Emotion,
	})
	return &app{store: st, backend: backend, journal: svc}, nil
}

func (a *app) Close() error { return a.store.Close() }

func ollamaOptions(cfg *config.Config) slm.Options {
	return slm.Options{
		BaseURL:       cfg.Ollama.URL,
		EmbedModel:    cfg.Ollama.EmbedModel,
		GenerateModel: cfg.Ollama.GenerateModel,
		Timeout:       cfg.Ollama.Timeout,
	}
}
