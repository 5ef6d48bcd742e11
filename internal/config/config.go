// Package config loads mindjournal settings from a YAML file, a .env file
// and the environment, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config stores mindjournal configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Ollama  OllamaConfig  `yaml:"ollama"`
	Journal JournalConfig `yaml:"journal"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

// StorageConfig selects the entry store backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite or postgres
	DSN    string `yaml:"dsn"`
}

// OllamaConfig points at the embedding and generation service.
type OllamaConfig struct {
	Backend       string        `yaml:"backend"` // ollama or mock
	URL           string        `yaml:"url"`
	EmbedModel    string        `yaml:"embed_model"`
	GenerateModel string        `yaml:"generate_model"`
	Timeout       time.Duration `yaml:"timeout"`
}

// JournalConfig holds write path limits.
type JournalConfig struct {
	ContextSize      int    `yaml:"context_size"`
	MaxContentLength int    `yaml:"max_content_length"`
	Emotion          string `yaml:"emotion"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8000",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 3 * time.Minute,
			CORSOrigins:  []string{"http://localhost:3000"},
		},
		Storage: StorageConfig{Driver: "sqlite", DSN: "mindjournal.db"},
		Ollama: OllamaConfig{
			Backend:       "ollama",
			URL:           "http://localhost:11434",
			EmbedModel:    "nomic-embed-text",
			GenerateModel: "llama3.2",
			Timeout:       60 * time.Second,
		},
		Journal: JournalConfig{ContextSize: 2, Emotion: "neutral"},
	}
}

// GetConfigPath returns the default config file path.
func GetConfigPath() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "mindjournal", "config.yaml"), nil
}

// Load reads the YAML file at path (the default path when empty), then the
// .env file in the working directory, then the environment. A missing config
// file or .env file is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := GetConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, err
	}

	// godotenv never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := env("DATABASE_URL"); v != "" {
		c.Storage.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			c.Storage.Driver = "postgres"
		}
	}
	if v := env("MINDJOURNAL_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := env("MINDJOURNAL_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := env("MINDJOURNAL_CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	if v := env("MINDJOURNAL_SLM_BACKEND"); v != "" {
		c.Ollama.Backend = v
	}
	if v := env("OLLAMA_URL"); v != "" {
		c.Ollama.URL = v
	}
	if v := env("OLLAMA_EMBED_MODEL"); v != "" {
		c.Ollama.EmbedModel = v
	}
	if v := env("OLLAMA_GENERATE_MODEL"); v != "" {
		c.Ollama.GenerateModel = v
	}
	if v := env("OLLAMA_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("OLLAMA_TIMEOUT: %w", err)
		}
		c.Ollama.Timeout = d
	}
	if v := env("MINDJOURNAL_MAX_CONTENT_LENGTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MINDJOURNAL_MAX_CONTENT_LENGTH: %w", err)
		}
		c.Journal.MaxContentLength = n
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Ollama.Backend {
	case "ollama", "mock":
	default:
		return fmt.Errorf("unknown ollama backend %q", c.Ollama.Backend)
	}
	if c.Journal.ContextSize <= 0 {
		return fmt.Errorf("journal.context_size must be positive, got %d", c.Journal.ContextSize)
	}
	if c.Journal.MaxContentLength < 0 {
		return fmt.Errorf("journal.max_content_length must not be negative, got %d", c.Journal.MaxContentLength)
	}
	if c.Ollama.Timeout <= 0 {
		return fmt.Errorf("ollama.timeout must be positive, got %s", c.Ollama.Timeout)
	}
	return nil
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
