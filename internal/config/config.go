// Package config loads paramem settings: built-in defaults, then a TOML
// file, then PARA_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lazypower/paramem/internal/tier"
)

// Config holds all paramem configuration.
type Config struct {
	Workspace  string           `mapstructure:"workspace" toml:"workspace"`
	Paths      PathsConfig      `mapstructure:"paths" toml:"paths"`
	Tiers      tier.Config      `mapstructure:"tiers" toml:"tiers"`
	Storage    StorageConfig    `mapstructure:"storage" toml:"storage"`
	Server     ServerConfig     `mapstructure:"server" toml:"server"`
	LLM        LLMConfig        `mapstructure:"llm" toml:"llm"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint" toml:"checkpoint"`
	Indexer    IndexerConfig    `mapstructure:"indexer" toml:"indexer"`
	Schedule   ScheduleConfig   `mapstructure:"schedule" toml:"schedule"`
}

// PathsConfig locates the PARA tree, the cache (access ledger), and the
// daily notes. Empty values are derived from the workspace.
type PathsConfig struct {
	ParaDir   string `mapstructure:"para_dir" toml:"para_dir"`
	CacheDir  string `mapstructure:"cache_dir" toml:"cache_dir"`
	MemoryDir string `mapstructure:"memory_dir" toml:"memory_dir"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend" toml:"backend"` // "fs" or "sqlite"
	DBPath  string `mapstructure:"db_path" toml:"db_path"`
}

type ServerConfig struct {
	Bind string `mapstructure:"bind" toml:"bind"`
	Port int    `mapstructure:"port" toml:"port"`
}

type LLMConfig struct {
	Provider     string `mapstructure:"provider" toml:"provider"` // "ollama", "anthropic", "claude-cli", "none"
	Model        string `mapstructure:"model" toml:"model"`
	OllamaURL    string `mapstructure:"ollama_url" toml:"ollama_url"`
	AnthropicKey string `mapstructure:"anthropic_key" toml:"anthropic_key"`
}

type CheckpointConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
	MaxMessages    int `mapstructure:"max_messages" toml:"max_messages"`
	MaxChars       int `mapstructure:"max_chars" toml:"max_chars"`
}

type IndexerConfig struct {
	Command        string   `mapstructure:"command" toml:"command"` // empty disables
	Args           []string `mapstructure:"args" toml:"args"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
}

type ScheduleConfig struct {
	DecayIntervalHours        int `mapstructure:"decay_interval_hours" toml:"decay_interval_hours"`
	CheckpointIntervalMinutes int `mapstructure:"checkpoint_interval_minutes" toml:"checkpoint_interval_minutes"`
}

// Default returns a Config with the stock settings.
func Default() Config {
	return Config{
		Tiers: tier.DefaultConfig(),
		Storage: StorageConfig{
			Backend: "fs",
		},
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		LLM: LLMConfig{
			Provider:  "ollama",
			Model:     "qwen2.5:7b",
			OllamaURL: "http://localhost:11434/v1",
		},
		Checkpoint: CheckpointConfig{
			TimeoutSeconds: 60,
			MaxMessages:    30,
			MaxChars:       15000,
		},
		Indexer: IndexerConfig{
			Command:        "qmd",
			Args:           []string{"update", "-c", "memory", "-c", "para", "-c", "para-facts"},
			TimeoutSeconds: 120,
		},
		Schedule: ScheduleConfig{
			DecayIntervalHours:        168,
			CheckpointIntervalMinutes: 30,
		},
	}
}

// Resolve fills derived paths: the workspace defaults to the current
// directory, the PARA and memory dirs live inside it, and the cache dir
// defaults to ~/.openclaw/memory-cache.
func (c *Config) Resolve() error {
	if c.Workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return errors.Wrap(err, "resolve workspace")
		}
		c.Workspace = wd
	}
	if c.Paths.ParaDir == "" {
		c.Paths.ParaDir = filepath.Join(c.Workspace, "para")
	}
	if c.Paths.MemoryDir == "" {
		c.Paths.MemoryDir = filepath.Join(c.Workspace, "memory")
	}
	if c.Paths.CacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "resolve cache dir")
		}
		c.Paths.CacheDir = filepath.Join(home, ".openclaw", "memory-cache")
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	t := c.Tiers
	if t.HotDays < 0 || t.WarmDays < 0 || t.HighFreqThreshold < 0 {
		return errors.Newf("tiers: values must not be negative (hot=%d warm=%d freq=%d)", t.HotDays, t.WarmDays, t.HighFreqThreshold)
	}
	if t.HotDays > t.WarmDays {
		return errors.Newf("tiers: hot_days (%d) must not exceed warm_days (%d)", t.HotDays, t.WarmDays)
	}
	switch c.Storage.Backend {
	case "fs", "sqlite":
	default:
		return errors.Newf("storage: unknown backend %q", c.Storage.Backend)
	}
	if c.Checkpoint.TimeoutSeconds <= 0 {
		return errors.New("checkpoint: timeout_seconds must be positive")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.Newf("server: invalid port %d", c.Server.Port)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// CheckpointTimeout bounds one extraction call.
func (c *Config) CheckpointTimeout() time.Duration {
	return time.Duration(c.Checkpoint.TimeoutSeconds) * time.Second
}

// IndexerTimeout bounds one external indexer run.
func (c *Config) IndexerTimeout() time.Duration {
	return time.Duration(c.Indexer.TimeoutSeconds) * time.Second
}

// DecayInterval is the period of the scheduled full decay cycle.
func (c *Config) DecayInterval() time.Duration {
	return time.Duration(c.Schedule.DecayIntervalHours) * time.Hour
}

// CheckpointInterval is the period of the scheduled checkpoint.
func (c *Config) CheckpointInterval() time.Duration {
	return time.Duration(c.Schedule.CheckpointIntervalMinutes) * time.Minute
}
