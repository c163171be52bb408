package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// FileName is the per-workspace config file name.
const FileName = "paramem.toml"

// envBindings maps config keys to the environment variables that override
// them. Keys not listed here still honor PARA_<SECTION>_<KEY>.
var envBindings = map[string][]string{
	"workspace":                 {"PARA_WORKSPACE"},
	"paths.para_dir":            {"PARA_DIR"},
	"paths.cache_dir":           {"PARA_CACHE_DIR"},
	"paths.memory_dir":          {"PARA_MEMORY_DIR"},
	"tiers.hot_days":            {"PARA_HOT_DAYS"},
	"tiers.warm_days":           {"PARA_WARM_DAYS"},
	"tiers.high_freq_threshold": {"PARA_HIGH_FREQ_THRESHOLD"},
	"llm.ollama_url":            {"PARA_OLLAMA_URL"},
	"llm.model":                 {"PARA_MODEL"},
	"llm.anthropic_key":         {"PARA_ANTHROPIC_KEY", "ANTHROPIC_API_KEY"},
}

// SetDefaults registers every default with v so env overrides and
// Unmarshal see the full key set.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("workspace", d.Workspace)
	v.SetDefault("paths.para_dir", d.Paths.ParaDir)
	v.SetDefault("paths.cache_dir", d.Paths.CacheDir)
	v.SetDefault("paths.memory_dir", d.Paths.MemoryDir)

	v.SetDefault("tiers.hot_days", d.Tiers.HotDays)
	v.SetDefault("tiers.warm_days", d.Tiers.WarmDays)
	v.SetDefault("tiers.high_freq_threshold", d.Tiers.HighFreqThreshold)

	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.db_path", d.Storage.DBPath)

	v.SetDefault("server.bind", d.Server.Bind)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.ollama_url", d.LLM.OllamaURL)
	v.SetDefault("llm.anthropic_key", d.LLM.AnthropicKey)

	v.SetDefault("checkpoint.timeout_seconds", d.Checkpoint.TimeoutSeconds)
	v.SetDefault("checkpoint.max_messages", d.Checkpoint.MaxMessages)
	v.SetDefault("checkpoint.max_chars", d.Checkpoint.MaxChars)

	v.SetDefault("indexer.command", d.Indexer.Command)
	v.SetDefault("indexer.args", d.Indexer.Args)
	v.SetDefault("indexer.timeout_seconds", d.Indexer.TimeoutSeconds)

	v.SetDefault("schedule.decay_interval_hours", d.Schedule.DecayIntervalHours)
	v.SetDefault("schedule.checkpoint_interval_minutes", d.Schedule.CheckpointIntervalMinutes)
}

// Load reads configuration. An explicit path must exist; otherwise the
// first of $PARA_WORKSPACE/paramem.toml and ~/.paramem/config.toml that
// exists is used. Environment variables override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PARA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, errors.Wrapf(err, "bind env for %s", key)
		}
	}
	SetDefaults(v)

	file := path
	if file == "" {
		file = discover()
	}
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", file)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithHint(err, "check paramem.toml and PARA_* environment variables")
	}
	return &cfg, nil
}

func discover() string {
	var candidates []string
	if ws := os.Getenv("PARA_WORKSPACE"); ws != "" {
		candidates = append(candidates, filepath.Join(ws, FileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".paramem", "config.toml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// WriteDefault writes the default configuration as TOML. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create config dir")
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return errors.Wrap(err, "create config file")
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(Default()); err != nil {
		return errors.Wrap(err, "encode config")
	}
	return nil
}
