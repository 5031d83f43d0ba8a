// Package config loads the engine's tunables the way cmd/bd's
// internal/config/local_config.go reads config.yaml: a typed struct,
// defaults baked in, and a layered override scheme. Here the layers are
// TOML defaults (github.com/BurntSushi/toml) overridden by a viper
// singleton bound to MEW_* environment variables and an optional
// mew.toml file, with precedence flag > env/file > default
// (SPEC_FULL.md §A.3).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/mewdb/mew/internal/engine"
	"github.com/mewdb/mew/internal/rule"
)

// EngineConfig holds the engine.* tunables.
type EngineConfig struct {
	MaxDepth       int  `toml:"max_depth" mapstructure:"max_depth"`
	MaxActions     int  `toml:"max_actions" mapstructure:"max_actions"`
	MaxPatternCost int  `toml:"max_pattern_cost" mapstructure:"max_pattern_cost"`
	AutoCommit     bool `toml:"auto_commit" mapstructure:"auto_commit"`
}

// WALConfig holds the wal.* tunables.
type WALConfig struct {
	Path                  string `toml:"path" mapstructure:"path"`
	CheckpointIntervalOps int    `toml:"checkpoint_interval_ops" mapstructure:"checkpoint_interval_ops"`
	RotateBytes           int64  `toml:"rotate_bytes" mapstructure:"rotate_bytes"`
}

// Config is the fully resolved configuration for one mew engine
// instance.
type Config struct {
	Engine EngineConfig `toml:"engine" mapstructure:"engine"`
	WAL    WALConfig    `toml:"wal" mapstructure:"wal"`
}

// Defaults mirrors internal/rule.DefaultLimits and the journal's
// built-in rotation behavior, so an engine started with no config file
// and no environment overrides behaves exactly as it did before this
// package existed.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			MaxDepth:       rule.DefaultLimits.MaxDepth,
			MaxActions:     rule.DefaultLimits.MaxActions,
			MaxPatternCost: 0,
			AutoCommit:     true,
		},
		WAL: WALConfig{
			Path:                  "",
			CheckpointIntervalOps: 1000,
			RotateBytes:           64 << 20,
		},
	}
}

// Load resolves a Config from, in ascending precedence: the compiled-in
// Defaults, an optional TOML file at path (or "mew.toml" in the working
// directory if path is empty and that file exists), and MEW_*
// environment variables (MEW_ENGINE_MAX_DEPTH, MEW_WAL_PATH, ...).
// Flags are applied afterward by the caller via Config.Apply /
// individual field overrides, per cmd/mew's cobra flag bindings.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		if _, err := os.Stat("mew.toml"); err == nil {
			path = "mew.toml"
		}
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: decoding %s: %w", path, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("MEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v, "engine.max_depth")
	bindEnv(v, "engine.max_actions")
	bindEnv(v, "engine.max_pattern_cost")
	bindEnv(v, "engine.auto_commit")
	bindEnv(v, "wal.path")
	bindEnv(v, "wal.checkpoint_interval_ops")
	bindEnv(v, "wal.rotate_bytes")

	if v.IsSet("engine.max_depth") {
		cfg.Engine.MaxDepth = v.GetInt("engine.max_depth")
	}
	if v.IsSet("engine.max_actions") {
		cfg.Engine.MaxActions = v.GetInt("engine.max_actions")
	}
	if v.IsSet("engine.max_pattern_cost") {
		cfg.Engine.MaxPatternCost = v.GetInt("engine.max_pattern_cost")
	}
	if v.IsSet("engine.auto_commit") {
		cfg.Engine.AutoCommit = v.GetBool("engine.auto_commit")
	}
	if v.IsSet("wal.path") {
		cfg.WAL.Path = v.GetString("wal.path")
	}
	if v.IsSet("wal.checkpoint_interval_ops") {
		cfg.WAL.CheckpointIntervalOps = v.GetInt("wal.checkpoint_interval_ops")
	}
	if v.IsSet("wal.rotate_bytes") {
		cfg.WAL.RotateBytes = v.GetInt64("wal.rotate_bytes")
	}

	return &cfg, nil
}

// bindEnv binds key to its MEW_-prefixed, dot-to-underscore env var name
// (e.g. "engine.max_depth" -> MEW_ENGINE_MAX_DEPTH) so v.IsSet/v.Get see
// it without requiring a BindPFlag for every field.
func bindEnv(v *viper.Viper, key string) {
	env := "MEW_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	_ = v.BindEnv(key, env)
}

// Apply copies the resolved config into an engine.Options. AutoCommit,
// RuleLimits and MaxPatternCost are always overwritten from the config;
// JournalPath is taken from wal.path only when the caller left it empty
// (so a path passed explicitly on the command line wins).
func (c *Config) Apply(opts *engine.Options) {
	opts.AutoCommit = c.Engine.AutoCommit
	opts.RuleLimits.MaxDepth = c.Engine.MaxDepth
	opts.RuleLimits.MaxActions = c.Engine.MaxActions
	opts.MaxPatternCost = c.Engine.MaxPatternCost
	if opts.JournalPath == "" {
		opts.JournalPath = c.WAL.Path
	}
}
