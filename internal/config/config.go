// Package config loads taskdeck configuration from a YAML file with
// environment-variable overrides.
//
// Precedence, highest first:
//  1. TASKDECK_-prefixed environment variables (TASKDECK_GIT_SOURCE_BRANCH)
//  2. YAML config file (default ~/.config/taskdeck/config.yaml)
//  3. Hardcoded defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces taskdeck environment variables.
const envPrefix = "TASKDECK_"

// Config is the full taskdeck configuration.
type Config struct {
	Log   LogConfig   `koanf:"log"`
	Git   GitConfig   `koanf:"git"`
	Tasks TasksConfig `koanf:"tasks"`
}

// LogConfig controls process logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// GitConfig locates the repository and worktree area.
type GitConfig struct {
	RepoRoot     string `koanf:"repo_root"`
	SourceBranch string `koanf:"source_branch"`
	WorktreesDir string `koanf:"worktrees_dir"`
}

// TasksConfig locates the task file.
type TasksConfig struct {
	File string `koanf:"file"`
}

// Default returns the hardcoded defaults.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Git: GitConfig{
			RepoRoot:     ".",
			SourceBranch: "",
			WorktreesDir: ".worktrees",
		},
		Tasks: TasksConfig{
			File: ".taskdeck/tasks.json",
		},
	}
}

// Validate rejects configurations the process cannot run with.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug/info/warn/error, got %q", c.Log.Level)
	}
	if strings.TrimSpace(c.Git.RepoRoot) == "" {
		return fmt.Errorf("git.repo_root is required")
	}
	if strings.TrimSpace(c.Tasks.File) == "" {
		return fmt.Errorf("tasks.file is required")
	}
	return nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "taskdeck", "config.yaml"), nil
}

// Load reads configuration from the given file (or the default path when
// empty), then applies environment overrides. A missing file is not an
// error; defaults and environment still apply.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		var err error
		configPath, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	if content, err := os.ReadFile(configPath); err == nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// TASKDECK_GIT_SOURCE_BRANCH -> git.source_branch: section before the
	// first underscore, field after it.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment overrides: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}
