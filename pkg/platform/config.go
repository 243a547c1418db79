// Package platform models the installation roots a skill can be
// materialized at. It provides the ordered platform registry (from
// persisted configuration or built-in defaults) and the locator that
// snapshots a skill's installations across those roots.
package platform

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// SyncModeSymlink and SyncModeCopy are the two supported convergence
// strategies; symlink is the default.
const (
	SyncModeSymlink = "symlink"
	SyncModeCopy    = "copy"
)

// Platform is one named installation root.
type Platform struct {
	ID         string `mapstructure:"id" yaml:"id"`
	Name       string `mapstructure:"name" yaml:"name"`
	SkillsPath string `mapstructure:"skills_path" yaml:"skills_path"`
	DetectPath string `mapstructure:"detect_path" yaml:"detect_path"`
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Source     bool   `mapstructure:"source" yaml:"source"`
}

// Config is the platform registry plus the configured sync mode. The
// platform order is significant: it is the iteration order for audits
// and the baseline choice for drift classification.
type Config struct {
	Platforms []Platform `mapstructure:"platforms" yaml:"platforms"`
	SyncMode  string     `mapstructure:"sync_mode" yaml:"sync_mode"`
}

// DefaultConfig returns the built-in registry: claude, codex, gemini and
// copilot under their conventional home-directory roots, with claude as
// the enabled source.
func DefaultConfig() Config {
	return Config{
		SyncMode: SyncModeSymlink,
		Platforms: []Platform{
			{ID: "claude", Name: "Claude Code", SkillsPath: "~/.claude/skills", DetectPath: "~/.claude", Enabled: true, Source: true},
			{ID: "codex", Name: "OpenAI Codex", SkillsPath: "~/.codex/skills", DetectPath: "~/.codex", Enabled: true},
			{ID: "gemini", Name: "Gemini CLI", SkillsPath: "~/.gemini/skills", DetectPath: "~/.gemini", Enabled: true},
			{ID: "copilot", Name: "GitHub Copilot", SkillsPath: "~/.copilot/skills", DetectPath: "~/.copilot", Enabled: true},
		},
	}
}

// LoadConfig builds the configuration from viper state (config file and
// environment), falling back to DefaultConfig when no platforms are
// configured.
func LoadConfig() (Config, error) {
	if !viper.IsSet("platforms") {
		cfg := DefaultConfig()
		if mode := viper.GetString("sync_mode"); mode != "" {
			cfg.SyncMode = mode
		}
		return cfg, nil
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse configuration")
	}
	if cfg.SyncMode == "" {
		cfg.SyncMode = SyncModeSymlink
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to path as YAML. It
// refuses to overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Lstat(path); err == nil {
			return errors.Errorf("config file already exists at %s", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return errors.Wrap(err, "failed to marshal default configuration")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}
	return nil
}

// ByID returns the platform with the given id.
func (c Config) ByID(id string) (Platform, bool) {
	for _, p := range c.Platforms {
		if p.ID == id {
			return p, true
		}
	}
	return Platform{}, false
}

// SourcePlatform returns the platform marked as the sync source, if any.
func (c Config) SourcePlatform() (Platform, bool) {
	for _, p := range c.Platforms {
		if p.Source {
			return p, true
		}
	}
	return Platform{}, false
}

// Targets returns the enabled non-source platforms in registry order.
func (c Config) Targets() []Platform {
	var targets []Platform
	for _, p := range c.Platforms {
		if p.Enabled && !p.Source {
			targets = append(targets, p)
		}
	}
	return targets
}

// Detect returns the platforms whose detect path exists on this machine,
// in registry order.
func (c Config) Detect() []Platform {
	var detected []Platform
	for _, p := range c.Platforms {
		if p.DetectPath == "" {
			continue
		}
		if _, err := os.Stat(ExpandHome(p.DetectPath)); err == nil {
			detected = append(detected, p)
		}
	}
	return detected
}

// Root returns the platform's skills directory with the home prefix
// expanded.
func (p Platform) Root() string {
	return ExpandHome(p.SkillsPath)
}

// ExpandHome expands a leading ~/ to the user's home directory. Paths
// without the prefix are returned unchanged.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath is where `skillsync init` writes the configuration.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get user home directory")
	}
	return filepath.Join(home, ".skillsync", "config.yaml"), nil
}
