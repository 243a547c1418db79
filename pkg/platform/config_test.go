package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, SyncModeSymlink, cfg.SyncMode)
	require.Len(t, cfg.Platforms, 4)

	// Registry order is significant: it decides the audit baseline.
	ids := make([]string, 0, len(cfg.Platforms))
	for _, p := range cfg.Platforms {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"claude", "codex", "gemini", "copilot"}, ids)

	source, ok := cfg.SourcePlatform()
	require.True(t, ok)
	assert.Equal(t, "claude", source.ID)
}

func TestConfigTargets(t *testing.T) {
	cfg := Config{Platforms: []Platform{
		{ID: "a", Enabled: true, Source: true},
		{ID: "b", Enabled: true},
		{ID: "c", Enabled: false},
		{ID: "d", Enabled: true},
	}}

	targets := cfg.Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, "b", targets[0].ID)
	assert.Equal(t, "d", targets[1].ID)
}

func TestConfigByID(t *testing.T) {
	cfg := DefaultConfig()

	p, ok := cfg.ByID("codex")
	require.True(t, ok)
	assert.Equal(t, "OpenAI Codex", p.Name)

	_, ok = cfg.ByID("unknown")
	assert.False(t, ok)
}

func TestConfigDetect(t *testing.T) {
	tmpDir := t.TempDir()
	present := filepath.Join(tmpDir, "present")
	require.NoError(t, os.MkdirAll(present, 0o755))

	cfg := Config{Platforms: []Platform{
		{ID: "here", DetectPath: present},
		{ID: "gone", DetectPath: filepath.Join(tmpDir, "missing")},
		{ID: "blank"},
	}}

	detected := cfg.Detect()
	require.Len(t, detected, 1)
	assert.Equal(t, "here", detected[0].ID)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".claude", "skills"), ExpandHome("~/.claude/skills"))
	assert.Equal(t, home, ExpandHome("~"))
	assert.Equal(t, "/absolute/path", ExpandHome("/absolute/path"))
	assert.Equal(t, "relative/path", ExpandHome("relative/path"))
}

func TestWriteDefault(t *testing.T) {
	t.Run("writes parseable yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "conf", "config.yaml")
		require.NoError(t, WriteDefault(path, false))

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var cfg Config
		require.NoError(t, yaml.Unmarshal(data, &cfg))
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("refuses to overwrite without force", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("custom: true\n"), 0o644))

		err := WriteDefault(path, false)
		assert.Error(t, err)

		assert.NoError(t, WriteDefault(path, true))
	})
}
