package platform

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(roots ...string) Config {
	cfg := Config{SyncMode: SyncModeSymlink}
	ids := []string{"claude", "codex", "gemini", "copilot"}
	for i, root := range roots {
		cfg.Platforms = append(cfg.Platforms, Platform{
			ID:         ids[i],
			Name:       ids[i],
			SkillsPath: root,
			Enabled:    true,
			Source:     i == 0,
		})
	}
	return cfg
}

func writeSkillFixture(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	manifest := "---\nname: " + filepath.Base(dir) + "\ndescription: Test skill\n---\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(manifest), 0o644))
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestLocate(t *testing.T) {
	ctx := context.Background()

	t.Run("absent platforms are omitted", func(t *testing.T) {
		rootA := filepath.Join(t.TempDir(), "a")
		rootB := filepath.Join(t.TempDir(), "b")
		writeSkillFixture(t, filepath.Join(rootA, "my-skill"), nil)
		require.NoError(t, os.MkdirAll(rootB, 0o755))

		snaps, order, err := Locate(ctx, "my-skill", testConfig(rootA, rootB))
		require.NoError(t, err)

		assert.Equal(t, []string{"claude"}, order)
		require.Contains(t, snaps, "claude")
		assert.NotContains(t, snaps, "codex")
	})

	t.Run("snapshot carries fingerprints and manifest", func(t *testing.T) {
		rootA := t.TempDir()
		writeSkillFixture(t, filepath.Join(rootA, "my-skill"), map[string]string{
			"reference.md": "docs",
		})

		snaps, order, err := Locate(ctx, "my-skill", testConfig(rootA))
		require.NoError(t, err)
		require.Equal(t, []string{"claude"}, order)

		snap := snaps["claude"]
		assert.True(t, snap.Exists)
		assert.False(t, snap.IsSymlink)
		assert.Contains(t, snap.Files, "SKILL.md")
		assert.Contains(t, snap.Files, "reference.md")
		assert.Equal(t, "my-skill", snap.Manifest["name"])
	})

	t.Run("symlinked installation reports its target", func(t *testing.T) {
		rootA := filepath.Join(t.TempDir(), "a")
		rootB := filepath.Join(t.TempDir(), "b")
		realSkill := filepath.Join(rootA, "my-skill")
		writeSkillFixture(t, realSkill, nil)

		require.NoError(t, os.MkdirAll(rootB, 0o755))
		require.NoError(t, os.Symlink(realSkill, filepath.Join(rootB, "my-skill")))

		snaps, order, err := Locate(ctx, "my-skill", testConfig(rootA, rootB))
		require.NoError(t, err)
		assert.Equal(t, []string{"claude", "codex"}, order)

		linked := snaps["codex"]
		assert.True(t, linked.IsSymlink)

		resolved, err := filepath.EvalSymlinks(realSkill)
		require.NoError(t, err)
		assert.Equal(t, resolved, linked.SymlinkTarget)
		// The linked installation fingerprints the real content.
		assert.Contains(t, linked.Files, "SKILL.md")
	})

	t.Run("dangling symlink is reported not fatal", func(t *testing.T) {
		tmpDir := t.TempDir()
		rootA := filepath.Join(tmpDir, "a")
		require.NoError(t, os.MkdirAll(rootA, 0o755))

		missing := filepath.Join(tmpDir, "gone", "my-skill")
		require.NoError(t, os.Symlink(missing, filepath.Join(rootA, "my-skill")))

		snaps, order, err := Locate(ctx, "my-skill", testConfig(rootA))
		require.NoError(t, err)
		require.Equal(t, []string{"claude"}, order)

		snap := snaps["claude"]
		assert.True(t, snap.IsSymlink)
		assert.Equal(t, missing, snap.SymlinkTarget)
		assert.Empty(t, snap.Files)
	})

	t.Run("installed but empty differs from not installed", func(t *testing.T) {
		rootA := filepath.Join(t.TempDir(), "a")
		emptySkill := filepath.Join(rootA, "my-skill")
		require.NoError(t, os.MkdirAll(emptySkill, 0o755))

		snaps, order, err := Locate(ctx, "my-skill", testConfig(rootA))
		require.NoError(t, err)
		assert.Equal(t, []string{"claude"}, order)
		assert.True(t, snaps["claude"].Exists)
		assert.Empty(t, snaps["claude"].Files)
		assert.Nil(t, snaps["claude"].Manifest)
	})
}

func TestSnapshotResolvedPath(t *testing.T) {
	tmpDir := t.TempDir()
	real := filepath.Join(tmpDir, "real")
	require.NoError(t, os.MkdirAll(real, 0o755))
	link := filepath.Join(tmpDir, "link")
	require.NoError(t, os.Symlink(real, link))

	resolvedReal, err := filepath.EvalSymlinks(real)
	require.NoError(t, err)

	snap := Snapshot{SkillPath: link, IsSymlink: true, SymlinkTarget: resolvedReal}
	assert.Equal(t, resolvedReal, snap.ResolvedPath())

	dangling := Snapshot{SkillPath: filepath.Join(tmpDir, "nope"), IsSymlink: true, SymlinkTarget: "/somewhere/else"}
	assert.Equal(t, "/somewhere/else", dangling.ResolvedPath())
}
