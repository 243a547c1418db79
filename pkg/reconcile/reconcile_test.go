package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSourceSkill(t *testing.T, dir string, files map[string]string) {
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

func mustNew(t *testing.T, mode Mode, policy Policy, dryRun bool, confirm func(string) bool) *Reconciler {
	t.Helper()
	r, err := New(mode, policy, dryRun, confirm)
	require.NoError(t, err)
	return r
}

func TestParseMode(t *testing.T) {
	for input, want := range map[string]Mode{"symlink": ModeLink, "link": ModeLink, "copy": ModeCopy} {
		mode, err := ParseMode(input)
		require.NoError(t, err)
		assert.Equal(t, want, mode)
	}

	_, err := ParseMode("hardlink")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	t.Run("ask requires a confirmation function", func(t *testing.T) {
		_, err := New(ModeLink, PolicyAsk, false, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pre-resolve")
	})

	t.Run("ask with confirm is fine", func(t *testing.T) {
		_, err := New(ModeLink, PolicyAsk, false, func(string) bool { return true })
		assert.NoError(t, err)
	})

	t.Run("ask in dry run needs no confirm", func(t *testing.T) {
		_, err := New(ModeLink, PolicyAsk, true, nil)
		assert.NoError(t, err)
	})

	t.Run("invalid mode", func(t *testing.T) {
		_, err := New(Mode("hardlink"), PolicyForce, false, nil)
		assert.Error(t, err)
	})
}

func TestApplySourceValidation(t *testing.T) {
	ctx := context.Background()
	r := mustNew(t, ModeLink, PolicyForce, false, nil)

	t.Run("missing source", func(t *testing.T) {
		_, err := r.Apply(ctx, filepath.Join(t.TempDir(), "nope"), nil)
		assert.Error(t, err)
	})

	t.Run("source without manifest", func(t *testing.T) {
		dir := t.TempDir()
		_, err := r.Apply(ctx, dir, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SKILL.md")
	})
}

func TestApplyLink(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh link", func(t *testing.T) {
		tmpDir := t.TempDir()
		source := filepath.Join(tmpDir, "my-skill")
		writeSourceSkill(t, source, nil)
		targetRoot := filepath.Join(tmpDir, "codex-skills")

		r := mustNew(t, ModeLink, PolicyForce, false, nil)
		outcomes, err := r.Apply(ctx, source, []Target{{PlatformID: "codex", SkillsDir: targetRoot}})
		require.NoError(t, err)
		require.Len(t, outcomes, 1)
		assert.Equal(t, ActionLinked, outcomes[0].Action)
		assert.True(t, outcomes[0].Success())

		linkPath := filepath.Join(targetRoot, "my-skill")
		resolved, err := filepath.EvalSymlinks(linkPath)
		require.NoError(t, err)
		expected, err := filepath.EvalSymlinks(source)
		require.NoError(t, err)
		assert.Equal(t, expected, resolved)
	})

	t.Run("second run is already-linked", func(t *testing.T) {
		tmpDir := t.TempDir()
		source := filepath.Join(tmpDir, "my-skill")
		writeSourceSkill(t, source, nil)
		targets := []Target{{PlatformID: "codex", SkillsDir: filepath.Join(tmpDir, "codex-skills")}}

		r := mustNew(t, ModeLink, PolicyForce, false, nil)

		first, err := r.Apply(ctx, source, targets)
		require.NoError(t, err)
		assert.Equal(t, ActionLinked, first[0].Action)

		second, err := r.Apply(ctx, source, targets)
		require.NoError(t, err)
		assert.Equal(t, ActionAlreadyLinked, second[0].Action)
		assert.True(t, second[0].Success())
	})

	t.Run("no stray staging entries", func(t *testing.T) {
		tmpDir := t.TempDir()
		source := filepath.Join(tmpDir, "my-skill")
		writeSourceSkill(t, source, nil)
		targetRoot := filepath.Join(tmpDir, "codex-skills")

		r := mustNew(t, ModeLink, PolicyForce, false, nil)
		_, err := r.Apply(ctx, source, []Target{{PlatformID: "codex", SkillsDir: targetRoot}})
		require.NoError(t, err)

		entries, err := os.ReadDir(targetRoot)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("force overwrites an existing directory", func(t *testing.T) {
		tmpDir := t.TempDir()
		source := filepath.Join(tmpDir, "my-skill")
		writeSourceSkill(t, source, nil)

		targetRoot := filepath.Join(tmpDir, "codex-skills")
		writeSourceSkill(t, filepath.Join(targetRoot, "my-skill"), map[string]string{"old.txt": "stale"})

		r := mustNew(t, ModeLink, PolicyForce, false, nil)
		outcomes, err := r.Apply(ctx, source, []Target{{PlatformID: "codex", SkillsDir: targetRoot}})
		require.NoError(t, err)
		assert.Equal(t, ActionLinked, outcomes[0].Action)
		assert.Contains(t, outcomes[0].Detail, "removed existing directory")

		info, err := os.Lstat(filepath.Join(targetRoot, "my-skill"))
		require.NoError(t, err)
		assert.NotZero(t, info.Mode()&os.ModeSymlink)
	})

	t.Run("symlinked source installs under the link's name", func(t *testing.T) {
		tmpDir := t.TempDir()
		real := filepath.Join(tmpDir, "realname")
		writeSourceSkill(t, real, nil)
		source := filepath.Join(tmpDir, "my-skill")
		require.NoError(t, os.Symlink(real, source))
		targetRoot := filepath.Join(tmpDir, "codex-skills")

		r := mustNew(t, ModeLink, PolicyForce, false, nil)
		outcomes, err := r.Apply(ctx, source, []Target{{PlatformID: "codex", SkillsDir: targetRoot}})
		require.NoError(t, err)
		assert.Equal(t, ActionLinked, outcomes[0].Action)

		_, err = os.Lstat(filepath.Join(targetRoot, "realname"))
		assert.True(t, os.IsNotExist(err))

		// Installed under the addressed name, pointing at the real tree.
		resolved, err := filepath.EvalSymlinks(filepath.Join(targetRoot, "my-skill"))
		require.NoError(t, err)
		expected, err := filepath.EvalSymlinks(real)
		require.NoError(t, err)
		assert.Equal(t, expected, resolved)
	})

	t.Run("relinks a symlink pointing elsewhere", func(t *testing.T) {
		tmpDir := t.TempDir()
		source := filepath.Join(tmpDir, "my-skill")
		writeSourceSkill(t, source, nil)
		other := filepath.Join(tmpDir, "other-skill")
		writeSourceSkill(t, other, nil)

		targetRoot := filepath.Join(tmpDir, "codex-skills")
		require.NoError(t, os.MkdirAll(targetRoot, 0o755))
		require.NoError(t, os.Symlink(other, filepath.Join(targetRoot, "my-skill")))

		r := mustNew(t, ModeLink, PolicyForce, false, nil)
		outcomes, err := r.Apply(ctx, source, []Target{{PlatformID: "codex", SkillsDir: targetRoot}})
		require.NoError(t, err)
		assert.Equal(t, ActionLinked, outcomes[0].Action)

		resolved, err := filepath.EvalSymlinks(filepath.Join(targetRoot, "my-skill"))
		require.NoError(t, err)
		expected, err := filepath.EvalSymlinks(source)
		require.NoError(t, err)
		assert.Equal(t, expected, resolved)
	})
}

func TestApplyCopy(t *testing.T) {
	ctx := context.Background()

	t.Run("copy is a real independent tree", func(t *testing.T) {
		tmpDir := t.TempDir()
		source := filepath.Join(tmpDir, "my-skill")
		writeSourceSkill(t, source, map[string]string{"scripts/run.sh": "echo hi"})
		targetRoot := filepath.Join(tmpDir, "codex-skills")

		r := mustNew(t, ModeCopy, PolicyForce, false, nil)
		outcomes, err := r.Apply(ctx, source, []Target{{PlatformID: "codex", SkillsDir: targetRoot}})
		require.NoError(t, err)
		assert.Equal(t, ActionCopied, outcomes[0].Action)

		targetPath := filepath.Join(targetRoot, "my-skill")
		info, err := os.Lstat(targetPath)
		require.NoError(t, err)
		assert.Zero(t, info.Mode()&os.ModeSymlink)
		assert.True(t, info.IsDir())

		copied, err := os.ReadFile(filepath.Join(targetPath, "scripts", "run.sh"))
		require.NoError(t, err)
		assert.Equal(t, "echo hi", string(copied))

		// Mutating the copy must not touch the source.
		require.NoError(t, os.WriteFile(filepath.Join(targetPath, "scripts", "run.sh"), []byte("changed"), 0o644))
		original, err := os.ReadFile(filepath.Join(source, "scripts", "run.sh"))
		require.NoError(t, err)
		assert.Equal(t, "echo hi", string(original))
	})

	t.Run("symlink entries copy like they fingerprint", func(t *testing.T) {
		tmpDir := t.TempDir()
		source := filepath.Join(tmpDir, "my-skill")
		writeSourceSkill(t, source, map[string]string{"notes.txt": "kept"})

		shared := filepath.Join(tmpDir, "shared")
		require.NoError(t, os.MkdirAll(shared, 0o755))
		require.NoError(t, os.Symlink(shared, filepath.Join(source, "linked-dir")))
		require.NoError(t, os.Symlink(filepath.Join(source, "notes.txt"), filepath.Join(source, "linked.txt")))
		require.NoError(t, os.Symlink(filepath.Join(tmpDir, "gone"), filepath.Join(source, "dangling.txt")))

		targetRoot := filepath.Join(tmpDir, "codex-skills")
		r := mustNew(t, ModeCopy, PolicyForce, false, nil)
		outcomes, err := r.Apply(ctx, source, []Target{{PlatformID: "codex", SkillsDir: targetRoot}})
		require.NoError(t, err)
		require.Equal(t, ActionCopied, outcomes[0].Action, outcomes[0].Detail)

		targetPath := filepath.Join(targetRoot, "my-skill")
		_, err = os.Lstat(filepath.Join(targetPath, "linked-dir"))
		assert.True(t, os.IsNotExist(err))
		_, err = os.Lstat(filepath.Join(targetPath, "dangling.txt"))
		assert.True(t, os.IsNotExist(err))

		linked, err := os.ReadFile(filepath.Join(targetPath, "linked.txt"))
		require.NoError(t, err)
		assert.Equal(t, "kept", string(linked))
	})

	t.Run("copy keeps the source directory mode", func(t *testing.T) {
		tmpDir := t.TempDir()
		source := filepath.Join(tmpDir, "my-skill")
		writeSourceSkill(t, source, nil)
		require.NoError(t, os.Chmod(source, 0o750))
		targetRoot := filepath.Join(tmpDir, "codex-skills")

		r := mustNew(t, ModeCopy, PolicyForce, false, nil)
		outcomes, err := r.Apply(ctx, source, []Target{{PlatformID: "codex", SkillsDir: targetRoot}})
		require.NoError(t, err)
		require.Equal(t, ActionCopied, outcomes[0].Action)

		info, err := os.Stat(filepath.Join(targetRoot, "my-skill"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o750), info.Mode().Perm())
	})

	t.Run("overwrites existing content under force", func(t *testing.T) {
		tmpDir := t.TempDir()
		source := filepath.Join(tmpDir, "my-skill")
		writeSourceSkill(t, source, map[string]string{"new.txt": "fresh"})

		targetRoot := filepath.Join(tmpDir, "codex-skills")
		writeSourceSkill(t, filepath.Join(targetRoot, "my-skill"), map[string]string{"old.txt": "stale"})

		r := mustNew(t, ModeCopy, PolicyForce, false, nil)
		outcomes, err := r.Apply(ctx, source, []Target{{PlatformID: "codex", SkillsDir: targetRoot}})
		require.NoError(t, err)
		assert.Equal(t, ActionCopied, outcomes[0].Action)

		_, err = os.Stat(filepath.Join(targetRoot, "my-skill", "old.txt"))
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(filepath.Join(targetRoot, "my-skill", "new.txt"))
		assert.NoError(t, err)
	})
}

func TestApplyConflictPolicies(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (string, string) {
		tmpDir := t.TempDir()
		source := filepath.Join(tmpDir, "my-skill")
		writeSourceSkill(t, source, nil)
		targetRoot := filepath.Join(tmpDir, "codex-skills")
		writeSourceSkill(t, filepath.Join(targetRoot, "my-skill"), map[string]string{"local.txt": "precious"})
		return source, targetRoot
	}

	t.Run("skip leaves the target untouched", func(t *testing.T) {
		source, targetRoot := setup(t)

		r := mustNew(t, ModeLink, PolicySkip, false, nil)
		outcomes, err := r.Apply(ctx, source, []Target{{PlatformID: "codex", SkillsDir: targetRoot}})
		require.NoError(t, err)
		assert.Equal(t, ActionSkippedExisting, outcomes[0].Action)
		assert.True(t, outcomes[0].Skipped())

		content, err := os.ReadFile(filepath.Join(targetRoot, "my-skill", "local.txt"))
		require.NoError(t, err)
		assert.Equal(t, "precious", string(content))
	})

	t.Run("ask declined", func(t *testing.T) {
		source, targetRoot := setup(t)

		var question string
		r := mustNew(t, ModeLink, PolicyAsk, false, func(q string) bool {
			question = q
			return false
		})

		outcomes, err := r.Apply(ctx, source, []Target{{PlatformID: "codex", SkillsDir: targetRoot}})
		require.NoError(t, err)
		assert.Equal(t, ActionSkippedDeclined, outcomes[0].Action)
		assert.Contains(t, question, "my-skill")

		_, err = os.Stat(filepath.Join(targetRoot, "my-skill", "local.txt"))
		assert.NoError(t, err)
	})

	t.Run("ask accepted overwrites", func(t *testing.T) {
		source, targetRoot := setup(t)

		r := mustNew(t, ModeLink, PolicyAsk, false, func(string) bool { return true })
		outcomes, err := r.Apply(ctx, source, []Target{{PlatformID: "codex", SkillsDir: targetRoot}})
		require.NoError(t, err)
		assert.Equal(t, ActionLinked, outcomes[0].Action)
	})

	t.Run("already linked needs no confirmation", func(t *testing.T) {
		tmpDir := t.TempDir()
		source := filepath.Join(tmpDir, "my-skill")
		writeSourceSkill(t, source, nil)
		targetRoot := filepath.Join(tmpDir, "codex-skills")
		require.NoError(t, os.MkdirAll(targetRoot, 0o755))

		resolved, err := filepath.EvalSymlinks(source)
		require.NoError(t, err)
		require.NoError(t, os.Symlink(resolved, filepath.Join(targetRoot, "my-skill")))

		r := mustNew(t, ModeLink, PolicyAsk, false, func(string) bool {
			t.Fatal("confirm must not be called for an already-correct target")
			return false
		})
		outcomes, err := r.Apply(ctx, source, []Target{{PlatformID: "codex", SkillsDir: targetRoot}})
		require.NoError(t, err)
		assert.Equal(t, ActionAlreadyLinked, outcomes[0].Action)
	})
}

// Dry runs must walk the same decision path as real runs: for an
// identical starting filesystem state, the reported action matches what
// execution would do.
func TestApplyDryRunParity(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name     string
		mode     Mode
		existing bool
	}{
		{name: "fresh link", mode: ModeLink},
		{name: "fresh copy", mode: ModeCopy},
		{name: "link over existing", mode: ModeLink, existing: true},
		{name: "copy over existing", mode: ModeCopy, existing: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			build := func(t *testing.T) (string, []Target) {
				tmpDir := t.TempDir()
				source := filepath.Join(tmpDir, "my-skill")
				writeSourceSkill(t, source, nil)
				targetRoot := filepath.Join(tmpDir, "codex-skills")
				if tc.existing {
					writeSourceSkill(t, filepath.Join(targetRoot, "my-skill"), map[string]string{"old.txt": "x"})
				}
				return source, []Target{{PlatformID: "codex", SkillsDir: targetRoot}}
			}

			source, targets := build(t)
			preview := mustNew(t, tc.mode, PolicyForce, true, nil)
			previewOutcomes, err := preview.Apply(ctx, source, targets)
			require.NoError(t, err)

			// Preview must not create anything.
			_, statErr := os.Lstat(filepath.Join(targets[0].SkillsDir, "my-skill"))
			if tc.existing {
				assert.NoError(t, statErr)
				_, err := os.Stat(filepath.Join(targets[0].SkillsDir, "my-skill", "old.txt"))
				assert.NoError(t, err)
			} else {
				assert.True(t, os.IsNotExist(statErr))
			}

			source2, targets2 := build(t)
			real := mustNew(t, tc.mode, PolicyForce, false, nil)
			realOutcomes, err := real.Apply(ctx, source2, targets2)
			require.NoError(t, err)

			assert.Equal(t, realOutcomes[0].Action, previewOutcomes[0].Action)
			assert.True(t, strings.HasPrefix(previewOutcomes[0].Detail, "dry run:"))
		})
	}
}

func TestApplyFailureIsolation(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()
	source := filepath.Join(tmpDir, "my-skill")
	writeSourceSkill(t, source, nil)

	// The first target's skills dir is an existing regular file, so
	// MkdirAll fails; the second target is fine.
	badRoot := filepath.Join(tmpDir, "bad-skills")
	require.NoError(t, os.WriteFile(badRoot, []byte("not a dir"), 0o644))
	goodRoot := filepath.Join(tmpDir, "good-skills")

	r := mustNew(t, ModeLink, PolicyForce, false, nil)
	outcomes, err := r.Apply(ctx, source, []Target{
		{PlatformID: "bad", SkillsDir: badRoot},
		{PlatformID: "good", SkillsDir: goodRoot},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, ActionFailed, outcomes[0].Action)
	assert.Equal(t, ActionLinked, outcomes[1].Action)

	aggErr := Failed(outcomes)
	require.Error(t, aggErr)
	assert.Contains(t, aggErr.Error(), "bad")
}

func TestFailed(t *testing.T) {
	assert.NoError(t, Failed(nil))
	assert.NoError(t, Failed([]Outcome{{PlatformID: "a", Action: ActionLinked}}))

	err := Failed([]Outcome{
		{PlatformID: "a", Action: ActionLinked},
		{PlatformID: "b", Action: ActionFailed, Detail: "boom"},
		{PlatformID: "c", Action: ActionFailed, Detail: "bang"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "bang")
}
