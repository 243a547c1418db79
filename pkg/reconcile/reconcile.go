// Package reconcile converges skill installations toward a chosen source,
// either by symlinking targets at the source or by copying the source
// tree. Each target is reconciled independently: a failure on one target
// never aborts the others, and the caller reduces the per-target outcomes
// into an aggregate result.
//
// The engine itself is interaction-free. The ASK conflict policy consults
// a caller-supplied confirmation function that must be provided up front;
// constructing an interactive reconciler without one fails fast instead
// of blocking inside the engine.
package reconcile

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/jingkaihe/skillsync/pkg/logger"
	"github.com/jingkaihe/skillsync/pkg/skills"
	"github.com/pkg/errors"
)

// Mode selects the convergence strategy.
type Mode string

const (
	// ModeLink symlinks each target at the resolved source path.
	ModeLink Mode = "symlink"
	// ModeCopy materializes an independent full copy at each target.
	ModeCopy Mode = "copy"
)

// ParseMode converts a config/flag value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "symlink", "link":
		return ModeLink, nil
	case "copy":
		return ModeCopy, nil
	default:
		return "", errors.Errorf("invalid sync mode %q (want symlink or copy)", s)
	}
}

// Policy decides what happens when a target already exists with content
// that is not the desired link/copy.
type Policy string

const (
	// PolicyAsk consults the Confirm function per conflicting target.
	PolicyAsk Policy = "ask"
	// PolicyForce overwrites conflicting targets without asking.
	PolicyForce Policy = "force"
	// PolicySkip leaves conflicting targets untouched.
	PolicySkip Policy = "skip"
)

// Action is the per-target result category.
type Action string

const (
	// ActionLinked means a fresh symlink was created.
	ActionLinked Action = "linked"
	// ActionCopied means a fresh copy was created.
	ActionCopied Action = "copied"
	// ActionAlreadyLinked means the target was already a symlink to the
	// source; nothing was changed. Distinct from ActionLinked so reports
	// can tell a no-op from fresh work, but both count as success.
	ActionAlreadyLinked Action = "already-linked"
	// ActionSkippedExisting means a conflicting target was left alone per policy.
	ActionSkippedExisting Action = "skipped-existing"
	// ActionSkippedDeclined means the user declined the overwrite prompt.
	ActionSkippedDeclined Action = "skipped-declined"
	// ActionFailed means an I/O error occurred for this target.
	ActionFailed Action = "failed"
)

// Outcome is the result of reconciling one target.
type Outcome struct {
	PlatformID string `json:"platformId"`
	Action     Action `json:"action"`
	Detail     string `json:"detail,omitempty"`
}

// Success reports whether the outcome left the target in the desired state.
func (o Outcome) Success() bool {
	switch o.Action {
	case ActionLinked, ActionCopied, ActionAlreadyLinked:
		return true
	default:
		return false
	}
}

// Skipped reports whether the target was deliberately left untouched.
func (o Outcome) Skipped() bool {
	return o.Action == ActionSkippedExisting || o.Action == ActionSkippedDeclined
}

// Target names one destination skills directory.
type Target struct {
	PlatformID string
	SkillsDir  string
}

// Reconciler applies one sync mode and conflict policy across targets.
type Reconciler struct {
	mode    Mode
	policy  Policy
	dryRun  bool
	confirm func(string) bool
}

// New builds a Reconciler. PolicyAsk without a confirmation function is
// rejected for non-dry runs: the engine has no prompt of its own and must
// never block waiting for input it cannot collect.
func New(mode Mode, policy Policy, dryRun bool, confirm func(string) bool) (*Reconciler, error) {
	switch mode {
	case ModeLink, ModeCopy:
	default:
		return nil, errors.Errorf("invalid sync mode %q", mode)
	}
	switch policy {
	case PolicyAsk, PolicyForce, PolicySkip:
	default:
		return nil, errors.Errorf("invalid conflict policy %q", policy)
	}
	if policy == PolicyAsk && confirm == nil && !dryRun {
		return nil, errors.New("conflict policy 'ask' requires a confirmation function; pre-resolve to force or skip for non-interactive runs")
	}

	return &Reconciler{mode: mode, policy: policy, dryRun: dryRun, confirm: confirm}, nil
}

// Apply reconciles every target toward sourcePath, in order. The source
// must be a valid skill directory; that check failing is the only error
// returned. Per-target failures are absorbed into their Outcome, so the
// returned slice always covers every target.
func (r *Reconciler) Apply(ctx context.Context, sourcePath string, targets []Target) ([]Outcome, error) {
	absSource, err := filepath.Abs(sourcePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve source path %s", sourcePath)
	}

	info, err := os.Stat(absSource)
	if err != nil {
		return nil, errors.Wrapf(err, "source skill not found at %s", absSource)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("source %s is not a directory", absSource)
	}
	if _, err := os.Stat(filepath.Join(absSource, skills.ManifestFileName)); err != nil {
		return nil, errors.Errorf("no %s found in %s", skills.ManifestFileName, absSource)
	}

	// Links always point at the fully-resolved absolute path so they stay
	// valid regardless of the target's working directory, and so a source
	// that is itself a symlink does not produce link chains. The install
	// name stays the name the skill was addressed by: a symlinked source
	// must not rename the skill to the resolved directory's basename.
	installName := filepath.Base(absSource)
	resolvedSource := absSource
	if resolved, err := filepath.EvalSymlinks(absSource); err == nil {
		resolvedSource = resolved
	}

	outcomes := make([]Outcome, 0, len(targets))
	for _, target := range targets {
		outcome := r.applyOne(ctx, resolvedSource, installName, target)
		logger.G(ctx).WithFields(map[string]any{
			"platform": outcome.PlatformID,
			"action":   outcome.Action,
			"source":   resolvedSource,
		}).Debug("reconciled target")
		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

// applyOne reconciles a single target. Dry runs walk exactly the same
// decision path and only skip the filesystem mutations, so preview and
// execution cannot diverge.
func (r *Reconciler) applyOne(_ context.Context, resolvedSource, installName string, target Target) Outcome {
	outcome := Outcome{PlatformID: target.PlatformID}
	targetPath := filepath.Join(target.SkillsDir, installName)

	existing, err := os.Lstat(targetPath)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		outcome.Action = ActionFailed
		outcome.Detail = fmt.Sprintf("failed to inspect target: %v", err)
		return outcome
	}

	if exists {
		if existing.Mode()&os.ModeSymlink != 0 && linkResolvesTo(targetPath, resolvedSource) {
			outcome.Action = ActionAlreadyLinked
			outcome.Detail = fmt.Sprintf("already symlinked to %s", resolvedSource)
			return outcome
		}

		switch r.policy {
		case PolicySkip:
			outcome.Action = ActionSkippedExisting
			outcome.Detail = fmt.Sprintf("existing %s left untouched", describeEntry(existing))
			return outcome
		case PolicyAsk:
			if r.dryRun && r.confirm == nil {
				// Preview cannot collect an answer; report the overwrite
				// that a confirmed run would perform.
				break
			}
			question := fmt.Sprintf("Skill already exists at %s. Overwrite?", targetPath)
			if !r.confirm(question) {
				outcome.Action = ActionSkippedDeclined
				outcome.Detail = "overwrite declined"
				return outcome
			}
		case PolicyForce:
		}
	}

	if r.dryRun {
		switch r.mode {
		case ModeLink:
			outcome.Action = ActionLinked
			outcome.Detail = fmt.Sprintf("dry run: would symlink %s -> %s", targetPath, resolvedSource)
		case ModeCopy:
			outcome.Action = ActionCopied
			outcome.Detail = fmt.Sprintf("dry run: would copy %s -> %s", resolvedSource, targetPath)
		}
		if exists {
			outcome.Detail += fmt.Sprintf(" (overwriting existing %s)", describeEntry(existing))
		}
		return outcome
	}

	if err := os.MkdirAll(target.SkillsDir, 0o755); err != nil {
		outcome.Action = ActionFailed
		outcome.Detail = fmt.Sprintf("failed to create skills directory: %v", err)
		return outcome
	}

	var destroyed string
	if exists {
		destroyed = describeEntry(existing)
	}

	switch r.mode {
	case ModeLink:
		if err := replaceWithLink(targetPath, resolvedSource, existing); err != nil {
			outcome.Action = ActionFailed
			outcome.Detail = err.Error()
			return outcome
		}
		outcome.Action = ActionLinked
		outcome.Detail = fmt.Sprintf("symlinked to %s", resolvedSource)
	case ModeCopy:
		if err := replaceWithCopy(targetPath, resolvedSource, existing); err != nil {
			outcome.Action = ActionFailed
			outcome.Detail = err.Error()
			return outcome
		}
		outcome.Action = ActionCopied
		outcome.Detail = fmt.Sprintf("copied from %s", resolvedSource)
	}

	if destroyed != "" {
		outcome.Detail += fmt.Sprintf(" (removed existing %s)", destroyed)
	}
	return outcome
}

// replaceWithLink creates the symlink at a temporary sibling name and
// renames it over the target. The rename atomically replaces an existing
// file or symlink; an existing real directory cannot be renamed over and
// is removed first, which is the one non-atomic window and is flagged in
// the outcome detail by the caller.
func replaceWithLink(targetPath, resolvedSource string, existing os.FileInfo) error {
	tmpPath := fmt.Sprintf("%s.skillsync-%d", targetPath, os.Getpid())
	if err := os.Symlink(resolvedSource, tmpPath); err != nil {
		return errors.Wrap(err, "failed to create symlink")
	}

	if existing != nil && existing.IsDir() {
		if err := os.RemoveAll(targetPath); err != nil {
			os.Remove(tmpPath)
			return errors.Wrap(err, "failed to remove existing directory")
		}
	}

	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to move symlink into place")
	}
	return nil
}

// replaceWithCopy copies the source tree into a temporary sibling
// directory and renames it over the target, removing a pre-existing
// entry first. The copy shares no storage with the source and is
// independently mutable afterwards.
func replaceWithCopy(targetPath, resolvedSource string, existing os.FileInfo) error {
	tmpDir, err := os.MkdirTemp(filepath.Dir(targetPath), ".skillsync-copy-*")
	if err != nil {
		return errors.Wrap(err, "failed to create staging directory")
	}

	// MkdirTemp creates the staging root 0700; the installed copy must
	// carry the source root's mode instead.
	if srcInfo, err := os.Stat(resolvedSource); err == nil {
		if err := os.Chmod(tmpDir, srcInfo.Mode().Perm()); err != nil {
			os.RemoveAll(tmpDir)
			return errors.Wrap(err, "failed to set staging directory mode")
		}
	}

	if err := copyTree(resolvedSource, tmpDir); err != nil {
		os.RemoveAll(tmpDir)
		return errors.Wrap(err, "failed to copy skill")
	}

	if existing != nil {
		if err := os.RemoveAll(targetPath); err != nil {
			os.RemoveAll(tmpDir)
			return errors.Wrap(err, "failed to remove existing target")
		}
	}

	if err := os.Rename(tmpDir, targetPath); err != nil {
		os.RemoveAll(tmpDir)
		return errors.Wrap(err, "failed to move copy into place")
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		destPath := filepath.Join(dst, relPath)

		if info.IsDir() {
			if relPath == "." {
				return nil
			}
			return os.MkdirAll(destPath, info.Mode())
		}

		if info.Mode()&os.ModeSymlink != 0 {
			// Symlinked subdirectories and dangling links are omitted,
			// matching what tree fingerprinting compares; symlinked
			// files are copied through below.
			resolved, statErr := os.Stat(path)
			if statErr != nil || resolved.IsDir() {
				return nil
			}
		}

		return copyFile(path, destPath)
	})
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}

// linkResolvesTo reports whether the symlink at path ultimately resolves
// to resolvedSource.
func linkResolvesTo(path, resolvedSource string) bool {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	return resolved == resolvedSource
}

func describeEntry(info fs.FileInfo) string {
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return "symlink"
	case info.IsDir():
		return "directory"
	default:
		return "file"
	}
}

// Failed reduces outcomes into a single error covering every FAILED
// target, or nil when none failed.
func Failed(outcomes []Outcome) error {
	var result *multierror.Error
	for _, o := range outcomes {
		if o.Action == ActionFailed {
			result = multierror.Append(result, errors.Errorf("%s: %s", o.PlatformID, o.Detail))
		}
	}
	return result.ErrorOrNil()
}
