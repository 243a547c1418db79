package platform

import (
	"context"
	"os"
	"path/filepath"

	"github.com/jingkaihe/skillsync/pkg/fingerprint"
	"github.com/jingkaihe/skillsync/pkg/logger"
	"github.com/jingkaihe/skillsync/pkg/skills"
	"github.com/pkg/errors"
)

// fingerprintWorkers bounds the concurrent tree walks during Locate.
const fingerprintWorkers = 4

// Snapshot captures one installation of a skill at one platform root at
// audit time. It is built once per invocation and treated as immutable
// afterwards.
type Snapshot struct {
	PlatformID    string                                 `json:"platformId"`
	Root          string                                 `json:"root"`
	SkillPath     string                                 `json:"skillPath"`
	Exists        bool                                   `json:"exists"`
	IsSymlink     bool                                   `json:"isSymlink"`
	SymlinkTarget string                                 `json:"symlinkTarget,omitempty"`
	Files         map[string]fingerprint.FileFingerprint `json:"files"`
	Manifest      map[string]any                         `json:"manifest,omitempty"`
}

// ResolvedPath returns the skill path with all symlinks resolved. When
// full resolution fails (dangling link), the symlink target or the raw
// path is returned instead so comparisons stay meaningful.
func (s Snapshot) ResolvedPath() string {
	if resolved, err := filepath.EvalSymlinks(s.SkillPath); err == nil {
		return resolved
	}
	if s.SymlinkTarget != "" {
		return s.SymlinkTarget
	}
	return s.SkillPath
}

// Locate snapshots skillName across every configured platform root.
// Platforms where root/skillName does not exist are omitted from the
// result entirely; "not in the map" means not installed, which is
// distinct from installed-but-empty. The returned slice lists the
// present platform ids in registry order.
//
// Installation trees are independent read-only walks, so they are
// fingerprinted concurrently up to a bounded worker count.
func Locate(ctx context.Context, skillName string, cfg Config) (map[string]Snapshot, []string, error) {
	snapshots := make(map[string]Snapshot)
	var order []string

	for _, p := range cfg.Platforms {
		root := p.Root()
		skillPath := filepath.Join(root, skillName)

		// Lstat so a dangling symlink still counts as present.
		info, err := os.Lstat(skillPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, nil, errors.Wrapf(err, "failed to stat %s", skillPath)
		}

		snap := Snapshot{
			PlatformID: p.ID,
			Root:       root,
			SkillPath:  skillPath,
			Exists:     true,
			IsSymlink:  info.Mode()&os.ModeSymlink != 0,
		}

		if snap.IsSymlink {
			snap.SymlinkTarget = resolveLinkTarget(skillPath)
		}

		if manifest, err := skills.LoadManifest(skillPath); err == nil {
			snap.Manifest = manifest.Metadata
		} else {
			logger.G(ctx).WithError(err).WithFields(map[string]any{
				"platform": p.ID,
				"path":     skillPath,
			}).Debug("installation has no valid manifest")
		}

		snapshots[p.ID] = snap
		order = append(order, p.ID)
	}

	roots := make(map[string]string, len(order))
	for _, id := range order {
		roots[id] = snapshots[id].SkillPath
	}

	trees, err := fingerprint.Trees(ctx, roots, fingerprintWorkers)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to fingerprint installations of %s", skillName)
	}
	for id, files := range trees {
		snap := snapshots[id]
		snap.Files = files
		snapshots[id] = snap
	}

	return snapshots, order, nil
}

// resolveLinkTarget reports where a symlink points: the fully resolved
// path when every hop exists, otherwise the immediate target made
// absolute. A dangling link is a reportable state, not an error.
func resolveLinkTarget(linkPath string) string {
	target, err := os.Readlink(linkPath)
	if err != nil {
		return ""
	}

	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(linkPath), target)
	}
	target = filepath.Clean(target)

	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		return resolved
	}
	return target
}
