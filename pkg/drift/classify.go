// Package drift classifies the consistency of a skill's installations
// across platforms. The result is a derived report, recomputed on every
// audit and never persisted: the filesystem remains the only source of
// truth.
package drift

import (
	"sort"

	"github.com/jingkaihe/skillsync/pkg/fingerprint"
	"github.com/jingkaihe/skillsync/pkg/platform"
)

// Status is the overall verdict for one skill across platforms.
type Status string

const (
	// StatusSingle means the skill exists on fewer than two platforms.
	StatusSingle Status = "single"
	// StatusSynced means the installations converge via symlinks.
	StatusSynced Status = "synced"
	// StatusDrift means at least one platform diverges from the baseline.
	StatusDrift Status = "drift"
	// StatusOK means all installations are real copies with identical content.
	StatusOK Status = "ok"
)

// Modified records a file present on both the baseline and another
// platform with differing content.
type Modified struct {
	RelPath      string `json:"relPath"`
	BaselineHash string `json:"baselineHash"`
	OtherHash    string `json:"otherHash"`
}

// Report is the structured diff for one skill.
type Report struct {
	Status        Status                `json:"status"`
	Platforms     []string              `json:"platforms"`
	Baseline      string                `json:"baseline,omitempty"`
	MissingFiles  map[string][]string   `json:"missingFiles,omitempty"`
	ExtraFiles    map[string][]string   `json:"extraFiles,omitempty"`
	ModifiedFiles map[string][]Modified `json:"modifiedFiles,omitempty"`
	SymlinkTarget string                `json:"symlinkTarget,omitempty"`
}

// Classify compares the installations of one skill and reports their
// consistency. order lists the platform ids in registry order and
// decides the comparison baseline.
//
// The symlink-convergence check (SYNCED) is symmetric: it holds or fails
// regardless of platform order. The file-level DRIFT/OK comparison is
// deliberately baseline-relative: the first platform in order is the
// baseline, and missing/extra/modified are reported from its point of
// view. Registry order is stable across runs, so reports are
// reproducible; swapping the registry order swaps which side files are
// reported "missing" versus "extra" on.
func Classify(order []string, snaps map[string]platform.Snapshot) Report {
	report := Report{
		Status:        StatusOK,
		Platforms:     order,
		MissingFiles:  make(map[string][]string),
		ExtraFiles:    make(map[string][]string),
		ModifiedFiles: make(map[string][]Modified),
	}

	if len(order) < 2 {
		report.Status = StatusSingle
		return report
	}

	if target, synced := symlinkConvergence(order, snaps); synced {
		report.Status = StatusSynced
		report.SymlinkTarget = target
		return report
	}

	baseline := order[0]
	report.Baseline = baseline
	baseFiles := snaps[baseline].Files

	for _, id := range order[1:] {
		otherFiles := snaps[id].Files

		var missing, extra []string
		var modified []Modified

		for rel, baseFP := range baseFiles {
			otherFP, ok := otherFiles[rel]
			if !ok {
				missing = append(missing, rel)
				continue
			}
			if !fingerprint.Equal(baseFP, otherFP) {
				modified = append(modified, Modified{
					RelPath:      rel,
					BaselineHash: baseFP.Hash,
					OtherHash:    otherFP.Hash,
				})
			}
		}
		for rel := range otherFiles {
			if _, ok := baseFiles[rel]; !ok {
				extra = append(extra, rel)
			}
		}

		sort.Strings(missing)
		sort.Strings(extra)
		sort.Slice(modified, func(i, j int) bool { return modified[i].RelPath < modified[j].RelPath })

		if len(missing) > 0 {
			report.MissingFiles[id] = missing
			report.Status = StatusDrift
		}
		if len(extra) > 0 {
			report.ExtraFiles[id] = extra
			report.Status = StatusDrift
		}
		if len(modified) > 0 {
			report.ModifiedFiles[id] = modified
			report.Status = StatusDrift
		}
	}

	return report
}

// symlinkConvergence reports whether the installations converge on a
// single real copy. Two shapes qualify: every installation is a symlink
// with an identical target, or at least one real copy exists and every
// symlink resolves to one of the real copies (hub and spoke).
func symlinkConvergence(order []string, snaps map[string]platform.Snapshot) (string, bool) {
	var linkTargets []string
	realPaths := make(map[string]bool)

	for _, id := range order {
		snap := snaps[id]
		if snap.IsSymlink {
			if snap.SymlinkTarget == "" {
				return "", false
			}
			linkTargets = append(linkTargets, snap.SymlinkTarget)
		} else {
			realPaths[snap.ResolvedPath()] = true
		}
	}

	if len(linkTargets) == 0 {
		return "", false
	}

	if len(realPaths) == 0 {
		// All installations are symlinks: they converge only if every
		// target is identical.
		for _, target := range linkTargets[1:] {
			if target != linkTargets[0] {
				return "", false
			}
		}
		return linkTargets[0], true
	}

	// Hub and spoke: every symlink must point at one of the real copies.
	for _, target := range linkTargets {
		if !realPaths[target] {
			return "", false
		}
	}
	return linkTargets[0], true
}
