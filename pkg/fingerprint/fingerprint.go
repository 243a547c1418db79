// Package fingerprint computes content identities for files and directory
// trees. A fingerprint is the MD5 digest of a file's bytes plus its size;
// a tree fingerprint maps slash-separated relative paths to file
// fingerprints. Unreadable files degrade to a sentinel hash that compares
// unequal to everything, so a single bad file never aborts an audit.
package fingerprint

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jingkaihe/skillsync/pkg/logger"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ErrorHash is the sentinel recorded for files that could not be read.
// It is never equal to a real digest and two sentinels are never treated
// as equal either; see Equal.
const ErrorHash = "ERROR"

// FileFingerprint identifies a file's content within one installation.
type FileFingerprint struct {
	RelPath string `json:"relPath"`
	Hash    string `json:"hash"`
	Size    int64  `json:"size"`
}

// Equal reports whether two fingerprints have identical content. The
// sentinel hash compares unequal to any hash, including another sentinel,
// so unreadable files never mask real drift.
func Equal(a, b FileFingerprint) bool {
	if a.Hash == ErrorHash || b.Hash == ErrorHash {
		return false
	}
	return a.Hash == b.Hash
}

// File fingerprints a single file. It never fails: read errors produce a
// fingerprint carrying ErrorHash and are logged at warning level.
func File(path string) FileFingerprint {
	fp := FileFingerprint{RelPath: filepath.Base(path)}

	f, err := os.Open(path)
	if err != nil {
		logger.L.WithError(err).WithField("path", path).Warn("failed to open file for fingerprinting")
		fp.Hash = ErrorHash
		return fp
	}
	defer f.Close()

	h := md5.New()
	n, err := io.Copy(h, f)
	if err != nil {
		logger.L.WithError(err).WithField("path", path).Warn("failed to read file for fingerprinting")
		fp.Hash = ErrorHash
		return fp
	}

	fp.Hash = hex.EncodeToString(h.Sum(nil))
	fp.Size = n
	return fp
}

// Tree walks root recursively and fingerprints every regular file, keyed
// by slash-separated path relative to root. Symlinked files are read
// through; symlinked subdirectories are deliberately not followed so a
// self-referential link cannot loop the walk. A missing root yields an
// empty map.
func Tree(root string) (map[string]FileFingerprint, error) {
	files := make(map[string]FileFingerprint)

	if _, err := os.Stat(root); err != nil {
		// Missing root (including a dangling symlink) is an empty
		// installation, not an error.
		if os.IsNotExist(err) {
			return files, nil
		}
		return nil, errors.Wrapf(err, "failed to stat %s", root)
	}

	// The root itself may be a symlink to the real installation; walk the
	// resolved directory so linked installations are fingerprinted like
	// real copies.
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable directories degrade like unreadable files:
			// log and keep walking the rest of the tree.
			logger.L.WithError(err).WithField("path", path).Warn("failed to walk directory entry")
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			// Symlink to a directory: record nothing, do not descend.
			// Symlink to a file: fingerprint the target's content.
			info, statErr := os.Stat(path)
			if statErr != nil || info.IsDir() {
				return nil
			}
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return errors.Wrapf(relErr, "failed to relativize %s", path)
		}

		fp := File(path)
		fp.RelPath = filepath.ToSlash(rel)
		files[fp.RelPath] = fp
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk %s", root)
	}

	return files, nil
}

// Trees fingerprints multiple independent roots concurrently with at most
// workers goroutines. The roots map is keyed by an opaque label (skill
// name, platform id) that keys the result as well.
func Trees(ctx context.Context, roots map[string]string, workers int) (map[string]map[string]FileFingerprint, error) {
	if workers < 1 {
		workers = 1
	}

	results := make(map[string]map[string]FileFingerprint, len(roots))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	type entry struct {
		label string
		files map[string]FileFingerprint
	}
	ch := make(chan entry, len(roots))

	for label, root := range roots {
		label, root := label, root
		g.Go(func() error {
			files, err := Tree(root)
			if err != nil {
				return err
			}
			ch <- entry{label: label, files: files}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(ch)

	for e := range ch {
		results[e.label] = e.files
	}

	return results, nil
}
