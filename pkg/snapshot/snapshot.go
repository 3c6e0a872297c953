package snapshot

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cuemby/burrow/pkg/log"
)

// FileState captures one regular file at one instant. The MD5 is over the
// full content and is used for change detection only, never for security.
type FileState struct {
	Path  string  // absolute path on the host
	Size  int64   // bytes
	MTime float64 // modification time in floating-point seconds
	Hash  string  // hex MD5 of the content
}

// Take walks the subtree under root and returns a map from slash-separated
// relative path to FileState. Entries whose basename ends in ".lock" are
// skipped (including whole subtrees), symlinks are treated as absent, and
// unreadable entries are logged and omitted. A missing root yields an empty
// snapshot.
func Take(root string) map[string]FileState {
	logger := log.WithComponent("snapshot")
	states := make(map[string]FileState)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipAll
			}
			logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasSuffix(d.Name(), ".lock") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Skipping unstatable file")
			return nil
		}

		hash, err := hashFile(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable file")
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		states[filepath.ToSlash(rel)] = FileState{
			Path:  path,
			Size:  info.Size(),
			MTime: float64(info.ModTime().UnixNano()) / 1e9,
			Hash:  hash,
		}
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Str("root", root).Msg("Snapshot walk aborted")
	}

	return states
}

// Diff returns the sorted relative paths that are new or modified in after.
// The content hash is authoritative: a path counts as modified only when its
// size or hash differs, so an mtime-only change (a touch) is not reported.
// Deletions are logged but never returned.
func Diff(before, after map[string]FileState) []string {
	logger := log.WithComponent("snapshot")

	var changed []string
	for rel, cur := range after {
		prev, ok := before[rel]
		if !ok {
			changed = append(changed, rel)
			continue
		}
		if cur.Size != prev.Size || cur.Hash != prev.Hash {
			changed = append(changed, rel)
			continue
		}
		if cur.MTime != prev.MTime {
			logger.Debug().Str("path", rel).Msg("Ignoring mtime-only change")
		}
	}

	for rel := range before {
		if _, ok := after[rel]; !ok {
			logger.Debug().Str("path", rel).Msg("File deleted during execution")
		}
	}

	sort.Strings(changed)
	return changed
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
