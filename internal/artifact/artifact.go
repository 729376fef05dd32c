// Package artifact copies model artifact trees within the bazaar
// directory, the filesystem operation retraining-with-feedback needs to
// seed a new model's working directory from its parent's trained weights
// before the cluster job starts writing to it.
package artifact

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bazaarml/controlplane/internal/apperr"
)

// CopyTree recursively copies src to dst, preserving the directory
// structure and file modes but skipping any file ending in ".tmp" —
// in-flight writes from the source model's still-running training job
// should never be picked up by a retraining copy.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return apperr.Internal(err, "walking artifact tree")
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return apperr.Internal(err, "computing relative artifact path")
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return apperr.Internal(err, "reading directory info")
			}
			return os.MkdirAll(target, info.Mode())
		}

		if strings.HasSuffix(path, ".tmp") {
			return nil
		}

		return copyFile(path, target, d)
	})
}

func copyFile(src, dst string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return apperr.Internal(err, "reading file info")
	}

	in, err := os.Open(src)
	if err != nil {
		return apperr.Internal(err, "opening artifact source file")
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return apperr.Internal(err, "creating artifact destination directory")
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode())
	if err != nil {
		return apperr.Internal(err, "creating artifact destination file")
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return apperr.Internal(err, "copying artifact file")
	}
	return out.Sync()
}
