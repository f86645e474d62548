package file

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// FindByExt walks dir recursively and returns regular files whose extension
// is one of exts. Order follows the filesystem walk.
func FindByExt(dir string, exts []string) ([]string, error) {
	var found []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && slices.Contains(exts, filepath.Ext(path)) {
			found = append(found, path)
		}
		return nil
	})

	return found, err
}

// FindAll returns every regular file below dir.
func FindAll(dir string) ([]string, error) {
	var found []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			found = append(found, path)
		}
		return nil
	})

	return found, err
}

// ChildrenOlderThan lists the direct children of dir last modified before
// cutoff. A missing dir yields no entries.
func ChildrenOlderThan(dir string, cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var old []string
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			old = append(old, filepath.Join(dir, entry.Name()))
		}
	}
	return old, nil
}
