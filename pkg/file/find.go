package file

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FindRecent returns the regular files under dir modified after since,
// sorted by path. With exts given only files with one of those extensions
// (case-insensitive, with the dot) are returned. Hidden directories are
// skipped.
func FindRecent(dir string, since time.Time, exts ...string) ([]string, error) {
	var ret []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !hasExt(path, exts) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(since) {
			ret = append(ret, path)
		}
		return nil
	})

	sort.Strings(ret)
	return ret, err
}

func hasExt(path string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
