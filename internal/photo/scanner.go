// Package photo is the boundary to image files on disk: directory
// scanning, EXIF extraction, and metadata writing.
package photo

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Extension sets accepted by the two flows. Track generation only
// reads JPEGs; synchronization also writes back to common raw formats.
var (
	GenerateExts = []string{".jpg", ".jpeg"}
	SyncExts     = []string{".jpg", ".jpeg", ".nef", ".cr2", ".arw"}
)

const backupSuffix = ".backup"

// Scan lists the photo files under dir, recursively, whose extension is
// in exts (case-insensitive), sorted by path. Backup copies left by a
// previous sync run are ignored.
func Scan(dir string, exts []string) ([]string, error) {
	allowed := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = struct{}{}
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasSuffix(name, backupSuffix) {
			return nil
		}
		if _, ok := allowed[strings.ToLower(filepath.Ext(name))]; !ok {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "photo: scan dir %s", dir)
	}
	sort.Strings(paths)
	return paths, nil
}
