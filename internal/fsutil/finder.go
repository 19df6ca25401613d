// Package fsutil provides small file system helpers.
package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FindModelFiles resolves a path argument into the list of .hcl files it
// names: the file itself, or every .hcl file under a directory, walked
// recursively in lexical order.
func FindModelFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".hcl") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
