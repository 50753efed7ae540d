package util

import (
	"os"
	"path/filepath"
)

// CheckDirectory reports whether a path exists and whether it is a directory.
func CheckDirectory(path string) (exists bool, isDir bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, false, nil
		}
		return false, false, err
	}
	return true, info.IsDir(), nil
}

// SafeFileName strips any directory components from a remotely supplied file
// name so it cannot escape the destination directory.
func SafeFileName(name string) string {
	base := filepath.Base(filepath.Clean(name))
	if base == "." || base == string(filepath.Separator) || base == ".." {
		return "unnamed"
	}
	return base
}
