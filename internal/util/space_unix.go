//go:build unix

package util

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FreeSpace returns the number of bytes available to an unprivileged caller
// on the filesystem holding path.
func FreeSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// EnsureFreeSpace fails when the filesystem holding path cannot hold need
// more bytes.
func EnsureFreeSpace(path string, need int64) error {
	free, err := FreeSpace(path)
	if err != nil {
		return err
	}
	if uint64(need) > free {
		return fmt.Errorf("need %d bytes, %d available at %s", need, free, path)
	}
	return nil
}
