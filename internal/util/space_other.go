//go:build !unix

package util

import "errors"

var errSpaceUnsupported = errors.New("free space check is not supported on this platform")

// FreeSpace is unavailable here; callers treat the error as "unknown" and
// proceed without the precheck.
func FreeSpace(path string) (uint64, error) {
	return 0, errSpaceUnsupported
}

// EnsureFreeSpace always passes on platforms without a statfs equivalent.
func EnsureFreeSpace(path string, need int64) error {
	return nil
}
