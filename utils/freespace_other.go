//go:build !(linux || darwin || freebsd || dragonfly)

package utils

// FreeSpace is only supported on Unix-like systems.
func FreeSpace(path string) (uint64, error) {
	return 0, ErrUnsupported
}
