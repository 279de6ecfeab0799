package utils

import "errors"

// ErrUnsupported is returned by FreeSpace where it cannot be determined.
var ErrUnsupported = errors.New("free space is not supported on this platform")
