package pipeline

import (
	"errors"
	"fmt"

	"wordfreq/mapreduce/functions"
)

var (
	// ErrInput means a source could not be read. The run fails without
	// output.
	ErrInput = errors.New("input error")
	// ErrOverflow means a count exceeded the uint64 range.
	ErrOverflow = functions.ErrOverflow
	// ErrResourceExhausted means the run needs more memory or disk than it
	// is allowed to use.
	ErrResourceExhausted = errors.New("resource exhausted")

	errReducerClosed = errors.New("reducer is closed")
)

func inputError(source string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInput, source, err)
}
