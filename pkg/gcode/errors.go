// Package gcode provides reading, parsing and layer indexing of sliced
// G-code files from local paths or a Moonraker HTTP endpoint.
package gcode

import "errors"

// Failure kinds surfaced by this package. Callers match with errors.Is;
// wrapped messages carry offsets and excerpts.
var (
	// ErrReadFailed reports an I/O or network failure on a data source.
	ErrReadFailed = errors.New("read failed")

	// ErrOutOfRange reports a read at or beyond the end of the source.
	ErrOutOfRange = errors.New("offset out of range")

	// ErrMalformedNumeric reports a non-finite or unparseable coordinate.
	ErrMalformedNumeric = errors.New("malformed numeric")

	// ErrMalformedCommand reports a command word the parser cannot interpret.
	ErrMalformedCommand = errors.New("malformed command")

	// ErrIndexCorrupt reports a sidecar that failed validation. The
	// controller rebuilds automatically; callers only see this if the
	// rebuild also fails.
	ErrIndexCorrupt = errors.New("layer index corrupt")

	// ErrIndexBuildFailed reports a read failure during index construction.
	ErrIndexBuildFailed = errors.New("layer index build failed")

	// ErrClosed reports use of a closed model or controller.
	ErrClosed = errors.New("closed")
)
