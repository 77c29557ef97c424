package gcode

import (
	"bytes"
	"context"
	"fmt"
)

// DataSource is a uniform byte-range reader over local files, Moonraker
// HTTP endpoints and in-memory buffers. Sources are not safe for
// concurrent use; the streaming controller serializes access.
type DataSource interface {
	// ReadRange reads at most length bytes starting at offset. It may
	// return fewer bytes at end of source. It fails with ErrOutOfRange
	// when offset is at or beyond Size, and ErrReadFailed on I/O errors.
	ReadRange(ctx context.Context, offset uint64, length uint32) ([]byte, error)

	// Size returns the total size in bytes, or 0 if unknown.
	Size() uint64

	// SupportsRandomAccess reports whether range reads are efficient.
	SupportsRandomAccess() bool

	// EnsureIndexable materializes a stable local path for the index
	// builder. Local files trivially succeed; remote sources download
	// the full content. A false result without error means the source
	// cannot provide a local path (in-memory buffers).
	EnsureIndexable(ctx context.Context) (bool, error)

	// IndexablePath returns the local path after a successful
	// EnsureIndexable, or "" if none is available. The path is stable
	// for the lifetime of the source.
	IndexablePath() string

	// Name returns a descriptive name (path or URL) for logging.
	Name() string

	// Close releases file handles and temp files.
	Close() error
}

// maxLineLength bounds ReadLine so a file without terminators cannot pull
// an unbounded buffer into memory.
const maxLineLength = 4096

// ReadLine reads a single line starting at offset, built on ReadRange.
// The terminator is stripped; CRLF and LF are both accepted. maxLen of 0
// uses the default bound.
func ReadLine(ctx context.Context, src DataSource, offset uint64, maxLen uint32) (string, error) {
	if maxLen == 0 {
		maxLen = maxLineLength
	}
	data, err := src.ReadRange(ctx, offset, maxLen)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	}
	data = bytes.TrimSuffix(data, []byte{'\r'})
	return string(data), nil
}

// MemorySource is an in-memory data source, primarily for tests.
type MemorySource struct {
	data []byte
	name string
}

// NewMemorySource creates a source over the given content.
func NewMemorySource(content []byte, name string) *MemorySource {
	if name == "" {
		name = "memory"
	}
	return &MemorySource{data: content, name: name}
}

// ReadRange implements DataSource.
func (m *MemorySource) ReadRange(_ context.Context, offset uint64, length uint32) ([]byte, error) {
	if offset >= uint64(len(m.data)) {
		if len(m.data) == 0 && offset == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: offset %d, size %d", ErrOutOfRange, offset, len(m.data))
	}
	end := offset + uint64(length)
	if end > uint64(len(m.data)) {
		end = uint64(len(m.data))
	}
	out := make([]byte, end-offset)
	copy(out, m.data[offset:end])
	return out, nil
}

// Size implements DataSource.
func (m *MemorySource) Size() uint64 { return uint64(len(m.data)) }

// SupportsRandomAccess implements DataSource.
func (m *MemorySource) SupportsRandomAccess() bool { return true }

// EnsureIndexable fails softly: memory sources have no file to index.
func (m *MemorySource) EnsureIndexable(context.Context) (bool, error) { return false, nil }

// IndexablePath implements DataSource.
func (m *MemorySource) IndexablePath() string { return "" }

// Name implements DataSource.
func (m *MemorySource) Name() string { return m.name }

// Close implements DataSource.
func (m *MemorySource) Close() error { return nil }
