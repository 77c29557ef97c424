package gcode

import (
	"context"
	"fmt"
	"io"
	"os"
)

// FileSource reads a local file with seek+read random access.
type FileSource struct {
	path string
	file *os.File
	size uint64
}

// OpenFile opens a local file as a data source.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	return &FileSource{
		path: path,
		file: f,
		size: uint64(info.Size()),
	}, nil
}

// ReadRange implements DataSource.
func (s *FileSource) ReadRange(_ context.Context, offset uint64, length uint32) ([]byte, error) {
	if offset >= s.size {
		if s.size == 0 && offset == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: offset %d, size %d", ErrOutOfRange, offset, s.size)
	}

	buf := make([]byte, length)
	n, err := s.file.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %s at offset %d length %d: %v", ErrReadFailed, s.path, offset, length, err)
	}
	return buf[:n], nil
}

// Size implements DataSource.
func (s *FileSource) Size() uint64 { return s.size }

// SupportsRandomAccess implements DataSource.
func (s *FileSource) SupportsRandomAccess() bool { return true }

// EnsureIndexable implements DataSource; the file itself is the index target.
func (s *FileSource) EnsureIndexable(context.Context) (bool, error) { return true, nil }

// IndexablePath implements DataSource.
func (s *FileSource) IndexablePath() string { return s.path }

// Name implements DataSource.
func (s *FileSource) Name() string { return s.path }

// Close implements DataSource.
func (s *FileSource) Close() error {
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}
