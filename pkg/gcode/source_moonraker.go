package gcode

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultHTTPTimeout bounds each range request against Moonraker.
const DefaultHTTPTimeout = 10 * time.Second

// MoonrakerSource reads a G-code file over the Moonraker HTTP file API.
// It probes the server for Range support on first use; servers without
// it trigger a transparent full download to a temp file. The index
// builder always forces that download because it needs local random
// access.
type MoonrakerSource struct {
	baseURL   string
	gcodePath string
	client    *http.Client

	size    uint64
	probed  bool
	rangeOK bool

	// After a full download, reads delegate here.
	fallback *FileSource
	tempPath string
}

// NewMoonrakerSource creates a source for a G-code file on the printer.
// gcodePath is relative to the printer's gcodes root (e.g. "model.gcode").
func NewMoonrakerSource(baseURL, gcodePath string, timeout time.Duration) *MoonrakerSource {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &MoonrakerSource{
		baseURL:   strings.TrimRight(baseURL, "/"),
		gcodePath: gcodePath,
		client:    &http.Client{Timeout: timeout},
	}
}

// DownloadURL returns the full URL for the G-code file.
func (s *MoonrakerSource) DownloadURL() string {
	return s.baseURL + "/server/files/gcodes/" + url.PathEscape(s.gcodePath)
}

// ReadRange implements DataSource.
func (s *MoonrakerSource) ReadRange(ctx context.Context, offset uint64, length uint32) ([]byte, error) {
	if s.fallback != nil {
		return s.fallback.ReadRange(ctx, offset, length)
	}

	if !s.probed {
		if err := s.probeRangeSupport(ctx); err != nil {
			return nil, err
		}
	}

	if !s.rangeOK {
		// Server ignores Range headers; pull the whole file once and
		// serve everything from the local copy.
		log.Warn("moonraker has no range support, downloading full file",
			zap.String("file", s.gcodePath))
		if err := s.downloadToTemp(ctx); err != nil {
			return nil, err
		}
		return s.fallback.ReadRange(ctx, offset, length)
	}

	if s.size > 0 && offset >= s.size {
		return nil, fmt.Errorf("%w: offset %d, size %d", ErrOutOfRange, offset, s.size)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.DownloadURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+uint64(length)-1))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s offset %d length %d: %v", ErrReadFailed, s.gcodePath, offset, length, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: HTTP %d", ErrReadFailed, s.gcodePath, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(length)))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrReadFailed, err)
	}
	return data, nil
}

// Size implements DataSource.
func (s *MoonrakerSource) Size() uint64 {
	if s.fallback != nil {
		return s.fallback.Size()
	}
	return s.size
}

// SupportsRandomAccess implements DataSource.
func (s *MoonrakerSource) SupportsRandomAccess() bool {
	if s.fallback != nil {
		return true
	}
	return s.probed && s.rangeOK
}

// EnsureIndexable always downloads: indexing needs a local file even when
// range requests work.
func (s *MoonrakerSource) EnsureIndexable(ctx context.Context) (bool, error) {
	if s.fallback != nil {
		return true, nil
	}
	if err := s.downloadToTemp(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// IndexablePath implements DataSource.
func (s *MoonrakerSource) IndexablePath() string { return s.tempPath }

// Name implements DataSource.
func (s *MoonrakerSource) Name() string { return s.DownloadURL() }

// Close implements DataSource. The temp file, if any, is removed.
func (s *MoonrakerSource) Close() error {
	var err error
	if s.fallback != nil {
		err = s.fallback.Close()
		s.fallback = nil
	}
	if s.tempPath != "" {
		if rmErr := os.Remove(s.tempPath); rmErr != nil && err == nil {
			err = rmErr
		}
		s.tempPath = ""
	}
	return err
}

// probeRangeSupport requests the first byte and checks for a 206 reply.
// The Content-Range total doubles as the size query.
func (s *MoonrakerSource) probeRangeSupport(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.DownloadURL(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: probing %s: %v", ErrReadFailed, s.gcodePath, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1))

	s.probed = true
	switch resp.StatusCode {
	case http.StatusPartialContent:
		s.rangeOK = true
		if total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
			s.size = total
		}
	case http.StatusOK:
		s.rangeOK = false
		if resp.ContentLength > 0 {
			s.size = uint64(resp.ContentLength)
		}
	default:
		s.probed = false
		return fmt.Errorf("%w: probing %s: HTTP %d", ErrReadFailed, s.gcodePath, resp.StatusCode)
	}

	log.Debug("probed moonraker range support",
		zap.String("file", s.gcodePath),
		zap.Bool("range_ok", s.rangeOK),
		zap.Uint64("size", s.size))
	return nil
}

// downloadToTemp pulls the whole file and swaps in a FileSource.
func (s *MoonrakerSource) downloadToTemp(ctx context.Context) error {
	if s.fallback != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.DownloadURL(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReadFailed, err)
	}

	// Full downloads are bounded by the file size, not the per-chunk
	// timeout, so issue this one without the client deadline.
	client := &http.Client{Timeout: 0}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: downloading %s: %v", ErrReadFailed, s.gcodePath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("%w: downloading %s: HTTP %d", ErrReadFailed, s.gcodePath, resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "helix-gcode-*.gcode")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", ErrReadFailed, err)
	}

	written, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: downloading %s: %v", ErrReadFailed, s.gcodePath, err)
	}

	fs, err := OpenFile(tmp.Name())
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: reopening temp file: %v", ErrReadFailed, err)
	}

	s.tempPath = tmp.Name()
	s.fallback = fs
	log.Info("downloaded gcode to temp file",
		zap.String("file", s.gcodePath),
		zap.Int64("bytes", written),
		zap.String("temp", s.tempPath))
	return nil
}

// parseContentRangeTotal extracts the total from "bytes 0-0/12345".
func parseContentRangeTotal(header string) (uint64, bool) {
	idx := strings.LastIndexByte(header, '/')
	if idx < 0 || idx+1 >= len(header) {
		return 0, false
	}
	total, err := strconv.ParseUint(header[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}
