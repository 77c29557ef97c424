package gcode

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/pellcorp/helixscreen/pkg/math"
)

const (
	// indexChunkSize is the read granularity of the index builder; the
	// cancel flag is checked at every chunk boundary.
	indexChunkSize = 256 * 1024

	// progressInterval is the maximum byte distance between progress
	// callbacks.
	progressInterval = 2 * 1024 * 1024
)

// LayerEntry locates one layer inside the source file.
type LayerEntry struct {
	Layer     uint32
	ZHeight   float32
	ByteStart uint64
	ByteEnd   uint64
	MoveCount uint32
	BBoxXY    math.Rect2
}

// IndexStats summarizes an index build. Stats are derived during the
// build and not persisted to the sidecar.
type IndexStats struct {
	TotalBytes     uint64
	ExtrusionMoves uint64
	TravelMoves    uint64
	MinZ, MaxZ     float32
	BuildTime      time.Duration
}

// LayerIndex is the ordered set of layer entries for one file, plus the
// parse seed for each layer. Entries are zero-based, contiguous, and the
// last entry always ends at EOF.
type LayerIndex struct {
	Entries []LayerEntry

	// Seeds[k] is the modal state at Entries[k].ByteStart, the seed for
	// parsing layer k in isolation.
	Seeds []ModalState

	Stats IndexStats
}

// LayerCount returns the number of indexed layers.
func (ix *LayerIndex) LayerCount() int { return len(ix.Entries) }

// Entry returns the entry for layer k.
func (ix *LayerIndex) Entry(k int) (LayerEntry, bool) {
	if k < 0 || k >= len(ix.Entries) {
		return LayerEntry{}, false
	}
	return ix.Entries[k], true
}

// Seed returns the modal state for parsing layer k.
func (ix *LayerIndex) Seed(k int) (ModalState, bool) {
	if k < 0 || k >= len(ix.Seeds) {
		return ModalState{}, false
	}
	return ix.Seeds[k], true
}

// FindLayerAtZ returns the index of the layer closest to z, or -1 when
// the index is empty.
func (ix *LayerIndex) FindLayerAtZ(z float32) int {
	if len(ix.Entries) == 0 {
		return -1
	}

	i := sort.Search(len(ix.Entries), func(k int) bool {
		return ix.Entries[k].ZHeight >= z
	})
	if i == len(ix.Entries) {
		return len(ix.Entries) - 1
	}
	if i > 0 {
		distCurr := abs32(ix.Entries[i].ZHeight - z)
		distPrev := abs32(ix.Entries[i-1].ZHeight - z)
		if distPrev < distCurr {
			return i - 1
		}
	}
	return i
}

// Validate checks the structural invariants against the source size:
// strictly increasing zero-based layers, contiguous byte ranges, last
// range ending at EOF.
func (ix *LayerIndex) Validate(totalSize uint64) error {
	for k, e := range ix.Entries {
		if e.Layer != uint32(k) {
			return fmt.Errorf("%w: entry %d has layer %d", ErrIndexCorrupt, k, e.Layer)
		}
		if e.ByteStart >= e.ByteEnd || e.ByteEnd > totalSize {
			return fmt.Errorf("%w: entry %d range [%d,%d) exceeds size %d",
				ErrIndexCorrupt, k, e.ByteStart, e.ByteEnd, totalSize)
		}
		if k > 0 && ix.Entries[k-1].ByteEnd != e.ByteStart {
			return fmt.Errorf("%w: gap between entries %d and %d", ErrIndexCorrupt, k-1, k)
		}
	}
	if len(ix.Entries) > 0 && ix.Entries[len(ix.Entries)-1].ByteEnd != totalSize {
		return fmt.Errorf("%w: last entry does not reach EOF", ErrIndexCorrupt)
	}
	if len(ix.Seeds) != len(ix.Entries) {
		return fmt.Errorf("%w: %d seeds for %d entries", ErrIndexCorrupt, len(ix.Seeds), len(ix.Entries))
	}
	return nil
}

// BuildIndex streams the file at path once and partitions it into layers.
// progress, when non-nil, receives a fraction in [0,1] at least every
// 2 MiB of input. The context is checked at every chunk boundary.
func BuildIndex(ctx context.Context, path string, progress func(float64)) (*LayerIndex, error) {
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIndexBuildFailed, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrIndexBuildFailed, path, err)
	}
	totalSize := uint64(info.Size())

	ix := &LayerIndex{Stats: IndexStats{TotalBytes: totalSize}}

	parser := NewParser()
	parser.OnLayer(func(b LayerBoundary) {
		// Close the previous entry at this boundary.
		if n := len(ix.Entries); n > 0 {
			ix.Entries[n-1].ByteEnd = b.ByteStart
		}
		ix.Entries = append(ix.Entries, LayerEntry{
			Layer:     uint32(b.Layer),
			ZHeight:   b.Z,
			ByteStart: b.ByteStart,
			BBoxXY:    math.EmptyRect2(),
		})
		ix.Seeds = append(ix.Seeds, b.PrevEnd)

		if len(ix.Entries) == 1 || b.Z < ix.Stats.MinZ {
			ix.Stats.MinZ = b.Z
		}
		if b.Z > ix.Stats.MaxZ {
			ix.Stats.MaxZ = b.Z
		}
	})
	parser.OnSegment(func(seg MoveSegment) {
		if seg.IsExtrusion {
			ix.Stats.ExtrusionMoves++
		} else {
			ix.Stats.TravelMoves++
		}
		if n := len(ix.Entries); n > 0 {
			e := &ix.Entries[n-1]
			e.MoveCount++
			if seg.IsExtrusion {
				e.BBoxXY.Expand(seg.Start.XY())
				e.BBoxXY.Expand(seg.End.XY())
			}
		}
	})

	buf := make([]byte, indexChunkSize)
	var processed uint64
	var lastProgress uint64

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, readErr := f.Read(buf)
		if n > 0 {
			if err := parser.Feed(buf[:n]); err != nil {
				return nil, err
			}
			processed += uint64(n)
			if progress != nil && (processed-lastProgress >= progressInterval || processed == totalSize) {
				lastProgress = processed
				progress(float64(processed) / float64(maxU64(totalSize, 1)))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("%w: reading %s at %d: %v", ErrIndexBuildFailed, path, processed, readErr)
		}
	}

	if _, err := parser.Finish(); err != nil {
		return nil, err
	}

	// The final layer runs to EOF.
	if n := len(ix.Entries); n > 0 {
		ix.Entries[n-1].ByteEnd = totalSize
	}

	ix.Stats.BuildTime = time.Since(start)

	if err := ix.Validate(totalSize); err != nil {
		return nil, err
	}

	log.Info("built layer index",
		zap.String("path", path),
		zap.Int("layers", ix.LayerCount()),
		zap.Uint64("bytes", totalSize),
		zap.Duration("took", ix.Stats.BuildTime))

	return ix, nil
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
