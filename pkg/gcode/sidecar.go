package gcode

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/pellcorp/helixscreen/pkg/math"
)

// Sidecar index file layout (all integers little-endian):
//
//	magic    [4]byte  "HLIX"
//	version  uint16   1
//	reserved uint16
//	srcSize  uint64   size of the indexed file in bytes
//	srcMTime int64    mtime of the indexed file, unix nanoseconds
//	count    uint32   number of layer entries
//	entries  count × sidecarEntry
//	seeds    count × sidecarSeed

const (
	sidecarMagic   = "HLIX"
	sidecarVersion = uint16(1)

	// SidecarSuffix is appended to the source path to form the sidecar
	// path.
	SidecarSuffix = ".helixidx"
)

// SidecarPath returns the on-disk location of the index for path.
func SidecarPath(path string) string { return path + SidecarSuffix }

type sidecarHeader struct {
	Version  uint16
	Reserved uint16
	SrcSize  uint64
	SrcMTime int64
	Count    uint32
}

type sidecarEntry struct {
	Layer     uint32
	ZHeight   float32
	ByteStart uint64
	ByteEnd   uint64
	MoveCount uint32
	MinX      float32
	MinY      float32
	MaxX      float32
	MaxY      float32
}

type sidecarSeed struct {
	X, Y, Z, E    float32
	Feedrate      float32
	AbsoluteMoves uint8
	AbsoluteE     uint8
	Inches        uint8
	Tool          uint8
}

func packSeed(s ModalState) sidecarSeed {
	return sidecarSeed{
		X: s.X, Y: s.Y, Z: s.Z, E: s.E,
		Feedrate:      s.Feedrate,
		AbsoluteMoves: boolByte(s.AbsoluteMoves),
		AbsoluteE:     boolByte(s.AbsoluteE),
		Inches:        boolByte(s.Inches),
		Tool:          s.Tool,
	}
}

func unpackSeed(s sidecarSeed) ModalState {
	return ModalState{
		X: s.X, Y: s.Y, Z: s.Z, E: s.E,
		Feedrate:      s.Feedrate,
		AbsoluteMoves: s.AbsoluteMoves != 0,
		AbsoluteE:     s.AbsoluteE != 0,
		Inches:        s.Inches != 0,
		Tool:          s.Tool,
	}
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// SaveSidecar writes the index for srcPath next to it. The write is
// atomic: a temp file in the same directory is renamed over the target,
// so a concurrent reader sees either the old index or the new one.
func SaveSidecar(srcPath string, ix *LayerIndex) error {
	info, err := os.Stat(srcPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", srcPath, err)
	}

	var buf bytes.Buffer
	if err := encodeSidecar(&buf, uint64(info.Size()), info.ModTime().UnixNano(), ix); err != nil {
		return err
	}

	target := SidecarPath(srcPath)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}

	log.Debug("saved layer index",
		zap.String("path", target),
		zap.Int("layers", ix.LayerCount()))
	return nil
}

func encodeSidecar(w io.Writer, srcSize uint64, srcMTime int64, ix *LayerIndex) error {
	if _, err := w.Write([]byte(sidecarMagic)); err != nil {
		return err
	}
	hdr := sidecarHeader{
		Version:  sidecarVersion,
		SrcSize:  srcSize,
		SrcMTime: srcMTime,
		Count:    uint32(len(ix.Entries)),
	}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	for _, e := range ix.Entries {
		rec := sidecarEntry{
			Layer:     e.Layer,
			ZHeight:   e.ZHeight,
			ByteStart: e.ByteStart,
			ByteEnd:   e.ByteEnd,
			MoveCount: e.MoveCount,
			MinX:      e.BBoxXY.Min.X,
			MinY:      e.BBoxXY.Min.Y,
			MaxX:      e.BBoxXY.Max.X,
			MaxY:      e.BBoxXY.Max.Y,
		}
		if err := binary.Write(w, binary.LittleEndian, &rec); err != nil {
			return err
		}
	}
	for _, s := range ix.Seeds {
		rec := packSeed(s)
		if err := binary.Write(w, binary.LittleEndian, &rec); err != nil {
			return err
		}
	}
	return nil
}

// LoadSidecar reads the index for srcPath. It returns ErrIndexCorrupt
// when the file is malformed or stale relative to the source file, in
// which case the caller should rebuild.
func LoadSidecar(srcPath string) (*LayerIndex, error) {
	info, err := os.Stat(srcPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", srcPath, err)
	}

	f, err := os.Open(SidecarPath(srcPath))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ix, err := decodeSidecar(bufio.NewReader(f), uint64(info.Size()), info.ModTime().UnixNano())
	if err != nil {
		return nil, err
	}
	if err := ix.Validate(uint64(info.Size())); err != nil {
		return nil, err
	}
	return ix, nil
}

func decodeSidecar(r io.Reader, srcSize uint64, srcMTime int64) (*LayerIndex, error) {
	magic := make([]byte, len(sidecarMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("%w: reading magic: %v", ErrIndexCorrupt, err)
	}
	if string(magic) != sidecarMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrIndexCorrupt, magic)
	}

	var hdr sidecarHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrIndexCorrupt, err)
	}
	if hdr.Version != sidecarVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrIndexCorrupt, hdr.Version)
	}
	if hdr.SrcSize != srcSize || hdr.SrcMTime != srcMTime {
		return nil, fmt.Errorf("%w: stale index (source changed)", ErrIndexCorrupt)
	}
	if hdr.Count > 1<<24 {
		return nil, fmt.Errorf("%w: implausible entry count %d", ErrIndexCorrupt, hdr.Count)
	}

	ix := &LayerIndex{
		Entries: make([]LayerEntry, hdr.Count),
		Seeds:   make([]ModalState, hdr.Count),
		Stats:   IndexStats{TotalBytes: srcSize},
	}
	for i := range ix.Entries {
		var rec sidecarEntry
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("%w: reading entry %d: %v", ErrIndexCorrupt, i, err)
		}
		ix.Entries[i] = LayerEntry{
			Layer:     rec.Layer,
			ZHeight:   rec.ZHeight,
			ByteStart: rec.ByteStart,
			ByteEnd:   rec.ByteEnd,
			MoveCount: rec.MoveCount,
			BBoxXY: math.Rect2{
				Min: math.Vec2{X: rec.MinX, Y: rec.MinY},
				Max: math.Vec2{X: rec.MaxX, Y: rec.MaxY},
			},
		}
	}
	for i := range ix.Seeds {
		var rec sidecarSeed
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("%w: reading seed %d: %v", ErrIndexCorrupt, i, err)
		}
		ix.Seeds[i] = unpackSeed(rec)
	}
	return ix, nil
}

// LoadOrBuildIndex returns the sidecar index for path when present and
// fresh, otherwise builds one and tries to persist it. A failed save is
// logged and ignored: the in-memory index is still usable.
func LoadOrBuildIndex(ctx context.Context, path string, progress func(float64)) (*LayerIndex, error) {
	if ix, err := LoadSidecar(path); err == nil {
		log.Debug("loaded layer index", zap.String("path", SidecarPath(path)),
			zap.Int("layers", ix.LayerCount()))
		return ix, nil
	} else if !os.IsNotExist(err) {
		log.Warn("discarding layer index", zap.String("path", SidecarPath(path)), zap.Error(err))
	}

	ix, err := BuildIndex(ctx, path, progress)
	if err != nil {
		return nil, err
	}
	if err := SaveSidecar(path, ix); err != nil {
		log.Warn("could not persist layer index", zap.String("path", path), zap.Error(err))
	}
	return ix, nil
}
