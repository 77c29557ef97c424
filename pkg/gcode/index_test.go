package gcode

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

// multiLayerFile has three layers with distinct geometry per layer.
const multiLayerFile = "G21\nG90\n" +
	"G1 X0 Y0 Z0.2 E0\n" +
	"G1 X10 Y0 E0.5\n" +
	"G1 X10 Y10 E1.0\n" +
	"G1 Z0.4\n" +
	"G1 X0 Y10 E1.5\n" +
	"G1 X0 Y0 E2.0\n" +
	"G1 Z0.6\n" +
	"G1 X5 Y5 E2.5\n"

func buildTestIndex(t *testing.T, content string) (*LayerIndex, string) {
	t.Helper()
	path := writeTempGcode(t, content)
	ix, err := BuildIndex(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	return ix, path
}

func TestBuildIndexLayers(t *testing.T) {
	ix, path := buildTestIndex(t, multiLayerFile)

	if ix.LayerCount() != 3 {
		t.Fatalf("layers = %d, want 3", ix.LayerCount())
	}

	info, _ := os.Stat(path)
	if err := ix.Validate(uint64(info.Size())); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	// Contiguity and EOF are implied by Validate; spot-check z heights.
	wantZ := []float32{0.2, 0.4, 0.6}
	for k, z := range wantZ {
		e, ok := ix.Entry(k)
		if !ok {
			t.Fatalf("missing entry %d", k)
		}
		if !approx(e.ZHeight, z) {
			t.Errorf("layer %d z = %v, want %v", k, e.ZHeight, z)
		}
		if e.MoveCount == 0 {
			t.Errorf("layer %d has no moves", k)
		}
	}

	// Layer 0 covers the extrusions before the first Z step.
	e0, _ := ix.Entry(0)
	if e0.ByteStart != 0 {
		t.Errorf("layer 0 starts at %d", e0.ByteStart)
	}
	if e0.BBoxXY.Min.X != 0 || !approx(e0.BBoxXY.Max.X, 10) || !approx(e0.BBoxXY.Max.Y, 10) {
		t.Errorf("layer 0 bbox = %+v", e0.BBoxXY)
	}

	if ix.Stats.ExtrusionMoves != 5 {
		t.Errorf("extrusion moves = %d, want 5", ix.Stats.ExtrusionMoves)
	}
	if !approx(ix.Stats.MinZ, 0.2) || !approx(ix.Stats.MaxZ, 0.6) {
		t.Errorf("z range = %v..%v", ix.Stats.MinZ, ix.Stats.MaxZ)
	}
}

func TestIndexSeedsReproduceLayers(t *testing.T) {
	ix, path := buildTestIndex(t, multiLayerFile)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// Parsing each layer range with its seed must concatenate to the
	// full-file segment list.
	whole, _, err := ParseAll(data)
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}

	var concat []MoveSegment
	for k := 0; k < ix.LayerCount(); k++ {
		e, _ := ix.Entry(k)
		seed, _ := ix.Seed(k)
		segs, _, err := ParseLayer(data[e.ByteStart:e.ByteEnd], seed, int32(k), e.ByteStart)
		if err != nil {
			t.Fatalf("ParseLayer(%d): %v", k, err)
		}
		concat = append(concat, segs...)
	}

	if len(whole) != len(concat) {
		t.Fatalf("segment counts differ: full=%d concat=%d", len(whole), len(concat))
	}
	for i := range whole {
		if whole[i] != concat[i] {
			t.Errorf("segment %d differs:\nfull:   %+v\nconcat: %+v", i, whole[i], concat[i])
		}
	}
}

func TestFindLayerAtZ(t *testing.T) {
	ix, _ := buildTestIndex(t, multiLayerFile)

	tests := []struct {
		z    float32
		want int
	}{
		{0.0, 0},
		{0.2, 0},
		{0.25, 0},
		{0.35, 1},
		{0.45, 1},
		{0.55, 2},
		{10.0, 2},
	}
	for _, tt := range tests {
		if got := ix.FindLayerAtZ(tt.z); got != tt.want {
			t.Errorf("FindLayerAtZ(%v) = %d, want %d", tt.z, got, tt.want)
		}
	}

	empty := &LayerIndex{}
	if empty.FindLayerAtZ(0.2) != -1 {
		t.Error("empty index should return -1")
	}
}

func TestValidateRejectsBrokenIndex(t *testing.T) {
	ix, path := buildTestIndex(t, multiLayerFile)
	info, _ := os.Stat(path)
	size := uint64(info.Size())

	broken := *ix
	broken.Entries = append([]LayerEntry(nil), ix.Entries...)
	broken.Entries[1].ByteStart++ // gap
	if err := broken.Validate(size); !errors.Is(err, ErrIndexCorrupt) {
		t.Errorf("gap: err = %v, want ErrIndexCorrupt", err)
	}

	broken.Entries = append([]LayerEntry(nil), ix.Entries...)
	broken.Entries[2].ByteEnd-- // does not reach EOF
	if err := broken.Validate(size); !errors.Is(err, ErrIndexCorrupt) {
		t.Errorf("short EOF: err = %v, want ErrIndexCorrupt", err)
	}

	broken.Entries = append([]LayerEntry(nil), ix.Entries...)
	broken.Entries[0].Layer = 5 // not zero-based
	if err := broken.Validate(size); !errors.Is(err, ErrIndexCorrupt) {
		t.Errorf("layer numbering: err = %v, want ErrIndexCorrupt", err)
	}
}

func TestBuildIndexEmptyFile(t *testing.T) {
	ix, _ := buildTestIndex(t, "")
	if ix.LayerCount() != 0 {
		t.Errorf("layers = %d, want 0", ix.LayerCount())
	}
	if err := ix.Validate(0); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestBuildIndexCancel(t *testing.T) {
	path := writeTempGcode(t, multiLayerFile)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := BuildIndex(ctx, path, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestBuildIndexProgress(t *testing.T) {
	path := writeTempGcode(t, multiLayerFile)
	var fracs []float64
	_, err := BuildIndex(context.Background(), path, func(f float64) { fracs = append(fracs, f) })
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if len(fracs) == 0 || fracs[len(fracs)-1] != 1.0 {
		t.Errorf("progress = %v, want final 1.0", fracs)
	}
}

func TestSidecarRoundTrip(t *testing.T) {
	ix, path := buildTestIndex(t, multiLayerFile)

	if err := SaveSidecar(path, ix); err != nil {
		t.Fatalf("SaveSidecar: %v", err)
	}
	if _, err := os.Stat(SidecarPath(path)); err != nil {
		t.Fatalf("sidecar file: %v", err)
	}

	loaded, err := LoadSidecar(path)
	if err != nil {
		t.Fatalf("LoadSidecar: %v", err)
	}

	if loaded.LayerCount() != ix.LayerCount() {
		t.Fatalf("layers = %d, want %d", loaded.LayerCount(), ix.LayerCount())
	}
	for k := range ix.Entries {
		if loaded.Entries[k] != ix.Entries[k] {
			t.Errorf("entry %d differs: %+v vs %+v", k, loaded.Entries[k], ix.Entries[k])
		}
		if loaded.Seeds[k] != ix.Seeds[k] {
			t.Errorf("seed %d differs: %+v vs %+v", k, loaded.Seeds[k], ix.Seeds[k])
		}
	}
}

func TestSidecarRejectsStaleSource(t *testing.T) {
	ix, path := buildTestIndex(t, multiLayerFile)
	if err := SaveSidecar(path, ix); err != nil {
		t.Fatalf("SaveSidecar: %v", err)
	}

	// Grow the source; size mismatch must invalidate the sidecar.
	if err := os.WriteFile(path, []byte(multiLayerFile+"G1 X9 E3.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSidecar(path); !errors.Is(err, ErrIndexCorrupt) {
		t.Errorf("stale sidecar: err = %v, want ErrIndexCorrupt", err)
	}
}

func TestSidecarRejectsGarbage(t *testing.T) {
	path := writeTempGcode(t, multiLayerFile)
	if err := os.WriteFile(SidecarPath(path), []byte("not a sidecar"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSidecar(path); !errors.Is(err, ErrIndexCorrupt) {
		t.Errorf("garbage sidecar: err = %v, want ErrIndexCorrupt", err)
	}
}

func TestLoadOrBuildIndexRebuildsFromCorruptSidecar(t *testing.T) {
	path := writeTempGcode(t, multiLayerFile)
	if err := os.WriteFile(SidecarPath(path), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	ix, err := LoadOrBuildIndex(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("LoadOrBuildIndex: %v", err)
	}
	if ix.LayerCount() != 3 {
		t.Errorf("layers = %d, want 3", ix.LayerCount())
	}

	// The rebuild refreshes the sidecar for the next open.
	loaded, err := LoadSidecar(path)
	if err != nil {
		t.Fatalf("LoadSidecar after rebuild: %v", err)
	}
	if loaded.LayerCount() != 3 {
		t.Errorf("refreshed sidecar layers = %d", loaded.LayerCount())
	}
}

func TestLoadOrBuildIndexUsesFreshSidecar(t *testing.T) {
	ix, path := buildTestIndex(t, multiLayerFile)
	if err := SaveSidecar(path, ix); err != nil {
		t.Fatal(err)
	}
	sidecarInfo, _ := os.Stat(SidecarPath(path))

	loaded, err := LoadOrBuildIndex(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("LoadOrBuildIndex: %v", err)
	}
	if loaded.LayerCount() != ix.LayerCount() {
		t.Errorf("layers = %d, want %d", loaded.LayerCount(), ix.LayerCount())
	}

	// A fresh sidecar is not rewritten.
	after, _ := os.Stat(SidecarPath(path))
	if !after.ModTime().Equal(sidecarInfo.ModTime()) {
		t.Error("fresh sidecar was rewritten")
	}
}

func TestSidecarStatsNotPersisted(t *testing.T) {
	ix, path := buildTestIndex(t, multiLayerFile)
	ix.Stats.BuildTime = 42 * time.Second
	if err := SaveSidecar(path, ix); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadSidecar(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Stats.BuildTime != 0 {
		t.Error("stats should not round-trip through the sidecar")
	}
}
