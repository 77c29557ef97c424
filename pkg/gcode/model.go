package gcode

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pellcorp/helixscreen/pkg/math"
)

// ModelOptions configure how a ToolpathModel loads its source.
type ModelOptions struct {
	// Builder produces meshes from parsed segments. Required.
	Builder MeshBuilder

	// Dispatcher delivers streaming events. Required in streaming mode;
	// SyncDispatcher is a reasonable default.
	Dispatcher Dispatcher

	// Events receive streaming progress and readiness.
	Events ControllerEvents

	// AvailableKB is the system's available memory, 0 when unknown.
	// Used with ThresholdPercent to decide full-load versus streaming
	// when Mode is StreamingAuto.
	AvailableKB      uint64
	ThresholdPercent int
}

// ToolpathModel is the consumer-facing handle over a G-code source. In
// full mode the whole toolpath is parsed and meshed once; in streaming
// mode layers are served on demand through a Controller.
type ToolpathModel struct {
	mu        sync.Mutex
	streaming bool
	source    DataSource

	// full mode
	meta *Metadata
	mesh LayerMesh

	// streaming mode
	controller *Controller
}

// OpenModel loads source according to mode and the memory policy in
// opts. The returned model owns the source and closes it on Close.
func OpenModel(ctx context.Context, source DataSource, mode StreamingMode, opts ModelOptions) (*ToolpathModel, error) {
	if opts.Builder == nil {
		return nil, fmt.Errorf("toolpath model: nil builder")
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = SyncDispatcher{}
	}

	pct := ClampThresholdPercent(opts.ThresholdPercent)
	stream := ShouldStream(source.Size(), mode, opts.AvailableKB, pct)

	// Streaming needs a file to index; a source that cannot provide one
	// falls back to full load.
	if stream {
		ok, err := source.EnsureIndexable(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			log.Info("source not indexable, loading fully", zap.String("source", source.Name()))
			stream = false
		}
	}

	if !stream {
		return openFull(ctx, source, opts)
	}
	return openStreaming(ctx, source, opts)
}

func openFull(ctx context.Context, source DataSource, opts ModelOptions) (*ToolpathModel, error) {
	size := source.Size()
	var data []byte
	for off := uint64(0); off < size; {
		chunk := size - off
		if chunk > indexChunkSize {
			chunk = indexChunkSize
		}
		buf, err := source.ReadRange(ctx, off, uint32(chunk))
		if err != nil {
			return nil, err
		}
		data = append(data, buf...)
		off += chunk
	}

	segs, meta, err := ParseAll(data)
	if err != nil {
		return nil, err
	}
	mesh, err := opts.Builder.BuildLayer(-1, segs)
	if err != nil {
		return nil, err
	}

	log.Info("loaded toolpath",
		zap.String("source", source.Name()),
		zap.Uint32("layers", meta.LayerCount),
		zap.Int("vertices", mesh.VertexCount()))

	return &ToolpathModel{source: source, meta: meta, mesh: mesh}, nil
}

func openStreaming(ctx context.Context, source DataSource, opts ModelOptions) (*ToolpathModel, error) {
	ctrl := NewController(opts.Builder, opts.Dispatcher, opts.Events)
	if err := ctrl.Open(ctx, source); err != nil {
		return nil, err
	}
	return &ToolpathModel{streaming: true, source: source, controller: ctrl}, nil
}

// Streaming reports whether layers are served on demand.
func (m *ToolpathModel) Streaming() bool { return m.streaming }

// Ready reports whether layer data can be requested. Full-load models
// are ready immediately; streaming models become ready once indexing
// finishes (signaled through ControllerEvents.OnReady).
func (m *ToolpathModel) Ready() bool {
	if !m.streaming {
		return true
	}
	return m.controller.State() == StateReady
}

// LayerCount returns the number of layers, or 0 before a streaming
// model is ready.
func (m *ToolpathModel) LayerCount() int {
	if m.streaming {
		if ix := m.controller.Index(); ix != nil {
			return ix.LayerCount()
		}
		return 0
	}
	return int(m.meta.LayerCount)
}

// BBox returns the extrusion bounding box. For streaming models it is
// assembled from the per-layer index entries.
func (m *ToolpathModel) BBox() math.Box3 {
	if !m.streaming {
		return m.meta.Bounds
	}
	box := math.EmptyBox3()
	ix := m.controller.Index()
	if ix == nil {
		return box
	}
	for _, e := range ix.Entries {
		if e.BBoxXY.IsEmpty() {
			continue
		}
		box.Expand(math.Vec3{X: e.BBoxXY.Min.X, Y: e.BBoxXY.Min.Y, Z: e.ZHeight})
		box.Expand(math.Vec3{X: e.BBoxXY.Max.X, Y: e.BBoxXY.Max.Y, Z: e.ZHeight})
	}
	return box
}

// Metadata returns the full-parse metadata, or nil in streaming mode
// (streaming never sees the whole file at once).
func (m *ToolpathModel) Metadata() *Metadata {
	if m.streaming {
		return nil
	}
	return m.meta
}

// Index returns the layer index in streaming mode, nil otherwise.
func (m *ToolpathModel) Index() *LayerIndex {
	if !m.streaming {
		return nil
	}
	return m.controller.Index()
}

// RequestLayer returns the mesh for layer k. Only valid in streaming
// mode; full-load consumers use FullMesh.
func (m *ToolpathModel) RequestLayer(ctx context.Context, k int) (LayerMesh, error) {
	if !m.streaming {
		return nil, fmt.Errorf("%w: model loaded fully, use FullMesh", ErrOutOfRange)
	}
	return m.controller.RequestLayer(ctx, k)
}

// FullMesh returns the whole-model mesh, or nil in streaming mode.
func (m *ToolpathModel) FullMesh() LayerMesh {
	if m.streaming {
		return nil
	}
	return m.mesh
}

// Close releases the controller (joining its worker) and the source.
func (m *ToolpathModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.streaming {
		if m.controller == nil {
			return nil
		}
		err := m.controller.Close() // closes the source too
		m.controller = nil
		return err
	}
	if m.source == nil {
		return nil
	}
	err := m.source.Close()
	m.source = nil
	return err
}
