package gcode

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Cache bounds for layer meshes held by the controller.
const (
	MaxCachedLayers   = 5
	MaxCachedVertices = 1024 * 1024
)

// ControllerState is the lifecycle phase of a Controller.
type ControllerState int32

const (
	StateClosed ControllerState = iota
	StateOpening
	StateIndexing
	StateReady
	StateClosing
)

func (s ControllerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateIndexing:
		return "indexing"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// Dispatcher posts a function to the consumer's event loop. All
// controller events arrive through it, so consumers never need their
// own locking around event state.
type Dispatcher interface {
	Dispatch(fn func())
}

// SyncDispatcher runs events inline on the calling goroutine. Suitable
// for tests and headless use.
type SyncDispatcher struct{}

func (SyncDispatcher) Dispatch(fn func()) { fn() }

// LayerMesh is the renderable product of a layer build. Implementations
// must be immutable once published.
type LayerMesh interface {
	VertexCount() int
	TriangleCount() int
}

// MeshBuilder turns one layer's move segments into a mesh.
type MeshBuilder interface {
	BuildLayer(layer int32, segs []MoveSegment) (LayerMesh, error)
}

// ControllerEvents are delivered through the Dispatcher. Nil callbacks
// are skipped.
type ControllerEvents struct {
	// OnProgress reports index build progress in [0,1].
	OnProgress func(fraction float64)

	// OnReady fires once the index is available and layers can be
	// requested.
	OnReady func(index *LayerIndex)

	// OnError fires when opening or indexing fails; the controller
	// returns to Closed.
	OnError func(err error)
}

type layerRequest struct {
	ctx   context.Context
	layer int
	reply chan layerResult
}

type layerResult struct {
	mesh LayerMesh
	err  error
}

type cacheEntry struct {
	layer int
	mesh  LayerMesh
}

// Controller serves per-layer meshes from a large file without holding
// the whole toolpath in memory. A single worker goroutine owns all
// source reads, so the DataSource never sees concurrent access.
type Controller struct {
	builder MeshBuilder
	disp    Dispatcher
	events  ControllerEvents

	mu    sync.Mutex
	state ControllerState
	index *LayerIndex

	// cache holds recently built meshes, most recent first.
	cache      []cacheEntry
	cacheVerts int

	source   DataSource
	requests chan layerRequest
	cancel   context.CancelFunc
	done     chan struct{}

	// closing is closed by Close so that senders blocked on requests
	// are released; the requests channel itself is never closed, which
	// keeps a late RequestLayer from panicking mid-shutdown.
	closing chan struct{}
}

// NewController returns an idle controller. disp must not be nil.
func NewController(builder MeshBuilder, disp Dispatcher, events ControllerEvents) *Controller {
	return &Controller{
		builder: builder,
		disp:    disp,
		events:  events,
		state:   StateClosed,
	}
}

// State returns the current lifecycle phase.
func (c *Controller) State() ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Index returns the layer index, or nil before Ready.
func (c *Controller) Index() *LayerIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Open prepares source for streaming: it materializes an indexable file
// when needed, then builds or loads the layer index on a background
// worker. Progress and the Ready/Error transition arrive via the
// Dispatcher. Open returns once the worker is started.
func (c *Controller) Open(ctx context.Context, source DataSource) error {
	c.mu.Lock()
	if c.state != StateClosed {
		c.mu.Unlock()
		return fmt.Errorf("open in state %s: %w", c.state, ErrClosed)
	}
	c.state = StateOpening
	c.mu.Unlock()

	ok, err := source.EnsureIndexable(ctx)
	if err != nil || !ok {
		c.setState(StateClosed)
		if err == nil {
			err = fmt.Errorf("%w: source %s is not indexable", ErrIndexBuildFailed, source.Name())
		}
		return err
	}

	workerCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.state != StateOpening {
		// Close ran while the source was being prepared; the caller
		// still owns the source.
		state := c.state
		c.mu.Unlock()
		cancel()
		return fmt.Errorf("open interrupted in state %s: %w", state, ErrClosed)
	}
	c.state = StateIndexing
	c.source = source
	c.cancel = cancel
	c.requests = make(chan layerRequest)
	c.done = make(chan struct{})
	c.closing = make(chan struct{})
	c.mu.Unlock()

	go c.run(workerCtx, source)
	return nil
}

// run is the worker goroutine: index first, then serve layer requests
// until the controller context is cancelled.
func (c *Controller) run(ctx context.Context, source DataSource) {
	defer close(c.done)

	index, err := LoadOrBuildIndex(ctx, source.IndexablePath(), func(fraction float64) {
		c.disp.Dispatch(func() {
			if c.events.OnProgress != nil {
				c.events.OnProgress(fraction)
			}
		})
	})
	if err != nil {
		log.Error("indexing failed", zap.String("source", source.Name()), zap.Error(err))
		// Release the source here unless a concurrent Close already
		// took ownership of it; a later Close sees StateClosed and
		// must not find a dangling temp file.
		c.mu.Lock()
		owned := c.state == StateIndexing
		cancel := c.cancel
		if owned {
			c.state = StateClosed
			c.source = nil
			c.requests = nil
			c.cancel = nil
			c.closing = nil
			c.done = nil
		}
		c.mu.Unlock()
		if owned {
			cancel()
			if cerr := source.Close(); cerr != nil {
				log.Warn("source close failed", zap.String("source", source.Name()), zap.Error(cerr))
			}
		}
		c.disp.Dispatch(func() {
			if c.events.OnError != nil {
				c.events.OnError(err)
			}
		})
		return
	}

	c.mu.Lock()
	c.index = index
	c.state = StateReady
	c.mu.Unlock()

	c.disp.Dispatch(func() {
		if c.events.OnReady != nil {
			c.events.OnReady(index)
		}
	})

	requests := c.requests
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-requests:
			mesh, err := c.buildLayer(req.ctx, source, index, req.layer)
			req.reply <- layerResult{mesh: mesh, err: err}
		}
	}
}

// RequestLayer returns the mesh for layer k, from cache when possible,
// otherwise by re-parsing the layer's byte range with its seeded modal
// state. Requests are serialized on the worker.
func (c *Controller) RequestLayer(ctx context.Context, k int) (LayerMesh, error) {
	c.mu.Lock()
	if c.state != StateReady {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("request in state %s: %w", state, ErrClosed)
	}
	if k < 0 || k >= c.index.LayerCount() {
		count := c.index.LayerCount()
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: layer %d of %d", ErrOutOfRange, k, count)
	}
	if mesh, ok := c.cacheGetLocked(k); ok {
		c.mu.Unlock()
		return mesh, nil
	}
	requests := c.requests
	closing := c.closing
	c.mu.Unlock()

	req := layerRequest{ctx: ctx, layer: k, reply: make(chan layerResult, 1)}
	select {
	case requests <- req:
	case <-closing:
		return nil, fmt.Errorf("request interrupted in state %s: %w", StateClosing, ErrClosed)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res.mesh, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Controller) buildLayer(ctx context.Context, source DataSource, index *LayerIndex, k int) (LayerMesh, error) {
	// A concurrent request for the same layer may have filled the cache
	// while this one waited in the queue.
	c.mu.Lock()
	if mesh, ok := c.cacheGetLocked(k); ok {
		c.mu.Unlock()
		return mesh, nil
	}
	c.mu.Unlock()

	entry, _ := index.Entry(k)
	seed, _ := index.Seed(k)

	data, err := source.ReadRange(ctx, entry.ByteStart, uint32(entry.ByteEnd-entry.ByteStart))
	if err != nil {
		return nil, err
	}

	parser := NewLayerParser(seed, int32(k), entry.ByteStart)
	if err := parser.Feed(data); err != nil {
		return nil, err
	}
	if _, err := parser.Finish(); err != nil {
		return nil, err
	}

	mesh, err := c.builder.BuildLayer(int32(k), parser.Segments())
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cachePutLocked(k, mesh)
	c.mu.Unlock()

	log.Debug("served layer",
		zap.Int("layer", k),
		zap.Uint32("moves", entry.MoveCount),
		zap.Int("vertices", mesh.VertexCount()))
	return mesh, nil
}

func (c *Controller) cacheGetLocked(k int) (LayerMesh, bool) {
	for i, e := range c.cache {
		if e.layer == k {
			// Move to front.
			copy(c.cache[1:i+1], c.cache[:i])
			c.cache[0] = e
			return e.mesh, true
		}
	}
	return nil, false
}

func (c *Controller) cachePutLocked(k int, mesh LayerMesh) {
	c.cache = append([]cacheEntry{{layer: k, mesh: mesh}}, c.cache...)
	c.cacheVerts += mesh.VertexCount()
	for len(c.cache) > 1 && (len(c.cache) > MaxCachedLayers || c.cacheVerts > MaxCachedVertices) {
		last := c.cache[len(c.cache)-1]
		c.cache = c.cache[:len(c.cache)-1]
		c.cacheVerts -= last.mesh.VertexCount()
	}
}

func (c *Controller) setState(s ControllerState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Close cancels any in-flight indexing, joins the worker, and releases
// the source. Safe to call in any state.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateClosing {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	cancel := c.cancel
	closing := c.closing
	done := c.done
	source := c.source
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closing != nil {
		close(closing)
	}
	if done != nil {
		<-done
	}

	var err error
	if source != nil {
		err = source.Close()
	}

	c.mu.Lock()
	c.state = StateClosed
	c.index = nil
	c.cache = nil
	c.cacheVerts = 0
	c.source = nil
	c.requests = nil
	c.cancel = nil
	c.done = nil
	c.closing = nil
	c.mu.Unlock()
	return err
}
