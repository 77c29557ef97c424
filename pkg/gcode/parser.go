package gcode

import (
	"bytes"
	"fmt"
	gomath "math"
	"sort"
	"strconv"
	"strings"

	"github.com/pellcorp/helixscreen/pkg/math"
)

const (
	// ZLayerThreshold is the minimum ascending Z transition (mm) that
	// opens a new layer when the slicer emits no layer markers.
	ZLayerThreshold = 0.04

	// DefaultLayerHeight is assumed when the file has too few layers to
	// detect one.
	DefaultLayerHeight = 0.2

	inchToMM = 25.4

	// excerptLen bounds the line excerpt carried by parse errors.
	excerptLen = 32
)

// Parser is an incremental modal-state machine over the G-code grammar
// subset the viewer understands. Feed it chunks in file order, then call
// Finish. Segments are delivered to the segment handler (or accumulated
// when none is set) in exact source order.
type Parser struct {
	state ModalState
	meta  Metadata

	onSegment func(MoveSegment)
	onLayer   func(LayerBoundary)

	segments []MoveSegment

	// Layer tracking.
	singleLayer   bool
	curLayer      int32
	lastLayerZ    float32
	layerZs       []float32
	useMarkers    bool
	pendingMarker bool
	hasExtruded   bool

	carry    []byte
	offset   uint64 // absolute offset of the next unprocessed byte
	finished bool
}

// NewParser returns a parser for a whole file, starting from the default
// modal state.
func NewParser() *Parser {
	return &Parser{
		state:    DefaultModalState(),
		curLayer: -1,
		meta: Metadata{
			Bounds:  math.EmptyBox3(),
			Palette: DefaultPalette(),
		},
	}
}

// NewLayerParser returns a parser for a single layer's byte range. The
// modal state is seeded from the previous layer's terminal state, every
// segment is tagged with layer, and boundary detection is disabled.
func NewLayerParser(seed ModalState, layer int32, baseOffset uint64) *Parser {
	p := NewParser()
	p.state = seed
	p.singleLayer = true
	p.curLayer = layer
	p.offset = baseOffset
	// Layers past the first only exist because something extruded before
	// them, so their travels are not preamble.
	p.hasExtruded = layer > 0
	return p
}

// OnSegment registers a segment handler. Without one, segments accumulate
// and are available from Segments.
func (p *Parser) OnSegment(fn func(MoveSegment)) { p.onSegment = fn }

// OnLayer registers a layer boundary handler.
func (p *Parser) OnLayer(fn func(LayerBoundary)) { p.onLayer = fn }

// Segments returns the accumulated segments when no handler is set.
func (p *Parser) Segments() []MoveSegment { return p.segments }

// State returns the current modal state. After Finish it is the terminal
// state for seeding the next layer.
func (p *Parser) State() ModalState { return p.state }

// Feed processes a chunk. Incomplete trailing lines are carried over to
// the next Feed or Finish call.
func (p *Parser) Feed(chunk []byte) error {
	for len(chunk) > 0 {
		nl := bytes.IndexByte(chunk, '\n')
		if nl < 0 {
			p.carry = append(p.carry, chunk...)
			return nil
		}

		var line []byte
		lineStart := p.offset
		if len(p.carry) > 0 {
			p.carry = append(p.carry, chunk[:nl]...)
			line = p.carry
		} else {
			line = chunk[:nl]
		}

		if err := p.processLine(line, lineStart); err != nil {
			return err
		}

		p.offset += uint64(len(line)) + 1
		p.carry = p.carry[:0]
		chunk = chunk[nl+1:]
	}
	return nil
}

// Finish flushes any carried partial line and finalizes metadata.
func (p *Parser) Finish() (*Metadata, error) {
	if p.finished {
		return &p.meta, nil
	}
	p.finished = true

	if len(p.carry) > 0 {
		if err := p.processLine(p.carry, p.offset); err != nil {
			return nil, err
		}
		p.offset += uint64(len(p.carry))
		p.carry = nil
	}

	p.meta.LayerCount = uint32(len(p.layerZs))
	p.meta.LayerHeight = detectLayerHeight(p.layerZs)
	return &p.meta, nil
}

// ParseAll parses a complete buffer in full-file mode.
func ParseAll(data []byte) ([]MoveSegment, *Metadata, error) {
	p := NewParser()
	if err := p.Feed(data); err != nil {
		return nil, nil, err
	}
	meta, err := p.Finish()
	if err != nil {
		return nil, nil, err
	}
	return p.segments, meta, nil
}

// ParseLayer parses one layer's byte range with a seeded modal state and
// returns the segments plus the terminal state.
func ParseLayer(data []byte, seed ModalState, layer int32, baseOffset uint64) ([]MoveSegment, ModalState, error) {
	p := NewLayerParser(seed, layer, baseOffset)
	if err := p.Feed(data); err != nil {
		return nil, ModalState{}, err
	}
	if _, err := p.Finish(); err != nil {
		return nil, ModalState{}, err
	}
	return p.segments, p.state, nil
}

func (p *Parser) processLine(line []byte, lineStart uint64) error {
	line = bytes.TrimSuffix(line, []byte{'\r'})

	code := line
	if i := bytes.IndexByte(line, ';'); i >= 0 {
		p.handleComment(string(line[i+1:]), lineStart)
		code = line[:i]
	}

	fields := strings.Fields(string(code))
	if len(fields) == 0 {
		return nil
	}

	cmd := strings.ToUpper(fields[0])
	switch {
	case cmd == "G0" || cmd == "G1":
		return p.doLinearMove(fields[1:], lineStart, line)
	case cmd == "G2" || cmd == "G3":
		return p.doArcMove(fields[1:], cmd == "G2", lineStart, line)
	case cmd == "G20":
		p.state.Inches = true
	case cmd == "G21":
		p.state.Inches = false
	case cmd == "G90":
		p.state.AbsoluteMoves = true
		p.state.AbsoluteE = true
	case cmd == "G91":
		p.state.AbsoluteMoves = false
		p.state.AbsoluteE = false
	case cmd == "M82":
		p.state.AbsoluteE = true
	case cmd == "M83":
		p.state.AbsoluteE = false
	case cmd == "G92":
		return p.doSetPosition(fields[1:], lineStart, line)
	case len(cmd) > 1 && cmd[0] == 'T':
		n, err := strconv.Atoi(cmd[1:])
		if err != nil {
			return parseError(ErrMalformedCommand, lineStart, line)
		}
		if n >= 0 && n < MaxTools {
			p.state.Tool = uint8(n)
		}
	default:
		// Everything else (heater, fan, firmware commands) is ignored.
	}
	return nil
}

// doLinearMove handles G0/G1.
func (p *Parser) doLinearMove(words []string, lineStart uint64, line []byte) error {
	target := p.state.Position()
	newE := p.state.E
	feed := p.state.Feedrate
	zWord := false

	for _, w := range words {
		letter, val, err := p.parseWord(w, lineStart, line)
		if err != nil {
			return err
		}
		switch letter {
		case 'X':
			target.X = p.resolveAxis(p.state.X, val)
		case 'Y':
			target.Y = p.resolveAxis(p.state.Y, val)
		case 'Z':
			target.Z = p.resolveAxis(p.state.Z, val)
			zWord = true
		case 'E':
			if p.state.AbsoluteE {
				newE = val
			} else {
				newE = p.state.E + val
			}
		case 'F':
			feed = val
		}
	}

	if zWord && !p.singleLayer {
		p.checkLayerBoundary(target.Z, lineStart)
	}

	p.emitMove(target, newE, feed, lineStart)
	return nil
}

// doSetPosition handles G92: counters reset, no motion.
func (p *Parser) doSetPosition(words []string, lineStart uint64, line []byte) error {
	for _, w := range words {
		letter, val, err := p.parseWord(w, lineStart, line)
		if err != nil {
			return err
		}
		switch letter {
		case 'X':
			p.state.X = val
		case 'Y':
			p.state.Y = val
		case 'Z':
			p.state.Z = val
		case 'E':
			p.state.E = val
		}
	}
	return nil
}

// emitMove publishes a segment if the position changed, and folds the
// extrusion delta into the metadata either way.
func (p *Parser) emitMove(target math.Vec3, newE, feed float32, lineStart uint64) {
	deltaE := newE - p.state.E
	start := p.state.Position()

	if deltaE > 0 {
		p.meta.TotalExtrusion += deltaE
		p.meta.PerToolExtrusion[p.state.Tool] += deltaE

		// The first extruding move opens layer 0 when no boundary has
		// been seen yet: everything before it is priming and travel.
		if !p.singleLayer && p.curLayer < 0 {
			p.openLayer(target.Z, 0)
		}
		p.hasExtruded = true
	}

	// Moves before the first extrusion are homing and priming travel;
	// nothing renders them, so they produce no segments.
	if target != start && p.hasExtruded {
		seg := MoveSegment{
			Start:      start,
			End:        target,
			Feedrate:   feed,
			Layer:      p.curLayer,
			Tool:       p.state.Tool,
			ByteOffset: lineStart,
		}
		if deltaE > 0 {
			seg.IsExtrusion = true
			seg.ExtrusionLength = deltaE
			p.meta.Bounds.Expand(start)
			p.meta.Bounds.Expand(target)
		} else if deltaE < 0 {
			seg.IsRetraction = true
		}
		p.publish(seg)
	}

	p.state.X, p.state.Y, p.state.Z = target.X, target.Y, target.Z
	p.state.E = newE
	p.state.Feedrate = feed
}

func (p *Parser) publish(seg MoveSegment) {
	if p.onSegment != nil {
		p.onSegment(seg)
		return
	}
	p.segments = append(p.segments, seg)
}

// checkLayerBoundary applies the marker or Z-transition rule for a move
// that carries a Z word.
func (p *Parser) checkLayerBoundary(z float32, lineStart uint64) {
	if p.useMarkers {
		if p.pendingMarker {
			p.openLayer(z, lineStart)
			p.pendingMarker = false
		}
		return
	}
	if p.hasExtruded && z > p.lastLayerZ+ZLayerThreshold {
		p.openLayer(z, lineStart)
	}
}

func (p *Parser) openLayer(z float32, byteStart uint64) {
	p.curLayer++
	p.lastLayerZ = z
	p.layerZs = append(p.layerZs, z)
	if p.onLayer != nil {
		// A layer that starts at byte 0 replays the whole preamble, so
		// its seed is the top-of-file state, not the current one.
		prev := p.state
		if byteStart == 0 {
			prev = DefaultModalState()
		}
		p.onLayer(LayerBoundary{
			Layer:     p.curLayer,
			Z:         z,
			ByteStart: byteStart,
			PrevEnd:   prev,
		})
	}
}

// resolveAxis applies the absolute/relative coordinate mode.
func (p *Parser) resolveAxis(current, val float32) float32 {
	if p.state.AbsoluteMoves {
		return val
	}
	return current + val
}

// parseWord splits a word like "X10.5" into letter and value, converting
// inches to millimeters. Non-finite values abort the parse.
func (p *Parser) parseWord(word string, lineStart uint64, line []byte) (byte, float32, error) {
	if len(word) < 2 {
		return 0, 0, parseError(ErrMalformedCommand, lineStart, line)
	}
	letter := upperByte(word[0])

	v, err := strconv.ParseFloat(word[1:], 32)
	if err != nil || gomath.IsNaN(v) || gomath.IsInf(v, 0) {
		return 0, 0, parseError(ErrMalformedNumeric, lineStart, line)
	}

	val := float32(v)
	if p.state.Inches {
		val *= inchToMM
	}
	return letter, val, nil
}

// handleComment recognizes layer markers, color lists and slicer
// identification; everything else is noise.
func (p *Parser) handleComment(text string, lineStart uint64) {
	trimmed := strings.TrimSpace(text)
	upper := strings.ToUpper(trimmed)

	switch {
	case strings.HasPrefix(upper, "LAYER_CHANGE"), strings.HasPrefix(upper, "LAYER:"):
		if !p.singleLayer {
			p.useMarkers = true
			p.pendingMarker = true
		}
	case strings.HasPrefix(upper, "COLOR:"):
		p.parseColorComment(trimmed[len("color:"):])
	case strings.HasPrefix(upper, "FLAVOR:"):
		// Cura emits ;FLAVOR:Marlin as its first line.
		if p.meta.Slicer == "" {
			p.meta.Slicer = "Cura"
		}
	default:
		p.detectSlicer(trimmed)
	}
}

// parseColorComment parses "#RRGGBB[, #RRGGBB...]" into the tool palette.
func (p *Parser) parseColorComment(list string) {
	var palette []uint32
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		part = strings.TrimPrefix(part, "#")
		if len(part) != 6 {
			continue
		}
		rgb, err := strconv.ParseUint(part, 16, 32)
		if err != nil {
			continue
		}
		palette = append(palette, 0xFF000000|uint32(rgb))
		if len(palette) == MaxTools {
			break
		}
	}
	if len(palette) > 0 {
		p.meta.Palette = palette
	}
}

var slicerNames = []string{"PrusaSlicer", "SuperSlicer", "OrcaSlicer", "BambuStudio", "Cura_SteamEngine", "Slic3r", "ideaMaker", "Simplify3D"}

func (p *Parser) detectSlicer(comment string) {
	if p.meta.Slicer != "" {
		return
	}
	lower := strings.ToLower(comment)
	if !strings.Contains(lower, "generated by") && !strings.Contains(lower, "generated with") {
		return
	}
	for _, name := range slicerNames {
		if strings.Contains(lower, strings.ToLower(name)) {
			if name == "Cura_SteamEngine" {
				name = "Cura"
			}
			p.meta.Slicer = name
			return
		}
	}
}

// detectLayerHeight picks the dominant positive Z step between layers.
func detectLayerHeight(layerZs []float32) float32 {
	if len(layerZs) < 2 {
		return DefaultLayerHeight
	}

	// Bucket deltas at 0.01mm; the most common wins, ties to the smaller.
	counts := make(map[int32]int)
	for i := 1; i < len(layerZs); i++ {
		d := layerZs[i] - layerZs[i-1]
		if d <= 0 {
			continue
		}
		counts[int32(gomath.Round(float64(d)*100))]++
	}
	if len(counts) == 0 {
		return DefaultLayerHeight
	}

	buckets := make([]int32, 0, len(counts))
	for b := range counts {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })

	best := buckets[0]
	for _, b := range buckets[1:] {
		if counts[b] > counts[best] {
			best = b
		}
	}
	return float32(best) / 100
}

func upperByte(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 32
	}
	return b
}

func parseError(kind error, offset uint64, line []byte) error {
	excerpt := line
	if len(excerpt) > excerptLen {
		excerpt = excerpt[:excerptLen]
	}
	return fmt.Errorf("%w: at byte %d: %q", kind, offset, excerpt)
}
