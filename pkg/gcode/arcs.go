package gcode

import (
	gomath "math"

	"github.com/pellcorp/helixscreen/pkg/math"
)

// MaxArcSegments caps the chord count for a single G2/G3 arc. The count
// is angle-adaptive below the cap so small arcs stay cheap.
const MaxArcSegments = 32

// arcSegmentAngle is the target sweep per chord (a full circle hits the cap).
const arcSegmentAngle = 2 * gomath.Pi / MaxArcSegments

// doArcMove handles G2 (clockwise) and G3 (counter-clockwise) in the XY
// plane, approximating the arc as a chord polyline. Z and E advance
// linearly along the sweep, which covers helical moves.
func (p *Parser) doArcMove(words []string, clockwise bool, lineStart uint64, line []byte) error {
	target := p.state.Position()
	newE := p.state.E
	feed := p.state.Feedrate
	var offsetI, offsetJ float32
	haveIJ := false

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
		case 'I':
			offsetI = val
			haveIJ = true
		case 'J':
			offsetJ = val
			haveIJ = true
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

	// Without a center offset the arc degenerates to a straight move.
	if !haveIJ || (offsetI == 0 && offsetJ == 0) {
		p.emitMove(target, newE, feed, lineStart)
		return nil
	}

	start := p.state.Position()
	centerX := float64(start.X + offsetI)
	centerY := float64(start.Y + offsetJ)

	startAngle := gomath.Atan2(float64(start.Y)-centerY, float64(start.X)-centerX)
	endAngle := gomath.Atan2(float64(target.Y)-centerY, float64(target.X)-centerX)
	radius := gomath.Hypot(float64(start.X)-centerX, float64(start.Y)-centerY)

	// Sweep in the commanded direction; coincident endpoints mean a
	// full circle, matching Marlin's planArc.
	sweep := endAngle - startAngle
	if clockwise {
		if sweep >= 0 {
			sweep -= 2 * gomath.Pi
		}
	} else {
		if sweep <= 0 {
			sweep += 2 * gomath.Pi
		}
	}

	count := int(gomath.Ceil(gomath.Abs(sweep) / arcSegmentAngle))
	if count < 1 {
		count = 1
	}
	if count > MaxArcSegments {
		count = MaxArcSegments
	}

	startE := p.state.E
	startZ := start.Z
	for i := 1; i <= count; i++ {
		t := float64(i) / float64(count)
		var chord math.Vec3
		if i == count {
			// Land exactly on the commanded endpoint.
			chord = target
		} else {
			a := startAngle + sweep*t
			chord = math.Vec3{
				X: float32(centerX + radius*gomath.Cos(a)),
				Y: float32(centerY + radius*gomath.Sin(a)),
				Z: startZ + (target.Z-startZ)*float32(t),
			}
		}
		chordE := startE + (newE-startE)*float32(t)
		p.emitMove(chord, chordE, feed, lineStart)
	}
	return nil
}
