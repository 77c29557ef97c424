package bedmesh

// Deviation ramp bounds in millimeters: heights at or below DeviationMin
// render fully blue, at or above DeviationMax fully red, with green at
// zero.
const (
	DeviationMin = -0.3
	DeviationMax = 0.3
)

const (
	colorLow  = 0xFF0000FF // blue
	colorMid  = 0xFF00FF00 // green
	colorHigh = 0xFFFF0000 // red
)

// DeviationColor maps a raw probe height to the deviation ramp.
func DeviationColor(z float32) uint32 {
	return RampColor(z, DeviationMin, DeviationMax)
}

// RampColor maps z within [minZ,maxZ] onto the blue-green-red ramp,
// clamping outside the range. A degenerate range renders green.
func RampColor(z, minZ, maxZ float32) uint32 {
	if maxZ <= minZ {
		return colorMid
	}
	t := (z - minZ) / (maxZ - minZ)
	if t <= 0 {
		return colorLow
	}
	if t >= 1 {
		return colorHigh
	}
	if t < 0.5 {
		return LerpColor(colorLow, colorMid, t*2)
	}
	return LerpColor(colorMid, colorHigh, (t-0.5)*2)
}

// LerpColor interpolates two ARGB colors channel-wise. t is clamped to
// [0,1].
func LerpColor(a, b uint32, t float32) uint32 {
	if t <= 0 {
		return a
	}
	if t >= 1 {
		return b
	}
	return lerpChannel(a, b, t, 24) | lerpChannel(a, b, t, 16) |
		lerpChannel(a, b, t, 8) | lerpChannel(a, b, t, 0)
}

func lerpChannel(a, b uint32, t float32, shift uint) uint32 {
	ca := float32((a >> shift) & 0xFF)
	cb := float32((b >> shift) & 0xFF)
	return uint32(ca+(cb-ca)*t+0.5) << shift
}

// AverageColor returns the channel-wise mean of three ARGB colors.
func AverageColor(c1, c2, c3 uint32) uint32 {
	return avgChannel(c1, c2, c3, 24) | avgChannel(c1, c2, c3, 16) |
		avgChannel(c1, c2, c3, 8) | avgChannel(c1, c2, c3, 0)
}

func avgChannel(c1, c2, c3 uint32, shift uint) uint32 {
	sum := (c1>>shift)&0xFF + (c2>>shift)&0xFF + (c3>>shift)&0xFF
	return (sum / 3) << shift
}
