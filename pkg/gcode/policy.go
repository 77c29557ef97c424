package gcode

import (
	"os"
	"strings"

	"go.uber.org/zap"
)

// StreamingMode selects between full-load and layer-by-layer rendering.
type StreamingMode int

const (
	// StreamingAuto decides from file size and available memory.
	StreamingAuto StreamingMode = iota
	// StreamingOn always streams.
	StreamingOn
	// StreamingOff always loads the whole file.
	StreamingOff
)

func (m StreamingMode) String() string {
	switch m {
	case StreamingOn:
		return "on"
	case StreamingOff:
		return "off"
	default:
		return "auto"
	}
}

// StreamingEnvVar overrides the configured streaming mode when set to
// "on", "off" or "auto".
const StreamingEnvVar = "HELIX_GCODE_STREAMING"

// ExpansionFactor is the measured ratio of in-memory mesh size to source
// file size. The value was calibrated on embedded printer hardware;
// changing it shifts the streaming threshold for every file.
const ExpansionFactor = 5

// fallbackThresholdBytes applies when available memory cannot be read.
const fallbackThresholdBytes = 2 * 1024 * 1024

// DefaultThresholdPercent is the share of available RAM a full load may use.
const DefaultThresholdPercent = 40

// ResolveStreamingMode applies the priority chain: environment variable,
// then the configured value, then auto.
func ResolveStreamingMode(configured string) StreamingMode {
	if env := os.Getenv(StreamingEnvVar); env != "" {
		switch strings.ToLower(env) {
		case "on":
			return StreamingOn
		case "off":
			return StreamingOff
		case "auto":
			return StreamingAuto
		default:
			log.Warn("unknown streaming mode in environment, using auto",
				zap.String("value", env))
			return StreamingAuto
		}
	}

	switch strings.ToLower(configured) {
	case "on":
		return StreamingOn
	case "off":
		return StreamingOff
	default:
		return StreamingAuto
	}
}

// ClampThresholdPercent keeps the configured percentage in its valid range.
func ClampThresholdPercent(percent int) int {
	if percent < 1 {
		return DefaultThresholdPercent
	}
	if percent > 90 {
		return 90
	}
	return percent
}

// StreamingThreshold computes the maximum file size that may be fully
// loaded, working backwards from the memory budget through the expansion
// factor.
func StreamingThreshold(availableKB uint64, thresholdPercent int) uint64 {
	maxMemoryBytes := availableKB * 1024 * uint64(thresholdPercent) / 100
	return maxMemoryBytes / ExpansionFactor
}

// ShouldStream is the pure streaming decision: same inputs, same answer.
// availableKB of 0 means memory could not be queried and triggers the
// conservative fallback threshold.
func ShouldStream(fileSize uint64, mode StreamingMode, availableKB uint64, thresholdPercent int) bool {
	switch mode {
	case StreamingOn:
		return true
	case StreamingOff:
		return false
	}

	if availableKB == 0 {
		return fileSize > fallbackThresholdBytes
	}

	return fileSize > StreamingThreshold(availableKB, ClampThresholdPercent(thresholdPercent))
}
