// Package meminfo reports available system memory for streaming decisions.
package meminfo

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// AvailableKB returns the available system memory in KB, or 0 if it
// cannot be determined. Callers must treat 0 as "unknown", not "none".
func AvailableKB() uint64 {
	return availableFromFile("/proc/meminfo")
}

func availableFromFile(path string) uint64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	var memFree, memCached uint64

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemAvailable:"):
			// Kernel >= 3.14 reports this directly; prefer it.
			return parseKBLine(line)
		case strings.HasPrefix(line, "MemFree:"):
			memFree = parseKBLine(line)
		case strings.HasPrefix(line, "Cached:"):
			memCached = parseKBLine(line)
		}
	}

	// Older kernels: free + cached approximates available.
	return memFree + memCached
}

func parseKBLine(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
