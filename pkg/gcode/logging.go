package gcode

import "go.uber.org/zap"

// log defaults to a nop logger so library use and tests stay quiet.
var log = zap.NewNop()

// SetLogger routes this package's logging to the application logger.
func SetLogger(l *zap.Logger) {
	if l != nil {
		log = l
	}
}
