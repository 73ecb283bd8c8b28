package uetsim

//
// Logging
//

import (
	apexlog "github.com/apex/log"
)

// Logger is the logger used throughout the simulator. The zero value of
// [NullLogger] is ready to use; an [ApexLogger] must be built with
// [NewApexLogger].
type Logger interface {
	// Debugf formats and emits a debug message.
	Debugf(format string, v ...any)

	// Debug emits a debug message.
	Debug(message string)

	// Infof formats and emits an informational message.
	Infof(format string, v ...any)

	// Info emits an informational message.
	Info(message string)

	// Warnf formats and emits a warning message.
	Warnf(format string, v ...any)

	// Warn emits a warning message.
	Warn(message string)
}

// NullLogger is a [Logger] that discards every message.
type NullLogger struct{}

var _ Logger = &NullLogger{}

// Debug implements Logger.
func (*NullLogger) Debug(message string) {}

// Debugf implements Logger.
func (*NullLogger) Debugf(format string, v ...any) {}

// Info implements Logger.
func (*NullLogger) Info(message string) {}

// Infof implements Logger.
func (*NullLogger) Infof(format string, v ...any) {}

// Warn implements Logger.
func (*NullLogger) Warn(message string) {}

// Warnf implements Logger.
func (*NullLogger) Warnf(format string, v ...any) {}

// ApexLogger adapts an [apexlog.Interface] to [Logger]. The zero value is
// invalid; use [NewApexLogger] to construct one.
type ApexLogger struct {
	entry apexlog.Interface
}

var _ Logger = &ApexLogger{}

// NewApexLogger creates a new [ApexLogger] wrapping the given apex/log
// interface. Pass apexlog.Log to use the default global logger.
func NewApexLogger(entry apexlog.Interface) *ApexLogger {
	return &ApexLogger{entry: entry}
}

// Debug implements Logger.
func (al *ApexLogger) Debug(message string) {
	al.entry.Debug(message)
}

// Debugf implements Logger.
func (al *ApexLogger) Debugf(format string, v ...any) {
	al.entry.Debugf(format, v...)
}

// Info implements Logger.
func (al *ApexLogger) Info(message string) {
	al.entry.Info(message)
}

// Infof implements Logger.
func (al *ApexLogger) Infof(format string, v ...any) {
	al.entry.Infof(format, v...)
}

// Warn implements Logger.
func (al *ApexLogger) Warn(message string) {
	al.entry.Warn(message)
}

// Warnf implements Logger.
func (al *ApexLogger) Warnf(format string, v ...any) {
	al.entry.Warnf(format, v...)
}
