package logger

import corelogger "github.com/kilianp07/robofleet/core/logger"

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger discards everything.
type NopLogger = corelogger.NopLogger

// New returns a Logger for the given component. The output format is picked
// from the APP_ENV variable, the level and destination from Configure.
func New(component string) Logger {
	return NewZerologLogger(component)
}
