// Package logging builds the zap loggers shared by the api and worker binaries.
package logging

import "go.uber.org/zap"

// New returns a development logger (console, debug level) when debug is set,
// otherwise a production JSON logger at info level.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// OrNop lets components accept a nil logger.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
