// Package telemetry wires structured logging into every component of the
// memory service. Components take a *zap.SugaredLogger constructor
// argument rather than reaching for a global, matching the rest of the
// codebase's "pass dependencies through NewXxx(cfg)" convention.
package telemetry

import "go.uber.org/zap"

// NewLogger builds a production JSON logger. Call Sync before process exit.
func NewLogger() (*zap.SugaredLogger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// NewNop returns a logger that discards everything, for tests and for
// callers that haven't configured logging yet.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
