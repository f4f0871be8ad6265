// Package logging wraps zap with the component-scoped logger shape used
// throughout this repository, grounded on
// account-balance-processor/go/main.go and
// stellar-live-source-datalake/go/server/server.go's zap.NewProduction()
// usage.
package logging

import (
	"go.uber.org/zap"
)

// New builds a production zap logger scoped to one component (archiver,
// loader, accountant, validator), with component/version fields attached to
// every subsequent log line.
func New(component, version string) (*zap.Logger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return logger.With(
		zap.String("component", component),
		zap.String("version", version),
	), nil
}

// NewDevelopment builds a human-readable console logger, for local runs
// and tests.
func NewDevelopment(component string) *zap.Logger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		// zap.NewDevelopment() only fails on a broken encoder config,
		// which never happens with the zero-value config it uses internally.
		panic("logging: failed to build development logger: " + err.Error())
	}
	return logger.With(zap.String("component", component))
}
