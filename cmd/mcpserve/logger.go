package main

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/mnehpets/mcpserve/config"
)

// newLogger builds the process logger and installs it as the zap global.
// The returned function flushes and restores the previous globals.
func newLogger(lc config.LogConfig) (*zap.Logger, func(), error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(lc.Level)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "log level %q", lc.Level)
	}
	zc.Level = level

	log, err := zc.Build()
	if err != nil {
		return nil, nil, errors.Wrap(err, "build logger")
	}
	restore := zap.ReplaceGlobals(log)
	return log, func() {
		_ = log.Sync()
		restore()
	}, nil
}
