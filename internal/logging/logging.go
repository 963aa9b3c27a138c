// Package logging builds the logr.Logger shared by all rcloud binaries. The
// backend is zap, bridged through zapr.
package logging

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the logger behavior.
type Options struct {
	// Development enables human-readable console output instead of JSON.
	Development bool

	// Verbosity is the highest logr V-level that is emitted. 0 logs Info and
	// above; 1 additionally logs V(1) debug messages.
	Verbosity int
}

// Setup builds a logger for opts. The returned sync function flushes buffered
// entries and should be deferred by main.
func Setup(opts Options) (logr.Logger, func(), error) {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	// logr V(n) maps to zap level -n.
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-opts.Verbosity))

	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard(), func() {}, fmt.Errorf("failed to build logger: %w", err)
	}

	return zapr.NewLogger(zl), func() { _ = zl.Sync() }, nil
}
