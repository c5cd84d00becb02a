package partial

import (
	"go.uber.org/zap"

	"github.com/wippyai/shapekit/internal/logging"
)

var logger logging.Slot

// Logger returns the partial package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	return logger.Get()
}

// SetLogger configures the partial package's logger. Builders read it on
// every log call, so a new logger applies to builders already allocated.
func SetLogger(l *zap.Logger) {
	logger.Set(l)
}
