package script

import (
	"go.uber.org/zap"

	"github.com/wippyai/shapekit/internal/logging"
)

var logger logging.Slot

// Logger returns the script package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	return logger.Get()
}

// SetLogger configures the script package's logger.
func SetLogger(l *zap.Logger) {
	logger.Set(l)
}
