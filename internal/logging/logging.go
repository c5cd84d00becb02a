// Package logging holds the swappable package-level loggers used across
// shapekit. Each public package keeps one Slot behind its Logger and
// SetLogger functions.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

var nop = zap.NewNop()

// Slot is a package logger. The zero value logs nothing.
type Slot struct {
	mu sync.RWMutex
	l  *zap.Logger
}

// Get returns the installed logger, or a no-op logger if none is set.
func (s *Slot) Get() *zap.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.l == nil {
		return nop
	}
	return s.l
}

// Set installs l. A nil logger restores the no-op default.
func (s *Slot) Set(l *zap.Logger) {
	s.mu.Lock()
	s.l = l
	s.mu.Unlock()
}
