package app

import (
	"sync"

	"github.com/nerrad567/tapline/internal/session"
)

// Logger is the logging interface used by the app package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// recorders fans session records out to every registered recorder. The
// session options are fixed when the supervisor is built, so sinks that
// depend on optional infrastructure are added later.
type recorders struct {
	mu   sync.RWMutex
	list []session.Recorder
}

func (r *recorders) Add(rec session.Recorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, rec)
}

// RecordCommand implements session.Recorder.
func (r *recorders) RecordCommand(rec session.Record) {
	r.mu.RLock()
	list := r.list
	r.mu.RUnlock()
	for _, s := range list {
		s.RecordCommand(rec)
	}
}
