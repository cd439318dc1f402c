// Package registry records initialized browser sessions so they can be torn
// down together.
//
// Entries are kept in the order they were added. Nothing is ever removed
// during normal operation; a closed session stays in the registry as a
// historical entry and is skipped by CloseAll.
package registry

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// Entry is anything the registry can close.
type Entry interface {
	Close(ctx context.Context) error
}

// closedReporter is implemented by entries that know whether they have
// already been closed.
type closedReporter interface {
	Closed() bool
}

// closedErrReporter is implemented by entries whose Close reports a close
// that another caller already claimed. Such errors are skipped, not returned.
type closedErrReporter interface {
	IsClosedErr(err error) bool
}

// Logger is the subset of logging.Logger the registry writes to.
type Logger interface {
	Debugf(format string, v ...interface{})
	Warnf(format string, v ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{})  {}

// Registry is an ordered, append-only list of entries.
type Registry struct {
	mu      sync.Mutex
	entries []Entry
	logger  Logger
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{logger: nopLogger{}}
}

var defaultRegistry = New()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// SetLogger replaces the registry logger. A nil logger disables logging.
func (r *Registry) SetLogger(l Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l == nil {
		l = nopLogger{}
	}
	r.logger = l
}

// Add appends e. Duplicates are kept.
func (r *Registry) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	r.logger.Debugf("registered entry #%d", len(r.entries))
}

// Snapshot returns a copy of the entries in insertion order.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Reset forgets every entry without closing it.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// CloseAll closes every entry in insertion order. A failing entry does not
// stop the walk; all failures are returned together.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	logger := r.logger
	r.mu.Unlock()

	var errs error
	for i, e := range entries {
		if c, ok := e.(closedReporter); ok && c.Closed() {
			logger.Debugf("entry #%d already closed, skipping", i+1)
			continue
		}
		if err := e.Close(ctx); err != nil {
			if c, ok := e.(closedErrReporter); ok && c.IsClosedErr(err) {
				logger.Debugf("entry #%d closed concurrently, skipping", i+1)
				continue
			}
			logger.Warnf("failed to close entry #%d: %v", i+1, err)
			errs = multierr.Append(errs, fmt.Errorf("entry #%d: %w", i+1, err))
		}
	}
	return errs
}
