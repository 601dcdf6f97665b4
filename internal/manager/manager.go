// Package manager implements the process-wide registry of open log
// buffers: register-on-create, unregister-on-close, and a bounded-time
// ForceFlushAll used by shutdown hooks that don't hold a reference to
// every individual buffer. Grounded on the teacher's ctrl.Controller
// open/Close lifecycle, generalized from "one controller owns one
// device fd" to "one registry owns many named buffers".
package manager

import (
	"fmt"
	"sync"
	"time"

	"github.com/ehrlich-b/bqlog/internal/interfaces"
)

// Registry tracks every open, named log buffer for bounded-time
// coordinated flush on shutdown.
type Registry struct {
	mu      sync.RWMutex
	buffers map[string]interfaces.Flusher
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{buffers: make(map[string]interfaces.Flusher)}
}

// Default is the process-wide registry that the root package's
// CreateLogBuffer registers into and (*LogBuffer).Close unregisters
// from, mirroring
// the single-controller-per-process assumption the teacher's ublk
// control path makes.
var Default = New()

// Register associates name with buf. A duplicate name is a caller
// error — log_name is meant to be unique per process, the same
// assumption the recovery file path relies on.
func (r *Registry) Register(name string, buf interfaces.Flusher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.buffers[name]; exists {
		return fmt.Errorf("manager: log buffer %q already registered", name)
	}
	r.buffers[name] = buf
	return nil
}

// Unregister removes name, a no-op if it was never registered (or was
// already removed) — Close is expected to be idempotent.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buffers, name)
}

// Get returns the buffer registered under name, if any.
func (r *Registry) Get(name string) (interfaces.Flusher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	buf, ok := r.buffers[name]
	return buf, ok
}

// Names returns every currently-registered buffer name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.buffers))
	for name := range r.buffers {
		names = append(names, name)
	}
	return names
}

// ForceFlushAll calls ForceFlush on every registered buffer concurrently
// and returns once every call has returned or the deadline passes,
// whichever comes first — best-effort, not all-or-nothing: a timeout
// here means some buffers may still hold unflushed entries, not that
// the call failed outright.
func (r *Registry) ForceFlushAll(timeout time.Duration) error {
	r.mu.RLock()
	targets := make(map[string]interfaces.Flusher, len(r.buffers))
	for name, buf := range r.buffers {
		targets[name] = buf
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}

	type result struct {
		name string
		err  error
	}
	results := make(chan result, len(targets))
	for name, buf := range targets {
		go func(name string, buf interfaces.Flusher) {
			results <- result{name: name, err: buf.ForceFlush(timeout)}
		}(name, buf)
	}

	deadline := time.After(timeout)
	var firstErr error
	for i := 0; i < len(targets); i++ {
		select {
		case res := <-results:
			if res.err != nil && firstErr == nil {
				firstErr = fmt.Errorf("manager: force flush %q: %w", res.name, res.err)
			}
		case <-deadline:
			return fmt.Errorf("manager: force flush all timed out after %s", timeout)
		}
	}
	return firstErr
}
