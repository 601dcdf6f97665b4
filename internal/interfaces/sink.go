// Package interfaces collects the narrow interfaces internal packages
// depend on, so they can be mocked independently of the concrete bqlog
// root package.
package interfaces

import "time"

// Flusher is satisfied by *bqlog.LogBuffer; internal/manager depends on
// this narrow view rather than the concrete type so the registry stays
// importable from the root package without a cycle.
type Flusher interface {
	ForceFlush(timeout time.Duration) error
}

// Sink receives fully-decoded log entries handed off by the console
// fan-out or by a DataTraverse callback. A Sink that blocks or panics
// must not be allowed to stall the consumer; callers are expected to
// wrap slow sinks with their own buffering.
type Sink interface {
	OnEntry(category string, epochMs uint64, level uint8, payload []byte) error
	Flush() error
	Close() error
}

// Logger is the narrow logging surface internal packages take a
// dependency on, satisfied by *logging.Logger.
type Logger interface {
	Printf(format string, args ...any)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Observer receives point-in-time notifications about buffer activity,
// used to drive metrics without coupling the hot path to any particular
// metrics backend.
type Observer interface {
	ObserveAlloc(size uint32, oversize bool)
	ObserveCommit(size uint32)
	ObserveDrop(reason string)
	ObserveReadLag(chunksPending uint32)
}

// NoOpObserver discards every observation; used as the default Observer
// so the hot path never has to nil-check.
type NoOpObserver struct{}

func (NoOpObserver) ObserveAlloc(size uint32, oversize bool) {}
func (NoOpObserver) ObserveCommit(size uint32)               {}
func (NoOpObserver) ObserveDrop(reason string)               {}
func (NoOpObserver) ObserveReadLag(chunksPending uint32)     {}
