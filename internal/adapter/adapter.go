// Package adapter defines the capability surface a platform adapter
// exposes to the driver: produce an initial snapshot of normalized
// mutations, and produce a stream of further mutations plus fatal-error
// signals. Neither the driver nor the state model names a platform here.
package adapter

import (
	"context"

	"github.com/moby/connectivity/internal/state"
)

// Event is one item from an adapter's change stream. Mutation and Err are
// mutually exclusive: a non-nil Err ends the stream and is fatal.
type Event struct {
	Mutation state.Mutation
	Err      error
}

// Adapter is implemented once per supported platform.
type Adapter interface {
	// Snapshot reads the OS tables once and returns the mutations needed
	// to bring an empty Model up to the current state.
	Snapshot(ctx context.Context) ([]state.Mutation, error)

	// Watch starts the live change feed. The returned channel is closed
	// when ctx is done; a fatal adapter error is delivered as a single
	// Event with Err set, after which no further events are sent.
	Watch(ctx context.Context) (<-chan Event, error)

	// Close releases adapter-owned OS resources. Safe to call after Watch
	// has already torn itself down via ctx.
	Close() error
}
