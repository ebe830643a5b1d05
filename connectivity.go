// Package connectivity shadows a host's network interfaces, addresses and
// default routes and derives a debounced connectivity verdict from that
// shadow: for each of IPv4 and IPv6, none, network-local or internet-
// capable. It watches the OS's routing tables (route-netlink on Linux, the
// IP Helper API on Windows) rather than actively probing, so a verdict
// reflects what the host believes about its own configuration, not
// reachability to any particular remote endpoint.
package connectivity

import (
	"context"
	"sync"

	"github.com/moby/connectivity/internal/driver"
	"github.com/moby/connectivity/internal/state"
)

// Level is the ordered connectivity judgment for one IP family: None,
// Network or Internet.
type Level = state.Level

const (
	LevelNone     = state.LevelNone
	LevelNetwork  = state.LevelNetwork
	LevelInternet = state.LevelInternet
)

// Connectivity is one emitted verdict: a Level per IP family.
type Connectivity = state.Connectivity

// Task is a running observer. Call Close to stop it; Wait blocks until the
// background goroutine has returned (cleanly or with a fatal error).
type Task struct {
	cancel context.CancelFunc
	stop   chan struct{}
	once   sync.Once
	done   chan error
}

// Close requests shutdown and releases the task's OS resources. It does
// not block until the task has actually stopped; call Wait for that. Safe
// to call more than once.
func (t *Task) Close() error {
	t.once.Do(func() { close(t.stop) })
	return nil
}

// Wait blocks until the task has terminated, or ctx is done first. A nil
// error means a clean shutdown (Close was called, or ctx passed to New was
// cancelled); a non-nil error means a fatal adapter failure, classified per
// the IsConfigurationError/IsProtocolError/IsOverrunError predicates in
// errors.go.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// New starts observing the host and returns a Task plus the channel
// verdicts are published on. The channel has capacity 1 and keep-newest
// semantics: a slow consumer sees the latest verdict, never a backlog.
//
// The first published value is always the verdict derived from the
// initial snapshot, even if it is the zero Connectivity (no interfaces at
// all). New returns an error only if the platform adapter fails to
// construct. The initial snapshot and the change-feed subscription are
// taken by the background task, so a failure in either, like every later
// fatal error, is only observable through Task.Wait.
func New(ctx context.Context, opts ...Option) (*Task, <-chan Connectivity, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	a, err := cfg.newAdapter(cfg.log)
	if err != nil {
		return nil, nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	out := make(chan Connectivity, 1)
	stop := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- driver.Run(runCtx, a, out, stop, cfg.log)
		cancel()
	}()

	return &Task{cancel: cancel, stop: stop, done: done}, out, nil
}
