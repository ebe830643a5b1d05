package driver

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/moby/connectivity/internal/adapter"
	"github.com/moby/connectivity/internal/kinderr"
	"github.com/moby/connectivity/internal/state"
)

type fakeAdapter struct {
	snapshot []state.Mutation
	snapErr  error
	watchErr error
	events   chan adapter.Event
	closed   chan struct{}
}

func newFakeAdapter(snapshot ...state.Mutation) *fakeAdapter {
	return &fakeAdapter{
		snapshot: snapshot,
		events:   make(chan adapter.Event),
		closed:   make(chan struct{}),
	}
}

func (f *fakeAdapter) Snapshot(context.Context) ([]state.Mutation, error) { return f.snapshot, f.snapErr }
func (f *fakeAdapter) Watch(context.Context) (<-chan adapter.Event, error) { return f.events, f.watchErr }
func (f *fakeAdapter) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

func recvWithin(t *testing.T, out <-chan state.Connectivity, d time.Duration) state.Connectivity {
	t.Helper()
	select {
	case v := <-out:
		return v
	case <-time.After(d):
		t.Fatal("timed out waiting for a published verdict")
		return state.Connectivity{}
	}
}

// Scenario 1: cold start, no hardware.
func TestColdStartNoHardware(t *testing.T) {
	a := newFakeAdapter()
	out := make(chan state.Connectivity, 1)
	stop := make(chan struct{})
	done := make(chan error, 1)

	go func() { done <- Run(context.Background(), a, out, stop, nil) }()

	v := recvWithin(t, out, time.Second)
	assert.Check(t, is.Equal(v, state.Connectivity{}))

	close(stop)
	select {
	case err := <-done:
		assert.NilError(t, err)
	case <-time.After(time.Second):
		t.Fatal("driver did not terminate after stop")
	}
}

// Scenario 2, driven end-to-end through the event channel.
func TestV4OnlyComeUpThroughDriver(t *testing.T) {
	a := newFakeAdapter()
	out := make(chan state.Connectivity, 1)
	stop := make(chan struct{})
	done := make(chan error, 1)

	go func() { done <- Run(context.Background(), a, out, stop, nil) }()
	assert.Check(t, is.Equal(recvWithin(t, out, time.Second), state.Connectivity{}))

	a.events <- adapter.Event{Mutation: state.AddLink(7, false, true)}
	a.events <- adapter.Event{Mutation: state.AddAddress(7, netip.MustParseAddr("192.0.2.5"))}
	assert.Check(t, is.Equal(recvWithin(t, out, time.Second), state.Connectivity{IPv4: state.LevelNetwork}))

	a.events <- adapter.Event{Mutation: state.AddDefaultRoute(7, netip.MustParseAddr("192.0.2.1"), 100)}
	assert.Check(t, is.Equal(recvWithin(t, out, time.Second), state.Connectivity{IPv4: state.LevelInternet}))

	close(stop)
	assert.NilError(t, <-done)
}

// Scenario 6: dropping/closing the consumer side causes clean shutdown.
func TestConsumerCloseTerminatesCleanly(t *testing.T) {
	a := newFakeAdapter(state.AddLink(1, false, true))
	out := make(chan state.Connectivity, 1)
	stop := make(chan struct{})
	done := make(chan error, 1)

	go func() { done <- Run(context.Background(), a, out, stop, nil) }()
	recvWithin(t, out, time.Second)

	close(stop)
	select {
	case err := <-done:
		assert.NilError(t, err)
	case <-time.After(time.Second):
		t.Fatal("driver did not terminate within a bounded number of turns")
	}
	select {
	case <-a.closed:
	default:
		t.Fatal("adapter was not closed during shutdown")
	}
}

func TestFatalAdapterErrorTerminatesWithError(t *testing.T) {
	a := newFakeAdapter()
	out := make(chan state.Connectivity, 1)
	stop := make(chan struct{})
	done := make(chan error, 1)

	go func() { done <- Run(context.Background(), a, out, stop, nil) }()
	recvWithin(t, out, time.Second)

	sentinel := kinderr.Overrun(errors.New("socket buffer overflow"))
	a.events <- adapter.Event{Err: sentinel}

	select {
	case err := <-done:
		assert.Check(t, is.ErrorIs(err, sentinel))
	case <-time.After(time.Second):
		t.Fatal("driver did not terminate after a fatal adapter error")
	}
}

func TestSnapshotErrorIsFatalAtInit(t *testing.T) {
	a := newFakeAdapter()
	a.snapErr = kinderr.Configuration(errors.New("could not open event source"))
	out := make(chan state.Connectivity, 1)
	stop := make(chan struct{})

	err := Run(context.Background(), a, out, stop, nil)
	assert.Check(t, is.ErrorIs(err, a.snapErr))
	select {
	case <-a.closed:
	default:
		t.Fatal("adapter was not closed after a fatal snapshot error")
	}
}

func TestWatchErrorIsFatalAtInit(t *testing.T) {
	a := newFakeAdapter()
	a.watchErr = kinderr.Configuration(errors.New("could not subscribe to event source"))
	out := make(chan state.Connectivity, 1)
	stop := make(chan struct{})

	err := Run(context.Background(), a, out, stop, nil)
	assert.Check(t, is.ErrorIs(err, a.watchErr))
	select {
	case <-a.closed:
	default:
		t.Fatal("adapter was not closed after a fatal watch error")
	}
}

// P7: no two adjacent published verdicts are equal, after the mandatory
// initial publication.
func TestNoAdjacentDuplicateVerdicts(t *testing.T) {
	a := newFakeAdapter()
	out := make(chan state.Connectivity, 1)
	stop := make(chan struct{})
	done := make(chan error, 1)

	go func() { done <- Run(context.Background(), a, out, stop, nil) }()

	var seen []state.Connectivity
	seen = append(seen, recvWithin(t, out, time.Second))

	a.events <- adapter.Event{Mutation: state.AddLink(1, false, true)} // no-op: still {None,None}
	a.events <- adapter.Event{Mutation: state.AddAddress(1, netip.MustParseAddr("192.0.2.5"))}
	seen = append(seen, recvWithin(t, out, time.Second))
	a.events <- adapter.Event{Mutation: state.AddAddress(1, netip.MustParseAddr("192.0.2.5"))} // idempotent, no emission expected

	close(stop)
	assert.NilError(t, <-done)

	for i := 1; i < len(seen); i++ {
		assert.Check(t, seen[i] != seen[i-1], "adjacent verdicts must differ")
	}
}
