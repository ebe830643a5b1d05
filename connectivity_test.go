package connectivity

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/moby/connectivity/internal/adapter"
	"github.com/moby/connectivity/internal/state"
)

type fakeAdapter struct {
	events chan adapter.Event
	closed chan struct{}
}

func newFakeAdapter(logrus.FieldLogger) (adapter.Adapter, error) {
	return &fakeAdapter{events: make(chan adapter.Event), closed: make(chan struct{})}, nil
}

func (f *fakeAdapter) Snapshot(context.Context) ([]state.Mutation, error) { return nil, nil }
func (f *fakeAdapter) Watch(context.Context) (<-chan adapter.Event, error) { return f.events, nil }
func (f *fakeAdapter) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

func recvWithin(t *testing.T, out <-chan Connectivity, d time.Duration) Connectivity {
	t.Helper()
	select {
	case v := <-out:
		return v
	case <-time.After(d):
		t.Fatal("timed out waiting for a published verdict")
		return Connectivity{}
	}
}

func TestNewPublishesInitialVerdictAndStopsOnClose(t *testing.T) {
	task, out, err := New(context.Background(), withAdapter(newFakeAdapter))
	assert.NilError(t, err)

	assert.Check(t, is.Equal(recvWithin(t, out, time.Second), Connectivity{}))

	assert.NilError(t, task.Close())
	assert.NilError(t, task.Wait(context.Background()))
}

func TestTaskReflectsAdapterEvents(t *testing.T) {
	var fa *fakeAdapter
	task, out, err := New(context.Background(), withAdapter(func(log logrus.FieldLogger) (adapter.Adapter, error) {
		a, _ := newFakeAdapter(log)
		fa = a.(*fakeAdapter)
		return a, nil
	}))
	assert.NilError(t, err)
	defer task.Close()

	assert.Check(t, is.Equal(recvWithin(t, out, time.Second), Connectivity{}))

	fa.events <- adapter.Event{Mutation: state.AddLink(3, false, true)}
	fa.events <- adapter.Event{Mutation: state.AddAddress(3, netip.MustParseAddr("192.0.2.9"))}
	assert.Check(t, is.Equal(recvWithin(t, out, time.Second), Connectivity{IPv4: LevelNetwork}))
}

func TestCloseIsIdempotent(t *testing.T) {
	task, _, err := New(context.Background(), withAdapter(newFakeAdapter))
	assert.NilError(t, err)
	assert.NilError(t, task.Close())
	assert.NilError(t, task.Close())
}
