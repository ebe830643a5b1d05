// Package driver runs the long-lived event loop described in spec §4.4: it
// pulls an initial snapshot from an adapter, applies the adapter's change
// stream to a state.Model, and publishes a debounced Connectivity verdict.
package driver

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/moby/connectivity/internal/adapter"
	"github.com/moby/connectivity/internal/state"
)

// Run drives the Init -> Running -> Draining -> Terminated state machine.
// It returns nil on graceful shutdown (stop closed or ctx cancelled) and a
// classified error (see internal/kinderr) on a fatal adapter failure.
//
// out must have capacity 1; Run uses it with keep-newest semantics, which
// satisfies spec §5's "equal adjacent verdicts are suppressed" requirement
// without needing an unbounded queue for a signal this infrequent.
func Run(ctx context.Context, a adapter.Adapter, out chan state.Connectivity, stop <-chan struct{}, log logrus.FieldLogger) error {
	log = withDefaults(log)
	log.Debug("connectivity: entering init")

	mutations, err := a.Snapshot(ctx)
	if err != nil {
		log.WithError(err).Debug("connectivity: snapshot failed, terminating")
		a.Close()
		return err
	}

	model := state.NewModel()
	for _, mu := range mutations {
		model.Apply(mu)
	}

	last := model.Connectivity()
	log.WithField("ipv4", last.IPv4).WithField("ipv6", last.IPv6).Debug("connectivity: initial verdict")
	if !publish(out, stop, ctx, last) {
		return drain(a, log)
	}

	events, err := a.Watch(ctx)
	if err != nil {
		log.WithError(err).Debug("connectivity: watch failed, terminating")
		a.Close()
		return err
	}

	log.Debug("connectivity: entering running")
	for {
		select {
		case <-stop:
			return drain(a, log)
		case <-ctx.Done():
			return drain(a, log)
		default:
		}

		select {
		case <-stop:
			return drain(a, log)
		case <-ctx.Done():
			return drain(a, log)
		case ev, ok := <-events:
			if !ok {
				return drain(a, log)
			}
			if ev.Err != nil {
				log.WithError(ev.Err).Debug("connectivity: adapter reported a fatal error")
				a.Close()
				return ev.Err
			}
			model.Apply(ev.Mutation)
			next := model.Connectivity()
			if next != last {
				last = next
				log.WithField("ipv4", next.IPv4).WithField("ipv6", next.IPv6).Debug("connectivity: verdict changed")
				if !publish(out, stop, ctx, next) {
					return drain(a, log)
				}
			}
		}
	}
}

// drain performs the Draining phase: stop consuming events, clean up the
// adapter, and terminate successfully.
func drain(a adapter.Adapter, log logrus.FieldLogger) error {
	log.Debug("connectivity: draining")
	return a.Close()
}

// publish sends v on out, replacing a stale unread value rather than
// blocking (the "bounded channel of size 1, keep newest" option spec §9
// allows). It returns false if stop or ctx fired instead of a
// successful send — the Go-native form of spec §7's Transport kind ("send
// on the verdict channel failed... transitions to graceful shutdown").
func publish(out chan state.Connectivity, stop <-chan struct{}, ctx context.Context, v state.Connectivity) bool {
	for {
		select {
		case out <- v:
			return true
		case <-stop:
			return false
		case <-ctx.Done():
			return false
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}

func withDefaults(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return logrus.StandardLogger()
	}
	return log
}
