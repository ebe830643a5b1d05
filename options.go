package connectivity

import (
	"github.com/sirupsen/logrus"

	"github.com/moby/connectivity/internal/adapter"
)

type config struct {
	log        logrus.FieldLogger
	newAdapter func(logrus.FieldLogger) (adapter.Adapter, error)
}

func newConfig() *config {
	return &config{
		log:        logrus.StandardLogger(),
		newAdapter: newPlatformAdapter,
	}
}

// Option configures a Task constructed by New.
type Option func(*config)

// WithLogger sets the logger the task reports state transitions and
// adapter errors through. The default is logrus's standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *config) { c.log = log }
}

// withAdapter overrides the platform adapter factory. Unexported: it
// exists so the package's own tests can substitute a fake adapter without
// exercising real OS network tables.
func withAdapter(newAdapter func(logrus.FieldLogger) (adapter.Adapter, error)) Option {
	return func(c *config) { c.newAdapter = newAdapter }
}
