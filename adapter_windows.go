//go:build windows

package connectivity

import (
	"github.com/sirupsen/logrus"

	"github.com/moby/connectivity/internal/adapter"
	"github.com/moby/connectivity/internal/adapter/windowsnet"
)

func newPlatformAdapter(log logrus.FieldLogger) (adapter.Adapter, error) {
	return windowsnet.New(windowsnet.WithLogger(log))
}
