//go:build linux

package connectivity

import (
	"github.com/sirupsen/logrus"

	"github.com/moby/connectivity/internal/adapter"
	"github.com/moby/connectivity/internal/adapter/linuxnet"
)

func newPlatformAdapter(log logrus.FieldLogger) (adapter.Adapter, error) {
	return linuxnet.New(linuxnet.WithLogger(log))
}
