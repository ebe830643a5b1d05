//go:build !linux && !windows

package connectivity

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/moby/connectivity/internal/adapter"
	"github.com/moby/connectivity/internal/kinderr"
)

func newPlatformAdapter(logrus.FieldLogger) (adapter.Adapter, error) {
	return nil, kinderr.PlatformUnsupported(fmt.Errorf("connectivity: no adapter for GOOS=%s", runtime.GOOS))
}
