package connectivity

import (
	cerrdefs "github.com/containerd/errdefs"
)

// IsConfigurationError reports whether err is a failure to open or
// subscribe to the host's OS event source (fatal at construction).
func IsConfigurationError(err error) bool {
	return cerrdefs.IsUnavailable(err)
}

// IsProtocolError reports whether err is a malformed or unexpected
// message on the OS change feed.
func IsProtocolError(err error) bool {
	return cerrdefs.IsAborted(err)
}

// IsOverrunError reports whether err is a report that event data was
// lost, making the shadow state no longer trustworthy.
func IsOverrunError(err error) bool {
	return cerrdefs.IsDataLoss(err)
}

// IsPlatformUnsupportedError reports whether err indicates there is no
// adapter for the current GOOS.
func IsPlatformUnsupportedError(err error) bool {
	return cerrdefs.IsNotImplemented(err)
}
