// Package kinderr maps the four fatal error kinds of spec §7 (Transport is
// never surfaced as an error, so it has no constructor here) onto
// github.com/containerd/errdefs classifications, the same classification
// library daemon/libnetwork/types builds its error constructors on.
package kinderr

import (
	cerrdefs "github.com/containerd/errdefs"
)

// Configuration wraps a failure to open or subscribe to the OS event
// source. Fatal at construction.
func Configuration(err error) error {
	return cerrdefs.NewUnavailable(err)
}

// Protocol wraps an error payload delivered on the OS change channel
// (e.g. a Linux netlink error frame). Fatal; terminates the driver.
func Protocol(err error) error {
	return cerrdefs.NewAborted(err)
}

// Overrun wraps a report that event data was lost (e.g. Linux ENOBUFS).
// Fatal; the shadow state is no longer trustworthy.
func Overrun(err error) error {
	return cerrdefs.NewDataLoss(err)
}

// PlatformUnsupported wraps the absence of an adapter for the current OS.
// Fatal at construction.
func PlatformUnsupported(err error) error {
	return cerrdefs.NewNotImplemented(err)
}
