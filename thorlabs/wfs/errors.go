package wfs

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoInstrument is generated when the driver lists no sensors
	ErrNoInstrument = errors.New("no wavefront sensor instrument found")

	// ErrNotListed is generated when a device ID is not in the instrument list
	ErrNotListed = errors.New("device ID not in the instrument list")

	// ErrInUse is generated when opening an instrument another program holds
	ErrInUse = errors.New("instrument already in use")

	// ErrUnusableImage is generated when the spotfield image is saturated,
	// too dark or swamped by ambient light
	ErrUnusableImage = errors.New("unusable image quality")

	// ErrNoMLA is generated when measuring before a microlens array is selected
	ErrNoMLA = errors.New("no microlens array selected")

	// ErrNotConfigured is generated when measuring before the camera is configured
	ErrNotConfigured = errors.New("camera not configured")

	// ErrClosed is generated when using a sensor after Close
	ErrClosed = errors.New("sensor closed")
)

// Error is a status returned by the instrument driver
type Error struct {
	// Code is the driver status code.  Negative codes are errors,
	// positive codes are warnings
	Code int32

	// Func is the driver function that produced the status
	Func string

	// Text is the driver's description of the status
	Text string
}

// Error satisfies the error interface
func (e Error) Error() string {
	return fmt.Sprintf("%s: 0x%08X - %s", e.Func, uint32(e.Code), e.Text)
}

// Warning is true when the status is a warning rather than a failure
func (e Error) Warning() bool {
	return e.Code > 0
}

// IsWarning returns true if err is, or wraps, a driver warning
func IsWarning(err error) bool {
	var de Error
	if errors.As(err, &de) {
		return de.Warning()
	}
	return false
}
