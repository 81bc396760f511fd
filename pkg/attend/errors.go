package attend

import "errors"

var (
	// ErrEncodingFailure is returned when a capture cannot be encoded.
	ErrEncodingFailure = errors.New("attend: encoding failed")

	// ErrTransportFailure is returned when an upload fails on the wire or
	// the backend answer cannot be used.
	ErrTransportFailure = errors.New("attend: upload failed")

	// ErrDetectionFailure is reported when the detector errors on a tick.
	ErrDetectionFailure = errors.New("attend: detection failed")

	// ErrUploadInFlight is returned when a capture is requested while an
	// upload is still pending.
	ErrUploadInFlight = errors.New("attend: upload already in flight")

	// ErrNoDetector is returned when detect mode has no detector.
	ErrNoDetector = errors.New("attend: detect mode requires a detector")

	// ErrNotStarted is returned by Capture before Start succeeds.
	ErrNotStarted = errors.New("attend: flow not started")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("attend: flow closed")
)
