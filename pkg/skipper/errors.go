package skipper

import "errors"

var (
	// ErrNilMedia is returned when a skipper is built without a media source
	ErrNilMedia = errors.New("media source is nil")

	// ErrNilProvider is returned when a skipper is built without an audio source provider
	ErrNilProvider = errors.New("audio source provider is nil")

	// ErrNilConfig is returned when a skipper is built without a config source
	ErrNilConfig = errors.New("config source is nil")

	// ErrCaptureUnavailable is returned by providers that cannot use their
	// capture mode at all (permission denied, no device). The loop reports it
	// upward and does not retry.
	ErrCaptureUnavailable = errors.New("capture source unavailable")
)
