package synchrophasor

import "errors"

// Error kinds returned by the codec and the endpoints. These are sentinel
// values, checked with errors.Is, matching the style used throughout the
// rest of the package.
var (
	// ErrCrcMismatch is returned when a frame's trailing CRC does not match
	// the CRC computed over the rest of the frame.
	ErrCrcMismatch = errors.New("synchrophasor: CRC mismatch")

	// ErrShortFrame is returned when fewer bytes than FrameSize declares
	// are available to decode.
	ErrShortFrame = errors.New("synchrophasor: short frame")

	// ErrUnknownFrame is returned for a sync byte whose frame type is
	// outside the range the standard defines at all.
	ErrUnknownFrame = errors.New("synchrophasor: unknown frame type")

	// ErrInvalidLayout is returned when declared channel counts don't
	// match the number of values/names/units supplied for them.
	ErrInvalidLayout = errors.New("synchrophasor: invalid frame layout")

	// ErrFieldRange is returned when a field value is outside what the
	// wire format can represent, e.g. frac_sec >= time_base.
	ErrFieldRange = errors.New("synchrophasor: field out of range")

	// ErrMissingConfiguration is returned decoding a data frame without a
	// configuration context for its pmu_id.
	ErrMissingConfiguration = errors.New("synchrophasor: missing configuration for data frame")

	// ErrConnectionLost is returned when a connection that was expected to
	// be open is found closed.
	ErrConnectionLost = errors.New("synchrophasor: connection lost")

	// ErrTimeout is returned by bounded waits that expire.
	ErrTimeout = errors.New("synchrophasor: timeout")

	// ErrNotReady is returned when an operation is attempted before its
	// prerequisite setup (Run, SetConfiguration, ...) has completed.
	ErrNotReady = errors.New("synchrophasor: not ready")

	// ErrInvalidParameter is returned for a caller-supplied argument that
	// cannot be interpreted at all (nil where a value is required, etc).
	ErrInvalidParameter = errors.New("synchrophasor: invalid parameter")

	// ErrInvalidSize is returned when a frame's declared FrameSize is
	// smaller than the fixed header of its frame type.
	ErrInvalidSize = errors.New("synchrophasor: invalid size")

	// ErrNotImplemented is returned for standard-defined but intentionally
	// unimplemented functionality (decoding or requesting configuration
	// frame 3).
	ErrNotImplemented = errors.New("synchrophasor: not implemented")
)
