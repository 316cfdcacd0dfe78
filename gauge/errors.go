package gauge

import "errors"

var (
	// ErrTransport wraps a failed register read or write.
	ErrTransport = errors.New("register transport failure")
	// ErrVerification is reported when a table entry doesn't read back the
	// value that was written, even after a retry.
	ErrVerification = errors.New("register verification failed")
	// ErrAbnormalReset is returned alongside the cached SOC when the device
	// was found to have lost its programming and was re-initialised.
	ErrAbnormalReset = errors.New("abnormal device reset detected")
	// ErrConfigMissing is returned by Init when a required parameter is
	// absent or malformed.
	ErrConfigMissing = errors.New("configuration missing")

	ErrNoSamples      = errors.New("no IOCV samples available")
	ErrNotInitialised = errors.New("fuel gauge not initialised")
)
