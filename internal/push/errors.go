package push

import "errors"

// Sentinel errors for push channel operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, push.ErrConnectFailed) {
//	    // Fall back to poll-only operation
//	}
var (
	// ErrConnectFailed indicates the broker did not accept the connection
	// within the bounded wait. The bridge treats this as a soft failure.
	ErrConnectFailed = errors.New("push: broker connect failed")

	// ErrSubscribeFailed indicates the observation topic subscription
	// was rejected.
	ErrSubscribeFailed = errors.New("push: subscribe failed")

	// ErrNotStarted indicates an operation that needs a started listener.
	ErrNotStarted = errors.New("push: listener not started")

	// ErrDisabled indicates the push channel is disabled in config.
	ErrDisabled = errors.New("push: disabled in configuration")
)
