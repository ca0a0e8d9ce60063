package stapi

import "errors"

// Sentinel errors for SensorThings API operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, stapi.ErrFetchFailed) {
//	    // Keep serving the previous snapshot
//	}
var (
	// ErrFetchFailed indicates a Things collection fetch failed.
	ErrFetchFailed = errors.New("stapi: fetch failed")

	// ErrProbeFailed indicates the server did not answer the reachability
	// probe with HTTP 200.
	ErrProbeFailed = errors.New("stapi: probe failed")

	// ErrUnavailable indicates the circuit breaker is open and requests
	// are being short-circuited.
	ErrUnavailable = errors.New("stapi: server unavailable")
)
