package session

import "errors"

// Sentinel errors for the failure taxonomy. Handlers map these to HTTP
// statuses; everything else is an internal error.
var (
	// ErrNotReady: operation needs a connected session. Retryable by the
	// caller once the session reconnects.
	ErrNotReady = errors.New("session not ready")

	// ErrDeliveryFailed: the transport rejected one specific send. Counted
	// per target, never retried automatically.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrTransportUnavailable: a transport-level query failed entirely.
	ErrTransportUnavailable = errors.New("transport unavailable")

	// ErrCredentialLoad: one initialize attempt could not load credential
	// material. The session stays Closed until an explicit reload.
	ErrCredentialLoad = errors.New("credential load failed")
)
