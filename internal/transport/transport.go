// Package transport defines the seam between Waypost sessions and a chat
// network. Implementations own the wire protocol; the rest of the system
// only sees connect/pair/send/query primitives and a stream of connection
// state events.
package transport

import "context"

// CloseReason classifies why a transport connection ended. The session layer
// uses it to decide between automatic reconnection and terminal shutdown,
// so implementations must report ReasonLoggedOut only for an explicit
// logout/unlink by the account owner.
type CloseReason int

const (
	ReasonUnknown CloseReason = iota
	ReasonNetworkError
	ReasonTimeout
	ReasonLoggedOut
)

// Terminal reports whether the close ends the session for good. Every
// non-logout reason is treated as transient.
func (r CloseReason) Terminal() bool { return r == ReasonLoggedOut }

func (r CloseReason) String() string {
	switch r {
	case ReasonNetworkError:
		return "network-error"
	case ReasonTimeout:
		return "timeout"
	case ReasonLoggedOut:
		return "logged-out"
	default:
		return "unknown"
	}
}

// StateKind discriminates connection state events.
type StateKind int

const (
	// KindPairingCode carries a fresh pairing credential the user must
	// enter/scan to link the account. Codes rotate until the link succeeds.
	KindPairingCode StateKind = iota
	// KindOpened signals the connection is established and ready to send.
	KindOpened
	// KindClosed signals the connection ended; Reason says why.
	KindClosed
)

// StateEvent is one connection lifecycle transition emitted by a Transport.
type StateEvent struct {
	Kind        StateKind
	PairingCode string      // set when Kind == KindPairingCode
	Reason      CloseReason // set when Kind == KindClosed
}

// GroupInfo describes a chat group the connected account participates in.
type GroupInfo struct {
	ID               string
	Name             string
	ParticipantCount int
}

// Participant is one member of a group. ID is the transport-native
// identifier; Phone is a dialable number when the network exposes one.
type Participant struct {
	ID    string
	Phone string
	Name  string
}

// Transport is a single tenant's connection to the chat network. A Transport
// is owned by exactly one session and is not reused after Close.
type Transport interface {
	// Connect establishes the connection. State transitions (pairing codes,
	// open, close) are delivered on Events, not returned here.
	Connect(ctx context.Context) error

	// Events returns the connection state stream. The channel is closed
	// when the transport shuts down. Events fire in emission order.
	Events() <-chan StateEvent

	// SendGroupMessage delivers text to a group.
	SendGroupMessage(ctx context.Context, groupID, text string) error

	// Groups lists all groups the account participates in.
	Groups(ctx context.Context) ([]GroupInfo, error)

	// GroupParticipants lists the members of one group.
	GroupParticipants(ctx context.Context, groupID string) ([]Participant, error)

	// Close shuts the connection down without emitting a reconnectable
	// close event.
	Close() error
}

// Dialer creates transports. Implementations load the tenant's credential
// material (creating its storage location if absent) and return an
// unconnected Transport bound to it.
type Dialer interface {
	Dial(ctx context.Context, tenantID string) (Transport, error)
}
