// Package session manages one long-lived chat connection per tenant: pairing,
// readiness, reconnection and teardown, plus serialized access to the
// transport from concurrent HTTP handlers.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/zulandar/waypost/internal/events"
	"github.com/zulandar/waypost/internal/transport"
)

// Phase is the connection lifecycle state of a Session.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseAwaitingPairing
	PhaseConnected
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseAwaitingPairing:
		return "awaiting-pairing"
	case PhaseConnected:
		return "connected"
	case PhaseClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// Publisher is the slice of the event bus the session needs.
type Publisher interface {
	Publish(ctx context.Context, tenantID, eventType string, data any) error
}

// ConnectedNotifier records the durable "connection established" domain
// notification. Implemented by the notify relay; nil disables it.
type ConnectedNotifier interface {
	NotifyConnected(ctx context.Context, tenantID string)
}

// Session owns a single tenant's transport. All fields behind mu; the
// transport handle is never shared outside the session.
type Session struct {
	tenantID string
	dialer   transport.Dialer
	pub      Publisher
	notifier ConnectedNotifier

	mu          sync.Mutex
	phase       Phase
	pairingCode string
	handle      transport.Transport
	// generation invalidates event pumps of torn-down transports: a pump
	// whose generation is stale must not mutate the session or reconnect.
	generation int
}

func newSession(tenantID string, dialer transport.Dialer, pub Publisher, notifier ConnectedNotifier) *Session {
	return &Session{
		tenantID: tenantID,
		dialer:   dialer,
		pub:      pub,
		notifier: notifier,
		phase:    PhaseUninitialized,
	}
}

// TenantID returns the owning tenant's id.
func (s *Session) TenantID() string { return s.tenantID }

// initialize loads credential material, opens the transport and starts the
// event pump. Credential or connect failure leaves the session Closed; the
// error is logged here and also returned so an explicit reload can surface
// it, but automatic paths never propagate it further.
func (s *Session) initialize(ctx context.Context) error {
	s.mu.Lock()
	startGen := s.generation
	s.mu.Unlock()

	t, err := s.dialer.Dial(ctx, s.tenantID)
	if err != nil {
		log.Printf("session: tenant %s: dial: %v", s.tenantID, err)
		s.mu.Lock()
		if s.generation == startGen {
			s.phase = PhaseClosed
			s.pairingCode = ""
		}
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrCredentialLoad, err)
	}

	s.mu.Lock()
	if s.generation != startGen {
		// Destroy or Reload won the race while the dial was in flight; the
		// freshly dialed transport must not outlive that decision.
		s.mu.Unlock()
		t.Close()
		return fmt.Errorf("session: tenant %s: torn down during dial", s.tenantID)
	}
	if old := s.handle; old != nil {
		// At most one live handle per tenant: retire any leftover first.
		go old.Close()
	}
	s.handle = t
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	if err := t.Connect(ctx); err != nil {
		log.Printf("session: tenant %s: connect: %v", s.tenantID, err)
		s.mu.Lock()
		if s.generation == gen {
			s.handle = nil
			s.phase = PhaseClosed
			s.pairingCode = ""
		}
		s.mu.Unlock()
		t.Close()
		return fmt.Errorf("session: connect: %w", err)
	}

	go s.pump(gen, t)
	return nil
}

// pump consumes transport state events in emission order until the stream
// ends. It is the only writer of phase transitions after initialize.
func (s *Session) pump(gen int, t transport.Transport) {
	ctx := context.Background()
	for ev := range t.Events() {
		switch ev.Kind {
		case transport.KindPairingCode:
			s.mu.Lock()
			if s.generation != gen {
				s.mu.Unlock()
				return
			}
			s.pairingCode = ev.PairingCode
			s.phase = PhaseAwaitingPairing
			s.mu.Unlock()

			log.Printf("session: tenant %s: pairing code issued", s.tenantID)
			s.publish(ctx, events.TypePairingCode, map[string]string{"pairingCode": ev.PairingCode})

		case transport.KindOpened:
			s.mu.Lock()
			if s.generation != gen {
				s.mu.Unlock()
				return
			}
			s.phase = PhaseConnected
			s.pairingCode = ""
			s.mu.Unlock()

			log.Printf("session: tenant %s: connection opened", s.tenantID)
			s.publish(ctx, events.TypeConnectionOpened, nil)
			if s.notifier != nil {
				s.notifier.NotifyConnected(ctx, s.tenantID)
			}

		case transport.KindClosed:
			s.mu.Lock()
			if s.generation != gen {
				s.mu.Unlock()
				return
			}
			s.handle = nil
			s.phase = PhaseClosed
			s.pairingCode = ""
			s.mu.Unlock()
			t.Close()

			if ev.Reason.Terminal() {
				// Explicit logout: reconnecting would loop against a dead
				// credential. Stays Closed until the user re-pairs.
				log.Printf("session: tenant %s: logged out, not reconnecting", s.tenantID)
				return
			}
			log.Printf("session: tenant %s: connection closed (%s), reconnecting", s.tenantID, ev.Reason)
			go func() {
				if err := s.initialize(context.Background()); err != nil {
					log.Printf("session: tenant %s: reconnect: %v", s.tenantID, err)
				}
			}()
			return
		}
	}
}

func (s *Session) publish(ctx context.Context, eventType string, data any) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, s.tenantID, eventType, data); err != nil {
		log.Printf("session: tenant %s: publish %s: %v", s.tenantID, eventType, err)
	}
}

// Status reports connection readiness. Pure read, never blocks.
func (s *Session) Status() (isConnected, isReady bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	isConnected = s.phase == PhaseConnected
	isReady = isConnected && s.handle != nil
	return isConnected, isReady
}

// Phase returns the current lifecycle phase. Pure read.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// PairingCode returns the latest rotating pairing credential, or "" once
// connected (or before one was issued). Pure read.
func (s *Session) PairingCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairingCode
}

// ready captures the live handle iff the session is Connected. The check
// and the capture happen under one lock acquisition so a send can't start
// against a handle that a concurrent close already retired.
func (s *Session) ready() (transport.Transport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseConnected || s.handle == nil {
		return nil, false
	}
	return s.handle, true
}

// SendToGroup delivers text to one group. Fails with ErrNotReady unless
// connected; transport rejections wrap ErrDeliveryFailed and are the
// caller's to count — there is no automatic retry.
func (s *Session) SendToGroup(ctx context.Context, groupID, text string) error {
	t, ok := s.ready()
	if !ok {
		return fmt.Errorf("%w: tenant %s is %s", ErrNotReady, s.tenantID, s.Phase())
	}
	if err := t.SendGroupMessage(ctx, groupID, text); err != nil {
		return fmt.Errorf("%w: group %s: %v", ErrDeliveryFailed, groupID, err)
	}
	return nil
}

// Groups lists the groups the tenant's account participates in.
func (s *Session) Groups(ctx context.Context) ([]transport.GroupInfo, error) {
	t, ok := s.ready()
	if !ok {
		return nil, fmt.Errorf("%w: tenant %s is %s", ErrTransportUnavailable, s.tenantID, s.Phase())
	}
	groups, err := t.Groups(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	return groups, nil
}

// Reload tears down any existing transport and initializes again. Used when
// a pairing code expired or after a terminal logout, always at the user's
// explicit request.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	old := s.handle
	s.handle = nil
	s.phase = PhaseUninitialized
	s.pairingCode = ""
	s.generation++ // orphan any pump still draining the old transport
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return s.initialize(ctx)
}

// Destroy closes the transport without any reconnect attempt. Called by the
// registry on explicit disconnect.
func (s *Session) Destroy() {
	s.mu.Lock()
	old := s.handle
	s.handle = nil
	s.phase = PhaseClosed
	s.pairingCode = ""
	s.generation++
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
}
