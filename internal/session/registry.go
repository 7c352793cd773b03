package session

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/zulandar/waypost/internal/transport"
)

// Registry maps tenant id to its single Session. It is constructed once in
// the serve command and injected into every handler; the process owns
// exactly one.
type Registry struct {
	dialer   transport.Dialer
	pub      Publisher
	notifier ConnectedNotifier

	mu       sync.Mutex
	sessions map[string]*Session
}

// RegistryOpts holds parameters for creating a Registry.
type RegistryOpts struct {
	Dialer   transport.Dialer
	Bus      Publisher
	Notifier ConnectedNotifier // optional
}

// NewRegistry creates a Registry.
func NewRegistry(opts RegistryOpts) (*Registry, error) {
	if opts.Dialer == nil {
		return nil, fmt.Errorf("session: registry: dialer is required")
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("session: registry: bus is required")
	}
	return &Registry{
		dialer:   opts.Dialer,
		pub:      opts.Bus,
		notifier: opts.Notifier,
		sessions: make(map[string]*Session),
	}, nil
}

// GetOrCreate returns the tenant's Session, creating and initializing it on
// first access. The new Session is inserted into the map before its
// asynchronous initialization starts: two near-simultaneous calls for the
// same tenant must observe one instance and one transport, never two.
// Callers must tolerate a session that is still Uninitialized or
// AwaitingPairing.
func (r *Registry) GetOrCreate(tenantID string) *Session {
	r.mu.Lock()
	if s, ok := r.sessions[tenantID]; ok {
		r.mu.Unlock()
		return s
	}
	s := newSession(tenantID, r.dialer, r.pub, r.notifier)
	r.sessions[tenantID] = s
	r.mu.Unlock()

	log.Printf("session: creating session for tenant %s", tenantID)
	go func() {
		// Errors are already logged and reflected in the phase; nothing to
		// do here, the tenant retries via explicit reload.
		_ = s.initialize(context.Background())
	}()
	return s
}

// Disconnect destroys the tenant's session and removes it. No-op when the
// tenant has none.
func (r *Registry) Disconnect(tenantID string) {
	r.mu.Lock()
	s, ok := r.sessions[tenantID]
	if ok {
		delete(r.sessions, tenantID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	log.Printf("session: disconnecting tenant %s", tenantID)
	s.Destroy()
}

// ActiveTenants returns a snapshot of tenants with a live session entry.
// Operational visibility only.
func (r *Registry) ActiveTenants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	return out
}
