package transport

import (
	"context"
	"fmt"
	"sync"
)

// MockTransport implements Transport for testing and for the "mock"
// transport kind in development deployments. State transitions are driven
// explicitly via the Emit methods.
type MockTransport struct {
	mu           sync.Mutex
	connected    bool
	closed       bool
	events       chan StateEvent
	sent         []MockSend
	groups       []GroupInfo
	participants map[string][]Participant
	sendErr      map[string]error // groupID -> injected failure
	groupsErr    error
}

// MockSend records one SendGroupMessage call.
type MockSend struct {
	GroupID string
	Text    string
}

// NewMockTransport creates a MockTransport with a buffered event channel.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		events:       make(chan StateEvent, 16),
		participants: make(map[string][]Participant),
		sendErr:      make(map[string]error),
	}
}

// Connect marks the transport as connected.
func (m *MockTransport) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock transport: already closed")
	}
	m.connected = true
	return nil
}

// Events returns the state event channel.
func (m *MockTransport) Events() <-chan StateEvent {
	return m.events
}

// SendGroupMessage records the send, honoring injected per-group failures.
func (m *MockTransport) SendGroupMessage(ctx context.Context, groupID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock transport: not connected")
	}
	if err := m.sendErr[groupID]; err != nil {
		return err
	}
	m.sent = append(m.sent, MockSend{GroupID: groupID, Text: text})
	return nil
}

// Groups returns the configured group list.
func (m *MockTransport) Groups(ctx context.Context) ([]GroupInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock transport: not connected")
	}
	if m.groupsErr != nil {
		return nil, m.groupsErr
	}
	out := make([]GroupInfo, len(m.groups))
	copy(out, m.groups)
	return out, nil
}

// GroupParticipants returns the configured members for a group.
func (m *MockTransport) GroupParticipants(ctx context.Context, groupID string) ([]Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock transport: not connected")
	}
	members, ok := m.participants[groupID]
	if !ok {
		return nil, fmt.Errorf("mock transport: no such group %s", groupID)
	}
	out := make([]Participant, len(members))
	copy(out, members)
	return out, nil
}

// Close shuts the mock down and closes the event channel.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.events)
	return nil
}

// --- Scripting helpers ---

// EmitPairingCode delivers a fresh pairing code event.
func (m *MockTransport) EmitPairingCode(code string) {
	m.events <- StateEvent{Kind: KindPairingCode, PairingCode: code}
}

// EmitOpened delivers a connection-opened event.
func (m *MockTransport) EmitOpened() {
	m.events <- StateEvent{Kind: KindOpened}
}

// EmitClosed delivers a connection-closed event with the given reason and
// closes the event stream, as a real transport does when its socket dies.
func (m *MockTransport) EmitClosed(reason CloseReason) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.connected = false
	m.mu.Unlock()
	m.events <- StateEvent{Kind: KindClosed, Reason: reason}
	close(m.events)
}

// SetGroups configures the Groups result.
func (m *MockTransport) SetGroups(groups []GroupInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups = groups
}

// SetGroupsErr injects a Groups/listing failure.
func (m *MockTransport) SetGroupsErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groupsErr = err
}

// SetParticipants configures GroupParticipants for one group.
func (m *MockTransport) SetParticipants(groupID string, members []Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participants[groupID] = members
}

// FailSends makes SendGroupMessage fail for the given group.
func (m *MockTransport) FailSends(groupID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr[groupID] = err
}

// Closed reports whether the transport has been shut down.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Sent returns a copy of all recorded sends.
func (m *MockTransport) Sent() []MockSend {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockSend, len(m.sent))
	copy(out, m.sent)
	return out
}

// MockDialer implements Dialer over MockTransports. Each Dial hands out the
// next scripted transport for the tenant, or a fresh default one.
type MockDialer struct {
	mu        sync.Mutex
	queued    map[string][]*MockTransport
	dialCount map[string]int
	dialErr   error
}

// NewMockDialer creates an empty MockDialer.
func NewMockDialer() *MockDialer {
	return &MockDialer{
		queued:    make(map[string][]*MockTransport),
		dialCount: make(map[string]int),
	}
}

// Queue schedules a transport to be returned by the next Dial for tenantID.
func (d *MockDialer) Queue(tenantID string, t *MockTransport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queued[tenantID] = append(d.queued[tenantID], t)
}

// FailDials makes every Dial return err (simulates credential-load failure).
func (d *MockDialer) FailDials(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialErr = err
}

// Dial returns the next queued transport for the tenant, or a new default
// MockTransport when nothing is queued.
func (d *MockDialer) Dial(ctx context.Context, tenantID string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	d.dialCount[tenantID]++
	if q := d.queued[tenantID]; len(q) > 0 {
		t := q[0]
		d.queued[tenantID] = q[1:]
		return t, nil
	}
	return NewMockTransport(), nil
}

// DialCount reports how many transports were opened for a tenant.
func (d *MockDialer) DialCount(tenantID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialCount[tenantID]
}
