// Package events provides the per-tenant broadcast bus that pushes session
// lifecycle and domain events to live dashboard connections. Delivery is
// best-effort: no backlog, no replay — an event published while a tenant has
// no subscriber is dropped. Durable state lives in the relational store.
package events

import (
	"encoding/json"
	"strings"
	"time"
)

// Well-known event types. Consumers must tolerate unknown types: the
// "github:<event>" namespace is open-ended.
const (
	TypePairingCode      = "pairing-code-issued"
	TypeConnectionOpened = "connection-opened"
	TypeNotification     = "notification"
)

// Envelope is the transient pub/sub payload.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// subjectPrefix namespaces all Waypost traffic on a shared broker.
const subjectPrefix = "waypost.user."

// SubjectFor returns the NATS subject carrying one tenant's updates. The
// tenant ID is always part of the subject, so cross-tenant delivery is
// structurally impossible. Characters with meaning in NATS subjects are
// mapped to '_'.
func SubjectFor(tenantID string) string {
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	return subjectPrefix + r.Replace(tenantID) + ".updates"
}
