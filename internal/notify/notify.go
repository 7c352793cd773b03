// Package notify creates durable in-app notifications and fans them out to
// live event subscribers. Every notification is persisted first, then
// published on the tenant's event subject so open clients see it immediately.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/zulandar/waypost/internal/events"
	"github.com/zulandar/waypost/internal/idgen"
	"github.com/zulandar/waypost/internal/models"
)

// Publisher is the slice of the event bus the relay needs.
type Publisher interface {
	Publish(ctx context.Context, tenantID, eventType string, data any) error
}

// Relay persists notifications and pushes them onto the live event stream.
type Relay struct {
	db  *gorm.DB
	pub Publisher
}

// RelayOpts configures a Relay.
type RelayOpts struct {
	DB  *gorm.DB
	Bus Publisher
}

// NewRelay creates a Relay, validating required fields.
func NewRelay(opts RelayOpts) (*Relay, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("notify: DB is required")
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("notify: Bus is required")
	}
	return &Relay{db: opts.DB, pub: opts.Bus}, nil
}

// Input describes one notification to create.
type Input struct {
	Type     string
	Title    string
	Message  string
	Link     string
	Metadata map[string]any
}

// Create persists a notification for the tenant and publishes it to the
// tenant's live stream. A persistence failure is logged but does not stop
// the live publish: a connected client still sees the notification even
// when the durable copy is lost.
func (r *Relay) Create(ctx context.Context, tenantID string, in Input) (*models.Notification, error) {
	if in.Type == "" || in.Title == "" {
		return nil, fmt.Errorf("notify: type and title are required")
	}

	meta := ""
	if len(in.Metadata) > 0 {
		raw, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, fmt.Errorf("notify: marshal metadata: %w", err)
		}
		meta = string(raw)
	}

	id, err := idgen.NotificationID()
	if err != nil {
		return nil, fmt.Errorf("notify: generate id: %w", err)
	}

	n := &models.Notification{
		ID:       id,
		TenantID: tenantID,
		Type:     in.Type,
		Title:    in.Title,
		Message:  in.Message,
		Link:     in.Link,
		Metadata: meta,
	}

	persistErr := r.db.WithContext(ctx).Create(n).Error
	if persistErr != nil {
		log.Printf("notify: persist notification for tenant %s failed: %v", tenantID, persistErr)
	}

	if err := r.pub.Publish(ctx, tenantID, events.TypeNotification, n); err != nil {
		log.Printf("notify: publish notification for tenant %s failed: %v", tenantID, err)
	}

	if persistErr != nil {
		return nil, fmt.Errorf("notify: persist notification: %w", persistErr)
	}
	return n, nil
}

// NotifyConnected records that the tenant's messaging session came online.
// Used as the session registry's connected hook; failures are swallowed so
// the session state machine never stalls on notification plumbing.
func (r *Relay) NotifyConnected(ctx context.Context, tenantID string) {
	_, err := r.Create(ctx, tenantID, Input{
		Type:    "session:connected",
		Title:   "Messaging session connected",
		Message: "Your messaging session is linked and ready to deliver updates.",
	})
	if err != nil {
		log.Printf("notify: connected notification for tenant %s: %v", tenantID, err)
	}
}

// List returns the tenant's notifications, newest first. When unreadOnly is
// set only unread rows are returned. limit <= 0 means no limit.
func (r *Relay) List(ctx context.Context, tenantID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	q := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC")
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []models.Notification
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("notify: list notifications: %w", err)
	}
	return out, nil
}

// UnreadCount returns the tenant's number of unread notifications.
func (r *Relay) UnreadCount(ctx context.Context, tenantID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("tenant_id = ? AND is_read = ?", tenantID, false).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("notify: count unread: %w", err)
	}
	return n, nil
}

// MarkRead flags one notification as read. The tenant filter makes the
// update a no-op for rows the tenant does not own.
func (r *Relay) MarkRead(ctx context.Context, tenantID, id string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Update("is_read", true)
	if res.Error != nil {
		return fmt.Errorf("notify: mark read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkAllRead flags every unread notification for the tenant as read and
// returns how many rows changed.
func (r *Relay) MarkAllRead(ctx context.Context, tenantID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("tenant_id = ? AND is_read = ?", tenantID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("notify: mark all read: %w", res.Error)
	}
	return res.RowsAffected, nil
}
