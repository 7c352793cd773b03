package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zulandar/waypost/internal/db"
	"github.com/zulandar/waypost/internal/models"
)

type capturedPublish struct {
	TenantID  string
	EventType string
	Data      any
}

type stubBus struct {
	mu        sync.Mutex
	published []capturedPublish
	err       error
}

func (b *stubBus) Publish(ctx context.Context, tenantID, eventType string, data any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, capturedPublish{tenantID, eventType, data})
	return nil
}

func (b *stubBus) all() []capturedPublish {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]capturedPublish(nil), b.published...)
}

func newTestRelay(t *testing.T) (*Relay, *gorm.DB, *stubBus) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	bus := &stubBus{}
	r, err := NewRelay(RelayOpts{DB: gdb, Bus: bus})
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	return r, gdb, bus
}

func TestNewRelay_RequiredOpts(t *testing.T) {
	if _, err := NewRelay(RelayOpts{Bus: &stubBus{}}); err == nil {
		t.Error("expected error for missing DB")
	}
	if _, err := NewRelay(RelayOpts{DB: &gorm.DB{}}); err == nil {
		t.Error("expected error for missing Bus")
	}
}

func TestRelay_CreatePersistsAndPublishes(t *testing.T) {
	r, gdb, bus := newTestRelay(t)

	n, err := r.Create(context.Background(), "tenant-a", Input{
		Type:     "github:pull_request",
		Title:    "PR opened",
		Message:  "feat: add pagination",
		Link:     "https://example.com/pr/1",
		Metadata: map[string]any{"repo": "acme/web"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(n.ID, "nt-") {
		t.Errorf("id = %q, want nt- prefix", n.ID)
	}
	if !strings.Contains(n.Metadata, `"repo":"acme/web"`) {
		t.Errorf("metadata = %q", n.Metadata)
	}

	var stored models.Notification
	if err := gdb.First(&stored, "id = ?", n.ID).Error; err != nil {
		t.Fatalf("load stored row: %v", err)
	}
	if stored.TenantID != "tenant-a" || stored.IsRead {
		t.Errorf("stored = %+v", stored)
	}

	pubs := bus.all()
	if len(pubs) != 1 {
		t.Fatalf("published = %d events, want 1", len(pubs))
	}
	if pubs[0].TenantID != "tenant-a" || pubs[0].EventType != "notification" {
		t.Errorf("published = %+v", pubs[0])
	}
}

func TestRelay_CreateValidation(t *testing.T) {
	r, _, bus := newTestRelay(t)

	if _, err := r.Create(context.Background(), "tenant-a", Input{Title: "no type"}); err == nil {
		t.Error("expected error for missing type")
	}
	if _, err := r.Create(context.Background(), "tenant-a", Input{Type: "x"}); err == nil {
		t.Error("expected error for missing title")
	}
	if got := len(bus.all()); got != 0 {
		t.Errorf("published %d events for invalid input", got)
	}
}

func TestRelay_PublishFailureDoesNotLoseRow(t *testing.T) {
	r, gdb, bus := newTestRelay(t)
	bus.err = errors.New("broker down")

	n, err := r.Create(context.Background(), "tenant-a", Input{Type: "t", Title: "x"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var stored models.Notification
	if err := gdb.First(&stored, "id = ?", n.ID).Error; err != nil {
		t.Errorf("row missing after publish failure: %v", err)
	}
}

func TestRelay_NotifyConnected(t *testing.T) {
	r, _, bus := newTestRelay(t)

	r.NotifyConnected(context.Background(), "tenant-a")

	list, err := r.List(context.Background(), "tenant-a", false, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Type != "session:connected" {
		t.Fatalf("list = %+v", list)
	}
	if len(bus.all()) != 1 {
		t.Errorf("published = %d, want 1", len(bus.all()))
	}
}

func TestRelay_ListScopedToTenant(t *testing.T) {
	r, _, _ := newTestRelay(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := r.Create(ctx, "tenant-a", Input{Type: "t", Title: "a"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := r.Create(ctx, "tenant-b", Input{Type: "t", Title: "b"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	list, err := r.List(ctx, "tenant-a", false, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("list = %d rows, want 3", len(list))
	}
	for _, n := range list {
		if n.TenantID != "tenant-a" {
			t.Errorf("leaked row for tenant %s", n.TenantID)
		}
	}

	limited, err := r.List(ctx, "tenant-a", false, 2)
	if err != nil {
		t.Fatalf("List limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited list = %d rows, want 2", len(limited))
	}
}

func TestRelay_MarkReadAndCounts(t *testing.T) {
	r, _, _ := newTestRelay(t)
	ctx := context.Background()

	n1, _ := r.Create(ctx, "tenant-a", Input{Type: "t", Title: "one"})
	r.Create(ctx, "tenant-a", Input{Type: "t", Title: "two"})
	r.Create(ctx, "tenant-b", Input{Type: "t", Title: "other"})

	if c, _ := r.UnreadCount(ctx, "tenant-a"); c != 2 {
		t.Errorf("unread = %d, want 2", c)
	}

	if err := r.MarkRead(ctx, "tenant-a", n1.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if c, _ := r.UnreadCount(ctx, "tenant-a"); c != 1 {
		t.Errorf("unread after mark = %d, want 1", c)
	}

	unread, err := r.List(ctx, "tenant-a", true, 0)
	if err != nil {
		t.Fatalf("List unread: %v", err)
	}
	if len(unread) != 1 || unread[0].Title != "two" {
		t.Errorf("unread list = %+v", unread)
	}

	// A tenant cannot mark another tenant's notification.
	if err := r.MarkRead(ctx, "tenant-b", n1.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("cross-tenant MarkRead err = %v, want record not found", err)
	}

	changed, err := r.MarkAllRead(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if changed != 1 {
		t.Errorf("MarkAllRead changed = %d, want 1", changed)
	}
	if c, _ := r.UnreadCount(ctx, "tenant-a"); c != 0 {
		t.Errorf("unread after mark all = %d, want 0", c)
	}
	if c, _ := r.UnreadCount(ctx, "tenant-b"); c != 1 {
		t.Errorf("tenant-b unread = %d, want 1 (must be untouched)", c)
	}
}
