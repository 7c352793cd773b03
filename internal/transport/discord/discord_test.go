package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/zulandar/waypost/internal/transport"
)

// mockSession implements the session interface for tests.
type mockSession struct {
	mu       sync.Mutex
	opened   bool
	closed   bool
	openErr  error
	handlers []interface{}
	sent     []string
	sendErrs []error // popped per send call
	channels []*discordgo.Channel
	members  [][]*discordgo.Member // pages
	page     int
}

func (m *mockSession) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	m.opened = true
	return nil
}

func (m *mockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockSession) AddHandler(handler interface{}) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
	return func() {}
}

func (m *mockSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sendErrs) > 0 {
		err := m.sendErrs[0]
		m.sendErrs = m.sendErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	m.sent = append(m.sent, channelID+":"+content)
	return &discordgo.Message{}, nil
}

func (m *mockSession) GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channels, nil
}

func (m *mockSession) GuildMembers(guildID, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.page >= len(m.members) {
		return nil, nil
	}
	page := m.members[m.page]
	m.page++
	return page, nil
}

// fireReady invokes the registered Ready handlers.
func (m *mockSession) fireReady() {
	m.mu.Lock()
	handlers := append([]interface{}(nil), m.handlers...)
	m.mu.Unlock()
	r := &discordgo.Ready{User: &discordgo.User{Username: "waypost-bot", ID: "bot-1"}}
	for _, h := range handlers {
		if fn, ok := h.(func(*discordgo.Session, *discordgo.Ready)); ok {
			fn(nil, r)
		}
	}
}

// fireDisconnect invokes the registered Disconnect handlers.
func (m *mockSession) fireDisconnect() {
	m.mu.Lock()
	handlers := append([]interface{}(nil), m.handlers...)
	m.mu.Unlock()
	for _, h := range handlers {
		if fn, ok := h.(func(*discordgo.Session, *discordgo.Disconnect)); ok {
			fn(nil, &discordgo.Disconnect{})
		}
	}
}

func newConnected(t *testing.T, mock *mockSession) *Transport {
	t.Helper()
	tr, err := New(Opts{Session: mock, GuildID: "guild-1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr.baseBackoff = time.Millisecond
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return tr
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Opts{GuildID: "g"}); err == nil {
		t.Error("expected error without token or session")
	}
	if _, err := New(Opts{Session: &mockSession{}}); err == nil {
		t.Error("expected error without guild id")
	}
}

func TestConnect_EmitsOpenedOnReady(t *testing.T) {
	mock := &mockSession{}
	tr := newConnected(t, mock)
	defer tr.Close()

	mock.fireReady()
	select {
	case ev := <-tr.Events():
		if ev.Kind != transport.KindOpened {
			t.Errorf("event = %v, want opened", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no opened event after Ready")
	}
}

func TestDisconnect_EmitsTransientClose(t *testing.T) {
	mock := &mockSession{}
	tr := newConnected(t, mock)
	defer tr.Close()

	mock.fireDisconnect()
	select {
	case ev := <-tr.Events():
		if ev.Kind != transport.KindClosed || ev.Reason != transport.ReasonNetworkError {
			t.Errorf("event = %+v, want transient close", ev)
		}
		if ev.Reason.Terminal() {
			t.Error("gateway drop must not be terminal")
		}
	case <-time.After(time.Second):
		t.Fatal("no closed event after Disconnect")
	}
}

func TestSendGroupMessage(t *testing.T) {
	mock := &mockSession{}
	tr := newConnected(t, mock)
	defer tr.Close()

	if err := tr.SendGroupMessage(context.Background(), "chan-1", "hello"); err != nil {
		t.Fatalf("SendGroupMessage: %v", err)
	}
	if len(mock.sent) != 1 || mock.sent[0] != "chan-1:hello" {
		t.Errorf("sent = %v", mock.sent)
	}
}

func TestSendGroupMessage_NotConnected(t *testing.T) {
	tr, err := New(Opts{Session: &mockSession{}, GuildID: "g"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tr.SendGroupMessage(context.Background(), "c", "x"); err == nil {
		t.Error("expected error before Connect")
	}
}

func TestSendGroupMessage_RetriesRateLimit(t *testing.T) {
	rateLimited := &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusTooManyRequests},
	}
	mock := &mockSession{sendErrs: []error{rateLimited, rateLimited, nil}}
	tr := newConnected(t, mock)
	defer tr.Close()

	if err := tr.SendGroupMessage(context.Background(), "chan-1", "hello"); err != nil {
		t.Fatalf("SendGroupMessage after retries: %v", err)
	}
	if len(mock.sent) != 1 {
		t.Errorf("sent = %v", mock.sent)
	}
}

func TestSendGroupMessage_NonRateLimitNotRetried(t *testing.T) {
	mock := &mockSession{sendErrs: []error{errors.New("forbidden")}}
	tr := newConnected(t, mock)
	defer tr.Close()

	if err := tr.SendGroupMessage(context.Background(), "chan-1", "hello"); err == nil {
		t.Error("expected error to pass through")
	}
	if len(mock.sent) != 0 {
		t.Errorf("sent = %v, want no delivery", mock.sent)
	}
}

func TestGroups_FiltersTextChannels(t *testing.T) {
	mock := &mockSession{channels: []*discordgo.Channel{
		{ID: "c1", Name: "general", Type: discordgo.ChannelTypeGuildText},
		{ID: "c2", Name: "voice", Type: discordgo.ChannelTypeGuildVoice},
		{ID: "c3", Name: "dev", Type: discordgo.ChannelTypeGuildText},
	}}
	tr := newConnected(t, mock)
	defer tr.Close()

	groups, err := tr.Groups(context.Background())
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(groups) != 2 || groups[0].ID != "c1" || groups[1].ID != "c3" {
		t.Errorf("groups = %+v", groups)
	}
}

func TestGroupParticipants_PagesAndNames(t *testing.T) {
	mock := &mockSession{members: [][]*discordgo.Member{
		{
			{Nick: "Ali", User: &discordgo.User{ID: "u1", Username: "alice"}},
			{User: &discordgo.User{ID: "u2", Username: "bob"}},
		},
	}}
	tr := newConnected(t, mock)
	defer tr.Close()

	got, err := tr.GroupParticipants(context.Background(), "c1")
	if err != nil {
		t.Fatalf("GroupParticipants: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("participants = %+v", got)
	}
	if got[0].Name != "Ali" {
		t.Errorf("nick not preferred: %+v", got[0])
	}
	if got[1].Name != "bob" {
		t.Errorf("username fallback missing: %+v", got[1])
	}
}

func TestClose_Idempotent(t *testing.T) {
	mock := &mockSession{}
	tr := newConnected(t, mock)

	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !mock.closed {
		t.Error("underlying session not closed")
	}
	if _, ok := <-tr.Events(); ok {
		t.Error("event channel still open after Close")
	}
}

func TestDialer(t *testing.T) {
	dir := t.TempDir()

	if _, err := NewDialer(""); err == nil {
		t.Error("expected error for empty auth dir")
	}
	d, err := NewDialer(dir)
	if err != nil {
		t.Fatalf("NewDialer: %v", err)
	}

	ctx := context.Background()
	if _, err := d.Dial(ctx, "../evil"); err == nil {
		t.Error("expected error for path-escaping tenant id")
	}
	if _, err := d.Dial(ctx, "absent"); err == nil {
		t.Error("expected error for missing credentials")
	}

	tenantDir := filepath.Join(dir, "t1")
	if err := os.MkdirAll(tenantDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	creds, _ := json.Marshal(credentials{BotToken: "tok", GuildID: "g1"})
	if err := os.WriteFile(filepath.Join(tenantDir, "discord.json"), creds, 0o600); err != nil {
		t.Fatalf("write creds: %v", err)
	}

	tr, err := d.Dial(ctx, "t1")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if tr == nil {
		t.Fatal("nil transport")
	}

	// Incomplete credentials are rejected.
	bad, _ := json.Marshal(credentials{BotToken: "tok"})
	os.WriteFile(filepath.Join(tenantDir, "discord.json"), bad, 0o600)
	if _, err := d.Dial(ctx, "t1"); err == nil {
		t.Error("expected error for incomplete credentials")
	}
}
