package transport

import (
	"context"
	"errors"
	"testing"
)

func TestCloseReasonString(t *testing.T) {
	tests := []struct {
		reason CloseReason
		want   string
	}{
		{ReasonUnknown, "unknown"},
		{ReasonNetworkError, "network-error"},
		{ReasonTimeout, "timeout"},
		{ReasonLoggedOut, "logged-out"},
		{CloseReason(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.reason.String(); got != tt.want {
			t.Errorf("CloseReason(%d).String() = %q, want %q", tt.reason, got, tt.want)
		}
	}
}

func TestMockTransport_Lifecycle(t *testing.T) {
	m := NewMockTransport()
	ctx := context.Background()

	// Operations before Connect fail.
	if err := m.SendGroupMessage(ctx, "g1", "x"); err == nil {
		t.Error("send before connect must fail")
	}
	if _, err := m.Groups(ctx); err == nil {
		t.Error("groups before connect must fail")
	}

	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := m.SendGroupMessage(ctx, "g1", "hello"); err != nil {
		t.Fatalf("SendGroupMessage: %v", err)
	}
	if sent := m.Sent(); len(sent) != 1 || sent[0].GroupID != "g1" || sent[0].Text != "hello" {
		t.Errorf("sent = %+v", sent)
	}

	m.FailSends("g2", errors.New("boom"))
	if err := m.SendGroupMessage(ctx, "g2", "x"); err == nil {
		t.Error("injected failure not returned")
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := m.Connect(ctx); err == nil {
		t.Error("connect after close must fail")
	}
	if _, ok := <-m.Events(); ok {
		t.Error("event channel still open after Close")
	}
}

func TestMockTransport_EmitClosedClosesStream(t *testing.T) {
	m := NewMockTransport()
	m.EmitPairingCode("code")
	m.EmitClosed(ReasonNetworkError)

	var kinds []StateKind
	for ev := range m.Events() {
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 2 || kinds[0] != KindPairingCode || kinds[1] != KindClosed {
		t.Errorf("kinds = %v", kinds)
	}

	// EmitClosed after close is a no-op, not a panic.
	m.EmitClosed(ReasonLoggedOut)
}

func TestMockDialer_QueueAndCount(t *testing.T) {
	d := NewMockDialer()
	ctx := context.Background()

	scripted := NewMockTransport()
	d.Queue("t1", scripted)

	got, err := d.Dial(ctx, "t1")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if got != scripted {
		t.Error("queued transport not returned")
	}

	// Nothing queued: a fresh default transport.
	if _, err := d.Dial(ctx, "t1"); err != nil {
		t.Fatalf("Dial default: %v", err)
	}
	if got := d.DialCount("t1"); got != 2 {
		t.Errorf("DialCount = %d, want 2", got)
	}
	if got := d.DialCount("t2"); got != 0 {
		t.Errorf("DialCount(t2) = %d, want 0", got)
	}

	d.FailDials(errors.New("no creds"))
	if _, err := d.Dial(ctx, "t1"); err == nil {
		t.Error("injected dial failure not returned")
	}
}
