package idgen

import (
	"strings"
	"testing"
)

func TestNotificationID(t *testing.T) {
	id, err := NotificationID()
	if err != nil {
		t.Fatalf("NotificationID: %v", err)
	}
	if !strings.HasPrefix(id, "nt-") {
		t.Errorf("id = %q, want nt- prefix", id)
	}
	if len(id) != len("nt-")+10 {
		t.Errorf("len(id) = %d, want %d", len(id), len("nt-")+10)
	}
}

func TestAPIToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := APIToken()
		if err != nil {
			t.Fatalf("APIToken: %v", err)
		}
		if !strings.HasPrefix(tok, "wp-") {
			t.Fatalf("token = %q, want wp- prefix", tok)
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}
