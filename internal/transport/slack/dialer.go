package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zulandar/waypost/internal/transport"
)

// credentials is the on-disk shape of a tenant's Slack credentials.
type credentials struct {
	AppToken string `json:"app_token"`
	BotToken string `json:"bot_token"`
}

// Dialer builds Slack transports from per-tenant credential files laid out
// as <authDir>/<tenantID>/slack.json.
type Dialer struct {
	authDir string
}

// NewDialer creates a Dialer rooted at authDir.
func NewDialer(authDir string) (*Dialer, error) {
	if authDir == "" {
		return nil, fmt.Errorf("slack: auth dir is required")
	}
	return &Dialer{authDir: authDir}, nil
}

// Dial loads the tenant's credentials and builds an unconnected transport.
func (d *Dialer) Dial(ctx context.Context, tenantID string) (transport.Transport, error) {
	if tenantID == "" || strings.ContainsAny(tenantID, `/\`) || tenantID != filepath.Base(tenantID) {
		return nil, fmt.Errorf("slack: invalid tenant id %q", tenantID)
	}

	path := filepath.Join(d.authDir, tenantID, "slack.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("slack: read credentials: %w", err)
	}

	var creds credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("slack: parse credentials: %w", err)
	}
	if creds.AppToken == "" || creds.BotToken == "" {
		return nil, fmt.Errorf("slack: credentials for %s missing app_token or bot_token", tenantID)
	}

	return New(Opts{AppToken: creds.AppToken, BotToken: creds.BotToken})
}
