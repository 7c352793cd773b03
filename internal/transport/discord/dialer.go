package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zulandar/waypost/internal/transport"
)

// credentials is the on-disk shape of a tenant's Discord credentials.
type credentials struct {
	BotToken string `json:"bot_token"`
	GuildID  string `json:"guild_id"`
}

// Dialer builds Discord transports from per-tenant credential files laid
// out as <authDir>/<tenantID>/discord.json.
type Dialer struct {
	authDir string
}

// NewDialer creates a Dialer rooted at authDir.
func NewDialer(authDir string) (*Dialer, error) {
	if authDir == "" {
		return nil, fmt.Errorf("discord: auth dir is required")
	}
	return &Dialer{authDir: authDir}, nil
}

// Dial loads the tenant's credentials and builds an unconnected transport.
func (d *Dialer) Dial(ctx context.Context, tenantID string) (transport.Transport, error) {
	if tenantID == "" || strings.ContainsAny(tenantID, `/\`) || tenantID != filepath.Base(tenantID) {
		return nil, fmt.Errorf("discord: invalid tenant id %q", tenantID)
	}

	path := filepath.Join(d.authDir, tenantID, "discord.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("discord: read credentials: %w", err)
	}

	var creds credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("discord: parse credentials: %w", err)
	}
	if creds.BotToken == "" || creds.GuildID == "" {
		return nil, fmt.Errorf("discord: credentials for %s missing bot_token or guild_id", tenantID)
	}

	return New(Opts{BotToken: creds.BotToken, GuildID: creds.GuildID})
}
