package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zulandar/waypost/internal/config"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// writeTestConfig writes a minimal sqlite config and returns its path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "waypost.yaml")
	cfg := `
database:
  driver: sqlite
  path: ` + filepath.Join(dir, "waypost.db") + `
auth:
  jwt_secret: test-secret
`
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "waypost dev") {
		t.Errorf("expected output to contain 'waypost dev', got: %s", out)
	}
	if !strings.Contains(out, "commit: none") {
		t.Errorf("expected output to contain 'commit: none', got: %s", out)
	}
}

func TestRootCmdHelp(t *testing.T) {
	out, err := runCmd(t, "--help")
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}
	for _, sub := range []string{"serve", "db", "token", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing %q: %s", sub, out)
		}
	}
}

func TestDBMigrateCmd(t *testing.T) {
	path := writeTestConfig(t)
	out, err := runCmd(t, "db", "migrate", "-c", path)
	if err != nil {
		t.Fatalf("db migrate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Migrated") || !strings.Contains(out, "sqlite") {
		t.Errorf("output = %s", out)
	}
}

func TestDBMigrateCmd_MissingConfig(t *testing.T) {
	if _, err := runCmd(t, "db", "migrate", "-c", "/nonexistent/waypost.yaml"); err == nil {
		t.Error("expected error for missing config")
	}
}

func TestTokenTenantCmd(t *testing.T) {
	path := writeTestConfig(t)
	out, err := runCmd(t, "token", "tenant", "-c", path, "-t", "tenant-a")
	if err != nil {
		t.Fatalf("token tenant failed: %v\n%s", err, out)
	}

	raw := strings.TrimSpace(out)
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte("test-secret"), nil
	})
	if err != nil || !tok.Valid {
		t.Fatalf("minted token does not verify: %v", err)
	}
	if claims.Subject != "tenant-a" {
		t.Errorf("sub = %q, want tenant-a", claims.Subject)
	}
}

func TestTokenTenantCmd_RequiresTenant(t *testing.T) {
	if _, err := runCmd(t, "token", "tenant"); err == nil {
		t.Error("expected error without --tenant")
	}
}

func TestTokenRepoCmd(t *testing.T) {
	out, err := runCmd(t, "token", "repo")
	if err != nil {
		t.Fatalf("token repo failed: %v", err)
	}
	tok := strings.TrimSpace(out)
	if !strings.HasPrefix(tok, "wp-") || len(tok) != len("wp-")+24 {
		t.Errorf("token = %q", tok)
	}
}

func TestNewDialer(t *testing.T) {
	if _, err := newDialer(config.TransportConfig{Kind: "mock"}); err != nil {
		t.Errorf("mock dialer: %v", err)
	}
	if _, err := newDialer(config.TransportConfig{Kind: "discord", AuthDir: t.TempDir()}); err != nil {
		t.Errorf("discord dialer: %v", err)
	}
	if _, err := newDialer(config.TransportConfig{Kind: "slack", AuthDir: t.TempDir()}); err != nil {
		t.Errorf("slack dialer: %v", err)
	}
	if _, err := newDialer(config.TransportConfig{Kind: "carrier-pigeon"}); err == nil {
		t.Error("expected error for unknown transport kind")
	}
}
