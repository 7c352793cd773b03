package db

import (
	"testing"

	"github.com/zulandar/waypost/internal/config"
	"github.com/zulandar/waypost/internal/models"
)

func TestMySQLDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{
			name: "no password",
			cfg:  config.DatabaseConfig{User: "root", Host: "127.0.0.1", Port: 3306, Database: "waypost"},
			want: "root@tcp(127.0.0.1:3306)/waypost?parseTime=true",
		},
		{
			name: "with password",
			cfg:  config.DatabaseConfig{User: "wp", Password: "pw", Host: "db", Port: 3307, Database: "waypost_prod"},
			want: "wp:pw@tcp(db:3307)/waypost_prod?parseTime=true",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MySQLDSN(tt.cfg); got != tt.want {
				t.Errorf("MySQLDSN = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "postgres"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestAutoMigrate_InMemorySQLite(t *testing.T) {
	conn, err := Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(conn); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	// Smoke-check a round trip through one model.
	n := models.Notification{
		ID:       "nt-test123",
		TenantID: "tenant-a",
		Type:     "system",
		Title:    "t",
		Message:  "m",
	}
	if err := conn.Create(&n).Error; err != nil {
		t.Fatalf("create notification: %v", err)
	}
	var got models.Notification
	if err := conn.First(&got, "id = ?", "nt-test123").Error; err != nil {
		t.Fatalf("read notification: %v", err)
	}
	if got.TenantID != "tenant-a" || got.IsRead {
		t.Errorf("got = %+v", got)
	}
}
