package models

import "time"

// Repository is a GitHub repository a tenant has wired into Waypost. The
// API token authenticates inbound webhook deliveries; the JSON columns hold
// string arrays managed by the dashboard CRUD layer.
type Repository struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	TenantID        string `gorm:"size:64;not null;index"`
	RepoName        string `gorm:"size:256;not null"` // owner/name
	APIToken        string `gorm:"size:64;not null;uniqueIndex"`
	AllowedEvents   string `gorm:"type:text"` // JSON array of event types
	AllowedAuthors  string `gorm:"type:text"` // JSON array of GitHub logins
	GroupIDs        string `gorm:"type:text"` // JSON array of chat group IDs
	MessageTemplate string `gorm:"size:512"`
	IsActive        bool   `gorm:"default:true;index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
