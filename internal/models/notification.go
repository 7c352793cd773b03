package models

import "time"

// Notification is a durable in-app notification. Rows are created by the
// notify relay and mutated (read flag) only by the owning tenant.
type Notification struct {
	ID        string    `gorm:"primaryKey;size:16"`
	TenantID  string    `gorm:"size:64;not null;index"`
	Type      string    `gorm:"size:64;not null"` // namespaced, e.g. "github:pull_request:opened"
	Title     string    `gorm:"size:256;not null"`
	Message   string    `gorm:"type:text;not null"`
	Link      string    `gorm:"size:512"`
	IsRead    bool      `gorm:"default:false;index"`
	Metadata  string    `gorm:"type:text"` // JSON string for extra data
	CreatedAt time.Time `gorm:"index"`
}

// WebhookEvent logs one inbound delivery and its fan-out outcome.
type WebhookEvent struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	TenantID     string    `gorm:"size:64;not null;index"`
	RepoName     string    `gorm:"size:256;not null"`
	EventType    string    `gorm:"size:64;not null"`
	Title        string    `gorm:"size:256"`
	Author       string    `gorm:"size:128"`
	GroupsSent   int       `gorm:"default:0"`
	GroupsFailed int       `gorm:"default:0"`
	CreatedAt    time.Time `gorm:"index"`
}
