package models

import "time"

// Group is a chat group a tenant has linked as a notification target.
// GroupID is the transport-native identifier.
type Group struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	TenantID  string `gorm:"size:64;not null;index"`
	Name      string `gorm:"size:256;not null"`
	GroupID   string `gorm:"size:128;not null"`
	IsActive  bool   `gorm:"default:true;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageTemplate is a tenant-wide fallback template for one event type,
// used when a repository has no template of its own.
type MessageTemplate struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	TenantID     string `gorm:"size:64;not null;index"`
	EventType    string `gorm:"size:64;not null"`
	TemplateText string `gorm:"size:512;not null"`
	IsActive     bool   `gorm:"default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
