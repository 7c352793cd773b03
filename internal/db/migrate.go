package db

import (
	"fmt"

	"github.com/zulandar/waypost/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Repository{},
		&models.Group{},
		&models.MessageTemplate{},
		&models.Notification{},
		&models.WebhookEvent{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
