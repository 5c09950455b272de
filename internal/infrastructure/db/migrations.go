package db

import (
	"github.com/paheweb/backend/internal/domain"
	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Task{},
		&domain.QueueSetting{},
	); err != nil {
		return err
	}

	// Dispatch scans pending rows in insertion order; recovery scans by status.
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_tasks_status_created_at
		ON tasks (status, created_at)
	`).Error
}
