package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/charlesng35/learnhub/internal/models"
)

// AutoMigrate creates or updates the schema for every persisted model.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	return db.AutoMigrate(
		&models.Notification{},
		&models.Reminder{},
		&models.StoreEntry{},
	)
}
