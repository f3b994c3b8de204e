package database

import (
	"github.com/wacrm/pkg/entities"
	"gorm.io/gorm"
)

// AutoMigrate runs database migrations
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entities.WhatsAppSession{},
		&entities.Contact{},
		&entities.Conversation{},
		&entities.Message{},
	)
}
