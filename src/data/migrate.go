package data

import (
	"fmt"
	"log"

	"github.com/stake-plus/govdecisions/src/shared/gov"
	"gorm.io/gorm"
)

// Migrate creates or updates every table the service owns. It never drops
// tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(gov.AllModels...); err != nil {
		return fmt.Errorf("data: auto-migrate: %w", err)
	}
	log.Printf("data: schema up to date (%d tables)", len(gov.AllModels))
	return nil
}
