package repository

import (
	"fmt"

	"literary-archive/internal/domain/staging"

	"gorm.io/gorm"
)

// InitSchema creates upload_staging and its supporting constraints.
// visitor_sessions belongs to the identity layer and is not migrated here.
func InitSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&staging.Record{}); err != nil {
		return fmt.Errorf("failed to migrate upload_staging: %w", err)
	}

	statements := []string{
		`DO $$ BEGIN
			ALTER TABLE upload_staging ADD CONSTRAINT upload_staging_status_check
				CHECK (status IN ('issued','uploading','uploaded','finalized','cancelled','expired','cleanup_failed'));
		EXCEPTION
			WHEN duplicate_object THEN null;
		END $$;`,
		`DO $$ BEGIN
			ALTER TABLE upload_staging ADD CONSTRAINT upload_staging_counts_check
				CHECK (file_count >= 0 AND total_bytes >= 0 AND cleanup_attempts >= 0);
		EXCEPTION
			WHEN duplicate_object THEN null;
		END $$;`,
		// Serves the cleanup reclaim and purge scans.
		`CREATE INDEX IF NOT EXISTS idx_upload_staging_status_updated_at
			ON upload_staging (status, updated_at);`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}

// DropSchema removes everything InitSchema created.
func DropSchema(db *gorm.DB) error {
	return db.Migrator().DropTable(&staging.Record{})
}
