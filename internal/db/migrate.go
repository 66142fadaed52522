package db

import (
	"fmt"

	"github.com/router-for-me/RepScan/internal/models"
	"gorm.io/gorm"
)

// ledgerModels lists the tables owned by the scan ledger.
func ledgerModels() []any {
	return []any{
		&models.ScanSession{},
		&models.ScanRecord{},
	}
}

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// migratePostgres applies PostgreSQL schema updates and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(ledgerModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errIndex := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_scan_records_positive
		ON scan_records (scanned_at DESC)
		WHERE positives > 0
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create scan_records positive index: %w", errIndex)
	}
	return nil
}

// migrateSQLite applies SQLite schema updates and indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(ledgerModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errIndex := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_scan_records_positive
		ON scan_records (scanned_at DESC)
		WHERE positives > 0
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create scan_records positive index: %w", errIndex)
	}
	return nil
}
