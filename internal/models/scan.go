package models

import (
	"time"

	"gorm.io/datatypes"
)

// ScanSession records one scan run.
type ScanSession struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	SessionID string `gorm:"type:varchar(36);not null;uniqueIndex"` // Engine-assigned session UUID.

	StartedAt  time.Time  `gorm:"not null;index"` // Session start time.
	FinishedAt *time.Time `gorm:"index"`          // Time the session was persisted.

	State       string `gorm:"type:varchar(32);not null;default:'scanning'"` // Terminal state name.
	StartCount  int    `gorm:"not null;default:0"`                           // Period count at Init.
	EndCount    int    `gorm:"not null;default:0"`                           // Period count persisted.
	Files       int    `gorm:"not null;default:0"`                           // Files enumerated.
	Scanned     int    `gorm:"not null;default:0"`                           // Files reported.
	Pauses      int    `gorm:"not null;default:0"`                           // Pacing pauses taken.
	RolledOver  bool   `gorm:"not null;default:false"`                       // Whether Init reset the period.
	WindowSaved bool   `gorm:"not null;default:false"`                       // Whether the period start was recorded.
	ReportPath  string `gorm:"type:text"`                                    // Report file of the session.
	Error       string `gorm:"type:text"`                                    // Fatal error, if any.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// ScanRecord records one successful lookup.
type ScanRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	SessionID   string `gorm:"type:varchar(36);not null;index"` // Owning session UUID.
	FileName    string `gorm:"type:text;not null"`              // Scanned file name.
	Fingerprint string `gorm:"type:varchar(64);not null;index"` // SHA-256 of the content.

	Known       bool   `gorm:"not null;default:false"` // Whether the service knew the content.
	Positives   int    `gorm:"not null;default:0"`     // Engines flagging the content.
	Total       int    `gorm:"not null;default:0"`     // Engines consulted.
	ScanDate    string `gorm:"type:varchar(32)"`       // Remote scan date.
	Permalink   string `gorm:"type:text"`              // Remote report link.
	PeriodCount int    `gorm:"not null;default:0"`     // Period count after this call.

	Result datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Structured lookup result.

	ScannedAt time.Time `gorm:"not null;index"`          // Lookup completion time.
	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
