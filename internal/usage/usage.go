// Package usage keeps a database ledger of scan sessions and lookups.
package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/RepScan/internal/db"
	"github.com/router-for-me/RepScan/internal/models"
	"github.com/router-for-me/RepScan/internal/scan"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// writeTimeout bounds each ledger write so a slow database cannot stall a scan.
const writeTimeout = 5 * time.Second

// GormRecorder persists scan sessions and records through GORM.
type GormRecorder struct {
	db *gorm.DB
}

// NewGormRecorder constructs a GormRecorder backed by GORM.
func NewGormRecorder(db *gorm.DB) *GormRecorder { return &GormRecorder{db: db} }

// BeginSession stores the session row.
func (r *GormRecorder) BeginSession(ctx context.Context, info scan.SessionInfo) error {
	if r == nil || r.db == nil {
		return nil
	}
	dbCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	row := models.ScanSession{
		SessionID:  info.ID,
		StartedAt:  normalizeTime(info.StartedAt),
		State:      scan.StateScanning.String(),
		StartCount: info.StartCount,
		EndCount:   info.StartCount,
		Files:      info.Files,
		RolledOver: info.RolledOver,
	}
	if errCreate := r.db.WithContext(dbCtx).Create(&row).Error; errCreate != nil {
		return fmt.Errorf("usage: create session: %w", errCreate)
	}
	return nil
}

// RecordScan stores one lookup result.
func (r *GormRecorder) RecordScan(ctx context.Context, sessionID string, result scan.Result) error {
	if r == nil || r.db == nil {
		return nil
	}
	dbCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	raw := result.Raw
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	row := models.ScanRecord{
		SessionID:   sessionID,
		FileName:    result.Name,
		Fingerprint: result.Fingerprint,
		Known:       result.Summary.Known,
		Positives:   result.Summary.Positives,
		Total:       result.Summary.Total,
		ScanDate:    result.Summary.ScanDate,
		Permalink:   result.Summary.Permalink,
		PeriodCount: result.Count,
		Result:      datatypes.JSON(raw),
		ScannedAt:   normalizeTime(result.ScannedAt),
	}
	if errCreate := r.db.WithContext(dbCtx).Create(&row).Error; errCreate != nil {
		return fmt.Errorf("usage: create record: %w", errCreate)
	}
	return nil
}

// FinishSession updates the session row with the terminal outcome.
func (r *GormRecorder) FinishSession(ctx context.Context, outcome scan.Outcome) error {
	if r == nil || r.db == nil {
		return nil
	}
	dbCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	finished := time.Now().UTC()
	errText := ""
	if outcome.Err != nil {
		errText = outcome.Err.Error()
	}
	updates := map[string]any{
		"finished_at":  finished,
		"state":        outcome.State.String(),
		"end_count":    outcome.Count,
		"scanned":      outcome.Scanned,
		"pauses":       outcome.Pauses,
		"window_saved": outcome.WindowSaved,
		"report_path":  outcome.Report,
		"error":        errText,
	}
	res := r.db.WithContext(dbCtx).
		Model(&models.ScanSession{}).
		Where("session_id = ?", outcome.SessionID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("usage: update session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		log.WithField("session", outcome.SessionID).Warn("usage: finished session was never recorded")
	}
	return nil
}

// Query filters ledger listings.
type Query struct {
	Limit int
	// Name matches file names case-insensitively.
	Name string
	// Detected keeps only records flagged by at least one engine.
	Detected bool
}

// MaxLimit caps Query.Limit.
const MaxLimit = 500

// defaultLimit applies when Query.Limit is not positive.
const defaultLimit = 20

// Recent lists the latest scan records, newest first.
func Recent(ctx context.Context, conn *gorm.DB, q Query) ([]models.ScanRecord, error) {
	if conn == nil {
		return nil, errors.New("usage: nil db")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	tx := conn.WithContext(ctx).Model(&models.ScanRecord{})
	if name := strings.TrimSpace(q.Name); name != "" {
		expr, value := db.ContainsFilter(conn, "file_name", name)
		tx = tx.Where(expr, value)
	}
	if q.Detected {
		tx = tx.Where("positives > 0")
	}

	var rows []models.ScanRecord
	if errFind := tx.Order("scanned_at DESC, id DESC").Limit(limit).Find(&rows).Error; errFind != nil {
		return nil, errFind
	}
	return rows, nil
}

// LastSession returns the most recently started session, or nil when the
// ledger is empty.
func LastSession(ctx context.Context, conn *gorm.DB) (*models.ScanSession, error) {
	if conn == nil {
		return nil, errors.New("usage: nil db")
	}
	var row models.ScanSession
	errFirst := conn.WithContext(ctx).Order("started_at DESC, id DESC").Take(&row).Error
	if errFirst != nil {
		if errors.Is(errFirst, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errFirst
	}
	return &row, nil
}

// CallsSince counts lookups recorded at or after since.
func CallsSince(ctx context.Context, conn *gorm.DB, since time.Time) (int64, error) {
	if conn == nil {
		return 0, errors.New("usage: nil db")
	}
	var count int64
	if errCount := conn.WithContext(ctx).
		Model(&models.ScanRecord{}).
		Where("scanned_at >= ?", since.UTC()).
		Count(&count).Error; errCount != nil {
		return 0, errCount
	}
	return count, nil
}

// normalizeTime returns a UTC timestamp, defaulting to now if zero.
func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

var _ scan.Recorder = (*GormRecorder)(nil)
