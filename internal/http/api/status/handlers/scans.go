package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/router-for-me/RepScan/internal/usage"
)

// ScanHandler lists ledger records.
type ScanHandler struct {
	db *gorm.DB
}

// NewScanHandler constructs a ScanHandler.
func NewScanHandler(db *gorm.DB) *ScanHandler {
	return &ScanHandler{db: db}
}

// scanListQuery defines filters for the scan list view.
type scanListQuery struct {
	Limit    int    `form:"limit,default=20"` // Page size.
	Name     string `form:"name"`             // File name filter.
	Detected bool   `form:"detected"`         // Only flagged files.
}

// List returns the latest scan records.
func (h *ScanHandler) List(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan ledger disabled"})
		return
	}
	var q scanListQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	if q.Limit < 1 || q.Limit > usage.MaxLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	rows, errList := usage.Recent(c.Request.Context(), h.db, usage.Query{
		Limit:    q.Limit,
		Name:     strings.TrimSpace(q.Name),
		Detected: q.Detected,
	})
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list scans failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":           row.ID,
			"session_id":   row.SessionID,
			"file_name":    row.FileName,
			"fingerprint":  row.Fingerprint,
			"known":        row.Known,
			"positives":    row.Positives,
			"total":        row.Total,
			"scan_date":    row.ScanDate,
			"permalink":    row.Permalink,
			"period_count": row.PeriodCount,
			"scanned_at":   row.ScannedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"scans": out})
}

// LastSession returns the most recent session row.
func (h *ScanHandler) LastSession(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan ledger disabled"})
		return
	}
	session, errLast := usage.LastSession(c.Request.Context(), h.db)
	if errLast != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load session failed"})
		return
	}
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no sessions recorded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": gin.H{
		"session_id":   session.SessionID,
		"started_at":   session.StartedAt,
		"finished_at":  session.FinishedAt,
		"state":        session.State,
		"start_count":  session.StartCount,
		"end_count":    session.EndCount,
		"files":        session.Files,
		"scanned":      session.Scanned,
		"pauses":       session.Pauses,
		"rolled_over":  session.RolledOver,
		"window_saved": session.WindowSaved,
		"report_path":  session.ReportPath,
		"error":        session.Error,
	}})
}
