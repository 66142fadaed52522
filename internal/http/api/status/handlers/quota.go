package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/router-for-me/RepScan/internal/scanerr"
	"github.com/router-for-me/RepScan/internal/status"
	"github.com/router-for-me/RepScan/internal/usage"
)

// SnapshotFunc reads the current quota state.
type SnapshotFunc func(ctx context.Context) (status.Snapshot, error)

// ledgerWindow is the look-back used for the ledger call count.
const ledgerWindow = 24 * time.Hour

// QuotaHandler serves the quota snapshot.
type QuotaHandler struct {
	read  SnapshotFunc
	db    *gorm.DB
	nowFn func() time.Time
}

// NewQuotaHandler constructs a QuotaHandler. db may be nil.
func NewQuotaHandler(read SnapshotFunc, db *gorm.DB) *QuotaHandler {
	return &QuotaHandler{read: read, db: db, nowFn: time.Now}
}

// Get returns the snapshot the next scan would start from.
func (h *QuotaHandler) Get(c *gin.Context) {
	if h.read == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "quota state unavailable"})
		return
	}
	snap, errRead := h.read(c.Request.Context())
	if errRead != nil {
		log.WithError(errRead).Warn("status: read quota state failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     scanerr.Describe(errRead),
			"exit_code": scanerr.ExitCode(errRead),
		})
		return
	}
	resp := gin.H{
		"quota":     snap,
		"exhausted": snap.Exhausted(),
	}
	if h.db != nil {
		calls, errCalls := usage.CallsSince(c.Request.Context(), h.db, h.nowFn().Add(-ledgerWindow))
		if errCalls != nil {
			log.WithError(errCalls).Warn("status: count ledger calls failed")
		} else {
			resp["ledger_calls_24h"] = calls
		}
	}
	c.JSON(http.StatusOK, resp)
}
