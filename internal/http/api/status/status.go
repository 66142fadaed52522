package status

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	handlers "github.com/router-for-me/RepScan/internal/http/api/status/handlers"
)

// RegisterStatusRoutes registers the read-only status endpoints. db may be
// nil when the ledger is disabled.
func RegisterStatusRoutes(r *gin.Engine, db *gorm.DB, read handlers.SnapshotFunc) {
	if r == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	v0 := r.Group("/v0")

	quotaHandler := handlers.NewQuotaHandler(read, db)
	v0.GET("/quota", quotaHandler.Get)

	scanHandler := handlers.NewScanHandler(db)
	v0.GET("/scans", scanHandler.List)
	v0.GET("/sessions/latest", scanHandler.LastSession)
}
