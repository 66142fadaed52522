package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/router-for-me/RepScan/internal/config"
	"github.com/router-for-me/RepScan/internal/db"
	statusapi "github.com/router-for-me/RepScan/internal/http/api/status"
	"github.com/router-for-me/RepScan/internal/lookup"
	"github.com/router-for-me/RepScan/internal/ratelimit"
	"github.com/router-for-me/RepScan/internal/scan"
	"github.com/router-for-me/RepScan/internal/status"
	"github.com/router-for-me/RepScan/internal/store"
	internalusage "github.com/router-for-me/RepScan/internal/usage"
	"github.com/router-for-me/RepScan/internal/window"
)

// Options carries collaborators that callers may replace.
type Options struct {
	// Lookup overrides the HTTP lookup client.
	Lookup lookup.Client
	// Progress receives engine events.
	Progress scan.ProgressFunc
	// Now overrides the wall clock.
	Now func() time.Time
	// Sleep overrides the pacing pause.
	Sleep ratelimit.SleepFunc
}

// fsFor returns a filesystem rooted at the parent of p and the base name of p.
func fsFor(p string) (billy.Filesystem, string, error) {
	abs, errAbs := filepath.Abs(p)
	if errAbs != nil {
		return nil, "", fmt.Errorf("resolve %s: %w", p, errAbs)
	}
	return osfs.New(filepath.Dir(abs)), filepath.Base(abs), nil
}

// openStores builds the counter and window stores for cfg.
func openStores(cfg config.AppConfig) (*store.QuotaStore, *window.Tracker, error) {
	counterFS, counterName, errCounter := fsFor(cfg.CounterPath())
	if errCounter != nil {
		return nil, nil, errCounter
	}
	windowFS, windowName, errWindow := fsFor(cfg.WindowPath())
	if errWindow != nil {
		return nil, nil, errWindow
	}
	return store.NewQuotaStore(counterFS, counterName), window.NewTracker(windowFS, windowName), nil
}

func limitsFor(cfg config.AppConfig) ratelimit.Settings {
	return ratelimit.Settings{
		PerMinute: cfg.PerMinute,
		PeriodCap: cfg.DailyCap,
		Pause:     cfg.Pause,
	}
}

// RunScan runs one scan session with the configured collaborators.
func RunScan(ctx context.Context, cfg config.AppConfig, opts Options) (scan.Outcome, error) {
	if errValidate := cfg.Validate(); errValidate != nil {
		return scan.Outcome{}, errValidate
	}
	quota, tracker, errStores := openStores(cfg)
	if errStores != nil {
		return scan.Outcome{}, errStores
	}
	scanFS, scanDir, errScan := fsFor(cfg.ScanDir)
	if errScan != nil {
		return scan.Outcome{}, errScan
	}
	reportAbs, errReport := filepath.Abs(cfg.ReportDir)
	if errReport != nil {
		return scan.Outcome{}, fmt.Errorf("resolve %s: %w", cfg.ReportDir, errReport)
	}

	client := opts.Lookup
	if client == nil {
		client = lookup.NewHTTPClient(cfg.LookupURL, cfg.APIKey, cfg.RequestTimeout)
	}

	var recorder scan.Recorder
	conn, errLedger := OpenLedger(cfg)
	if errLedger != nil {
		log.WithError(errLedger).Warn("ledger unavailable, continuing without it")
	} else if conn != nil {
		defer func() {
			if errClose := db.Close(conn); errClose != nil {
				log.WithError(errClose).Warn("ledger: close failed")
			}
		}()
		recorder = internalusage.NewGormRecorder(conn)
	}

	engine, errEngine := scan.NewEngine(scan.Options{
		Quota:     quota,
		Window:    tracker,
		ScanFS:    scanFS,
		ScanDir:   scanDir,
		SkipNames: cfg.SkipNames,
		Lookup:    client,
		ReportFS:  osfs.New(reportAbs),
		ReportDir: ".",
		Limits:    limitsFor(cfg),
		Recorder:  recorder,
		Progress:  opts.Progress,
		Now:       opts.Now,
		Sleep:     opts.Sleep,
	})
	if errEngine != nil {
		return scan.Outcome{}, errEngine
	}

	log.WithFields(log.Fields{
		"scan_dir": cfg.ScanDir,
		"counter":  cfg.CounterPath(),
		"window":   cfg.WindowPath(),
	}).Info("scan starting")
	outcome, errRun := engine.Run(ctx)
	entry := log.WithFields(log.Fields{
		"session": outcome.SessionID,
		"state":   outcome.State.String(),
		"count":   outcome.Count,
		"scanned": outcome.Scanned,
	})
	if errRun != nil {
		entry.WithError(errRun).Error("scan failed")
	} else {
		entry.Info("scan finished")
	}
	if outcome.Report != "" {
		outcome.Report = filepath.Join(reportAbs, outcome.Report)
	}
	return outcome, errRun
}

// ReadStatus reads the quota state the next scan would start from.
func ReadStatus(cfg config.AppConfig, now time.Time) (status.Snapshot, error) {
	quota, tracker, errStores := openStores(cfg)
	if errStores != nil {
		return status.Snapshot{}, errStores
	}
	return status.Read(quota, tracker, limitsFor(cfg), now)
}

// shutdownTimeout bounds graceful shutdown of the status server.
const shutdownTimeout = 5 * time.Second

// NewStatusRouter builds the status API router.
func NewStatusRouter(cfg config.AppConfig, conn *gorm.DB) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	statusapi.RegisterStatusRoutes(engine, conn, func(ctx context.Context) (status.Snapshot, error) {
		return ReadStatus(cfg, time.Now())
	})
	return engine
}

// RunServe serves the status API until ctx is cancelled.
func RunServe(ctx context.Context, cfg config.AppConfig) error {
	conn, errLedger := OpenLedger(cfg)
	if errLedger != nil {
		return errLedger
	}
	if conn != nil {
		defer func() {
			if errClose := db.Close(conn); errClose != nil {
				log.WithError(errClose).Warn("ledger: close failed")
			}
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              cfg.StatusAddr,
		Handler:           NewStatusRouter(cfg, conn),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("status server listening on %s", cfg.StatusAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", errServe)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return fmt.Errorf("status server shutdown: %w", errShutdown)
		}
		log.Info("status server stopped")
		return nil
	}
}
