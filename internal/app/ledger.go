package app

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/router-for-me/RepScan/internal/config"
	"github.com/router-for-me/RepScan/internal/db"
)

// ledgerTarget describes a ledger DSN without its credentials.
type ledgerTarget struct {
	Type        string
	Host        string
	Port        int
	User        string
	Name        string
	SSLMode     string
	Path        string
	PasswordSet bool
}

// String renders the target for logs.
func (t ledgerTarget) String() string {
	if t.Type == db.DialectSQLite {
		return fmt.Sprintf("sqlite path=%s", t.Path)
	}
	return fmt.Sprintf("postgres host=%s port=%d db=%s user=%s sslmode=%s", t.Host, t.Port, t.Name, t.User, t.SSLMode)
}

func describeLedger(dsn string) (ledgerTarget, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return ledgerTarget{}, fmt.Errorf("empty dsn")
	}
	if !db.IsPostgresDSN(trimmed) {
		pathPart := trimmed
		if strings.HasPrefix(strings.ToLower(pathPart), "file:") {
			pathPart = pathPart[len("file:"):]
		}
		pathPart, _, _ = strings.Cut(pathPart, "?")
		return ledgerTarget{Type: db.DialectSQLite, Path: strings.TrimSpace(pathPart)}, nil
	}
	cfg, errParse := pgconn.ParseConfig(trimmed)
	if errParse != nil {
		return ledgerTarget{}, fmt.Errorf("parse dsn: %w", errParse)
	}
	return ledgerTarget{
		Type:        db.DialectPostgres,
		Host:        cfg.Host,
		Port:        int(cfg.Port),
		User:        cfg.User,
		Name:        cfg.Database,
		SSLMode:     sslModeOf(cfg),
		PasswordSet: cfg.Password != "",
	}, nil
}

// sslModeOf recovers a coarse sslmode label from the parsed TLS settings.
func sslModeOf(cfg *pgconn.Config) string {
	switch {
	case cfg.TLSConfig == nil:
		return "disable"
	case cfg.TLSConfig.VerifyPeerCertificate != nil:
		return "verify-ca"
	case !cfg.TLSConfig.InsecureSkipVerify:
		return "verify-full"
	}
	for _, fallback := range cfg.Fallbacks {
		if fallback.TLSConfig == nil {
			return "prefer"
		}
	}
	return "require"
}

// OpenLedger connects to and migrates the scan ledger. It returns nil when no
// database is configured.
func OpenLedger(cfg config.AppConfig) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DatabaseDSN)
	if dsn == "" {
		return nil, nil
	}
	target, errDescribe := describeLedger(dsn)
	if errDescribe != nil {
		return nil, fmt.Errorf("ledger: %w", errDescribe)
	}
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return nil, fmt.Errorf("ledger: %w", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		_ = db.Close(conn)
		return nil, fmt.Errorf("ledger: %w", errMigrate)
	}
	log.Infof("ledger: using %s", target)
	return conn, nil
}
