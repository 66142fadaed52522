package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Dialect identifiers supported by the ledger.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// DialectName returns the active database dialect name.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// IsSQLite reports whether the connection uses SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectName(conn) == DialectSQLite
}

// ContainsFilter returns a case-insensitive substring condition on column and
// its bind value. LIKE wildcards in term are matched literally.
func ContainsFilter(conn *gorm.DB, column, term string) (string, string) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
	pattern := "%" + escaped + "%"
	if IsSQLite(conn) {
		return fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, column), strings.ToLower(pattern)
	}
	return fmt.Sprintf(`%s ILIKE ? ESCAPE '\'`, column), pattern
}
