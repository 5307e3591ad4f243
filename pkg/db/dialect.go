package db

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/loyalty/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch cfg.DBType {
	case "mysql":
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)), nil
	case "postgres":
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
			cfg.DBSSLMode,
		)), nil
	case "sqlite":
		name := cfg.DBName
		if name == "" {
			name = "loyalty.db"
		}
		return sqlite.Open(sqliteDSN(name)), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.DBType)
	}
}

// sqliteDefaults make writers take the lock at BEGIN and wait for it, since
// sqlite has no row locks to serialize a user's claims or drains.
var sqliteDefaults = []string{"_txlock=immediate", "_busy_timeout=5000", "_journal_mode=WAL"}

func sqliteDSN(name string) string {
	var missing []string
	for _, opt := range sqliteDefaults {
		key := opt[:strings.IndexByte(opt, '=')+1]
		if !strings.Contains(name, key) {
			missing = append(missing, opt)
		}
	}
	if len(missing) == 0 {
		return name
	}
	sep := "?"
	if strings.Contains(name, "?") {
		sep = "&"
	}
	return name + sep + strings.Join(missing, "&")
}

// SupportsRowLocks reports whether SELECT ... FOR UPDATE is available.
func SupportsRowLocks(db *gorm.DB) bool {
	return db.Dialector.Name() != "sqlite"
}

// ForUpdate appends a row lock clause when the dialect supports it.
func ForUpdate(db *gorm.DB, query string) string {
	if SupportsRowLocks(db) {
		return query + " FOR UPDATE"
	}
	return query
}
