package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqliteScheme = "sqlite://"

// OpenSQLite opens a single-connection SQLite database. It backs local
// development (DATABASE_URL=sqlite://path) and tests (":memory:").
func OpenSQLite(path string) (*gorm.DB, error) {
	path = strings.TrimPrefix(path, sqliteScheme)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	// :memory: databases are per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

func IsSQLiteDSN(dsn string) bool {
	return strings.HasPrefix(dsn, sqliteScheme)
}
