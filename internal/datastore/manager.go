// Package datastore manages the GORM database connection and schema.
package datastore

import (
	"fmt"
	"strings"

	"github.com/kwestby/ciwatch/internal/datastore/entities"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// Dialect names accepted in configuration.
const (
	DialectSQLite = "sqlite"
	DialectMySQL  = "mysql"
)

// Manager owns the database connection shared by all repositories.
type Manager struct {
	db      *gorm.DB
	isMySQL bool
}

// Open connects to the configured database. dsn is a file path for SQLite
// or a standard DSN for MySQL.
func Open(dialect, dsn string) (*Manager, error) {
	var dialector gorm.Dialector
	var isMySQL bool

	switch dialect {
	case DialectSQLite, "":
		dialector = sqlite.Open(sqliteDSN(dsn))
	case DialectMySQL:
		dialector = mysql.Open(dsn)
		isMySQL = true
	default:
		return nil, fmt.Errorf("unsupported database dialect %q", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	return &Manager{db: db, isMySQL: isMySQL}, nil
}

// sqliteDSN ensures foreign key enforcement is on, which the alert_events
// cascade delete relies on. SQLite leaves it off unless the DSN asks.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=ON"
}

// Migrate creates or updates the schema for all entities.
func (m *Manager) Migrate() error {
	err := m.db.AutoMigrate(
		&entities.WorkflowRun{},
		&entities.SyncCursor{},
		&entities.AlertRule{},
		&entities.AlertEvent{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// DB returns the underlying GORM handle.
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// IsMySQL reports whether the connection uses the MySQL dialect.
func (m *Manager) IsMySQL() bool {
	return m.isMySQL
}

// Close closes the underlying connection pool.
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
