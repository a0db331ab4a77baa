package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Dialect selects DDL and write semantics for the SQL stores.
type Dialect string

const (
	DialectSQLite     Dialect = "sqlite"
	DialectClickHouse Dialect = "clickhouse"
)

// ParseDialect maps the store.driver config value.
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(s) {
	case DialectSQLite, DialectClickHouse:
		return Dialect(s), nil
	}
	return "", fmt.Errorf("unknown store driver %q", s)
}

func (d Dialect) schema() []string {
	if d == DialectClickHouse {
		// ReplacingMergeTree keeps the newest row per id; reads use FINAL.
		return []string{
			`CREATE TABLE IF NOT EXISTS time_series_models (
				id String,
				name String,
				family LowCardinality(String),
				parameters String,
				blob String,
				metrics String,
				forecast_horizon Int32,
				validation_split Float64,
				status LowCardinality(String),
				error String,
				created_at DateTime64(3)
			) ENGINE = ReplacingMergeTree(created_at) ORDER BY id`,
			`CREATE TABLE IF NOT EXISTS models (
				id String,
				name String,
				type String,
				framework String,
				parameters String,
				accuracy Float64,
				description String,
				status LowCardinality(String),
				created_at DateTime64(3),
				updated_at DateTime64(3)
			) ENGINE = ReplacingMergeTree(updated_at) ORDER BY id`,
		}
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS time_series_models (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			family TEXT NOT NULL,
			parameters TEXT NOT NULL,
			blob BLOB,
			metrics TEXT NOT NULL,
			forecast_horizon INTEGER NOT NULL,
			validation_split REAL NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ts_models_family ON time_series_models(family, created_at)`,
		`CREATE TABLE IF NOT EXISTS models (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			framework TEXT NOT NULL,
			parameters TEXT NOT NULL,
			accuracy REAL NOT NULL,
			description TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_models_type_status ON models(type, status)`,
	}
}

// from renders a table reference for reads.
func (d Dialect) from(table string) string {
	if d == DialectClickHouse {
		return table + " FINAL"
	}
	return table
}

// upsert is INSERT for ClickHouse, where the engine deduplicates, and INSERT OR REPLACE for SQLite.
func (d Dialect) upsert() string {
	if d == DialectClickHouse {
		return "INSERT INTO"
	}
	return "INSERT OR REPLACE INTO"
}

// InitSchema applies the dialect's DDL.
func InitSchema(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, stmt := range d.schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s schema: %w", d, err)
		}
	}
	return nil
}

// OpenSQLite opens an embedded database file. Writes are serialized by SQLite,
// so a single connection avoids SQLITE_BUSY under concurrent training.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
