// Package database opens the SQLite store and provisions its schema.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"amsportal/internal/models"
)

// buildDSN adds the connection pragmas to path. File databases run in WAL
// mode and take the write lock at BEGIN, so concurrent writers wait on
// busy_timeout instead of failing when a read upgrades to a write.
func buildDSN(path string) (dsn string, memory bool) {
	memory = path == ":memory:" || strings.Contains(path, "mode=memory")
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn = path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)"
	if !memory {
		dsn += "&_pragma=journal_mode(WAL)&_txlock=immediate"
	}
	return dsn, memory
}

// Open connects to the SQLite database at path, applies connection pragmas
// and runs migrations. ":memory:" is accepted for tests.
func Open(path string) (*sql.DB, error) {
	dsn, memory := buildDSN(path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		// SQLite handles one writer and several readers in WAL mode.
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(0)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := Migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

var schema = []struct {
	name string
	ddl  string
}{
	{"agents", `CREATE TABLE IF NOT EXISTS agents (
		agent_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT ''
	)`},
	{"admin_users", `CREATE TABLE IF NOT EXISTS admin_users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL
	)`},
	{"applications", `CREATE TABLE IF NOT EXISTS applications (
		app_id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL REFERENCES agents(agent_id),
		applicant_name TEXT NOT NULL,
		app_type TEXT NOT NULL,
		app_number TEXT NOT NULL DEFAULT '',
		cost NUMERIC NOT NULL DEFAULT 0 CHECK(cost >= 0),
		status TEXT NOT NULL DEFAULT 'Pending' CHECK(status IN ('Pending','Processing','Completed','Rejected')),
		received_date TEXT NOT NULL,
		completed_date TEXT,
		remarks TEXT NOT NULL DEFAULT ''
	)`},
	{"payments", `CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL,
		app_id INTEGER NOT NULL REFERENCES applications(app_id),
		amount NUMERIC NOT NULL CHECK(amount > 0),
		notes TEXT NOT NULL DEFAULT '',
		payment_date TEXT NOT NULL
	)`},
	{"application_logs", `CREATE TABLE IF NOT EXISTS application_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		app_id INTEGER NOT NULL REFERENCES applications(app_id),
		kind TEXT NOT NULL DEFAULT 'note' CHECK(kind IN ('created','update','payment','note')),
		description TEXT NOT NULL,
		update_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`},
	{"sessions", `CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		csrf_token TEXT NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		logged_in INTEGER NOT NULL DEFAULT 0,
		flash_type TEXT NOT NULL DEFAULT '',
		flash_text TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		last_activity INTEGER NOT NULL
	)`},
	{"idx_applications_agent", `CREATE INDEX IF NOT EXISTS idx_applications_agent ON applications(agent_id)`},
	{"idx_applications_status", `CREATE INDEX IF NOT EXISTS idx_applications_status ON applications(status, received_date)`},
	{"idx_payments_app", `CREATE INDEX IF NOT EXISTS idx_payments_app ON payments(app_id)`},
	{"idx_payments_date", `CREATE INDEX IF NOT EXISTS idx_payments_date ON payments(payment_date)`},
	{"idx_logs_app", `CREATE INDEX IF NOT EXISTS idx_logs_app ON application_logs(app_id, update_date)`},
	{"idx_sessions_activity", `CREATE INDEX IF NOT EXISTS idx_sessions_activity ON sessions(last_activity)`},
}

// Migrate creates any missing tables and indexes. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, t := range schema {
		if _, err := db.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("create %s: %w", t.name, err)
		}
	}
	return nil
}

// Seed inserts the sentinel agent and, when no admin exists yet, the default
// admin account.
func Seed(ctx context.Context, db *sql.DB, adminUser, adminPassword string) error {
	if _, err := db.ExecContext(ctx, "INSERT OR IGNORE INTO agents (agent_id, name, phone) VALUES (?, ?, '')",
		models.DirectApplicantID, models.DirectApplicantName); err != nil {
		return fmt.Errorf("seed direct applicant: %w", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM admin_users").Scan(&count); err != nil {
		return fmt.Errorf("count admin users: %w", err)
	}
	if count > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO admin_users (username, password_hash) VALUES (?, ?)", adminUser, string(hash)); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return nil
}
