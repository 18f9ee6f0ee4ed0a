// Package sqlite implements the repository interfaces on top of SQLite.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary builds
// without CGo. Schema changes are goose migrations embedded from migrations/.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/sakif/bookworm/internal/apperror"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// goose keeps its base FS and dialect in package globals.
var migrateMu sync.Mutex

// DB wraps the sql.DB connection pool. Users and Books hand out the
// per-table repositories that share it.
type DB struct {
	conn  *sql.DB
	users *UserDB
	books *BookDB
}

// New opens the database at dbPath and applies pending migrations.
//
// dbPath examples:
//   - "data/bookworm.db" → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite: creating database directory: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate empty database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	db := &DB{conn: conn}
	db.users = &UserDB{conn: conn}
	db.books = &BookDB{conn: conn}
	return db, nil
}

func migrate(conn *sql.DB) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	return goose.Up(conn, "migrations")
}

// Users returns the user repository.
func (db *DB) Users() *UserDB { return db.users }

// Books returns the book repository.
func (db *DB) Books() *BookDB { return db.books }

// Ping checks that the database still answers; used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// uniqueViolation maps a UNIQUE constraint failure on a users column to the
// matching conflict error. Other errors are returned as nil.
//
// modernc reports these as "constraint failed: UNIQUE constraint failed: users.email (2067)".
func uniqueViolation(err error) *apperror.AppError {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return nil
	}
	switch {
	case strings.Contains(msg, "users.username"):
		return apperror.AlreadyExists("username", "Username")
	case strings.Contains(msg, "users.email"):
		return apperror.AlreadyExists("email", "Email")
	case strings.Contains(msg, "users.github_id"):
		return apperror.AlreadyExists("github_id", "GitHub account")
	}
	return apperror.AlreadyExists("", "Record")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
