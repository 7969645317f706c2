// Package store implements the engine ports on database/sql. SQLite (modernc)
// and Postgres (pgx) share one schema and one set of $N-placeholder queries.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/pavelanni/journeys/internal/engine"
)

// Driver names a supported database backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

var (
	_ engine.HierarchyReader     = (*Store)(nil)
	_ engine.LessonProgressStore = (*Store)(nil)
	_ engine.ExamCatalogReader   = (*Store)(nil)
	_ engine.ExamAttemptStore    = (*Store)(nil)
)

type Store struct {
	db     *sql.DB
	driver Driver
}

// New opens a SQLite database at dbPath.
func New(dbPath string) (*Store, error) {
	return Open(context.Background(), DriverSQLite, dbPath)
}

// Open connects to the database and creates the schema if needed.
func Open(ctx context.Context, driver Driver, dsn string) (*Store, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite"
		if dsn == "" {
			dsn = "journeys.db"
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?" + sqlitePragmas
		}
	case DriverPostgres:
		drvName = "pgx"
		if dsn == "" {
			dsn = "postgres://localhost:5432/journeys?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// One writer at a time; transactions queue instead of failing with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS plants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS journeys (
		id TEXT PRIMARY KEY,
		plant_id TEXT NOT NULL REFERENCES plants(id),
		slug TEXT NOT NULL,
		title TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		UNIQUE (plant_id, slug)
	)`,
	`CREATE TABLE IF NOT EXISTS modules (
		id TEXT PRIMARY KEY,
		journey_id TEXT NOT NULL REFERENCES journeys(id),
		slug TEXT NOT NULL,
		title TEXT NOT NULL,
		hours INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL DEFAULT 0,
		UNIQUE (journey_id, slug)
	)`,
	`CREATE TABLE IF NOT EXISTS lessons (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS exams (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS content_items (
		id TEXT PRIMARY KEY,
		module_id TEXT NOT NULL REFERENCES modules(id),
		kind TEXT NOT NULL,
		lesson_id TEXT REFERENCES lessons(id),
		exam_id TEXT REFERENCES exams(id),
		position INTEGER NOT NULL,
		CHECK ((kind = 'lesson' AND lesson_id IS NOT NULL AND exam_id IS NULL)
			OR (kind = 'exam' AND exam_id IS NOT NULL AND lesson_id IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS content_items_module ON content_items (module_id, position)`,
	`CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		exam_id TEXT NOT NULL REFERENCES exams(id),
		text TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS answers (
		id TEXT PRIMARY KEY,
		question_id TEXT NOT NULL REFERENCES questions(id),
		text TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		is_correct BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS lesson_progress (
		user_id TEXT NOT NULL,
		lesson_id TEXT NOT NULL REFERENCES lessons(id),
		completed_at BIGINT NOT NULL,
		PRIMARY KEY (user_id, lesson_id)
	)`,
	`CREATE TABLE IF NOT EXISTS exam_attempts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		exam_id TEXT NOT NULL REFERENCES exams(id),
		started_at BIGINT NOT NULL,
		finished_at BIGINT,
		score INTEGER,
		approved BOOLEAN
	)`,
	`CREATE INDEX IF NOT EXISTS exam_attempts_user_exam ON exam_attempts (user_id, exam_id)`,
	// At most one unfinished attempt per learner and exam.
	`CREATE UNIQUE INDEX IF NOT EXISTS exam_attempts_one_active ON exam_attempts (user_id, exam_id) WHERE finished_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS catalog_imports (
		name TEXT PRIMARY KEY,
		sha256 TEXT NOT NULL,
		imported_at BIGINT NOT NULL
	)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a primary key or unique
// constraint failure on either backend.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// placeholders returns "$start, $start+1, ..." for n parameters.
func placeholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", start+i)
	}
	return b.String()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
