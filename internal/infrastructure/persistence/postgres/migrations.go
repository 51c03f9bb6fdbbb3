package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION SUPPORT
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies embedded migrations and records them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if needed.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return errors.Wrap(err, "create migrations table")
	}
	return nil
}

// GetAppliedMigrations returns applied versions with their timestamps.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, errors.Wrap(err, "query applied migrations")
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, errors.Wrap(err, "scan migration row")
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if mig.UpSQL == "" {
			return fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return errors.Wrapf(err, "execute migration %d", mig.Version)
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName), mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}
	return nil
}

// Rollback reverts the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	var last int
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	var migration *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			migration = &m.migrations[i]
			break
		}
	}
	if migration == nil || migration.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, migration.DownSQL); err != nil {
			return errors.Wrapf(err, "rollback migration %d", last)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
}

// Status returns every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if at, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = at
		}
	}
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_catalog", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_records", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_users", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// 001: departments, regulations, divisions, courses
// ─────────────────────────────────────────────────────────────────────────────

const migration001Up = `
CREATE TABLE IF NOT EXISTS departments (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS regulations (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    max_gpa NUMERIC(4,2) NOT NULL DEFAULT 4.00
);

CREATE TABLE IF NOT EXISTS divisions (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL UNIQUE,
    hours INTEGER NOT NULL DEFAULT 0,
    private BOOLEAN NOT NULL DEFAULT FALSE,
    is_group BOOLEAN NOT NULL DEFAULT FALSE,
    regulation_id BIGINT NOT NULL REFERENCES regulations(id),
    department_1_id BIGINT REFERENCES departments(id) ON DELETE SET NULL,
    department_2_id BIGINT REFERENCES departments(id) ON DELETE SET NULL,

    CONSTRAINT valid_hours CHECK (hours >= 0)
);

CREATE INDEX IF NOT EXISTS idx_divisions_regulation ON divisions(regulation_id);

CREATE TABLE IF NOT EXISTS courses (
    id BIGSERIAL PRIMARY KEY,
    code VARCHAR(32) NOT NULL,
    name VARCHAR(255) NOT NULL,
    lecture_hours INTEGER NOT NULL DEFAULT 0,
    practical_hours INTEGER NOT NULL DEFAULT 0,
    credit_hours INTEGER NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 0,
    semester INTEGER NOT NULL DEFAULT 0,
    required BOOLEAN NOT NULL DEFAULT FALSE
);

-- code is not unique: the same code may exist in several divisions
CREATE INDEX IF NOT EXISTS idx_courses_code ON courses(code, id);

CREATE TABLE IF NOT EXISTS course_divisions (
    course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    division_id BIGINT NOT NULL REFERENCES divisions(id) ON DELETE CASCADE,
    PRIMARY KEY (course_id, division_id)
);

CREATE INDEX IF NOT EXISTS idx_course_divisions_division ON course_divisions(division_id);
`

const migration001Down = `
DROP TABLE IF EXISTS course_divisions;
DROP TABLE IF EXISTS courses;
DROP TABLE IF EXISTS divisions;
DROP TABLE IF EXISTS regulations;
DROP TABLE IF EXISTS departments;
`

// ─────────────────────────────────────────────────────────────────────────────
// 002: students and enrollments
// ─────────────────────────────────────────────────────────────────────────────

const migration002Up = `
CREATE TABLE IF NOT EXISTS students (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name VARCHAR(255) NOT NULL,
    division_id BIGINT NOT NULL REFERENCES divisions(id),
    points NUMERIC(12,4) NOT NULL DEFAULT 0,
    attempted_hours INTEGER NOT NULL DEFAULT 0,
    earned_hours INTEGER NOT NULL DEFAULT 0,
    gpa NUMERIC(4,2) NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE (division_id, name)
);

CREATE TABLE IF NOT EXISTS enrollments (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    seat_id INTEGER NOT NULL DEFAULT 0,
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    course_id BIGINT NOT NULL REFERENCES courses(id),
    level INTEGER NOT NULL,
    semester INTEGER NOT NULL,
    year INTEGER NOT NULL,
    month VARCHAR(20) NOT NULL,
    mark NUMERIC(8,2) NOT NULL DEFAULT 0,
    full_mark NUMERIC(8,2) NOT NULL DEFAULT 0,
    grade VARCHAR(8) NOT NULL DEFAULT '',
    points NUMERIC(6,3) NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT enrollments_dedup UNIQUE (student_id, course_id, level, semester, year, month)
);

CREATE INDEX IF NOT EXISTS idx_enrollments_student ON enrollments(student_id, created_at);
`

const migration002Down = `
DROP TABLE IF EXISTS enrollments;
DROP TABLE IF EXISTS students;
`

// ─────────────────────────────────────────────────────────────────────────────
// 003: users and division viewers
// ─────────────────────────────────────────────────────────────────────────────

const migration003Up = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name VARCHAR(255) NOT NULL,
    is_admin BOOLEAN NOT NULL DEFAULT FALSE,
    api_key_hash BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS division_viewers (
    division_id BIGINT NOT NULL REFERENCES divisions(id) ON DELETE CASCADE,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    PRIMARY KEY (division_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_division_viewers_user ON division_viewers(user_id);
`

const migration003Down = `
DROP TABLE IF EXISTS division_viewers;
DROP TABLE IF EXISTS users;
`
