package postgres

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/registrar/internal/domain/access"
	"github.com/alem-hub/registrar/internal/domain/enrollment"
	"github.com/alem-hub/registrar/internal/domain/shared"
	"github.com/alem-hub/registrar/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

const studentColumns = `id, name, division_id, points, attempted_hours, earned_hours, gpa, level, updated_at`

// GetByID returns a student by ID.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*student.Student, error) {
	return scanStudent(r.conn.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
}

// GetByNameInDivision returns a student by natural key.
func (r *StudentRepository) GetByNameInDivision(ctx context.Context, name string, divisionID int64) (*student.Student, error) {
	return scanStudent(r.conn.QueryRow(ctx,
		`SELECT `+studentColumns+` FROM students WHERE division_id = $1 AND name = $2`,
		divisionID, student.NormalizeName(name)))
}

func scanStudent(row pgx.Row) (*student.Student, error) {
	var s student.Student
	err := row.Scan(
		&s.ID, &s.Name, &s.DivisionID,
		&s.Standing.Points, &s.Standing.AttemptedHours, &s.Standing.EarnedHours,
		&s.Standing.GPA, &s.Standing.Level, &s.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStudentNotFound
		}
		return nil, errors.Wrap(err, "scan student")
	}
	return &s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepository implements enrollment.Repository and
// enrollment.UnitOfWork for PostgreSQL.
type EnrollmentRepository struct {
	conn *Connection
}

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(conn *Connection) *EnrollmentRepository {
	return &EnrollmentRepository{conn: conn}
}

// Exists reports whether an enrollment with the key is stored.
func (r *EnrollmentRepository) Exists(ctx context.Context, key enrollment.Key) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM enrollments
			WHERE student_id = $1 AND course_id = $2
			  AND level = $3 AND semester = $4 AND year = $5 AND month = $6
		)
	`, key.StudentID, key.CourseID, key.Term.Level, key.Term.Semester, key.Term.Year, key.Term.Month).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "check enrollment")
	}
	return exists, nil
}

// ListByStudent returns the student's enrollments ordered by creation.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]*enrollment.Enrollment, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, seat_id, student_id, course_id, level, semester, year, month,
		       mark, full_mark, grade, points, created_at
		FROM enrollments
		WHERE student_id = $1
		ORDER BY created_at, id
	`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "query enrollments")
	}
	defer rows.Close()

	out := []*enrollment.Enrollment{}
	for rows.Next() {
		var e enrollment.Enrollment
		err := rows.Scan(
			&e.ID, &e.SeatID, &e.StudentID, &e.CourseID,
			&e.Term.Level, &e.Term.Semester, &e.Term.Year, &e.Term.Month,
			&e.Mark, &e.FullMark, &e.Grade, &e.Points, &e.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "scan enrollment")
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Commit writes the batch in one serializable transaction. A unique
// violation on the dedup constraint aborts the whole batch. Standing deltas
// are merged into the row locked inside the transaction, so a run that
// committed after this one read the student is added to, not overwritten.
func (r *EnrollmentRepository) Commit(ctx context.Context, batch enrollment.Batch) error {
	now := time.Now().UTC()

	err := r.conn.WithTx(ctx, SerializableTxOptions(), func(tx pgx.Tx) error {
		if err := insertEnrollments(ctx, tx, batch.Enrollments, now); err != nil {
			return err
		}

		// Lock in a stable order so concurrent runs cannot deadlock.
		updates := slices.Clone(batch.Standings)
		slices.SortFunc(updates, func(a, b student.StandingUpdate) int {
			return strings.Compare(a.StudentID, b.StudentID)
		})
		for _, u := range updates {
			if err := applyStanding(ctx, tx, u, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return shared.NewTransactionError("Commit", err)
	}
	return nil
}

func insertEnrollments(ctx context.Context, tx pgx.Tx, enrollments []*enrollment.Enrollment, now time.Time) error {
	if len(enrollments) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, e := range enrollments {
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		b.Queue(`
			INSERT INTO enrollments (
				id, seat_id, student_id, course_id, level, semester, year, month,
				mark, full_mark, grade, points, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, e.ID, e.SeatID, e.StudentID, e.CourseID,
			e.Term.Level, e.Term.Semester, e.Term.Year, e.Term.Month,
			e.Mark, e.FullMark, e.Grade, e.Points, createdAt)
	}

	results := tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			if IsUniqueViolation(err) {
				return enrollment.ErrAlreadyExists
			}
			return errors.Wrapf(err, "insert enrollment %d", i+1)
		}
	}
	return results.Close()
}

func applyStanding(ctx context.Context, tx pgx.Tx, u student.StandingUpdate, now time.Time) error {
	stored, err := scanStudent(tx.QueryRow(ctx,
		`SELECT `+studentColumns+` FROM students WHERE id = $1 FOR UPDATE`, u.StudentID))
	if err != nil {
		return err
	}

	next := u.Apply(stored.Standing)
	_, err = tx.Exec(ctx, `
		UPDATE students SET
			points = $1, attempted_hours = $2, earned_hours = $3,
			gpa = $4, level = $5, updated_at = $6
		WHERE id = $7
	`, next.Points, next.AttemptedHours, next.EarnedHours, next.GPA, next.Level, now, u.StudentID)
	return errors.Wrap(err, "update standing")
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTOR REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ActorRepository implements access.Repository over users and
// division_viewers.
type ActorRepository struct {
	conn *Connection
}

// NewActorRepository creates a new ActorRepository.
func NewActorRepository(conn *Connection) *ActorRepository {
	return &ActorRepository{conn: conn}
}

// GetByID returns the actor with its viewable divisions.
func (r *ActorRepository) GetByID(ctx context.Context, id string) (*access.Actor, error) {
	var a access.Actor
	err := r.conn.QueryRow(ctx, `
		SELECT u.id::text, u.name, u.is_admin,
		       COALESCE(array_agg(v.division_id ORDER BY v.division_id)
		                FILTER (WHERE v.division_id IS NOT NULL), '{}')::BIGINT[]
		FROM users u
		LEFT JOIN division_viewers v ON v.user_id = u.id
		WHERE u.id::text = $1
		GROUP BY u.id
	`, id).Scan(&a.ID, &a.Name, &a.IsAdmin, &a.Divisions)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrActorNotFound
		}
		return nil, errors.Wrap(err, "get actor")
	}
	return &a, nil
}

// GetKeyHash returns the bcrypt hash of the actor's API key.
func (r *ActorRepository) GetKeyHash(ctx context.Context, id string) ([]byte, error) {
	var hash []byte
	err := r.conn.QueryRow(ctx, `SELECT api_key_hash FROM users WHERE id::text = $1`, id).Scan(&hash)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrActorNotFound
		}
		return nil, errors.Wrap(err, "get actor key")
	}
	return hash, nil
}
