package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/registrar/internal/domain/course"
	"github.com/alem-hub/registrar/internal/domain/division"
	"github.com/alem-hub/registrar/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DIVISION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// DivisionRepository implements division.Repository for PostgreSQL.
type DivisionRepository struct {
	conn *Connection
}

// NewDivisionRepository creates a new DivisionRepository.
func NewDivisionRepository(conn *Connection) *DivisionRepository {
	return &DivisionRepository{conn: conn}
}

const divisionColumns = `id, name, hours, private, is_group, regulation_id, department_1_id, department_2_id`

// GetByID returns a division by ID.
func (r *DivisionRepository) GetByID(ctx context.Context, id int64) (*division.Division, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+divisionColumns+` FROM divisions WHERE id = $1`, id)
	return scanDivision(row)
}

// GetByName returns a division by its trimmed name.
func (r *DivisionRepository) GetByName(ctx context.Context, name string) (*division.Division, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+divisionColumns+` FROM divisions WHERE name = $1`, division.NormalizeName(name))
	return scanDivision(row)
}

// GetDepartmentByName returns a department by its trimmed name.
func (r *DivisionRepository) GetDepartmentByName(ctx context.Context, name string) (*division.Department, error) {
	var d division.Department
	err := r.conn.QueryRow(ctx, `SELECT id, name FROM departments WHERE name = $1`, division.NormalizeName(name)).
		Scan(&d.ID, &d.Name)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrDepartmentNotFound
		}
		return nil, errors.Wrap(err, "get department")
	}
	return &d, nil
}

// RegulationExists reports whether the regulation is stored.
func (r *DivisionRepository) RegulationExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM regulations WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "check regulation")
	}
	return exists, nil
}

// CreateMany inserts every division in one transaction.
func (r *DivisionRepository) CreateMany(ctx context.Context, divisions []*division.Division) error {
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		for i, d := range divisions {
			d.Name = division.NormalizeName(d.Name)
			err := tx.QueryRow(ctx, `
				INSERT INTO divisions (name, hours, private, is_group, regulation_id, department_1_id, department_2_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id
			`, d.Name, d.Hours, d.Private, d.Group, d.RegulationID, d.Department1ID, d.Department2ID).Scan(&d.ID)
			if err != nil {
				switch {
				case IsUniqueViolation(err):
					return shared.WrapError("division", "Create", shared.ErrAlreadyExists,
						fmt.Sprintf("row %d: division %q already exists", i+1, d.Name), err)
				case IsForeignKeyViolation(err):
					return shared.ErrRegulationNotFound
				}
				return errors.Wrapf(err, "insert division row %d", i+1)
			}
		}
		return nil
	})
	if err != nil {
		for _, d := range divisions {
			d.ID = 0
		}
		return shared.NewTransactionError("CreateDivisions", err)
	}
	return nil
}

func scanDivision(row pgx.Row) (*division.Division, error) {
	var d division.Division
	err := row.Scan(&d.ID, &d.Name, &d.Hours, &d.Private, &d.Group, &d.RegulationID, &d.Department1ID, &d.Department2ID)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrDivisionNotFound
		}
		return nil, errors.Wrap(err, "scan division")
	}
	return &d, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CourseRepository implements course.Repository for PostgreSQL.
type CourseRepository struct {
	conn *Connection
}

// NewCourseRepository creates a new CourseRepository.
func NewCourseRepository(conn *Connection) *CourseRepository {
	return &CourseRepository{conn: conn}
}

// courseSelect aggregates the division links of each course. The WHERE
// clause is spliced in by the caller.
const courseSelect = `
	SELECT c.id, c.code, c.name, c.lecture_hours, c.practical_hours, c.credit_hours,
	       c.level, c.semester, c.required,
	       COALESCE(array_agg(cd.division_id ORDER BY cd.division_id)
	                FILTER (WHERE cd.division_id IS NOT NULL), '{}')::BIGINT[]
	FROM courses c
	LEFT JOIN course_divisions cd ON cd.course_id = c.id
	%s
	GROUP BY c.id
	ORDER BY c.id
	%s
`

// GetByID returns a course by ID.
func (r *CourseRepository) GetByID(ctx context.Context, id int64) (*course.Course, error) {
	return r.one(ctx, `WHERE c.id = $1`, id)
}

// FindByCodeInDivision returns the course with the code linked to the division.
func (r *CourseRepository) FindByCodeInDivision(ctx context.Context, code string, divisionID int64) (*course.Course, error) {
	return r.one(ctx, `
		WHERE c.code = $1 AND EXISTS (
			SELECT 1 FROM course_divisions x WHERE x.course_id = c.id AND x.division_id = $2
		)`, course.NormalizeCode(code), divisionID)
}

// FindFirstByCode returns the lowest-ID course with the code.
func (r *CourseRepository) FindFirstByCode(ctx context.Context, code string) (*course.Course, error) {
	return r.one(ctx, `WHERE c.code = $1`, course.NormalizeCode(code))
}

// List returns courses ordered by ID. Scope and regulation filters are
// applied in SQL.
func (r *CourseRepository) List(ctx context.Context, filter course.ListFilter) ([]*course.Course, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Restricted {
		if len(filter.DivisionIDs) == 0 {
			return []*course.Course{}, nil
		}
		args = append(args, filter.DivisionIDs)
		conds = append(conds, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM course_divisions x WHERE x.course_id = c.id AND x.division_id = ANY($%d)
		)`, len(args)))
	}
	if filter.RegulationID > 0 {
		args = append(args, filter.RegulationID)
		conds = append(conds, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM course_divisions x JOIN divisions d ON d.id = x.division_id
			WHERE x.course_id = c.id AND d.regulation_id = $%d
		)`, len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	return r.many(ctx, where, args...)
}

// ListRequired returns the required courses linked to the division.
func (r *CourseRepository) ListRequired(ctx context.Context, divisionID int64) ([]*course.Course, error) {
	return r.many(ctx, `
		WHERE c.required AND EXISTS (
			SELECT 1 FROM course_divisions x WHERE x.course_id = c.id AND x.division_id = $1
		)`, divisionID)
}

// CreateMany inserts the courses and their division links in one transaction.
func (r *CourseRepository) CreateMany(ctx context.Context, courses []*course.Course) error {
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		for i, c := range courses {
			c.Code = course.NormalizeCode(c.Code)
			err := tx.QueryRow(ctx, `
				INSERT INTO courses (code, name, lecture_hours, practical_hours, credit_hours, level, semester, required)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING id
			`, c.Code, c.Name, c.LectureHours, c.PracticalHours, c.CreditHours, c.Level, c.Semester, c.Required).Scan(&c.ID)
			if err != nil {
				return errors.Wrapf(err, "insert course row %d", i+1)
			}
			for _, divisionID := range c.DivisionIDs {
				_, err := tx.Exec(ctx, `INSERT INTO course_divisions (course_id, division_id) VALUES ($1, $2)`, c.ID, divisionID)
				if err != nil {
					if IsForeignKeyViolation(err) {
						return shared.ErrDivisionNotFound
					}
					return errors.Wrapf(err, "link course row %d", i+1)
				}
			}
		}
		return nil
	})
	if err != nil {
		for _, c := range courses {
			c.ID = 0
		}
		return shared.NewTransactionError("CreateCourses", err)
	}
	return nil
}

func (r *CourseRepository) one(ctx context.Context, where string, args ...any) (*course.Course, error) {
	row := r.conn.QueryRow(ctx, fmt.Sprintf(courseSelect, where, "LIMIT 1"), args...)
	c, err := scanCourse(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCourseNotFound
		}
		return nil, errors.Wrap(err, "get course")
	}
	return c, nil
}

func (r *CourseRepository) many(ctx context.Context, where string, args ...any) ([]*course.Course, error) {
	rows, err := r.conn.Query(ctx, fmt.Sprintf(courseSelect, where, ""), args...)
	if err != nil {
		return nil, errors.Wrap(err, "query courses")
	}
	defer rows.Close()

	out := []*course.Course{}
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan course")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCourse(row pgx.Row) (*course.Course, error) {
	var c course.Course
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &c.LectureHours, &c.PracticalHours, &c.CreditHours,
		&c.Level, &c.Semester, &c.Required, &c.DivisionIDs,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
