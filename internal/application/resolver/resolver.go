// Package resolver maps natural-key references found in imported sheets
// (division name, department name, course code, student name) to stored
// entities.
//
// Required references never degrade to nil: a miss is a NotFound error.
// The only optional lookup is OptionalDepartment.
package resolver

import (
	"context"
	"errors"
	"strings"

	"github.com/alem-hub/registrar/internal/domain/course"
	"github.com/alem-hub/registrar/internal/domain/division"
	"github.com/alem-hub/registrar/internal/domain/shared"
	"github.com/alem-hub/registrar/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// COURSE STRATEGIES
// ══════════════════════════════════════════════════════════════════════════════

// CourseStrategy is one way of finding a course by code. A miss returns
// shared.ErrCourseNotFound so the next strategy can be tried.
type CourseStrategy interface {
	Name() string
	Find(ctx context.Context, code string, divisionID int64) (*course.Course, error)
}

// CourseByCodeInDivision matches a course with the code linked to the division.
type CourseByCodeInDivision struct {
	Courses course.Repository
}

func (CourseByCodeInDivision) Name() string { return "code_in_division" }

func (s CourseByCodeInDivision) Find(ctx context.Context, code string, divisionID int64) (*course.Course, error) {
	return s.Courses.FindByCodeInDivision(ctx, code, divisionID)
}

// CourseByCode matches the course with the code and the lowest id, ignoring
// the division. It tolerates code collisions across divisions.
type CourseByCode struct {
	Courses course.Repository
}

func (CourseByCode) Name() string { return "code_only" }

func (s CourseByCode) Find(ctx context.Context, code string, _ int64) (*course.Course, error) {
	return s.Courses.FindFirstByCode(ctx, code)
}

// DefaultCourseStrategies returns code+division, then code-only when
// fallback is enabled.
func DefaultCourseStrategies(courses course.Repository, fallback bool) []CourseStrategy {
	strategies := []CourseStrategy{CourseByCodeInDivision{Courses: courses}}
	if fallback {
		strategies = append(strategies, CourseByCode{Courses: courses})
	}
	return strategies
}

// ══════════════════════════════════════════════════════════════════════════════
// RESOLVER
// ══════════════════════════════════════════════════════════════════════════════

// Resolver resolves references against storage. It holds no per-run state.
type Resolver struct {
	divisions  division.Repository
	students   student.Repository
	strategies []CourseStrategy
}

// New creates a resolver trying the course strategies in order.
func New(divisions division.Repository, students student.Repository, strategies ...CourseStrategy) *Resolver {
	return &Resolver{
		divisions:  divisions,
		students:   students,
		strategies: strategies,
	}
}

// ResolveCourse returns the first course found by the strategies.
func (r *Resolver) ResolveCourse(ctx context.Context, code string, divisionID int64) (*course.Course, error) {
	code = course.NormalizeCode(code)
	if code == "" {
		return nil, shared.ErrCourseNotFound
	}

	for _, s := range r.strategies {
		c, err := s.Find(ctx, code, divisionID)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, shared.ErrCourseNotFound) {
			return nil, err
		}
	}
	return nil, shared.ErrCourseNotFound
}

// ResolveStudent matches (name, division) exactly.
func (r *Resolver) ResolveStudent(ctx context.Context, name string, divisionID int64) (*student.Student, error) {
	name = student.NormalizeName(name)
	if name == "" {
		return nil, shared.ErrStudentNotFound
	}
	return r.students.GetByNameInDivision(ctx, name, divisionID)
}

// ResolveDivision matches a division by name.
func (r *Resolver) ResolveDivision(ctx context.Context, name string) (*division.Division, error) {
	name = division.NormalizeName(name)
	if name == "" {
		return nil, shared.ErrDivisionNotFound
	}
	return r.divisions.GetByName(ctx, name)
}

// ResolveDepartment matches a department by name.
func (r *Resolver) ResolveDepartment(ctx context.Context, name string) (*division.Department, error) {
	name = division.NormalizeName(name)
	if name == "" {
		return nil, shared.ErrDepartmentNotFound
	}
	return r.divisions.GetDepartmentByName(ctx, name)
}

// OptionalDepartment resolves a department reference that may be left
// unset. An empty or unknown name yields nil; storage errors propagate.
func (r *Resolver) OptionalDepartment(ctx context.Context, name string) (*int64, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	d, err := r.ResolveDepartment(ctx, name)
	if errors.Is(err, shared.ErrDepartmentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id := d.ID
	return &id, nil
}
