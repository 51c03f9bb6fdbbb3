// Package query contains read operations (CQRS - Queries).
// Queries never change state; every one of them is scoped to the actor.
package query

import (
	"context"
	"fmt"

	"github.com/alem-hub/registrar/internal/application/catalog"
	"github.com/alem-hub/registrar/internal/domain/access"
	"github.com/alem-hub/registrar/internal/domain/course"
	"github.com/alem-hub/registrar/internal/domain/enrollment"
	"github.com/alem-hub/registrar/internal/domain/shared"
	"github.com/alem-hub/registrar/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// MISSING REQUIRED COURSES QUERY
// Required courses of a division that a student has not passed yet.
// ══════════════════════════════════════════════════════════════════════════════

// MissingRequiredQuery asks which required courses a student still lacks.
type MissingRequiredQuery struct {
	Actor      access.Actor
	DivisionID int64
	StudentID  string
}

// Validate validates the query.
func (q MissingRequiredQuery) Validate() error {
	if q.DivisionID <= 0 {
		return shared.WrapError("query", "Validate", shared.ErrInvalidID, "division_id must be positive", nil)
	}
	if q.StudentID == "" {
		return shared.WrapError("query", "Validate", shared.ErrInvalidID, "student_id is required", nil)
	}
	return nil
}

// MissingRequiredResult lists the missing course ids in ascending order.
type MissingRequiredResult struct {
	DivisionID int64   `json:"division_id"`
	StudentID  string  `json:"student_id"`
	Missing    []int64 `json:"missing"`
}

// MissingRequiredHandler handles MissingRequiredQuery.
type MissingRequiredHandler struct {
	catalog     *catalog.Catalog
	courses     course.Repository
	students    student.Repository
	enrollments enrollment.Repository
}

// NewMissingRequiredHandler creates a new MissingRequiredHandler.
func NewMissingRequiredHandler(
	catalog *catalog.Catalog,
	courses course.Repository,
	students student.Repository,
	enrollments enrollment.Repository,
) *MissingRequiredHandler {
	return &MissingRequiredHandler{
		catalog:     catalog,
		courses:     courses,
		students:    students,
		enrollments: enrollments,
	}
}

// MissingRequired returns the required courses of the division not covered
// by the passed enrollments. passed is taken as given, with no grade check.
func (h *MissingRequiredHandler) MissingRequired(ctx context.Context, divisionID int64, passed []*enrollment.Enrollment) ([]int64, error) {
	required, err := h.courses.ListRequired(ctx, divisionID)
	if err != nil {
		return nil, fmt.Errorf("list required courses: %w", err)
	}
	return course.MissingRequired(required, passed), nil
}

// Handle executes the query.
func (h *MissingRequiredHandler) Handle(ctx context.Context, q MissingRequiredQuery) (*MissingRequiredResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if _, err := h.catalog.Division(ctx, q.Actor, q.DivisionID); err != nil {
		return nil, err
	}

	st, err := h.students.GetByID(ctx, q.StudentID)
	if err != nil {
		return nil, err
	}
	// A student of another division is reported as absent from this one.
	if st.DivisionID != q.DivisionID {
		return nil, shared.ErrStudentNotFound
	}

	enrollments, err := h.enrollments.ListByStudent(ctx, st.ID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}

	// Only graded, non-failing attempts satisfy a requirement.
	missing, err := h.MissingRequired(ctx, q.DivisionID, enrollment.FilterPassed(enrollments))
	if err != nil {
		return nil, err
	}
	return &MissingRequiredResult{DivisionID: q.DivisionID, StudentID: st.ID, Missing: missing}, nil
}
