// Package course contains the Course aggregate and the requirement audit.
//
// A course code is not globally unique: uniqueness is per division, and a
// course may belong to several divisions through course_divisions.
package course

import (
	"context"
	"sort"
	"strings"
)

// Course is a catalog entry.
type Course struct {
	ID             int64   `json:"id"`
	Code           string  `json:"code"`
	Name           string  `json:"name"`
	LectureHours   int     `json:"lecture_hours"`
	PracticalHours int     `json:"practical_hours"`
	CreditHours    int     `json:"credit_hours"`
	Level          int     `json:"level"`
	Semester       int     `json:"semester"`
	Required       bool    `json:"required"`
	DivisionIDs    []int64 `json:"division_ids"`
}

// BelongsTo reports whether the course is associated with the division.
func (c *Course) BelongsTo(divisionID int64) bool {
	for _, id := range c.DivisionIDs {
		if id == divisionID {
			return true
		}
	}
	return false
}

// NormalizeCode trims and upper-cases a course code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ListFilter narrows a course listing. When Restricted is set only courses
// linked to one of DivisionIDs are returned (an empty set returns nothing).
type ListFilter struct {
	Restricted   bool
	DivisionIDs  []int64
	RegulationID int64 // 0 = any regulation
}

// Repository defines storage operations for courses.
type Repository interface {
	// GetByID returns shared.ErrCourseNotFound when absent.
	GetByID(ctx context.Context, id int64) (*Course, error)

	// FindByCodeInDivision returns the course with the code linked to the
	// division, or shared.ErrCourseNotFound.
	FindByCodeInDivision(ctx context.Context, code string, divisionID int64) (*Course, error)

	// FindFirstByCode returns the course with the code and the lowest ID,
	// regardless of division, or shared.ErrCourseNotFound.
	FindFirstByCode(ctx context.Context, code string) (*Course, error)

	// List returns courses ordered by ID.
	List(ctx context.Context, filter ListFilter) ([]*Course, error)

	// ListRequired returns the required courses linked to the division.
	ListRequired(ctx context.Context, divisionID int64) ([]*Course, error)

	// CreateMany inserts the courses with their division links in one
	// transaction and assigns their IDs.
	CreateMany(ctx context.Context, courses []*Course) error
}

// SortByID orders courses by ascending ID in place.
func SortByID(courses []*Course) {
	sort.Slice(courses, func(i, j int) bool { return courses[i].ID < courses[j].ID })
}

// Row is one line of a courses sheet. Division is referenced by name.
type Row struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	LectureHours   int    `json:"lecture_hours"`
	PracticalHours int    `json:"practical_hours"`
	CreditHours    int    `json:"credit_hours"`
	Level          int    `json:"level"`
	Semester       int    `json:"semester"`
	Required       bool   `json:"required"`
	Division       string `json:"division"`
}
