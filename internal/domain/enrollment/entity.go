// Package enrollment contains the Enrollment aggregate, the import row model
// and the per-student grouping used by the enrollment import.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/registrar/internal/domain/shared"
	"github.com/alem-hub/registrar/internal/domain/student"
)

// ErrAlreadyExists is returned by the deduplicator when an enrollment with
// the same Key is stored or already staged in the current run.
var ErrAlreadyExists = shared.ErrEnrollmentAlreadyExists

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Term identifies when a course was taken.
type Term struct {
	Level    int    `json:"level"`
	Semester int    `json:"semester"`
	Year     int    `json:"year"`
	Month    string `json:"month"`
}

// Validate checks the term components.
func (t Term) Validate() error {
	switch {
	case t.Level <= 0:
		return fmt.Errorf("%w: level must be positive", shared.ErrInvalidTerm)
	case t.Semester <= 0:
		return fmt.Errorf("%w: semester must be positive", shared.ErrInvalidTerm)
	case t.Year < 1900 || t.Year > 9999:
		return fmt.Errorf("%w: year %d out of range", shared.ErrInvalidTerm, t.Year)
	case strings.TrimSpace(t.Month) == "":
		return fmt.Errorf("%w: month is required", shared.ErrInvalidTerm)
	}
	return nil
}

// Key is the deduplication identity of an enrollment. It mirrors the
// storage unique constraint on enrollments.
type Key struct {
	StudentID string
	CourseID  int64
	Term      Term
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Enrollment records a student's result in a course for a term.
// It is created by the import pipeline and never updated by it.
type Enrollment struct {
	ID        string    `json:"id"`
	SeatID    int       `json:"seat_id"`
	StudentID string    `json:"student_id"`
	CourseID  int64     `json:"course_id"`
	Term      Term      `json:"term"`
	Mark      float64   `json:"mark"`
	FullMark  float64   `json:"full_mark"`
	Grade     string    `json:"grade"`
	Points    float64   `json:"points"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the deduplication key of e.
func (e *Enrollment) Key() Key {
	return Key{StudentID: e.StudentID, CourseID: e.CourseID, Term: e.Term}
}

// failingGrades are the grades that do not earn credit.
var failingGrades = map[string]struct{}{
	"F":   {},
	"ABS": {},
}

// Passed reports whether the grade earns credit.
func (e *Enrollment) Passed() bool {
	return IsPassingGrade(e.Grade)
}

// IsPassingGrade reports whether grade earns credit. An empty grade is not
// passing.
func IsPassingGrade(grade string) bool {
	g := strings.ToUpper(strings.TrimSpace(grade))
	if g == "" {
		return false
	}
	_, failed := failingGrades[g]
	return !failed
}

// FilterPassed returns the enrollments whose grade earns credit.
func FilterPassed(enrollments []*Enrollment) []*Enrollment {
	out := make([]*Enrollment, 0, len(enrollments))
	for _, e := range enrollments {
		if e != nil && e.Passed() {
			out = append(out, e)
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// PERSISTENCE
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines enrollment reads.
type Repository interface {
	// Exists reports whether an enrollment with the key is stored.
	Exists(ctx context.Context, key Key) (bool, error)

	// ListByStudent returns the student's enrollments ordered by creation.
	ListByStudent(ctx context.Context, studentID string) ([]*Enrollment, error)
}

// Batch is everything one import run writes.
type Batch struct {
	Enrollments []*Enrollment

	// Standings holds one delta per student that gained an enrollment.
	Standings []student.StandingUpdate
}

// Empty reports whether the batch writes nothing.
func (b *Batch) Empty() bool {
	return len(b.Enrollments) == 0 && len(b.Standings) == 0
}

// UnitOfWork commits a batch atomically. Standing deltas are merged into the
// standing stored at commit time, never into a copy read earlier. On failure
// nothing is written and the returned error satisfies
// shared.IsTransactionFailure.
type UnitOfWork interface {
	Commit(ctx context.Context, batch Batch) error
}

// IsAlreadyExists reports whether err is a duplicate enrollment.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
