// Package student contains the Student aggregate and its academic standing.
// The standing is an aggregate over the student's enrollments and is only
// changed through Accumulate and Finalize, both pure functions.
package student

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Student is a learner registered in exactly one division.
// (DivisionID, Name) is the natural key.
type Student struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	DivisionID int64     `json:"division_id"`
	Standing   Standing  `json:"standing"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NormalizeName trims a student name for natural-key comparison.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}

// ══════════════════════════════════════════════════════════════════════════════
// STANDING
// ══════════════════════════════════════════════════════════════════════════════

// Standing is the running academic aggregate of a student.
//
// Points holds the credit-weighted grade points; GPA is derived from it by
// Finalize and is stale between Accumulate calls.
type Standing struct {
	Points         decimal.Decimal `json:"points"`
	AttemptedHours int             `json:"attempted_hours"`
	EarnedHours    int             `json:"earned_hours"`
	GPA            decimal.Decimal `json:"gpa"`
	Level          int             `json:"level"`
}

// Contribution is what one enrollment adds to a standing.
type Contribution struct {
	Points      float64
	CreditHours int
	Level       int
	Passed      bool
}

// gpaPlaces is the precision GPA is stored with.
const gpaPlaces = 2

// Accumulate returns s with the contribution applied.
func Accumulate(s Standing, c Contribution) Standing {
	hours := c.CreditHours
	if hours < 0 {
		hours = 0
	}

	weighted := decimal.NewFromFloat(c.Points).Mul(decimal.NewFromInt(int64(hours)))
	s.Points = s.Points.Add(weighted)
	s.AttemptedHours += hours

	if c.Passed {
		s.EarnedHours += hours
		if c.Level > s.Level {
			s.Level = c.Level
		}
	}
	return s
}

// Merge adds the totals accumulated by one import run onto a stored
// standing. The result still needs Finalize.
func Merge(base, delta Standing) Standing {
	base.Points = base.Points.Add(delta.Points)
	base.AttemptedHours += delta.AttemptedHours
	base.EarnedHours += delta.EarnedHours
	if delta.Level > base.Level {
		base.Level = delta.Level
	}
	return base
}

// StandingUpdate is what one run adds to a student's standing. Delta starts
// from the zero Standing, so runs that commit one after another add up
// instead of overwriting each other.
type StandingUpdate struct {
	StudentID string
	Delta     Standing
}

// Apply merges u into the stored standing and finalizes it.
func (u StandingUpdate) Apply(stored Standing) Standing {
	return Finalize(Merge(stored, u.Delta))
}

// Finalize recomputes the derived fields of s. It depends only on the
// accumulated totals, so finalizing twice yields the same result.
func Finalize(s Standing) Standing {
	if s.AttemptedHours == 0 {
		s.GPA = decimal.Zero
		return s
	}
	s.GPA = s.Points.
		Div(decimal.NewFromInt(int64(s.AttemptedHours))).
		Round(gpaPlaces)
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines the student lookups the import pipeline needs.
// Standing updates are written through enrollment.UnitOfWork as
// StandingUpdate deltas.
type Repository interface {
	// GetByID returns shared.ErrStudentNotFound when absent.
	GetByID(ctx context.Context, id string) (*Student, error)

	// GetByNameInDivision returns shared.ErrStudentNotFound when absent.
	GetByNameInDivision(ctx context.Context, name string, divisionID int64) (*Student, error)
}
