package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/alem-hub/registrar/internal/domain/enrollment"
)

// Deduplicator decides whether a candidate enrollment is new. It remembers
// the keys staged earlier in the same run, so a sheet that repeats a row is
// rejected before it can reach the storage unique constraint.
//
// A Deduplicator belongs to one run and is not safe for concurrent use.
type Deduplicator struct {
	enrollments enrollment.Repository
	staged      map[enrollment.Key]struct{}
	newID       func() string
}

// NewDeduplicator creates a deduplicator for one run.
func NewDeduplicator(enrollments enrollment.Repository) *Deduplicator {
	return &Deduplicator{
		enrollments: enrollments,
		staged:      make(map[enrollment.Key]struct{}),
		newID:       uuid.NewString,
	}
}

// FindOrReject returns a new, unsaved enrollment for the row, or
// enrollment.ErrAlreadyExists when the key is stored or already staged.
// Row level and semester override the header term when present.
func (d *Deduplicator) FindOrReject(
	ctx context.Context,
	headers enrollment.Headers,
	row enrollment.Row,
	studentID string,
	courseID int64,
) (*enrollment.Enrollment, error) {
	key := enrollment.Key{
		StudentID: studentID,
		CourseID:  courseID,
		Term:      headers.TermFor(row),
	}

	if _, ok := d.staged[key]; ok {
		return nil, enrollment.ErrAlreadyExists
	}

	exists, err := d.enrollments.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}
	if exists {
		return nil, enrollment.ErrAlreadyExists
	}

	d.staged[key] = struct{}{}
	return &enrollment.Enrollment{
		ID:        d.newID(),
		SeatID:    row.SeatID,
		StudentID: studentID,
		CourseID:  courseID,
		Term:      key.Term,
		Mark:      row.Mark,
		FullMark:  row.FullMark,
		Grade:     row.Grade,
		Points:    row.Points,
	}, nil
}

// Staged returns the number of keys staged so far.
func (d *Deduplicator) Staged() int {
	return len(d.staged)
}
