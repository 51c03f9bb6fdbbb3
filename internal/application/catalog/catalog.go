// Package catalog is the permission-aware read layer over courses and
// divisions. Records outside the actor's scope are reported as not found.
package catalog

import (
	"context"

	"github.com/alem-hub/registrar/internal/domain/access"
	"github.com/alem-hub/registrar/internal/domain/course"
	"github.com/alem-hub/registrar/internal/domain/division"
	"github.com/alem-hub/registrar/internal/domain/shared"
)

// Filter narrows a course listing.
type Filter struct {
	RegulationID int64 // 0 = any regulation
}

// Catalog applies access.Scope to course and division reads.
type Catalog struct {
	courses   course.Repository
	divisions division.Repository
}

// New creates a catalog.
func New(courses course.Repository, divisions division.Repository) *Catalog {
	return &Catalog{courses: courses, divisions: divisions}
}

// CheckCourse returns nil when the actor may see the course and
// shared.ErrCourseNotFound otherwise.
func (c *Catalog) CheckCourse(actor access.Actor, crs *course.Course) error {
	if crs == nil || !actor.Scope().AllowsAny(crs.DivisionIDs) {
		return shared.ErrCourseNotFound
	}
	return nil
}

// CheckDivision returns nil when the actor may see the division and
// shared.ErrDivisionNotFound otherwise.
func (c *Catalog) CheckDivision(actor access.Actor, d *division.Division) error {
	if d == nil || !actor.Scope().AllowsDivision(d.ID) {
		return shared.ErrDivisionNotFound
	}
	return nil
}

// Course fetches a course visible to the actor.
func (c *Catalog) Course(ctx context.Context, actor access.Actor, id int64) (*course.Course, error) {
	crs, err := c.courses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.CheckCourse(actor, crs); err != nil {
		return nil, err
	}
	return crs, nil
}

// Division fetches a division visible to the actor.
func (c *Catalog) Division(ctx context.Context, actor access.Actor, id int64) (*division.Division, error) {
	d, err := c.divisions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.CheckDivision(actor, d); err != nil {
		return nil, err
	}
	return d, nil
}

// DivisionByName resolves a division by name within the actor's scope.
func (c *Catalog) DivisionByName(ctx context.Context, actor access.Actor, name string) (*division.Division, error) {
	d, err := c.divisions.GetByName(ctx, division.NormalizeName(name))
	if err != nil {
		return nil, err
	}
	if err := c.CheckDivision(actor, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Courses lists the courses visible to the actor, ordered by id. The scope
// is pushed down to the repository.
func (c *Catalog) Courses(ctx context.Context, actor access.Actor, f Filter) ([]*course.Course, error) {
	scope := actor.Scope()
	lf := course.ListFilter{RegulationID: f.RegulationID}
	if !scope.Unrestricted() {
		lf.Restricted = true
		lf.DivisionIDs = scope.DivisionIDs()
	}
	return c.courses.List(ctx, lf)
}
