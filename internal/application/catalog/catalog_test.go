package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/registrar/internal/domain/access"
	"github.com/alem-hub/registrar/internal/domain/course"
	"github.com/alem-hub/registrar/internal/domain/division"
	"github.com/alem-hub/registrar/internal/domain/shared"
	"github.com/alem-hub/registrar/internal/infrastructure/persistence/memory"
)

func setup(t *testing.T) (*Catalog, *division.Division, *division.Division, *course.Course, *course.Course) {
	t.Helper()
	s := memory.NewStore()
	s.AddRegulation(1)
	s.AddRegulation(2)

	d1 := &division.Division{Name: "D1", RegulationID: 1}
	d2 := &division.Division{Name: "D2", RegulationID: 2}
	require.NoError(t, s.AddDivision(d1))
	require.NoError(t, s.AddDivision(d2))

	c1 := &course.Course{Code: "A1", DivisionIDs: []int64{d1.ID}}
	c2 := &course.Course{Code: "B1", DivisionIDs: []int64{d2.ID}}
	s.AddCourse(c1)
	s.AddCourse(c2)

	return New(s.Courses(), s.Divisions()), d1, d2, c1, c2
}

func TestCatalog_AdminSeesEverything(t *testing.T) {
	cat, _, d2, _, c2 := setup(t)
	admin := access.Actor{ID: "root", IsAdmin: true}

	got, err := cat.Course(context.Background(), admin, c2.ID)
	require.NoError(t, err)
	assert.Equal(t, c2.ID, got.ID)

	_, err = cat.Division(context.Background(), admin, d2.ID)
	assert.NoError(t, err)

	all, err := cat.Courses(context.Background(), admin, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCatalog_OutOfScopeIsNotFound(t *testing.T) {
	cat, d1, d2, c1, c2 := setup(t)
	viewer := access.Actor{ID: "v", Divisions: []int64{d1.ID}}

	got, err := cat.Course(context.Background(), viewer, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, got.ID)

	_, err = cat.Course(context.Background(), viewer, c2.ID)
	assert.ErrorIs(t, err, shared.ErrCourseNotFound)
	assert.NotErrorIs(t, err, shared.ErrForbidden)

	_, err = cat.Division(context.Background(), viewer, d2.ID)
	assert.ErrorIs(t, err, shared.ErrDivisionNotFound)

	_, err = cat.DivisionByName(context.Background(), viewer, "D2")
	assert.ErrorIs(t, err, shared.ErrDivisionNotFound)
}

func TestCatalog_ListAndSingleAgree(t *testing.T) {
	cat, d1, _, c1, _ := setup(t)
	viewer := access.Actor{ID: "v", Divisions: []int64{d1.ID}}

	listed, err := cat.Courses(context.Background(), viewer, Filter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, c1.ID, listed[0].ID)

	for _, c := range listed {
		assert.NoError(t, cat.CheckCourse(viewer, c))
	}
}

func TestCatalog_RegulationFilter(t *testing.T) {
	cat, _, _, _, c2 := setup(t)
	admin := access.Actor{ID: "root", IsAdmin: true}

	got, err := cat.Courses(context.Background(), admin, Filter{RegulationID: 2})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, c2.ID, got[0].ID)
}

func TestCatalog_UnlinkedCourseIsAdminOnly(t *testing.T) {
	cat, d1, _, _, _ := setup(t)
	orphan := &course.Course{ID: 99, Code: "Z"}

	assert.ErrorIs(t, cat.CheckCourse(access.Actor{Divisions: []int64{d1.ID}}, orphan), shared.ErrCourseNotFound)
	assert.NoError(t, cat.CheckCourse(access.Actor{IsAdmin: true}, orphan))
}
