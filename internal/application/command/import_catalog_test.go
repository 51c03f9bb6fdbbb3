package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/registrar/internal/application/catalog"
	"github.com/alem-hub/registrar/internal/application/resolver"
	"github.com/alem-hub/registrar/internal/domain/access"
	"github.com/alem-hub/registrar/internal/domain/course"
	"github.com/alem-hub/registrar/internal/domain/division"
	"github.com/alem-hub/registrar/internal/domain/shared"
	"github.com/alem-hub/registrar/internal/infrastructure/persistence/memory"
)

func resolverFor(s *memory.Store) *resolver.Resolver {
	return resolver.New(s.Divisions(), s.Students(), resolver.DefaultCourseStrategies(s.Courses(), true)...)
}

func TestImportDivisions_OptionalDepartments(t *testing.T) {
	s := memory.NewStore()
	s.AddRegulation(7)
	csDept := s.AddDepartment("Computer Science")

	rows := []division.Row{
		{Name: "AI", Hours: 140, Department1: "Computer Science", Department2: "Unknown"},
		{Name: "Stats", Hours: 132, Private: true},
	}
	h := NewImportDivisionsHandler(fakeExtractor{divisions: rows}, resolverFor(s), s.Divisions(), RunDeps{})

	res, err := h.Handle(context.Background(), ImportDivisionsCommand{
		Actor: access.Actor{ID: "root", IsAdmin: true}, File: file, RegulationID: 7,
	})
	require.NoError(t, err)
	require.Len(t, res.Divisions, 2)

	ai := res.Divisions[0]
	assert.NotZero(t, ai.ID)
	require.NotNil(t, ai.Department1ID)
	assert.Equal(t, csDept, *ai.Department1ID)
	assert.Nil(t, ai.Department2ID)
	assert.Equal(t, int64(7), ai.RegulationID)

	stored, err := s.Divisions().GetByName(context.Background(), "Stats")
	require.NoError(t, err)
	assert.True(t, stored.Private)
	assert.Nil(t, stored.Department1ID)
}

func TestImportDivisions_Rejections(t *testing.T) {
	s := memory.NewStore()
	s.AddRegulation(1)
	h := NewImportDivisionsHandler(fakeExtractor{divisions: []division.Row{{Name: "A"}}}, resolverFor(s), s.Divisions(), RunDeps{})
	admin := access.Actor{ID: "root", IsAdmin: true}

	_, err := h.Handle(context.Background(), ImportDivisionsCommand{Actor: admin, File: file, RegulationID: 99})
	assert.ErrorIs(t, err, shared.ErrRegulationNotFound)

	_, err = h.Handle(context.Background(), ImportDivisionsCommand{Actor: access.Actor{ID: "v"}, File: file, RegulationID: 1})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = h.Handle(context.Background(), ImportDivisionsCommand{Actor: admin, File: file})
	assert.True(t, shared.IsValidation(err))
}

func TestImportDivisions_DuplicateNameRollsBack(t *testing.T) {
	s := memory.NewStore()
	s.AddRegulation(1)
	rows := []division.Row{{Name: "A"}, {Name: "B"}, {Name: "A"}}
	h := NewImportDivisionsHandler(fakeExtractor{divisions: rows}, resolverFor(s), s.Divisions(), RunDeps{})

	_, err := h.Handle(context.Background(), ImportDivisionsCommand{
		Actor: access.Actor{ID: "root", IsAdmin: true}, File: file, RegulationID: 1,
	})
	require.Error(t, err)
	assert.True(t, shared.IsTransactionFailure(err))

	_, err = s.Divisions().GetByName(context.Background(), "B")
	assert.ErrorIs(t, err, shared.ErrDivisionNotFound)
}

func TestImportCourses_LinksDivision(t *testing.T) {
	s := memory.NewStore()
	s.AddRegulation(1)
	cs := &division.Division{Name: "CS", RegulationID: 1}
	require.NoError(t, s.AddDivision(cs))

	rows := []course.Row{
		{Code: "cs101", Name: "Intro", CreditHours: 3, Required: true, Division: "CS"},
		{Code: "CS102", Name: "Data", CreditHours: 3, Division: "CS"},
	}
	h := NewImportCoursesHandler(fakeExtractor{courses: rows}, resolverFor(s), catalog.New(s.Courses(), s.Divisions()), s.Courses(), RunDeps{})

	res, err := h.Handle(context.Background(), ImportCoursesCommand{Actor: access.Actor{ID: "v", Divisions: []int64{cs.ID}}, File: file})
	require.NoError(t, err)
	require.Len(t, res.Courses, 2)

	got, err := s.Courses().FindByCodeInDivision(context.Background(), "CS101", cs.ID)
	require.NoError(t, err)
	assert.True(t, got.Required)
	assert.Equal(t, []int64{cs.ID}, got.DivisionIDs)
}

func TestImportCourses_DivisionRequiredAndScoped(t *testing.T) {
	s := memory.NewStore()
	s.AddRegulation(1)
	cs := &division.Division{Name: "CS", RegulationID: 1}
	require.NoError(t, s.AddDivision(cs))
	cat := catalog.New(s.Courses(), s.Divisions())

	unknown := NewImportCoursesHandler(fakeExtractor{courses: []course.Row{{Code: "X", Division: "Nope"}}}, resolverFor(s), cat, s.Courses(), RunDeps{})
	_, err := unknown.Handle(context.Background(), ImportCoursesCommand{Actor: access.Actor{IsAdmin: true}, File: file})
	assert.ErrorIs(t, err, shared.ErrDivisionNotFound)
	assert.Contains(t, err.Error(), "row 1")

	hidden := NewImportCoursesHandler(fakeExtractor{courses: []course.Row{{Code: "X", Division: "CS"}}}, resolverFor(s), cat, s.Courses(), RunDeps{})
	_, err = hidden.Handle(context.Background(), ImportCoursesCommand{Actor: access.Actor{ID: "v"}, File: file})
	assert.ErrorIs(t, err, shared.ErrDivisionNotFound)

	none, err := s.Courses().List(context.Background(), course.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)
}
