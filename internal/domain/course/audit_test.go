package course

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/registrar/internal/domain/enrollment"
)

func passedIn(ids ...int64) []*enrollment.Enrollment {
	out := make([]*enrollment.Enrollment, len(ids))
	for i, id := range ids {
		out[i] = &enrollment.Enrollment{CourseID: id, Grade: "B"}
	}
	return out
}

func TestMissingRequired_NothingPassed(t *testing.T) {
	required := []*Course{
		{ID: 2, Code: "CS102", Required: true},
		{ID: 1, Code: "CS101", Required: true},
	}

	assert.Equal(t, []int64{1, 2}, MissingRequired(required, nil))
}

func TestMissingRequired_AllPassed(t *testing.T) {
	required := []*Course{
		{ID: 1, Code: "CS101", Required: true},
		{ID: 2, Code: "CS102", Required: true},
	}

	assert.Empty(t, MissingRequired(required, passedIn(1, 2, 99)))
}

func TestMissingRequired_IgnoresOptionalCourses(t *testing.T) {
	// C1 required and passed, C2 optional and not passed.
	courses := []*Course{
		{ID: 1, Code: "C1", Required: true},
		{ID: 2, Code: "C2", Required: false},
	}

	assert.Empty(t, MissingRequired(courses, passedIn(1)))
}

func TestMissingRequired_TrustsCallerPassedSet(t *testing.T) {
	required := []*Course{
		{ID: 1, Code: "C1", Required: true},
		{ID: 2, Code: "C2", Required: true},
	}
	// No grade on the first, a nil entry in the middle.
	passed := []*enrollment.Enrollment{{CourseID: 1}, nil, {CourseID: 2, Grade: "F"}}

	assert.Empty(t, MissingRequired(required, passed))
	assert.Equal(t, []int64{2}, MissingRequired(required, passed[:2]))
}

func TestCourse_BelongsTo(t *testing.T) {
	c := &Course{ID: 1, DivisionIDs: []int64{4, 7}}

	assert.True(t, c.BelongsTo(7))
	assert.False(t, c.BelongsTo(5))
	assert.Equal(t, "CS101", NormalizeCode(" cs101 "))
}
