package enrollment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/registrar/internal/domain/shared"
)

func rowsFor(names ...string) []Row {
	rows := make([]Row, len(names))
	for i, n := range names {
		rows[i] = Row{Student: n}
	}
	return rows
}

func TestGroup_ContiguousBlocks(t *testing.T) {
	blocks := Group(rowsFor("S1", "S1", "S2"))

	require.Len(t, blocks, 2)
	assert.Equal(t, Block{Student: "S1", Start: 0, Rows: 2}, blocks[0])
	assert.Equal(t, Block{Student: "S2", Start: 2, Rows: 1}, blocks[1])
}

func TestGroup_NonContiguousRecurrenceOpensNewBlock(t *testing.T) {
	blocks := Group(rowsFor("A", "B", "A"))

	require.Len(t, blocks, 3)
	assert.Equal(t, "A", blocks[0].Student)
	assert.Equal(t, "A", blocks[2].Student)
	assert.Equal(t, 2, blocks[2].Start)
}

func TestGroup_Empty(t *testing.T) {
	assert.Empty(t, Group(nil))
}

func TestBlock_AdvanceFiresCloseOncePerBlock(t *testing.T) {
	var (
		cur    Block
		closed int
	)
	for i, r := range rowsFor("x", "x", "y", "y", "z") {
		next, c := cur.Advance(i, r.Student)
		if c != nil {
			closed++
		}
		cur = next
	}
	require.NotNil(t, cur.Close())
	closed++

	assert.Equal(t, 3, closed)
	assert.Nil(t, Block{}.Close())
}

func TestHeaders_TermFor(t *testing.T) {
	h := Headers{Term: Term{Level: 1, Semester: 1, Year: 2024, Month: "June"}}

	assert.Equal(t, h.Term, h.TermFor(Row{}))
	assert.Equal(t, Term{Level: 2, Semester: 1, Year: 2024, Month: "June"}, h.TermFor(Row{Level: 2}))
	assert.Equal(t, Term{Level: 1, Semester: 2, Year: 2024, Month: "June"}, h.TermFor(Row{Semester: 2}))
}

func TestTerm_Validate(t *testing.T) {
	assert.NoError(t, Term{Level: 1, Semester: 2, Year: 2024, Month: "January"}.Validate())

	err := Term{Level: 0, Semester: 1, Year: 2024, Month: "June"}.Validate()
	assert.True(t, errors.Is(err, shared.ErrInvalidTerm))
	assert.True(t, shared.IsValidation(err))

	assert.Error(t, Term{Level: 1, Semester: 1, Year: 2024}.Validate())
}

func TestPassed(t *testing.T) {
	assert.True(t, (&Enrollment{Grade: "A"}).Passed())
	assert.True(t, (&Enrollment{Grade: " c+ "}).Passed())
	assert.False(t, (&Enrollment{Grade: "F"}).Passed())
	assert.False(t, (&Enrollment{Grade: "abs"}).Passed())
	assert.False(t, (&Enrollment{}).Passed())

	passed := FilterPassed([]*Enrollment{
		{CourseID: 1, Grade: "B"},
		{CourseID: 2, Grade: "F"},
		nil,
	})
	require.Len(t, passed, 1)
	assert.Equal(t, int64(1), passed[0].CourseID)
}

func TestReport_Summary(t *testing.T) {
	r := Report{
		{Status: StatusCreated},
		{Status: StatusCreated},
		{Status: StatusDuplicate},
	}

	s := r.Summary()
	assert.Equal(t, 2, s[StatusCreated])
	assert.Equal(t, 1, s[StatusDuplicate])
	assert.Equal(t, 0, s[StatusStudentNotFound])
	assert.Len(t, r.SummaryStrings(), len(Statuses))
}

func TestErrAlreadyExists(t *testing.T) {
	assert.True(t, IsAlreadyExists(ErrAlreadyExists))
	assert.True(t, shared.IsAlreadyExists(ErrAlreadyExists))
}
