package spreadsheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/alem-hub/registrar/internal/domain/enrollment"
	"github.com/alem-hub/registrar/internal/domain/shared"
)

// workbook renders rows into an in-memory xlsx. A nil row leaves a blank line.
func workbook(t *testing.T, sheet string, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "" {
		idx, err := f.NewSheet(sheet)
		require.NoError(t, err)
		f.SetActiveSheet(idx)
	} else {
		sheet = f.GetSheetName(0)
	}

	for i, row := range rows {
		if row == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func enrollmentWorkbook(t *testing.T, table [][]any) []byte {
	t.Helper()
	rows := [][]any{
		{"Division", "CS"},
		{"Level", 1},
		{"Semester", 2},
		{"Year", 2024},
		{"Month", "June"},
		nil,
		{"seat_id", "student", "code", "course", "mark", "full_mark", "grade", "points", "level"},
	}
	return workbook(t, "", append(rows, table...))
}

func TestExtractEnrollments(t *testing.T) {
	data := enrollmentWorkbook(t, [][]any{
		{1, "S1", "cs101", "Intro", 85, 100, "b", 3.0},
		nil,
		{1, "S1", "CS102", "Data", 40, 100, "F", 0, 2},
		{2, "S2", "CS101", "Intro", 90.5, 100, "A", 4},
	})

	sheet, err := New("").ExtractEnrollments(data)
	require.NoError(t, err)

	assert.Equal(t, enrollment.Headers{
		Division: "CS",
		Term:     enrollment.Term{Level: 1, Semester: 2, Year: 2024, Month: "June"},
	}, sheet.Headers)

	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, enrollment.Row{
		SeatID: 1, Student: "S1", Code: "CS101", Course: "Intro",
		Mark: 85, FullMark: 100, Grade: "B", Points: 3,
	}, sheet.Rows[0])
	assert.Equal(t, 2, sheet.Rows[1].Level)
	assert.Equal(t, 90.5, sheet.Rows[2].Mark)
}

func TestExtractEnrollments_Malformed(t *testing.T) {
	tests := []struct {
		name string
		rows [][]any
		want string
	}{
		{
			name: "missing blank row",
			rows: [][]any{{"Division", "CS"}},
			want: "blank row",
		},
		{
			name: "non numeric level",
			rows: [][]any{
				{"Division", "CS"}, {"Level", "one"}, {"Semester", 1}, {"Year", 2024}, {"Month", "June"},
				nil,
				{"student", "code", "grade"},
			},
			want: "level",
		},
		{
			name: "missing division header",
			rows: [][]any{
				{"Level", 1}, {"Semester", 1}, {"Year", 2024}, {"Month", "June"},
				nil,
				{"student", "code", "grade"},
			},
			want: "division",
		},
		{
			name: "missing column",
			rows: [][]any{
				{"Division", "CS"}, {"Level", 1}, {"Semester", 1}, {"Year", 2024}, {"Month", "June"},
				nil,
				{"student", "grade"},
			},
			want: `missing column "code"`,
		},
		{
			name: "row without student",
			rows: [][]any{
				{"Division", "CS"}, {"Level", 1}, {"Semester", 1}, {"Year", 2024}, {"Month", "June"},
				nil,
				{"student", "code", "grade"},
				{"S1", "C1", "A"},
				{"", "C2", "A"},
			},
			want: "row 9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("").ExtractEnrollments(workbook(t, "", tt.rows))
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrMalformedSheet)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExtract_EmptyAndGarbage(t *testing.T) {
	x := New("")

	_, err := x.ExtractCourses(nil)
	assert.ErrorIs(t, err, shared.ErrEmptyUpload)

	_, err = x.ExtractDivisions([]byte("not a workbook"))
	assert.ErrorIs(t, err, shared.ErrMalformedSheet)
}

func TestExtractDivisions(t *testing.T) {
	data := workbook(t, "", [][]any{
		{"Name", "Hours", "Private", "Group", "Department 1", "Department 2"},
		{"AI", 140, "yes", "no", "Computer Science", ""},
		{"Stats", 132, true, 1},
	})

	rows, err := New("").ExtractDivisions(data)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "AI", rows[0].Name)
	assert.Equal(t, 140, rows[0].Hours)
	assert.True(t, rows[0].Private)
	assert.False(t, rows[0].Group)
	assert.Equal(t, "Computer Science", rows[0].Department1)
	assert.Empty(t, rows[0].Department2)

	assert.True(t, rows[1].Private)
	assert.True(t, rows[1].Group)
}

func TestExtractDivisions_BadBoolean(t *testing.T) {
	data := workbook(t, "", [][]any{
		{"name", "hours", "private"},
		{"AI", 140, "maybe"},
	})

	_, err := New("").ExtractDivisions(data)
	assert.ErrorIs(t, err, shared.ErrMalformedSheet)
	assert.Contains(t, err.Error(), "row 2")
}

func TestExtractCourses_NamedSheet(t *testing.T) {
	data := workbook(t, "Courses", [][]any{
		{"code", "name", "lecture_hours", "practical_hours", "credit_hours", "level", "semester", "required", "division"},
		{" cs101 ", "Intro", 2, 2, 3, 1, 1, "true", "CS"},
		{"CS102", "Data", 2, 0, "3.0", 1, 2, "", "CS"},
	})

	rows, err := New("Courses").ExtractCourses(data)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "CS101", rows[0].Code)
	assert.True(t, rows[0].Required)
	assert.Equal(t, 3, rows[1].CreditHours)
	assert.False(t, rows[1].Required)
	assert.Equal(t, "CS", rows[1].Division)

	_, err = New("Missing").ExtractCourses(data)
	assert.ErrorIs(t, err, shared.ErrMalformedSheet)
}

func TestExtractCourses_FractionalHours(t *testing.T) {
	data := workbook(t, "", [][]any{
		{"code", "name", "credit_hours", "division"},
		{"CS101", "Intro", 2.5, "CS"},
	})

	_, err := New("").ExtractCourses(data)
	assert.ErrorIs(t, err, shared.ErrMalformedSheet)
	assert.Contains(t, err.Error(), "credit_hours")
}

func TestParseBool(t *testing.T) {
	for in, want := range map[string]bool{"": false, "No": false, "0": false, "YES": true, " true ": true, "1": true} {
		got, err := parseBool(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
