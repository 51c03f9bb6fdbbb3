// Package spreadsheet extracts import rows from xlsx workbooks.
//
// Every sheet starts with a header row naming its columns; column order is
// free and header matching ignores case and surrounding spaces. Enrollment
// workbooks are preceded by a key/value block terminated by a blank row.
// Rows are returned in sheet order; blank rows are skipped.
package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"

	"github.com/alem-hub/registrar/internal/domain/course"
	"github.com/alem-hub/registrar/internal/domain/division"
	"github.com/alem-hub/registrar/internal/domain/enrollment"
	"github.com/alem-hub/registrar/internal/domain/shared"
)

// Column names.
const (
	colName        = "name"
	colHours       = "hours"
	colPrivate     = "private"
	colGroup       = "group"
	colDepartment1 = "department_1"
	colDepartment2 = "department_2"

	colCode           = "code"
	colLectureHours   = "lecture_hours"
	colPracticalHours = "practical_hours"
	colCreditHours    = "credit_hours"
	colLevel          = "level"
	colSemester       = "semester"
	colRequired       = "required"
	colDivision       = "division"

	colSeatID   = "seat_id"
	colStudent  = "student"
	colCourse   = "course"
	colMark     = "mark"
	colFullMark = "full_mark"
	colGrade    = "grade"
	colPoints   = "points"

	keyYear  = "year"
	keyMonth = "month"
)

// Extractor reads workbooks. It is safe for concurrent use.
type Extractor struct {
	sheet    string
	validate *validator.Validate
}

// New creates an extractor reading the named sheet, or the first sheet when
// sheet is empty.
func New(sheet string) *Extractor {
	return &Extractor{
		sheet:    sheet,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Records validated before conversion to domain rows
// ─────────────────────────────────────────────────────────────────────────────

type divisionRecord struct {
	Name  string `validate:"required,max=255"`
	Hours int    `validate:"gte=0"`
}

type courseRecord struct {
	Code           string `validate:"required,max=32"`
	Name           string `validate:"required,max=255"`
	LectureHours   int    `validate:"gte=0"`
	PracticalHours int    `validate:"gte=0"`
	CreditHours    int    `validate:"gte=0"`
	Level          int    `validate:"gte=0"`
	Semester       int    `validate:"gte=0"`
	Division       string `validate:"required"`
}

type enrollmentRecord struct {
	SeatID   int     `validate:"gte=0"`
	Student  string  `validate:"required"`
	Code     string  `validate:"required"`
	Mark     float64 `validate:"gte=0"`
	FullMark float64 `validate:"gte=0"`
	Points   float64 `validate:"gte=0"`
	Level    int     `validate:"gte=0"`
	Semester int     `validate:"gte=0"`
}

type headerRecord struct {
	Division string `validate:"required"`
	Level    int    `validate:"gt=0"`
	Semester int    `validate:"gt=0"`
	Year     int    `validate:"gte=1900,lte=9999"`
	Month    string `validate:"required"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Divisions
// ─────────────────────────────────────────────────────────────────────────────

// ExtractDivisions reads a divisions sheet.
func (x *Extractor) ExtractDivisions(data []byte) ([]division.Row, error) {
	rows, err := x.rows(data)
	if err != nil {
		return nil, err
	}

	t, err := newTable(rows, 0, colName, colHours)
	if err != nil {
		return nil, err
	}

	out := make([]division.Row, 0, len(t.body))
	for _, r := range t.body {
		hours, err := r.int(colHours)
		if err != nil {
			return nil, err
		}
		private, err := r.bool(colPrivate)
		if err != nil {
			return nil, err
		}
		group, err := r.bool(colGroup)
		if err != nil {
			return nil, err
		}

		rec := divisionRecord{Name: r.str(colName), Hours: hours}
		if err := x.check(r.line, rec); err != nil {
			return nil, err
		}

		out = append(out, division.Row{
			Name:        rec.Name,
			Hours:       rec.Hours,
			Private:     private,
			Group:       group,
			Department1: r.str(colDepartment1),
			Department2: r.str(colDepartment2),
		})
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Courses
// ─────────────────────────────────────────────────────────────────────────────

// ExtractCourses reads a courses sheet.
func (x *Extractor) ExtractCourses(data []byte) ([]course.Row, error) {
	rows, err := x.rows(data)
	if err != nil {
		return nil, err
	}

	t, err := newTable(rows, 0, colCode, colName, colCreditHours, colDivision)
	if err != nil {
		return nil, err
	}

	out := make([]course.Row, 0, len(t.body))
	for _, r := range t.body {
		var rec courseRecord
		rec.Code = r.str(colCode)
		rec.Name = r.str(colName)
		rec.Division = r.str(colDivision)

		ints := []struct {
			col string
			dst *int
		}{
			{colLectureHours, &rec.LectureHours},
			{colPracticalHours, &rec.PracticalHours},
			{colCreditHours, &rec.CreditHours},
			{colLevel, &rec.Level},
			{colSemester, &rec.Semester},
		}
		for _, f := range ints {
			v, err := r.int(f.col)
			if err != nil {
				return nil, err
			}
			*f.dst = v
		}
		required, err := r.bool(colRequired)
		if err != nil {
			return nil, err
		}

		if err := x.check(r.line, rec); err != nil {
			return nil, err
		}

		out = append(out, course.Row{
			Code:           course.NormalizeCode(rec.Code),
			Name:           rec.Name,
			LectureHours:   rec.LectureHours,
			PracticalHours: rec.PracticalHours,
			CreditHours:    rec.CreditHours,
			Level:          rec.Level,
			Semester:       rec.Semester,
			Required:       required,
			Division:       rec.Division,
		})
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Enrollments
// ─────────────────────────────────────────────────────────────────────────────

// ExtractEnrollments reads an enrollment workbook: the key/value header
// block, a blank row, then the enrollment table.
func (x *Extractor) ExtractEnrollments(data []byte) (*enrollment.Sheet, error) {
	rows, err := x.rows(data)
	if err != nil {
		return nil, err
	}

	headers, next, err := x.headerBlock(rows)
	if err != nil {
		return nil, err
	}

	t, err := newTable(rows, next, colStudent, colCode, colGrade)
	if err != nil {
		return nil, err
	}

	sheet := &enrollment.Sheet{Headers: headers, Rows: make([]enrollment.Row, 0, len(t.body))}
	for _, r := range t.body {
		var rec enrollmentRecord
		rec.Student = r.str(colStudent)
		rec.Code = r.str(colCode)

		if rec.SeatID, err = r.int(colSeatID); err != nil {
			return nil, err
		}
		if rec.Level, err = r.int(colLevel); err != nil {
			return nil, err
		}
		if rec.Semester, err = r.int(colSemester); err != nil {
			return nil, err
		}
		if rec.Mark, err = r.float(colMark); err != nil {
			return nil, err
		}
		if rec.FullMark, err = r.float(colFullMark); err != nil {
			return nil, err
		}
		if rec.Points, err = r.float(colPoints); err != nil {
			return nil, err
		}

		if err := x.check(r.line, rec); err != nil {
			return nil, err
		}

		sheet.Rows = append(sheet.Rows, enrollment.Row{
			SeatID:   rec.SeatID,
			Student:  rec.Student,
			Code:     course.NormalizeCode(rec.Code),
			Course:   r.str(colCourse),
			Mark:     rec.Mark,
			FullMark: rec.FullMark,
			Grade:    strings.ToUpper(r.str(colGrade)),
			Points:   rec.Points,
			Level:    rec.Level,
			Semester: rec.Semester,
		})
	}
	return sheet, nil
}

// headerBlock parses the key/value rows up to the first blank row and
// returns the index of the row after it.
func (x *Extractor) headerBlock(rows [][]string) (enrollment.Headers, int, error) {
	values := make(map[string]string)
	i := 0
	for ; i < len(rows); i++ {
		if blank(rows[i]) {
			if len(values) == 0 {
				continue // leading blank rows
			}
			break
		}
		key := normalizeHeader(cell(rows[i], 0))
		values[key] = strings.TrimSpace(cell(rows[i], 1))
	}
	if i >= len(rows) {
		return enrollment.Headers{}, 0, malformed(i+1, "missing blank row after the header block")
	}

	var rec headerRecord
	rec.Division = values[colDivision]
	rec.Month = values[keyMonth]
	for _, f := range []struct {
		key string
		dst *int
	}{
		{colLevel, &rec.Level},
		{colSemester, &rec.Semester},
		{keyYear, &rec.Year},
	} {
		v, err := parseInt(values[f.key])
		if err != nil {
			return enrollment.Headers{}, 0, fmt.Errorf("%w: header %s: %v", shared.ErrMalformedSheet, f.key, err)
		}
		*f.dst = v
	}
	if err := x.validate.Struct(rec); err != nil {
		return enrollment.Headers{}, 0, fmt.Errorf("%w: header block: %s", shared.ErrMalformedSheet, describe(err))
	}

	return enrollment.Headers{
		Division: rec.Division,
		Term: enrollment.Term{
			Level:    rec.Level,
			Semester: rec.Semester,
			Year:     rec.Year,
			Month:    rec.Month,
		},
	}, i + 1, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Workbook access
// ─────────────────────────────────────────────────────────────────────────────

func (x *Extractor) rows(data []byte) ([][]string, error) {
	if len(data) == 0 {
		return nil, shared.ErrEmptyUpload
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", shared.ErrMalformedSheet, err)
	}
	defer f.Close()

	name := x.sheet
	if name == "" {
		name = f.GetSheetName(0)
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", shared.ErrMalformedSheet, name, err)
	}
	return rows, nil
}

func (x *Extractor) check(line int, rec any) error {
	if err := x.validate.Struct(rec); err != nil {
		return malformed(line, describe(err))
	}
	return nil
}

// describe renders validator errors as "field rule" pairs.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", strings.ToLower(fe.Field()), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s is %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

func malformed(line int, msg string) error {
	return fmt.Errorf("%w: row %d: %s", shared.ErrMalformedSheet, line, msg)
}

// ─────────────────────────────────────────────────────────────────────────────
// Tables
// ─────────────────────────────────────────────────────────────────────────────

type table struct {
	columns map[string]int
	body    []tableRow
}

type tableRow struct {
	line    int // 1-based sheet row number
	cells   []string
	columns map[string]int
}

// newTable reads the header row at or after start and the non-blank rows
// below it. Every column in required must be present.
func newTable(rows [][]string, start int, required ...string) (*table, error) {
	for start < len(rows) && blank(rows[start]) {
		start++
	}
	if start >= len(rows) {
		return nil, fmt.Errorf("%w: header row not found", shared.ErrMalformedSheet)
	}

	columns := make(map[string]int, len(rows[start]))
	for i, h := range rows[start] {
		if name := normalizeHeader(h); name != "" {
			if _, dup := columns[name]; !dup {
				columns[name] = i
			}
		}
	}
	for _, col := range required {
		if _, ok := columns[col]; !ok {
			return nil, malformed(start+1, fmt.Sprintf("missing column %q", col))
		}
	}

	t := &table{columns: columns}
	for i := start + 1; i < len(rows); i++ {
		if blank(rows[i]) {
			continue
		}
		t.body = append(t.body, tableRow{line: i + 1, cells: rows[i], columns: columns})
	}
	return t, nil
}

func (r tableRow) str(col string) string {
	i, ok := r.columns[col]
	if !ok {
		return ""
	}
	return strings.TrimSpace(cell(r.cells, i))
}

func (r tableRow) int(col string) (int, error) {
	v, err := parseInt(r.str(col))
	if err != nil {
		return 0, malformed(r.line, fmt.Sprintf("%s: %v", col, err))
	}
	return v, nil
}

func (r tableRow) float(col string) (float64, error) {
	s := r.str(col)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, malformed(r.line, fmt.Sprintf("%s: %q is not a number", col, s))
	}
	return v, nil
}

func (r tableRow) bool(col string) (bool, error) {
	v, err := parseBool(r.str(col))
	if err != nil {
		return false, malformed(r.line, fmt.Sprintf("%s: %v", col, err))
	}
	return v, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Cell parsing
// ─────────────────────────────────────────────────────────────────────────────

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Join(strings.Fields(h), "_")
}

// parseInt accepts integral values, including "3.0" as spreadsheets render
// them. Empty is zero.
func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return int(f), nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "no", "0", "n":
		return false, nil
	case "true", "yes", "1", "y":
		return true, nil
	}
	return false, fmt.Errorf("%q is not a boolean", s)
}
