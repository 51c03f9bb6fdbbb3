package enrollment

// Headers is the key/value block that precedes the rows of an enrollment
// sheet. Term values apply to every row that does not override them.
type Headers struct {
	Division string `json:"division"`
	Term     Term   `json:"term"`
}

// Row is one normalized line of an enrollment sheet. Level and Semester are
// zero when the row does not override the header term.
type Row struct {
	SeatID   int     `json:"seat_id"`
	Student  string  `json:"student"`
	Code     string  `json:"code"`
	Course   string  `json:"course"`
	Mark     float64 `json:"mark"`
	FullMark float64 `json:"full_mark"`
	Grade    string  `json:"grade"`
	Points   float64 `json:"points"`
	Level    int     `json:"level,omitempty"`
	Semester int     `json:"semester,omitempty"`
}

// TermFor returns the header term with the row's overrides applied.
func (h Headers) TermFor(r Row) Term {
	t := h.Term
	if r.Level > 0 {
		t.Level = r.Level
	}
	if r.Semester > 0 {
		t.Semester = r.Semester
	}
	return t
}

// Sheet is an extracted enrollment workbook.
type Sheet struct {
	Headers Headers `json:"headers"`
	Rows    []Row   `json:"rows"`
}
