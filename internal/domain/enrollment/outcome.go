package enrollment

// Status is the per-row result of an enrollment import.
type Status string

const (
	StatusCreated         Status = "created"
	StatusDuplicate       Status = "duplicate"
	StatusCourseNotFound  Status = "course_not_found"
	StatusStudentNotFound Status = "student_not_found"
)

// Statuses lists every status in report order.
var Statuses = []Status{StatusCreated, StatusDuplicate, StatusCourseNotFound, StatusStudentNotFound}

// Outcome echoes an input row with its status.
type Outcome struct {
	Row     int    `json:"row"` // zero-based position in the input
	Seat    int    `json:"seat_id"`
	Student string `json:"student"`
	Code    string `json:"code"`
	Course  string `json:"course"`
	Status  Status `json:"status"`
}

// NewOutcome builds the outcome of the row at index i.
func NewOutcome(i int, r Row, status Status) Outcome {
	return Outcome{
		Row:     i,
		Seat:    r.SeatID,
		Student: r.Student,
		Code:    r.Code,
		Course:  r.Course,
		Status:  status,
	}
}

// Report holds one outcome per input row, in input order.
type Report []Outcome

// Summary counts outcomes per status. Every status is present.
func (r Report) Summary() map[Status]int {
	counts := make(map[Status]int, len(Statuses))
	for _, s := range Statuses {
		counts[s] = 0
	}
	for _, o := range r {
		counts[o.Status]++
	}
	return counts
}

// SummaryStrings is Summary keyed by plain strings, as events and metrics
// expect.
func (r Report) SummaryStrings() map[string]int {
	out := make(map[string]int, len(Statuses))
	for s, n := range r.Summary() {
		out[string(s)] = n
	}
	return out
}
