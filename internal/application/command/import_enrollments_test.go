package command

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/registrar/internal/application/catalog"
	"github.com/alem-hub/registrar/internal/application/resolver"
	"github.com/alem-hub/registrar/internal/domain/access"
	"github.com/alem-hub/registrar/internal/domain/course"
	"github.com/alem-hub/registrar/internal/domain/division"
	"github.com/alem-hub/registrar/internal/domain/enrollment"
	"github.com/alem-hub/registrar/internal/domain/importrun"
	"github.com/alem-hub/registrar/internal/domain/shared"
	"github.com/alem-hub/registrar/internal/domain/student"
	"github.com/alem-hub/registrar/internal/infrastructure/persistence/memory"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeExtractor struct {
	sheet     *enrollment.Sheet
	divisions []division.Row
	courses   []course.Row
	err       error
}

func (f fakeExtractor) ExtractEnrollments([]byte) (*enrollment.Sheet, error) { return f.sheet, f.err }
func (f fakeExtractor) ExtractDivisions([]byte) ([]division.Row, error)     { return f.divisions, f.err }
func (f fakeExtractor) ExtractCourses([]byte) ([]course.Row, error)         { return f.courses, f.err }

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

type memReports struct {
	mu   sync.Mutex
	recs map[string]*importrun.Record
}

func (m *memReports) Save(_ context.Context, rec *importrun.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recs == nil {
		m.recs = map[string]*importrun.Record{}
	}
	m.recs[rec.ID] = rec
	return nil
}

func (m *memReports) Load(_ context.Context, id string) (*importrun.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.recs[id]; ok {
		return rec, nil
	}
	return nil, shared.ErrReportNotFound
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, string) (func(), error) {
	return nil, shared.ErrImportInProgress
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixture
// ─────────────────────────────────────────────────────────────────────────────

type world struct {
	store     *memory.Store
	cs        *division.Division
	math      *division.Division
	amr       *student.Student
	sara      *student.Student
	cs101     *course.Course
	cs102     *course.Course
	admin     access.Actor
	reports   *memReports
	publisher *recordingPublisher
}

func newWorld(t *testing.T) *world {
	t.Helper()
	s := memory.NewStore()
	s.AddRegulation(1)

	w := &world{
		store:     s,
		cs:        &division.Division{Name: "CS", RegulationID: 1},
		math:      &division.Division{Name: "Math", RegulationID: 1},
		admin:     access.Actor{ID: "admin", IsAdmin: true},
		reports:   &memReports{},
		publisher: &recordingPublisher{},
	}
	require.NoError(t, s.AddDivision(w.cs))
	require.NoError(t, s.AddDivision(w.math))

	w.amr = &student.Student{Name: "Amr", DivisionID: w.cs.ID}
	w.sara = &student.Student{Name: "Sara", DivisionID: w.cs.ID}
	require.NoError(t, s.AddStudent(w.amr))
	require.NoError(t, s.AddStudent(w.sara))

	w.cs101 = &course.Course{Code: "CS101", CreditHours: 3, Required: true, DivisionIDs: []int64{w.cs.ID}}
	w.cs102 = &course.Course{Code: "CS102", CreditHours: 2, DivisionIDs: []int64{w.cs.ID}}
	s.AddCourse(w.cs101)
	s.AddCourse(w.cs102)
	return w
}

func (w *world) handler(ex Extractor) *ImportEnrollmentsHandler {
	res := resolver.New(w.store.Divisions(), w.store.Students(),
		resolver.DefaultCourseStrategies(w.store.Courses(), true)...)
	cat := catalog.New(w.store.Courses(), w.store.Divisions())
	return NewImportEnrollmentsHandler(ex, res, cat, w.store.Enrollments(), w.store, RunDeps{
		Reports:   w.reports,
		Publisher: w.publisher,
	})
}

var term = enrollment.Term{Level: 1, Semester: 1, Year: 2024, Month: "June"}

func sheetOf(rows ...enrollment.Row) *enrollment.Sheet {
	return &enrollment.Sheet{
		Headers: enrollment.Headers{Division: "CS", Term: term},
		Rows:    rows,
	}
}

func row(studentName, code, grade string, points float64) enrollment.Row {
	return enrollment.Row{Student: studentName, Code: code, Course: code, Grade: grade, Points: points}
}

func statuses(r enrollment.Report) []enrollment.Status {
	out := make([]enrollment.Status, len(r))
	for i, o := range r {
		out[i] = o.Status
	}
	return out
}

var file = []byte("workbook")

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestImportEnrollments_AllCreated(t *testing.T) {
	w := newWorld(t)
	sheet := sheetOf(
		row("Amr", "CS101", "A", 4),
		row("Amr", "CS102", "B", 3),
		row("Sara", "CS101", "C", 2),
	)

	res, err := w.handler(fakeExtractor{sheet: sheet}).Handle(context.Background(),
		ImportEnrollmentsCommand{Actor: w.admin, File: file, RunID: "run-1"})
	require.NoError(t, err)

	assert.Equal(t, []enrollment.Status{
		enrollment.StatusCreated, enrollment.StatusCreated, enrollment.StatusCreated,
	}, statuses(res.Report))
	assert.Equal(t, 3, w.store.Count())
	assert.Equal(t, 3, res.Summary[enrollment.StatusCreated])

	// One finalization per student block.
	amr, err := w.store.Students().GetByID(context.Background(), w.amr.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, amr.Standing.AttemptedHours)
	assert.Equal(t, "3.6", amr.Standing.GPA.String())

	sara, err := w.store.Students().GetByID(context.Background(), w.sara.ID)
	require.NoError(t, err)
	assert.Equal(t, "2", sara.Standing.GPA.String())

	rec, err := w.reports.Load(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, importrun.StatusCompleted, rec.Status)
	assert.Equal(t, 3, rec.Rows)
	assert.Equal(t, []shared.EventType{shared.EventImportCompleted}, w.publisher.types())
}

func TestImportEnrollments_ExistingEnrollmentIsDuplicate(t *testing.T) {
	w := newWorld(t)
	require.NoError(t, w.store.AddEnrollment(&enrollment.Enrollment{
		StudentID: w.amr.ID, CourseID: w.cs101.ID, Term: term, Grade: "A",
	}))
	sheet := sheetOf(
		row("Amr", "CS101", "A", 4),
		row("Amr", "CS102", "B", 3),
		row("Sara", "CS101", "C", 2),
	)

	res, err := w.handler(fakeExtractor{sheet: sheet}).Handle(context.Background(),
		ImportEnrollmentsCommand{Actor: w.admin, File: file})
	require.NoError(t, err)

	assert.Equal(t, []enrollment.Status{
		enrollment.StatusDuplicate, enrollment.StatusCreated, enrollment.StatusCreated,
	}, statuses(res.Report))
	assert.Equal(t, 3, w.store.Count())
}

func TestImportEnrollments_RerunIsAllDuplicates(t *testing.T) {
	w := newWorld(t)
	sheet := sheetOf(
		row("Amr", "CS101", "A", 4),
		row("Sara", "CS102", "B", 3),
	)
	h := w.handler(fakeExtractor{sheet: sheet})

	_, err := h.Handle(context.Background(), ImportEnrollmentsCommand{Actor: w.admin, File: file})
	require.NoError(t, err)

	res, err := h.Handle(context.Background(), ImportEnrollmentsCommand{Actor: w.admin, File: file})
	require.NoError(t, err)
	assert.Equal(t, []enrollment.Status{enrollment.StatusDuplicate, enrollment.StatusDuplicate}, statuses(res.Report))
	assert.Equal(t, 2, w.store.Count())
}

func TestImportEnrollments_RepeatedRowInSameSheet(t *testing.T) {
	w := newWorld(t)
	sheet := sheetOf(
		row("Amr", "CS101", "A", 4),
		row("Amr", "CS101", "A", 4),
	)

	res, err := w.handler(fakeExtractor{sheet: sheet}).Handle(context.Background(),
		ImportEnrollmentsCommand{Actor: w.admin, File: file})
	require.NoError(t, err)

	assert.Equal(t, []enrollment.Status{enrollment.StatusCreated, enrollment.StatusDuplicate}, statuses(res.Report))
	assert.Equal(t, 1, w.store.Count())
}

func TestImportEnrollments_RowTermOverrideIsNotDuplicate(t *testing.T) {
	w := newWorld(t)
	retake := row("Amr", "CS101", "A", 4)
	retake.Semester = 2
	sheet := sheetOf(row("Amr", "CS101", "F", 0), retake)

	res, err := w.handler(fakeExtractor{sheet: sheet}).Handle(context.Background(),
		ImportEnrollmentsCommand{Actor: w.admin, File: file})
	require.NoError(t, err)
	assert.Equal(t, []enrollment.Status{enrollment.StatusCreated, enrollment.StatusCreated}, statuses(res.Report))
}

func TestImportEnrollments_UnknownStudentMarksWholeBlock(t *testing.T) {
	w := newWorld(t)
	sheet := sheetOf(
		row("Ghost", "CS101", "A", 4),
		row("Ghost", "CS102", "A", 4),
		row("Sara", "CS101", "B", 3),
	)

	res, err := w.handler(fakeExtractor{sheet: sheet}).Handle(context.Background(),
		ImportEnrollmentsCommand{Actor: w.admin, File: file})
	require.NoError(t, err)

	assert.Equal(t, []enrollment.Status{
		enrollment.StatusStudentNotFound, enrollment.StatusStudentNotFound, enrollment.StatusCreated,
	}, statuses(res.Report))
}

func TestImportEnrollments_UnknownCourse(t *testing.T) {
	w := newWorld(t)
	sheet := sheetOf(row("Amr", "XX999", "A", 4), row("Amr", "CS101", "A", 4))

	res, err := w.handler(fakeExtractor{sheet: sheet}).Handle(context.Background(),
		ImportEnrollmentsCommand{Actor: w.admin, File: file})
	require.NoError(t, err)
	assert.Equal(t, []enrollment.Status{enrollment.StatusCourseNotFound, enrollment.StatusCreated}, statuses(res.Report))
}

func TestImportEnrollments_CourseOutsideScopeIsNotFound(t *testing.T) {
	w := newWorld(t)
	// MA101 exists only in Math; the fallback finds it but the viewer cannot see Math.
	w.store.AddCourse(&course.Course{Code: "MA101", DivisionIDs: []int64{w.math.ID}})
	viewer := access.Actor{ID: "viewer", Divisions: []int64{w.cs.ID}}
	sheet := sheetOf(row("Amr", "MA101", "A", 4))

	res, err := w.handler(fakeExtractor{sheet: sheet}).Handle(context.Background(),
		ImportEnrollmentsCommand{Actor: viewer, File: file})
	require.NoError(t, err)
	assert.Equal(t, []enrollment.Status{enrollment.StatusCourseNotFound}, statuses(res.Report))

	res, err = w.handler(fakeExtractor{sheet: sheet}).Handle(context.Background(),
		ImportEnrollmentsCommand{Actor: w.admin, File: file})
	require.NoError(t, err)
	assert.Equal(t, []enrollment.Status{enrollment.StatusCreated}, statuses(res.Report))
}

func TestImportEnrollments_DivisionOutsideScopeFailsRun(t *testing.T) {
	w := newWorld(t)
	viewer := access.Actor{ID: "viewer", Divisions: []int64{w.math.ID}}

	_, err := w.handler(fakeExtractor{sheet: sheetOf(row("Amr", "CS101", "A", 4))}).Handle(context.Background(),
		ImportEnrollmentsCommand{Actor: viewer, File: file})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrDivisionNotFound)
	assert.Equal(t, 0, w.store.Count())
	assert.Equal(t, []shared.EventType{shared.EventImportFailed}, w.publisher.types())
}

func TestImportEnrollments_CommitFailureWritesNothing(t *testing.T) {
	w := newWorld(t)
	w.store.FailNextCommit(errors.New("could not serialize access"))
	sheet := sheetOf(
		row("Amr", "CS101", "A", 4),
		row("Sara", "CS101", "B", 3),
	)

	res, err := w.handler(fakeExtractor{sheet: sheet}).Handle(context.Background(),
		ImportEnrollmentsCommand{Actor: w.admin, File: file, RunID: "run-e"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, shared.IsTransactionFailure(err))
	assert.Equal(t, 0, w.store.Count())

	rec, err := w.reports.Load(context.Background(), "run-e")
	require.NoError(t, err)
	assert.Equal(t, importrun.StatusFailed, rec.Status)
}

func TestImportEnrollments_NonContiguousStudentKeepsStanding(t *testing.T) {
	w := newWorld(t)
	sheet := sheetOf(
		row("Amr", "CS101", "A", 4),
		row("Sara", "CS101", "B", 3),
		row("Amr", "CS102", "B", 3),
	)

	res, err := w.handler(fakeExtractor{sheet: sheet}).Handle(context.Background(),
		ImportEnrollmentsCommand{Actor: w.admin, File: file})
	require.NoError(t, err)
	assert.Len(t, res.Report, 3)

	amr, err := w.store.Students().GetByID(context.Background(), w.amr.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, amr.Standing.AttemptedHours)
	assert.Equal(t, "3.6", amr.Standing.GPA.String())
}

func TestImportEnrollments_ReportMatchesRowCount(t *testing.T) {
	w := newWorld(t)
	sheet := sheetOf(
		row("Ghost", "CS101", "A", 4),
		row("Amr", "NOPE", "A", 4),
		row("Amr", "CS101", "A", 4),
		row("Amr", "CS101", "A", 4),
		row("Sara", "CS102", "F", 0),
	)

	res, err := w.handler(fakeExtractor{sheet: sheet}).Handle(context.Background(),
		ImportEnrollmentsCommand{Actor: w.admin, File: file})
	require.NoError(t, err)
	require.Len(t, res.Report, len(sheet.Rows))
	for i, o := range res.Report {
		assert.Equal(t, i, o.Row)
		assert.Equal(t, sheet.Rows[i].Student, o.Student)
	}
}

func TestImportEnrollments_InvalidInput(t *testing.T) {
	w := newWorld(t)

	_, err := w.handler(fakeExtractor{}).Handle(context.Background(), ImportEnrollmentsCommand{Actor: w.admin})
	assert.ErrorIs(t, err, shared.ErrEmptyUpload)

	bad := sheetOf(row("Amr", "CS101", "A", 4))
	bad.Headers.Term.Year = 0
	_, err = w.handler(fakeExtractor{sheet: bad}).Handle(context.Background(),
		ImportEnrollmentsCommand{Actor: w.admin, File: file})
	assert.True(t, shared.IsValidation(err))

	_, err = w.handler(fakeExtractor{err: shared.ErrMalformedSheet}).Handle(context.Background(),
		ImportEnrollmentsCommand{Actor: w.admin, File: file})
	assert.ErrorIs(t, err, shared.ErrMalformedSheet)
}

func TestImportEnrollments_HeldLockRejectsRun(t *testing.T) {
	w := newWorld(t)
	h := w.handler(fakeExtractor{sheet: sheetOf(row("Amr", "CS101", "A", 4))})
	h.deps.Lock = heldLock{}

	_, err := h.Handle(context.Background(), ImportEnrollmentsCommand{Actor: w.admin, File: file})
	assert.ErrorIs(t, err, shared.ErrImportInProgress)
	assert.Equal(t, 0, w.store.Count())
}

func TestDeduplicator_StagesKeys(t *testing.T) {
	w := newWorld(t)
	d := NewDeduplicator(w.store.Enrollments())
	headers := enrollment.Headers{Division: "CS", Term: term}
	r := row("Amr", "CS101", "A", 4)

	e, err := d.FindOrReject(context.Background(), headers, r, w.amr.ID, w.cs101.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, term, e.Term)
	assert.Equal(t, 1, d.Staged())

	_, err = d.FindOrReject(context.Background(), headers, r, w.amr.ID, w.cs101.ID)
	assert.ErrorIs(t, err, enrollment.ErrAlreadyExists)

	// Staging is not persistence.
	assert.Equal(t, 0, w.store.Count())
}

// interleavedCommit runs another import to completion right before
// delegating, as if that run had committed while this one was reconciling.
type interleavedCommit struct {
	enrollment.UnitOfWork
	before func()
}

func (u *interleavedCommit) Commit(ctx context.Context, batch enrollment.Batch) error {
	if f := u.before; f != nil {
		u.before = nil
		f()
	}
	return u.UnitOfWork.Commit(ctx, batch)
}

func TestImportEnrollments_InterleavedRunsKeepBothContributions(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	other := w.handler(fakeExtractor{sheet: sheetOf(row("Amr", "CS102", "B", 3))})

	h := w.handler(fakeExtractor{sheet: sheetOf(row("Amr", "CS101", "A", 4))})
	h.uow = &interleavedCommit{UnitOfWork: w.store, before: func() {
		_, err := other.Handle(ctx, ImportEnrollmentsCommand{Actor: w.admin, File: []byte("second")})
		require.NoError(t, err)
	}}

	_, err := h.Handle(ctx, ImportEnrollmentsCommand{Actor: w.admin, File: []byte("first")})
	require.NoError(t, err)

	assert.Equal(t, 2, w.store.Count())
	amr, err := w.store.Students().GetByID(ctx, w.amr.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, amr.Standing.AttemptedHours)
	assert.Equal(t, 5, amr.Standing.EarnedHours)
	assert.Equal(t, "3.6", amr.Standing.GPA.String())
}

func reconcileSheet(t *testing.T, w *world, sheet *enrollment.Sheet) *reconciliation {
	t.Helper()
	h := w.handler(fakeExtractor{sheet: sheet})
	r, err := beginRun(context.Background(), h.deps, shared.ImportEnrollments, "", w.admin, file)
	require.NoError(t, err)
	defer r.release()

	rec, err := h.reconcile(context.Background(), r, w.admin, sheet)
	require.NoError(t, err)
	return rec
}

func TestReconcile_FinalizesOncePerBlock(t *testing.T) {
	w := newWorld(t)
	// Amr, Amr, Sara: block ends after row 2 and after row 3.
	sheet := sheetOf(
		row("Amr", "CS101", "A", 4),
		row("Amr", "CS102", "B", 3),
		row("Sara", "CS101", "C", 2),
	)

	rec := reconcileSheet(t, w, sheet)
	assert.Equal(t, []string{"Amr", "Sara"}, rec.blockEnds)
	assert.Len(t, rec.blockEnds, len(enrollment.Group(sheet.Rows)))
	assert.Len(t, rec.batch.Standings, 2)
}

func TestReconcile_NonContiguousStudentFinalizesTwiceStagesOnce(t *testing.T) {
	w := newWorld(t)
	sheet := sheetOf(
		row("Amr", "CS101", "A", 4),
		row("Sara", "CS101", "B", 3),
		row("Amr", "CS102", "B", 3),
	)

	rec := reconcileSheet(t, w, sheet)
	assert.Equal(t, []string{"Amr", "Sara", "Amr"}, rec.blockEnds)
	require.Len(t, rec.batch.Standings, 2)
	assert.Equal(t, w.amr.ID, rec.batch.Standings[0].StudentID)
	assert.Equal(t, 5, rec.batch.Standings[0].Delta.AttemptedHours)
}

func TestReconcile_DuplicateOnlyBlockStagesNoStanding(t *testing.T) {
	w := newWorld(t)
	require.NoError(t, w.store.AddEnrollment(&enrollment.Enrollment{
		StudentID: w.sara.ID, CourseID: w.cs101.ID, Term: term, Grade: "B",
	}))
	sheet := sheetOf(
		row("Amr", "CS101", "A", 4),
		row("Sara", "CS101", "B", 3),
		row("Ghost", "CS101", "B", 3),
	)

	rec := reconcileSheet(t, w, sheet)
	assert.Equal(t, []string{"Amr", "Sara", "Ghost"}, rec.blockEnds)
	require.Len(t, rec.batch.Standings, 1)
	assert.Equal(t, w.amr.ID, rec.batch.Standings[0].StudentID)
}
