package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/registrar/internal/application/catalog"
	"github.com/alem-hub/registrar/internal/application/resolver"
	"github.com/alem-hub/registrar/internal/domain/access"
	"github.com/alem-hub/registrar/internal/domain/course"
	"github.com/alem-hub/registrar/internal/domain/division"
	"github.com/alem-hub/registrar/internal/domain/enrollment"
	"github.com/alem-hub/registrar/internal/domain/shared"
	"github.com/alem-hub/registrar/internal/domain/student"
	"github.com/alem-hub/registrar/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT ENROLLMENTS COMMAND
// Reconciles an enrollment workbook against storage. Rows are processed in
// order, grouped into per-student blocks; every row gets exactly one outcome
// and all writes are committed in a single transaction at the end.
// ══════════════════════════════════════════════════════════════════════════════

// ImportEnrollmentsCommand contains the upload to reconcile.
type ImportEnrollmentsCommand struct {
	Actor access.Actor
	File  []byte

	// RunID correlates logs, events and the stored report. Generated when empty.
	RunID string
}

// Validate validates the command.
func (c ImportEnrollmentsCommand) Validate() error {
	if len(c.File) == 0 {
		return shared.ErrEmptyUpload
	}
	return nil
}

// ImportEnrollmentsResult is the committed outcome of a run.
type ImportEnrollmentsResult struct {
	RunID    string                    `json:"run_id"`
	Division *division.Division        `json:"division"`
	Report   enrollment.Report         `json:"report"`
	Summary  map[enrollment.Status]int `json:"summary"`
}

// ImportEnrollmentsHandler handles ImportEnrollmentsCommand.
type ImportEnrollmentsHandler struct {
	extractor   Extractor
	resolver    *resolver.Resolver
	catalog     *catalog.Catalog
	enrollments enrollment.Repository
	uow         enrollment.UnitOfWork
	deps        RunDeps
}

// NewImportEnrollmentsHandler creates a new ImportEnrollmentsHandler.
func NewImportEnrollmentsHandler(
	extractor Extractor,
	resolver *resolver.Resolver,
	catalog *catalog.Catalog,
	enrollments enrollment.Repository,
	uow enrollment.UnitOfWork,
	deps RunDeps,
) *ImportEnrollmentsHandler {
	return &ImportEnrollmentsHandler{
		extractor:   extractor,
		resolver:    resolver,
		catalog:     catalog,
		enrollments: enrollments,
		uow:         uow,
		deps:        deps.withDefaults(),
	}
}

// Handle executes the import. It returns either a complete report of a
// committed run or a single run-level error with nothing written.
func (h *ImportEnrollmentsHandler) Handle(ctx context.Context, cmd ImportEnrollmentsCommand) (*ImportEnrollmentsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("import_enrollments: %w", err)
	}

	r, err := beginRun(ctx, h.deps, shared.ImportEnrollments, cmd.RunID, cmd.Actor, cmd.File)
	if err != nil {
		return nil, err
	}

	sheet, err := h.extractor.ExtractEnrollments(cmd.File)
	if err != nil {
		return nil, r.fail(ctx, fmt.Errorf("import_enrollments: extract: %w", err))
	}

	rec, err := h.reconcile(ctx, r, cmd.Actor, sheet)
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	if err := h.uow.Commit(ctx, rec.batch); err != nil {
		return nil, r.fail(ctx, asTransactionFailure("ImportEnrollments", err))
	}

	result := &ImportEnrollmentsResult{
		RunID:    r.id,
		Division: rec.division,
		Report:   rec.report,
		Summary:  rec.report.Summary(),
	}
	r.complete(ctx, len(rec.report), rec.report.SummaryStrings(), result)
	return result, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Reconciliation
// ─────────────────────────────────────────────────────────────────────────────

// reconciliation is the state of one run. Nothing in it outlives Handle.
type reconciliation struct {
	h        *ImportEnrollmentsHandler
	log      *logger.Logger
	actor    access.Actor
	headers  enrollment.Headers
	division *division.Division
	dedup    *Deduplicator

	// courses caches resolution per code; a nil entry is a cached miss.
	courses map[string]*course.Course

	// students holds every student resolved in this run, keyed by id, so a
	// student that reappears later continues from its staged delta.
	students map[string]*stagedStudent
	order    []string

	// blockEnds lists the student of every closed block, in order.
	blockEnds []string

	batch  enrollment.Batch
	report enrollment.Report
}

func (h *ImportEnrollmentsHandler) reconcile(ctx context.Context, r *run, actor access.Actor, sheet *enrollment.Sheet) (*reconciliation, error) {
	if err := sheet.Headers.Term.Validate(); err != nil {
		return nil, fmt.Errorf("import_enrollments: headers: %w", err)
	}

	div, err := h.resolver.ResolveDivision(ctx, sheet.Headers.Division)
	if err == nil {
		err = h.catalog.CheckDivision(actor, div)
	}
	if err != nil {
		return nil, fmt.Errorf("import_enrollments: division %q: %w", sheet.Headers.Division, err)
	}

	rec := &reconciliation{
		h:        h,
		log:      r.log.With(logger.DivisionID(div.ID)),
		actor:    actor,
		headers:  sheet.Headers,
		division: div,
		dedup:    NewDeduplicator(h.enrollments),
		courses:  make(map[string]*course.Course),
		students: make(map[string]*stagedStudent),
		report:   make(enrollment.Report, 0, len(sheet.Rows)),
	}

	var (
		block   enrollment.Block
		current *stagedStudent
	)
	for i, row := range sheet.Rows {
		next, closed := block.Advance(i, row.Student)
		if closed != nil {
			rec.finalize(*closed, current)
		}
		if next.Start == i {
			current, err = rec.openBlock(ctx, next)
			if err != nil {
				return nil, err
			}
		}
		block = next

		status, err := rec.reconcileRow(ctx, row, current)
		if err != nil {
			return nil, fmt.Errorf("import_enrollments: row %d: %w", i+1, err)
		}
		rec.report = append(rec.report, enrollment.NewOutcome(i, row, status))
	}
	if last := block.Close(); last != nil {
		rec.finalize(*last, current)
	}

	for _, id := range rec.order {
		if st := rec.students[id]; st.staged {
			rec.batch.Standings = append(rec.batch.Standings, student.StandingUpdate{
				StudentID: id,
				Delta:     st.delta,
			})
		}
	}
	return rec, nil
}

// stagedStudent is a resolved student and what this run adds to its
// standing. delta starts from zero; the stored standing is only read again
// inside the commit.
type stagedStudent struct {
	student *student.Student
	delta   student.Standing
	created int
	staged  bool
}

// openBlock resolves the student of a new block. A missing student is not an
// error: every row of the block reports student_not_found.
func (rec *reconciliation) openBlock(ctx context.Context, b enrollment.Block) (*stagedStudent, error) {
	st, err := rec.h.resolver.ResolveStudent(ctx, b.Student, rec.division.ID)
	if errors.Is(err, shared.ErrStudentNotFound) {
		rec.log.Debug("student not found", logger.String("student", b.Student))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("import_enrollments: resolve student %q: %w", b.Student, err)
	}

	if staged, ok := rec.students[st.ID]; ok {
		return staged, nil
	}
	staged := &stagedStudent{student: st}
	rec.students[st.ID] = staged
	rec.order = append(rec.order, st.ID)
	return staged, nil
}

// finalize runs at block end. A student whose rows were all rejected has
// nothing to write and is left out of the batch.
func (rec *reconciliation) finalize(b enrollment.Block, st *stagedStudent) {
	rec.blockEnds = append(rec.blockEnds, b.Student)
	if st == nil || st.created == 0 {
		return
	}
	st.delta = student.Finalize(st.delta)
	st.staged = true
}

func (rec *reconciliation) reconcileRow(ctx context.Context, row enrollment.Row, st *stagedStudent) (enrollment.Status, error) {
	if st == nil {
		return enrollment.StatusStudentNotFound, nil
	}

	crs, err := rec.course(ctx, row.Code)
	if err != nil {
		return "", err
	}
	if crs == nil {
		return enrollment.StatusCourseNotFound, nil
	}

	e, err := rec.dedup.FindOrReject(ctx, rec.headers, row, st.student.ID, crs.ID)
	if errors.Is(err, enrollment.ErrAlreadyExists) {
		return enrollment.StatusDuplicate, nil
	}
	if err != nil {
		return "", err
	}

	rec.batch.Enrollments = append(rec.batch.Enrollments, e)
	st.created++
	st.delta = student.Accumulate(st.delta, student.Contribution{
		Points:      e.Points,
		CreditHours: crs.CreditHours,
		Level:       e.Term.Level,
		Passed:      e.Passed(),
	})
	return enrollment.StatusCreated, nil
}

// course resolves a code once per run. Courses the actor may not see are
// cached as misses.
func (rec *reconciliation) course(ctx context.Context, code string) (*course.Course, error) {
	code = course.NormalizeCode(code)
	if c, ok := rec.courses[code]; ok {
		return c, nil
	}

	c, err := rec.h.resolver.ResolveCourse(ctx, code, rec.division.ID)
	switch {
	case errors.Is(err, shared.ErrCourseNotFound):
		c = nil
	case err != nil:
		return nil, fmt.Errorf("resolve course %q: %w", code, err)
	case rec.h.catalog.CheckCourse(rec.actor, c) != nil:
		rec.log.Debug("course outside actor scope", logger.String("code", code))
		c = nil
	}

	rec.courses[code] = c
	return c, nil
}
