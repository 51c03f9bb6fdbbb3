package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/registrar/internal/application/catalog"
	"github.com/alem-hub/registrar/internal/application/resolver"
	"github.com/alem-hub/registrar/internal/domain/access"
	"github.com/alem-hub/registrar/internal/domain/course"
	"github.com/alem-hub/registrar/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT COURSES COMMAND
// Creates courses from a workbook, each linked to the division named on its
// row. The division is required and must be visible to the actor.
// ══════════════════════════════════════════════════════════════════════════════

// ImportCoursesCommand contains the upload.
type ImportCoursesCommand struct {
	Actor access.Actor
	File  []byte
	RunID string
}

// Validate validates the command.
func (c ImportCoursesCommand) Validate() error {
	if len(c.File) == 0 {
		return shared.ErrEmptyUpload
	}
	return nil
}

// ImportCoursesResult echoes the created courses.
type ImportCoursesResult struct {
	RunID   string           `json:"run_id"`
	Courses []*course.Course `json:"courses"`
}

// ImportCoursesHandler handles ImportCoursesCommand.
type ImportCoursesHandler struct {
	extractor Extractor
	resolver  *resolver.Resolver
	catalog   *catalog.Catalog
	courses   course.Repository
	deps      RunDeps
}

// NewImportCoursesHandler creates a new ImportCoursesHandler.
func NewImportCoursesHandler(
	extractor Extractor,
	resolver *resolver.Resolver,
	catalog *catalog.Catalog,
	courses course.Repository,
	deps RunDeps,
) *ImportCoursesHandler {
	return &ImportCoursesHandler{
		extractor: extractor,
		resolver:  resolver,
		catalog:   catalog,
		courses:   courses,
		deps:      deps.withDefaults(),
	}
}

// Handle executes the import.
func (h *ImportCoursesHandler) Handle(ctx context.Context, cmd ImportCoursesCommand) (*ImportCoursesResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("import_courses: %w", err)
	}

	r, err := beginRun(ctx, h.deps, shared.ImportCourses, cmd.RunID, cmd.Actor, cmd.File)
	if err != nil {
		return nil, err
	}

	rows, err := h.extractor.ExtractCourses(cmd.File)
	if err != nil {
		return nil, r.fail(ctx, fmt.Errorf("import_courses: extract: %w", err))
	}

	divisionIDs := make(map[string]int64)
	courses := make([]*course.Course, 0, len(rows))
	for i, row := range rows {
		id, ok := divisionIDs[row.Division]
		if !ok {
			d, err := h.resolver.ResolveDivision(ctx, row.Division)
			if err == nil {
				err = h.catalog.CheckDivision(cmd.Actor, d)
			}
			if err != nil {
				return nil, r.fail(ctx, fmt.Errorf("import_courses: row %d: division %q: %w", i+1, row.Division, err))
			}
			id = d.ID
			divisionIDs[row.Division] = id
		}

		courses = append(courses, &course.Course{
			Code:           course.NormalizeCode(row.Code),
			Name:           row.Name,
			LectureHours:   row.LectureHours,
			PracticalHours: row.PracticalHours,
			CreditHours:    row.CreditHours,
			Level:          row.Level,
			Semester:       row.Semester,
			Required:       row.Required,
			DivisionIDs:    []int64{id},
		})
	}

	if err := h.courses.CreateMany(ctx, courses); err != nil {
		return nil, r.fail(ctx, asTransactionFailure("ImportCourses", err))
	}

	result := &ImportCoursesResult{RunID: r.id, Courses: courses}
	r.complete(ctx, len(courses), map[string]int{"created": len(courses)}, result)
	return result, nil
}
