package query

import (
	"context"

	"github.com/alem-hub/registrar/internal/application/catalog"
	"github.com/alem-hub/registrar/internal/domain/access"
	"github.com/alem-hub/registrar/internal/domain/course"
	"github.com/alem-hub/registrar/internal/domain/division"
	"github.com/alem-hub/registrar/internal/domain/importrun"
	"github.com/alem-hub/registrar/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// ListCoursesQuery lists visible courses, optionally for one regulation.
type ListCoursesQuery struct {
	Actor        access.Actor
	RegulationID int64
}

// GetCourseQuery fetches one visible course.
type GetCourseQuery struct {
	Actor access.Actor
	ID    int64
}

// GetDivisionQuery fetches one visible division.
type GetDivisionQuery struct {
	Actor access.Actor
	ID    int64
}

// CatalogHandler serves course and division reads.
type CatalogHandler struct {
	catalog *catalog.Catalog
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(catalog *catalog.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListCourses executes ListCoursesQuery.
func (h *CatalogHandler) ListCourses(ctx context.Context, q ListCoursesQuery) ([]*course.Course, error) {
	if q.RegulationID < 0 {
		return nil, shared.WrapError("query", "Validate", shared.ErrInvalidID, "regulation_id must not be negative", nil)
	}
	return h.catalog.Courses(ctx, q.Actor, catalog.Filter{RegulationID: q.RegulationID})
}

// GetCourse executes GetCourseQuery.
func (h *CatalogHandler) GetCourse(ctx context.Context, q GetCourseQuery) (*course.Course, error) {
	return h.catalog.Course(ctx, q.Actor, q.ID)
}

// GetDivision executes GetDivisionQuery.
func (h *CatalogHandler) GetDivision(ctx context.Context, q GetDivisionQuery) (*division.Division, error) {
	return h.catalog.Division(ctx, q.Actor, q.ID)
}

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT REPORT QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetImportReportQuery fetches a stored run record.
type GetImportReportQuery struct {
	Actor access.Actor
	RunID string
}

// GetImportReportHandler handles GetImportReportQuery.
type GetImportReportHandler struct {
	reports importrun.ReportStore
}

// NewGetImportReportHandler creates a new GetImportReportHandler.
func NewGetImportReportHandler(reports importrun.ReportStore) *GetImportReportHandler {
	return &GetImportReportHandler{reports: reports}
}

// Handle returns the record when the actor started the run or is an
// administrator; otherwise the record is reported as not found.
func (h *GetImportReportHandler) Handle(ctx context.Context, q GetImportReportQuery) (*importrun.Record, error) {
	if q.RunID == "" {
		return nil, shared.ErrReportNotFound
	}
	rec, err := h.reports.Load(ctx, q.RunID)
	if err != nil {
		return nil, err
	}
	if !q.Actor.IsAdmin && rec.ActorID != q.Actor.ID {
		return nil, shared.ErrReportNotFound
	}
	return rec, nil
}
