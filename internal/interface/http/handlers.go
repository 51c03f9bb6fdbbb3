package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/alem-hub/registrar/internal/application/command"
	"github.com/alem-hub/registrar/internal/application/query"
	"github.com/alem-hub/registrar/internal/domain/access"
	"github.com/alem-hub/registrar/internal/domain/shared"
	"github.com/alem-hub/registrar/pkg/logger"
)

// uploadField is the multipart field carrying the workbook.
const uploadField = "file"

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports every registered check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]string{
			"status":  "healthy",
			"version": s.config.Version,
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// handleReady handles the readiness check.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if status := s.deps.HealthChecker.Check(r.Context()); !status.Ready {
			writeJSONError(w, r, http.StatusServiceUnavailable, "not_ready", status.Message)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness check.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// UPLOAD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleUploadEnrollments handles POST /api/v1/uploads/enrollments
func (s *Server) handleUploadEnrollments(w http.ResponseWriter, r *http.Request) {
	actor, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	result, err := s.deps.ImportEnrollments.Handle(r.Context(), command.ImportEnrollmentsCommand{
		Actor: actor,
		File:  data,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, result, &ResponseMeta{TotalCount: len(result.Report)})
}

// handleUploadDivisions handles POST /api/v1/uploads/divisions?regulation_id=N
func (s *Server) handleUploadDivisions(w http.ResponseWriter, r *http.Request) {
	regulationID, err := queryInt64(r, "regulation_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	actor, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	result, err := s.deps.ImportDivisions.Handle(r.Context(), command.ImportDivisionsCommand{
		Actor:        actor,
		File:         data,
		RegulationID: regulationID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusCreated, result, &ResponseMeta{TotalCount: len(result.Divisions)})
}

// handleUploadCourses handles POST /api/v1/uploads/courses
func (s *Server) handleUploadCourses(w http.ResponseWriter, r *http.Request) {
	actor, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	result, err := s.deps.ImportCourses.Handle(r.Context(), command.ImportCoursesCommand{
		Actor: actor,
		File:  data,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusCreated, result, &ResponseMeta{TotalCount: len(result.Courses)})
}

// readUpload returns the authenticated actor and the uploaded workbook bytes.
// It writes the error response itself and reports ok=false on failure.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (access.Actor, []byte, bool) {
	actor, ok := access.FromContext(r.Context())
	if !ok {
		writeJSONError(w, r, http.StatusUnauthorized, "unauthorized", "no authenticated actor")
		return access.Actor{}, nil, false
	}

	file, _, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "uploaded file is too large")
		default:
			writeJSONError(w, r, http.StatusBadRequest, "missing_file", "multipart field \"file\" is required")
		}
		return access.Actor{}, nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, err)
		return access.Actor{}, nil, false
	}
	return actor, data, true
}

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT REPORT HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleGetImport handles GET /api/v1/imports/{id}
func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	actor, _ := access.FromContext(r.Context())

	rec, err := s.deps.ImportReports.Handle(r.Context(), query.GetImportReportQuery{
		Actor: actor,
		RunID: mux.Vars(r)["id"],
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListCourses handles GET /api/v1/courses?regulation_id=N
func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	actor, _ := access.FromContext(r.Context())

	regulationID, err := queryInt64(r, "regulation_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	courses, err := s.deps.Catalog.ListCourses(r.Context(), query.ListCoursesQuery{
		Actor:        actor,
		RegulationID: regulationID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, courses, &ResponseMeta{TotalCount: len(courses)})
}

// handleGetCourse handles GET /api/v1/courses/{id}
func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	actor, _ := access.FromContext(r.Context())

	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	crs, err := s.deps.Catalog.GetCourse(r.Context(), query.GetCourseQuery{Actor: actor, ID: id})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, crs)
}

// handleGetDivision handles GET /api/v1/divisions/{id}
func (s *Server) handleGetDivision(w http.ResponseWriter, r *http.Request) {
	actor, _ := access.FromContext(r.Context())

	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	div, err := s.deps.Catalog.GetDivision(r.Context(), query.GetDivisionQuery{Actor: actor, ID: id})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, div)
}

// handleMissingRequired handles GET /api/v1/divisions/{id}/missing-required?student_id=
func (s *Server) handleMissingRequired(w http.ResponseWriter, r *http.Request) {
	actor, _ := access.FromContext(r.Context())

	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.deps.MissingRequired.Handle(r.Context(), query.MissingRequiredQuery{
		Actor:      actor,
		DivisionID: id,
		StudentID:  r.URL.Query().Get("student_id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, result, &ResponseMeta{TotalCount: len(result.Missing)})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// statusFor maps an error to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, shared.ErrInProgress):
		return http.StatusConflict, "import_in_progress"
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, shared.ErrInvalidFormat):
		return http.StatusUnprocessableEntity, "malformed_sheet"
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case shared.IsTransactionFailure(err):
		return http.StatusInternalServerError, "transaction_failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "service_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError logs server-side failures and writes the error envelope.
// Messages of 5xx responses are generic.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()

	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.String("code", code),
			logger.Err(err),
		)
		switch code {
		case "transaction_failed":
			message = "commit failed, nothing was written"
		case "timeout":
			message = "request timed out"
		default:
			message = "an unexpected error occurred"
		}
	}
	writeJSONError(w, r, status, code, message)
}
