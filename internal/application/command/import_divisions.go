package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/registrar/internal/application/resolver"
	"github.com/alem-hub/registrar/internal/domain/access"
	"github.com/alem-hub/registrar/internal/domain/division"
	"github.com/alem-hub/registrar/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT DIVISIONS COMMAND
// Creates divisions from a workbook under one regulation. Department
// references are optional and become null when they do not resolve.
// ══════════════════════════════════════════════════════════════════════════════

// ImportDivisionsCommand contains the upload and its regulation.
type ImportDivisionsCommand struct {
	Actor        access.Actor
	File         []byte
	RegulationID int64
	RunID        string
}

// Validate validates the command.
func (c ImportDivisionsCommand) Validate() error {
	if len(c.File) == 0 {
		return shared.ErrEmptyUpload
	}
	if c.RegulationID <= 0 {
		return shared.WrapError("import", "Validate", shared.ErrInvalidID, "regulation_id must be positive", nil)
	}
	if !c.Actor.IsAdmin {
		return shared.NewDomainError("import", "Authorize", shared.ErrForbidden, "only administrators can import divisions")
	}
	return nil
}

// ImportDivisionsResult echoes the created divisions with resolved ids.
type ImportDivisionsResult struct {
	RunID     string               `json:"run_id"`
	Divisions []*division.Division `json:"divisions"`
}

// ImportDivisionsHandler handles ImportDivisionsCommand.
type ImportDivisionsHandler struct {
	extractor Extractor
	resolver  *resolver.Resolver
	divisions division.Repository
	deps      RunDeps
}

// NewImportDivisionsHandler creates a new ImportDivisionsHandler.
func NewImportDivisionsHandler(extractor Extractor, resolver *resolver.Resolver, divisions division.Repository, deps RunDeps) *ImportDivisionsHandler {
	return &ImportDivisionsHandler{
		extractor: extractor,
		resolver:  resolver,
		divisions: divisions,
		deps:      deps.withDefaults(),
	}
}

// Handle executes the import.
func (h *ImportDivisionsHandler) Handle(ctx context.Context, cmd ImportDivisionsCommand) (*ImportDivisionsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("import_divisions: %w", err)
	}

	r, err := beginRun(ctx, h.deps, shared.ImportDivisions, cmd.RunID, cmd.Actor, cmd.File)
	if err != nil {
		return nil, err
	}

	ok, err := h.divisions.RegulationExists(ctx, cmd.RegulationID)
	if err != nil {
		return nil, r.fail(ctx, fmt.Errorf("import_divisions: regulation lookup: %w", err))
	}
	if !ok {
		return nil, r.fail(ctx, fmt.Errorf("import_divisions: regulation %d: %w", cmd.RegulationID, shared.ErrRegulationNotFound))
	}

	rows, err := h.extractor.ExtractDivisions(cmd.File)
	if err != nil {
		return nil, r.fail(ctx, fmt.Errorf("import_divisions: extract: %w", err))
	}

	divisions := make([]*division.Division, 0, len(rows))
	for i, row := range rows {
		d, err := h.build(ctx, row, cmd.RegulationID)
		if err != nil {
			return nil, r.fail(ctx, fmt.Errorf("import_divisions: row %d: %w", i+1, err))
		}
		divisions = append(divisions, d)
	}

	if err := h.divisions.CreateMany(ctx, divisions); err != nil {
		return nil, r.fail(ctx, asTransactionFailure("ImportDivisions", err))
	}

	result := &ImportDivisionsResult{RunID: r.id, Divisions: divisions}
	r.complete(ctx, len(divisions), map[string]int{"created": len(divisions)}, result)
	return result, nil
}

func (h *ImportDivisionsHandler) build(ctx context.Context, row division.Row, regulationID int64) (*division.Division, error) {
	d1, err := h.resolver.OptionalDepartment(ctx, row.Department1)
	if err != nil {
		return nil, fmt.Errorf("department_1 %q: %w", row.Department1, err)
	}
	d2, err := h.resolver.OptionalDepartment(ctx, row.Department2)
	if err != nil {
		return nil, fmt.Errorf("department_2 %q: %w", row.Department2, err)
	}

	return &division.Division{
		Name:          division.NormalizeName(row.Name),
		Hours:         row.Hours,
		Private:       row.Private,
		Group:         row.Group,
		RegulationID:  regulationID,
		Department1ID: d1,
		Department2ID: d2,
	}, nil
}
