// Package command contains write operations (CQRS - Commands).
// Every command here is a bulk import: it extracts rows from an uploaded
// workbook, reconciles them against storage and commits atomically.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/registrar/internal/domain/access"
	"github.com/alem-hub/registrar/internal/domain/course"
	"github.com/alem-hub/registrar/internal/domain/division"
	"github.com/alem-hub/registrar/internal/domain/enrollment"
	"github.com/alem-hub/registrar/internal/domain/importrun"
	"github.com/alem-hub/registrar/internal/domain/shared"
	"github.com/alem-hub/registrar/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// Extractor turns workbook bytes into ordered rows.
type Extractor interface {
	ExtractEnrollments(data []byte) (*enrollment.Sheet, error)
	ExtractDivisions(data []byte) ([]division.Row, error)
	ExtractCourses(data []byte) ([]course.Row, error)
}

// NopReportStore discards records. Used when Redis is disabled.
type NopReportStore struct{}

func (NopReportStore) Save(context.Context, *importrun.Record) error { return nil }

func (NopReportStore) Load(context.Context, string) (*importrun.Record, error) {
	return nil, shared.ErrReportNotFound
}

// NopUploadLock never blocks. Used when Redis is disabled.
type NopUploadLock struct{}

func (NopUploadLock) Acquire(context.Context, string) (func(), error) { return func() {}, nil }

// ══════════════════════════════════════════════════════════════════════════════
// RUN BOOKKEEPING
// ══════════════════════════════════════════════════════════════════════════════

// RunDeps are the collaborators every import handler shares.
type RunDeps struct {
	Reports   importrun.ReportStore
	Lock      importrun.UploadLock
	Publisher shared.EventPublisher
	Logger    *logger.Logger
	Now       func() time.Time
}

func (d RunDeps) withDefaults() RunDeps {
	if d.Reports == nil {
		d.Reports = NopReportStore{}
	}
	if d.Lock == nil {
		d.Lock = NopUploadLock{}
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// run tracks one import from lock to report.
type run struct {
	deps    RunDeps
	id      string
	kind    shared.ImportKind
	actor   access.Actor
	started time.Time
	log     *logger.Logger
	release func()
}

// beginRun assigns a run id when empty and acquires the upload lock. A lock
// backend failure is logged and the run proceeds unguarded; only a held lock
// stops it.
func beginRun(ctx context.Context, deps RunDeps, kind shared.ImportKind, runID string, actor access.Actor, file []byte) (*run, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	r := &run{
		deps:    deps,
		id:      runID,
		kind:    kind,
		actor:   actor,
		started: deps.Now(),
		release: func() {},
	}
	r.log = deps.Logger.With(logger.RunID(runID), logger.Kind(string(kind)), logger.ActorID(actor.ID))

	release, err := deps.Lock.Acquire(ctx, importrun.Fingerprint(file))
	switch {
	case errors.Is(err, shared.ErrInProgress):
		r.log.Warn("upload rejected, same file is being imported")
		return nil, shared.ErrImportInProgress
	case err != nil:
		r.log.Warn("upload lock unavailable", logger.Err(err))
	default:
		r.release = release
	}

	r.log.Info("import started", logger.Int("bytes", len(file)))
	return r, nil
}

func (r *run) elapsed() time.Duration {
	return r.deps.Now().Sub(r.started)
}

// fail records and publishes a run-level failure and returns err unchanged.
func (r *run) fail(ctx context.Context, err error) error {
	defer r.release()
	took := r.elapsed()

	r.log.Error("import failed", logger.Err(err), logger.Latency(took))

	rec := &importrun.Record{
		ID:         r.id,
		Kind:       r.kind,
		ActorID:    r.actor.ID,
		Status:     importrun.StatusFailed,
		Error:      err.Error(),
		StartedAt:  r.started,
		FinishedAt: r.started.Add(took),
	}
	r.save(ctx, rec)
	r.publish(shared.NewImportFailedEvent(r.id, r.kind, r.actor.ID, err, took))
	return err
}

// complete records and publishes a committed run.
func (r *run) complete(ctx context.Context, rows int, summary map[string]int, result any) {
	defer r.release()
	took := r.elapsed()

	r.log.Info("import committed", logger.Rows(rows), logger.Any("summary", summary), logger.Latency(took))

	payload, err := json.Marshal(result)
	if err != nil {
		r.log.Warn("report not serializable", logger.Err(err))
		payload = nil
	}

	rec := &importrun.Record{
		ID:         r.id,
		Kind:       r.kind,
		ActorID:    r.actor.ID,
		Status:     importrun.StatusCompleted,
		Rows:       rows,
		Summary:    summary,
		Result:     payload,
		StartedAt:  r.started,
		FinishedAt: r.started.Add(took),
	}
	r.save(ctx, rec)
	r.publish(shared.NewImportCompletedEvent(r.id, r.kind, r.actor.ID, rows, summary, took))
}

// save stores the record; the run outcome does not depend on it.
func (r *run) save(ctx context.Context, rec *importrun.Record) {
	if err := r.deps.Reports.Save(ctx, rec); err != nil {
		r.log.Warn("failed to store import report", logger.Err(err))
	}
}

func (r *run) publish(event shared.Event) {
	if r.deps.Publisher == nil {
		return
	}
	if err := r.deps.Publisher.Publish(event); err != nil {
		r.log.Warn("failed to publish event", logger.String("event", string(event.EventType())), logger.Err(err))
	}
}

// asTransactionFailure makes sure a commit error carries the
// shared.ErrTransactionFailed kind.
func asTransactionFailure(op string, err error) error {
	if shared.IsTransactionFailure(err) {
		return err
	}
	return shared.NewTransactionError(op, err)
}
