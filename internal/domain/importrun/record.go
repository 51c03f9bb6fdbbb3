// Package importrun describes a finished import run as it is kept for later
// retrieval, plus the ports for storing it and for guarding uploads.
package importrun

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/alem-hub/registrar/internal/domain/shared"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is the retrievable summary of one run.
type Record struct {
	ID         string            `json:"id"`
	Kind       shared.ImportKind `json:"kind"`
	ActorID    string            `json:"actor_id"`
	Status     Status            `json:"status"`
	Rows       int               `json:"rows"`
	Summary    map[string]int    `json:"summary,omitempty"`
	Result     json.RawMessage   `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// ReportStore keeps records for later retrieval.
type ReportStore interface {
	// Save returns shared.ErrReportExists when a record is already stored
	// under rec.ID. Stored records are never replaced.
	Save(ctx context.Context, rec *Record) error

	// Load returns shared.ErrReportNotFound when the record is absent or expired.
	Load(ctx context.Context, id string) (*Record, error)
}

// UploadLock guards against the same bytes being imported concurrently.
type UploadLock interface {
	// Acquire returns shared.ErrImportInProgress when the fingerprint is held.
	// The returned release func is safe to call once.
	Acquire(ctx context.Context, fingerprint string) (release func(), err error)
}

// Fingerprint identifies upload content.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
