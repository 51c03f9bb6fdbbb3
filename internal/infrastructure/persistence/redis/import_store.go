package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/registrar/internal/domain/importrun"
	"github.com/alem-hub/registrar/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORT STORE
// ══════════════════════════════════════════════════════════════════════════════

// ReportStore implements importrun.ReportStore. Records expire after ttl.
type ReportStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewReportStore creates a ReportStore.
func NewReportStore(cache *Cache, ttl time.Duration) *ReportStore {
	return &ReportStore{cache: cache, ttl: ttl}
}

// Save stores the record under its run id. A stored report is never
// replaced: a second save for the same id returns shared.ErrReportExists.
func (s *ReportStore) Save(ctx context.Context, rec *importrun.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	ok, err := s.cache.SetNX(ctx, ReportKey(rec.ID), data, s.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return shared.ErrReportExists
	}
	return nil
}

// Load returns the record or shared.ErrReportNotFound.
func (s *ReportStore) Load(ctx context.Context, id string) (*importrun.Record, error) {
	var rec importrun.Record
	if err := s.cache.Get(ctx, ReportKey(id), &rec); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.ErrReportNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UPLOAD LOCK
// ══════════════════════════════════════════════════════════════════════════════

// releaseScript deletes the lock only while it still holds our token, so an
// expired lock re-acquired by another run is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// UploadLock implements importrun.UploadLock with SET NX and a TTL.
type UploadLock struct {
	cache *Cache
	ttl   time.Duration
}

// NewUploadLock creates an UploadLock. The TTL bounds how long a crashed
// run can block re-uploads of the same file.
func NewUploadLock(cache *Cache, ttl time.Duration) *UploadLock {
	return &UploadLock{cache: cache, ttl: ttl}
}

// Acquire takes the lock for the fingerprint.
func (l *UploadLock) Acquire(ctx context.Context, fingerprint string) (func(), error) {
	key := UploadLockKey(fingerprint)
	token := uuid.NewString()

	ok, err := l.cache.SetNX(ctx, key, token, l.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.ErrImportInProgress
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// The request context may already be cancelled when the run ends.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.cache.Client(), []string{key}, token).Err()
	}, nil
}
