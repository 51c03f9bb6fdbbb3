package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/registrar/internal/domain/importrun"
	"github.com/alem-hub/registrar/internal/domain/shared"
	"github.com/alem-hub/registrar/pkg/circuitbreaker"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheFromClient(client), mr
}

func TestCache_SetGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))

	var got map[string]int
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, 1, got["a"])

	assert.ErrorIs(t, c.Get(ctx, "missing", &got), ErrCacheMiss)
	assert.ErrorIs(t, c.Set(ctx, "", 1, 0), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, 0), ErrCacheNilValue)
	assert.ErrorIs(t, c.Set(ctx, "k", 1, -time.Second), ErrCacheInvalidTTL)
}

func TestReportStore_RoundTripAndExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	store := NewReportStore(c, time.Hour)

	rec := &importrun.Record{
		ID:      "run-1",
		Kind:    shared.ImportEnrollments,
		ActorID: "alice",
		Status:  importrun.StatusCompleted,
		Rows:    3,
		Summary: map[string]int{"created": 2, "duplicate": 1},
	}
	require.NoError(t, store.Save(ctx, rec))
	assert.True(t, mr.Exists("import:report:run-1"))

	got, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.ActorID)
	assert.Equal(t, 2, got.Summary["created"])

	mr.FastForward(2 * time.Hour)
	_, err = store.Load(ctx, "run-1")
	assert.ErrorIs(t, err, shared.ErrReportNotFound)
}

func TestReportStore_SaveNeverReplaces(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	store := NewReportStore(c, time.Hour)

	require.NoError(t, store.Save(ctx, &importrun.Record{ID: "run-7", ActorID: "alice", Status: importrun.StatusCompleted}))

	err := store.Save(ctx, &importrun.Record{ID: "run-7", ActorID: "mallory", Status: importrun.StatusFailed})
	assert.ErrorIs(t, err, shared.ErrReportExists)
	assert.True(t, shared.IsAlreadyExists(err))

	got, err := store.Load(ctx, "run-7")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.ActorID)
	assert.Equal(t, importrun.StatusCompleted, got.Status)
}

func TestUploadLock(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	lock := NewUploadLock(c, time.Minute)

	release, err := lock.Acquire(ctx, "abc")
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, "abc")
	assert.ErrorIs(t, err, shared.ErrImportInProgress)

	other, err := lock.Acquire(ctx, "def")
	require.NoError(t, err)
	other()

	release()
	release()
	assert.False(t, mr.Exists("lock:upload:abc"))

	again, err := lock.Acquire(ctx, "abc")
	require.NoError(t, err)
	again()
}

func TestUploadLock_ExpiredLockNotReleasedByOldOwner(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	lock := NewUploadLock(c, time.Minute)

	stale, err := lock.Acquire(ctx, "abc")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	fresh, err := lock.Acquire(ctx, "abc")
	require.NoError(t, err)
	defer fresh()

	stale()
	assert.True(t, mr.Exists("lock:upload:abc"))
}

func TestUploadLock_BackendDown(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	_, err := NewUploadLock(c, time.Minute).Acquire(context.Background(), "abc")
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrImportInProgress)
}

func TestCache_BreakerFailsFastWhenBackendDown(t *testing.T) {
	c, mr := newTestCache(t)
	cb := circuitbreaker.ForBackingService("redis", IsBackendFailure, nil)
	c.UseBreaker(cb)
	ctx := context.Background()
	store := NewReportStore(c, time.Hour)

	_, err := store.Load(ctx, "absent")
	require.ErrorIs(t, err, shared.ErrReportNotFound)
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())

	mr.Close()
	for i := 0; i < 3; i++ {
		err := store.Save(ctx, &importrun.Record{ID: "run-1"})
		require.Error(t, err)
		assert.False(t, circuitbreaker.IsRejected(err))
	}
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())

	_, err = NewUploadLock(c, time.Minute).Acquire(ctx, "abc")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}
