package messaging

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/registrar/internal/domain/shared"
	"github.com/alem-hub/registrar/pkg/logger"
)

func completed() shared.ImportCompletedEvent {
	return shared.NewImportCompletedEvent("run-1", shared.ImportEnrollments, "alice", 4,
		map[string]int{"created": 2, "duplicate": 1, "course_not_found": 1}, 1500*time.Millisecond)
}

func TestInMemoryEventBus_SyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})

	var typed, all int
	require.NoError(t, bus.Subscribe(shared.EventImportCompleted, func(shared.Event) error { typed++; return nil }))
	require.NoError(t, bus.Subscribe(shared.EventImportFailed, func(shared.Event) error { t.Fatal("wrong type"); return nil }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { all++; return nil }))

	require.NoError(t, bus.Publish(completed()))
	assert.Equal(t, 1, typed)
	assert.Equal(t, 1, all)
}

func TestInMemoryEventBus_HandlerFailuresAreContained(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("oops") }))

	assert.NoError(t, bus.Publish(completed()))
	assert.Equal(t, EventBusSnapshot{Published: 1, Failed: 2}, bus.Stats())
}

func TestInMemoryEventBus_AsyncAndClose(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var mu sync.Mutex
	got := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		mu.Lock()
		got++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(completed()))
	}
	require.NoError(t, bus.Close())
	assert.Equal(t, 5, got)

	assert.ErrorIs(t, bus.Publish(completed()), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
}

func TestImportMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewImportMetrics(reg)
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	require.NoError(t, Register(bus, m, nil))

	require.NoError(t, bus.Publish(completed()))
	require.NoError(t, bus.Publish(shared.NewImportFailedEvent("run-2", shared.ImportCourses, "bob", errors.New("tx"), time.Second)))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("enrollments", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("courses", "failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rows.WithLabelValues("enrollments", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rows.WithLabelValues("enrollments", "course_not_found")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.duration))
}

func TestAuditLog(t *testing.T) {
	var buf bytes.Buffer
	opts := logger.DefaultOptions()
	opts.Output = &buf
	audit := NewAuditLog(logger.New(opts))

	require.NoError(t, audit.Handle(completed()))
	assert.Contains(t, buf.String(), `"run_id":"run-1"`)
	assert.Contains(t, buf.String(), `"created":2`)
	assert.Contains(t, buf.String(), "import committed")

	buf.Reset()
	require.NoError(t, audit.Handle(shared.NewImportFailedEvent("run-2", shared.ImportDivisions, "bob", errors.New("nope"), 0)))
	assert.Contains(t, buf.String(), `"reason":"nope"`)
}
