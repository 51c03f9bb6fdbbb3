package messaging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alem-hub/registrar/internal/domain/shared"
	"github.com/alem-hub/registrar/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// METRICS RECORDER
// ══════════════════════════════════════════════════════════════════════════════

// ImportMetrics turns import events into Prometheus series.
type ImportMetrics struct {
	runs     *prometheus.CounterVec
	rows     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewImportMetrics registers the import series with reg.
func NewImportMetrics(reg prometheus.Registerer) *ImportMetrics {
	factory := promauto.With(reg)
	return &ImportMetrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registrar",
			Name:      "import_runs_total",
			Help:      "Total number of import runs by kind and result.",
		}, []string{"kind", "result"}),
		rows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registrar",
			Name:      "import_rows_total",
			Help:      "Total number of reconciled rows by kind and outcome status.",
		}, []string{"kind", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "registrar",
			Name:      "import_duration_seconds",
			Help:      "Import run duration.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
	}
}

// Handle implements shared.EventHandler.
func (m *ImportMetrics) Handle(event shared.Event) error {
	switch e := event.(type) {
	case shared.ImportCompletedEvent:
		kind := string(e.Kind)
		m.runs.WithLabelValues(kind, "completed").Inc()
		m.duration.WithLabelValues(kind).Observe(e.Duration.Seconds())
		for status, n := range e.Statuses {
			m.rows.WithLabelValues(kind, status).Add(float64(n))
		}
	case shared.ImportFailedEvent:
		kind := string(e.Kind)
		m.runs.WithLabelValues(kind, "failed").Inc()
		m.duration.WithLabelValues(kind).Observe(e.Duration.Seconds())
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// AUDIT LOG
// ══════════════════════════════════════════════════════════════════════════════

// AuditLog writes one structured line per finished import.
type AuditLog struct {
	log *logger.Logger
}

// NewAuditLog creates an AuditLog writing to log.
func NewAuditLog(log *logger.Logger) *AuditLog {
	return &AuditLog{log: log.With(logger.Component("audit"))}
}

// Handle implements shared.EventHandler.
func (a *AuditLog) Handle(event shared.Event) error {
	switch e := event.(type) {
	case shared.ImportCompletedEvent:
		fields := []logger.Field{
			logger.RunID(e.AggregateID()),
			logger.Kind(string(e.Kind)),
			logger.ActorID(e.ActorID),
			logger.Rows(e.Rows),
			logger.Latency(e.Duration),
		}
		for status, n := range e.Statuses {
			fields = append(fields, logger.Int(status, n))
		}
		a.log.Info("import committed", fields...)
	case shared.ImportFailedEvent:
		a.log.Warn("import aborted",
			logger.RunID(e.AggregateID()),
			logger.Kind(string(e.Kind)),
			logger.ActorID(e.ActorID),
			logger.String("reason", e.Reason),
			logger.Latency(e.Duration),
		)
	}
	return nil
}

// Register subscribes the metrics recorder and the audit log to bus. Either
// may be nil.
func Register(bus shared.EventSubscriber, metrics *ImportMetrics, audit *AuditLog) error {
	for _, t := range []shared.EventType{shared.EventImportCompleted, shared.EventImportFailed} {
		if metrics != nil {
			if err := bus.Subscribe(t, metrics.Handle); err != nil {
				return err
			}
		}
		if audit != nil {
			if err := bus.Subscribe(t, audit.Handle); err != nil {
				return err
			}
		}
	}
	return nil
}
