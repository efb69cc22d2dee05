// Package metrics exposes Prometheus collectors for analysis sessions.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ritzau/impact-analyzer/pkg/session"
)

const namespace = "impact_analyzer"

// SessionMetrics implements session.Observer
type SessionMetrics struct {
	// SessionsTotal counts finished sessions. Labels: result (done, failure reason)
	SessionsTotal *prometheus.CounterVec

	// RoundsTotal counts completed rounds
	RoundsTotal prometheus.Counter

	// RoundsPerSession is the number of rounds a successful session needed
	RoundsPerSession prometheus.Histogram

	// RoundDurationSeconds is the wall time of one round, front-end included
	RoundDurationSeconds prometheus.Histogram

	// UnitsCompiledTotal counts units handed to the front-end
	UnitsCompiledTotal prometheus.Counter

	// ChangeRecordsTotal counts classified changes. Labels: kind
	ChangeRecordsTotal *prometheus.CounterVec

	// Generation is the last generation a round recorded
	Generation prometheus.Gauge

	mu     sync.Mutex
	rounds map[string]int
}

var (
	defaultOnce    sync.Once
	defaultMetrics *SessionMetrics
)

// Default returns collectors registered with the default Prometheus registry
func Default() *SessionMetrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New creates collectors registered with reg
func New(reg prometheus.Registerer) *SessionMetrics {
	f := promauto.With(reg)
	return &SessionMetrics{
		SessionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished analysis sessions by result",
		}, []string{"result"}),
		RoundsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Completed compile/classify/expand rounds",
		}),
		RoundsPerSession: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rounds_per_session",
			Help:      "Rounds needed to reach a fixed point",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 50, 100},
		}),
		RoundDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_duration_seconds",
			Help:      "Round duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		UnitsCompiledTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_compiled_total",
			Help:      "Units handed to the front-end",
		}),
		ChangeRecordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_records_total",
			Help:      "Classified structural changes by kind",
		}, []string{"kind"}),
		Generation: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generation",
			Help:      "Last recorded build generation",
		}),
		rounds: make(map[string]int),
	}
}

// StateChanged records terminal states
func (m *SessionMetrics) StateChanged(sessionID string, round int, state session.State) {
	switch state {
	case session.StateDone:
		m.mu.Lock()
		n := m.rounds[sessionID]
		delete(m.rounds, sessionID)
		m.mu.Unlock()
		m.RoundsPerSession.Observe(float64(n))
		m.SessionsTotal.WithLabelValues("done").Inc()
	case session.StateFailed:
		m.mu.Lock()
		delete(m.rounds, sessionID)
		m.mu.Unlock()
	}
}

// RoundCompleted records one round
func (m *SessionMetrics) RoundCompleted(sessionID string, report session.RoundReport) {
	m.mu.Lock()
	m.rounds[sessionID]++
	m.mu.Unlock()

	m.RoundsTotal.Inc()
	m.RoundDurationSeconds.Observe(report.Duration.Seconds())
	m.UnitsCompiledTotal.Add(float64(len(report.Compiled)))
	m.Generation.Set(float64(report.Generation))
	for _, rec := range report.Changes {
		m.ChangeRecordsTotal.WithLabelValues(string(rec.Kind)).Inc()
	}
}

// RecordFailure counts a failed session by reason. Failures raised before the
// driver starts (classpath changes) only reach the metrics this way.
func (m *SessionMetrics) RecordFailure(reason session.Reason) {
	m.SessionsTotal.WithLabelValues(string(reason)).Inc()
}
