package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mpcgate"

// Metrics holds the coordinator collectors.
type Metrics struct {
	QueueLength      prometheus.Gauge
	ActiveSessions   prometheus.Gauge
	FreePortBlocks   prometheus.Gauge
	Admissions       *prometheus.CounterVec
	Promotions       prometheus.Counter
	Evictions        *prometheus.CounterVec
	Retirements      prometheus.Counter
	Dispatches       *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Identifiers in line, the active head included.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently holding a port block.",
		}),
		FreePortBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "free_port_blocks",
			Help:      "Port blocks available for allocation.",
		}),
		Admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Enqueue attempts by result.",
		}, []string{"result"}),
		Promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotions_total",
			Help:      "Heads promoted into an active session.",
		}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Sessions retired without an explicit finish.",
		}, []string{"reason"}),
		Retirements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retirements_total",
			Help:      "Sessions finished by their client.",
		}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Party fan-outs by phase and outcome.",
		}, []string{"phase", "outcome"}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent waiting for every party to answer.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"phase"}),
	}

	reg.MustRegister(
		m.QueueLength,
		m.ActiveSessions,
		m.FreePortBlocks,
		m.Admissions,
		m.Promotions,
		m.Evictions,
		m.Retirements,
		m.Dispatches,
		m.DispatchDuration,
	)
	return m
}

// Hooks returns lifecycle hooks that keep the collectors current.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnAdmission: func(_ context.Context, e *domain.AdmissionEvent) {
			m.Admissions.WithLabelValues(string(e.Result)).Inc()
			m.QueueLength.Set(float64(e.QueueSize))
		},
		OnPromotion: func(_ context.Context, e *domain.SessionEvent) {
			m.Promotions.Inc()
			m.ActiveSessions.Set(1)
			m.session(e)
		},
		OnEviction: func(_ context.Context, e *domain.SessionEvent) {
			m.Evictions.WithLabelValues(string(e.Reason)).Inc()
			m.ActiveSessions.Set(0)
			m.session(e)
		},
		OnRetirement: func(_ context.Context, e *domain.SessionEvent) {
			m.Retirements.Inc()
			m.ActiveSessions.Set(0)
			m.session(e)
		},
		OnDispatch: func(_ context.Context, e *domain.DispatchEvent) {
			outcome := "ok"
			if e.Err != nil {
				outcome = "error"
			}
			m.Dispatches.WithLabelValues(string(e.Phase), outcome).Inc()
			m.DispatchDuration.WithLabelValues(string(e.Phase)).Observe(e.Duration.Seconds())
		},
	}
}

func (m *Metrics) session(e *domain.SessionEvent) {
	m.FreePortBlocks.Set(float64(e.FreePortBlocks))
	m.QueueLength.Set(float64(e.QueueSize))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
