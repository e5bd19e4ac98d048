// Package metrics exposes Prometheus collectors for HTTP traffic and for the
// back-office operations. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	salesRegistered prometheus.Counter
	salesRejected   *prometheus.CounterVec
	salesDeleted    prometheus.Counter
	turnsOpened     prometheus.Counter
	turnsClosed     prometheus.Counter
	withdrawals     prometheus.Counter
	imbalances      prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tiendapos_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tiendapos_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		salesRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiendapos_sales_registered_total",
			Help: "Sales committed.",
		}),
		salesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tiendapos_sales_rejected_total",
			Help: "Sales rejected, by reason.",
		}, []string{"reason"}),
		salesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiendapos_sales_deleted_total",
			Help: "Sales deleted.",
		}),
		turnsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiendapos_turns_opened_total",
			Help: "Cash register turns opened.",
		}),
		turnsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiendapos_turns_closed_total",
			Help: "Cash register turns closed.",
		}),
		withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiendapos_withdrawals_recorded_total",
			Help: "Cash withdrawals recorded.",
		}),
		imbalances: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiendapos_imbalances_recorded_total",
			Help: "Cash imbalance entries recorded.",
		}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal, m.requestDuration,
		m.salesRegistered, m.salesRejected, m.salesDeleted,
		m.turnsOpened, m.turnsClosed, m.withdrawals, m.imbalances,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency under the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) SaleRegistered() {
	if m != nil {
		m.salesRegistered.Inc()
	}
}

func (m *Metrics) SaleRejected(reason string) {
	if m != nil {
		m.salesRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) SaleDeleted() {
	if m != nil {
		m.salesDeleted.Inc()
	}
}

func (m *Metrics) TurnOpened() {
	if m != nil {
		m.turnsOpened.Inc()
	}
}

func (m *Metrics) TurnClosed() {
	if m != nil {
		m.turnsClosed.Inc()
	}
}

func (m *Metrics) WithdrawalRecorded() {
	if m != nil {
		m.withdrawals.Inc()
	}
}

func (m *Metrics) ImbalanceRecorded() {
	if m != nil {
		m.imbalances.Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
