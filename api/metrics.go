package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build routers repeatedly.
type Metrics struct {
	Registry *prometheus.Registry

	gateDecisions      *prometheus.CounterVec
	closingTransitions *prometheus.CounterVec
	invoices           *prometheus.CounterVec
	purchases          *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "facinv",
			Name:      "gate_decisions_total",
			Help:      "Closing gate decisions by outcome.",
		}, []string{"outcome"}),
		closingTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "facinv",
			Name:      "closing_transitions_total",
			Help:      "Daily closings entering a state.",
		}, []string{"state"}),
		invoices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "facinv",
			Name:      "invoices_total",
			Help:      "Sales invoices by result.",
		}, []string{"result"}),
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "facinv",
			Name:      "purchases_total",
			Help:      "Supplier purchases by result.",
		}, []string{"result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "facinv",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.gateDecisions,
		m.closingTransitions,
		m.invoices,
		m.purchases,
		m.httpDuration,
	)
	return m
}

// The record helpers accept a nil receiver so handlers never check.

func (m *Metrics) gate(outcome string) {
	if m != nil {
		m.gateDecisions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) transition(state string) {
	if m != nil {
		m.closingTransitions.WithLabelValues(state).Inc()
	}
}

func (m *Metrics) invoice(result string) {
	if m != nil {
		m.invoices.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) purchase(result string) {
	if m != nil {
		m.purchases.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// instrument records request latency labelled with the chi route pattern.
func (m *Metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
