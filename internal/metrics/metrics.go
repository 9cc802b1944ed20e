// Package metrics holds the register's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the set of register collectors. A nil *Metrics records nothing.
type Metrics struct {
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	Submissions      *prometheus.CounterVec
	SubmitDuration   *prometheus.HistogramVec
	PollErrors       *prometheus.CounterVec
	PendingPreorders prometheus.Gauge
	FinishedTickets  prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "register_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "register_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "register_submissions_total",
				Help: "Checkout flow submissions by outcome",
			},
			[]string{"flow", "outcome"},
		),
		SubmitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "register_submission_duration_seconds",
				Help:    "Duration of checkout flow submissions, all remote steps included",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"flow"},
		),
		PollErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "register_poll_errors_total",
				Help: "Failed pending-list refreshes",
			},
			[]string{"list"},
		),
		PendingPreorders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "register_pending_preorders",
			Help: "Pre-orders the register may open, as of the last poll",
		}),
		FinishedTickets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "register_finished_unpaid_tickets",
			Help: "Finished kitchen tickets awaiting payment, as of the last poll",
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.HTTPRequests, m.HTTPDuration, m.Submissions, m.SubmitDuration,
		m.PollErrors, m.PendingPreorders, m.FinishedTickets)
	return m
}

// ObserveSubmission counts one finished flow.
func (m *Metrics) ObserveSubmission(flow, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(flow, outcome).Inc()
	m.SubmitDuration.WithLabelValues(flow).Observe(d.Seconds())
}

// ObservePoll records the result of a list refresh.
func (m *Metrics) ObservePoll(list string, size int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.PollErrors.WithLabelValues(list).Inc()
		return
	}
	switch list {
	case "preorders":
		m.PendingPreorders.Set(float64(size))
	case "tickets":
		m.FinishedTickets.Set(float64(size))
	}
}

// Middleware counts requests by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "undefined"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
