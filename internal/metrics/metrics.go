package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests can build as many as they like.
// All methods are safe on a nil *Collector.
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	BookingsTotal        *prometheus.CounterVec
	TransitionsTotal     *prometheus.CounterVec
	ReconciliationsTotal *prometheus.CounterVec
	LeaveCancellations   prometheus.Counter
	NotificationsTotal   *prometheus.CounterVec
	LeaveDecisionsTotal  *prometheus.CounterVec
}

func NewCollector(serviceName string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		BookingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "queue",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome (booked, slot_full, slot_unavailable, conflict, error).",
		}, []string{"outcome"}),

		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "queue",
			Name:      "appointment_transitions_total",
			Help:      "Appointment status transitions by target status.",
		}, []string{"to"}),

		ReconciliationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "leave",
			Name:      "reconciliations_total",
			Help:      "Reconciliation runs by result (complete, incomplete).",
		}, []string{"result"}),

		LeaveCancellations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "leave",
			Name:      "appointments_cancelled_total",
			Help:      "Appointments cancelled because the doctor's leave was approved.",
		}),

		NotificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "notify",
			Name:      "intents_total",
			Help:      "Notification intents handed to the publisher by kind and result.",
		}, []string{"kind", "result"}),

		LeaveDecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "leave",
			Name:      "decisions_total",
			Help:      "Leave request state changes by resulting status.",
		}, []string{"status"}),
	}
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// NewServer exposes the collector on addr for processes without an API
// router, such as the queue worker.
func NewServer(addr string, c *Collector) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) ObserveBooking(outcome string) {
	if c == nil {
		return
	}
	c.BookingsTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveTransition(to string) {
	if c == nil {
		return
	}
	c.TransitionsTotal.WithLabelValues(to).Inc()
}

func (c *Collector) ObserveReconciliation(result string, cancelled int) {
	if c == nil {
		return
	}
	c.ReconciliationsTotal.WithLabelValues(result).Inc()
	c.LeaveCancellations.Add(float64(cancelled))
}

func (c *Collector) ObserveNotifications(kind, result string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.NotificationsTotal.WithLabelValues(kind, result).Add(float64(n))
}

func (c *Collector) ObserveLeaveDecision(status string) {
	if c == nil {
		return
	}
	c.LeaveDecisionsTotal.WithLabelValues(status).Inc()
}

func (c *Collector) ObserveRequest(method, route, status string, seconds float64) {
	if c == nil {
		return
	}
	c.RequestsTotal.WithLabelValues(method, route, status).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(seconds)
}
