package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Metrics stores Prometheus collectors used by the API and worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDuration        *prometheus.HistogramVec
	appointmentsCreatedTotal   *prometheus.CounterVec
	bookingConflictsTotal      *prometheus.CounterVec
	appointmentTransitionTotal *prometheus.CounterVec
	notificationsSentTotal     *prometheus.CounterVec
	notificationsFailedTotal   *prometheus.CounterVec
	providerTriggerDuration    *prometheus.HistogramVec
	consumerInflight           prometheus.Gauge
	pendingReprocessedTotal    prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clinic_backoffice",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "clinic_backoffice",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		appointmentsCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clinic_backoffice",
				Name:      "appointments_created_total",
				Help:      "Total number of appointments created by visit type.",
			},
			[]string{"type"},
		),
		bookingConflictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clinic_backoffice",
				Name:      "booking_conflicts_total",
				Help:      "Total number of rejected bookings due to doctor availability conflicts.",
			},
			[]string{"operation"},
		),
		appointmentTransitionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clinic_backoffice",
				Name:      "appointment_transitions_total",
				Help:      "Total number of appointment status transitions by target status.",
			},
			[]string{"to_status"},
		),
		notificationsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clinic_backoffice",
				Name:      "notifications_sent_total",
				Help:      "Total number of notifications acknowledged by the delivery provider.",
			},
			[]string{"event_type"},
		),
		notificationsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clinic_backoffice",
				Name:      "notifications_failed_total",
				Help:      "Total number of notifications that ended in failed state.",
			},
			[]string{"event_type", "reason"},
		),
		providerTriggerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "clinic_backoffice",
				Name:      "provider_trigger_duration_seconds",
				Help:      "Delivery provider trigger call duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"event_type"},
		),
		consumerInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "clinic_backoffice",
				Name:      "consumer_inflight",
				Help:      "Current number of in-flight trigger messages being dispatched.",
			},
		),
		pendingReprocessedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "clinic_backoffice",
				Name:      "pending_reprocessed_total",
				Help:      "Total number of stale pending notifications picked up for re-dispatch.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.appointmentsCreatedTotal,
		m.bookingConflictsTotal,
		m.appointmentTransitionTotal,
		m.notificationsSentTotal,
		m.notificationsFailedTotal,
		m.providerTriggerDuration,
		m.consumerInflight,
		m.pendingReprocessedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FiberHandler adapts the Prometheus scrape handler for a fiber route.
func (m *Metrics) FiberHandler() fiber.Handler {
	h := fasthttpadaptor.NewFastHTTPHandler(m.Handler())
	return func(c *fiber.Ctx) error {
		h(c.Context())
		return nil
	}
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncAppointmentCreated(visitType string) {
	if m == nil {
		return
	}
	m.appointmentsCreatedTotal.WithLabelValues(normalizeLabel(visitType)).Inc()
}

func (m *Metrics) IncBookingConflict(operation string) {
	if m == nil {
		return
	}
	m.bookingConflictsTotal.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *Metrics) IncAppointmentTransition(toStatus string) {
	if m == nil {
		return
	}
	m.appointmentTransitionTotal.WithLabelValues(normalizeLabel(toStatus)).Inc()
}

func (m *Metrics) IncNotificationSent(eventType string) {
	if m == nil {
		return
	}
	m.notificationsSentTotal.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *Metrics) IncNotificationFailed(eventType string, reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.notificationsFailedTotal.WithLabelValues(normalizeLabel(eventType), reasonLabel).Inc()
}

func (m *Metrics) ObserveProviderTriggerDuration(eventType string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.providerTriggerDuration.WithLabelValues(normalizeLabel(eventType)).Observe(seconds)
}

func (m *Metrics) IncConsumerInFlight() {
	if m == nil {
		return
	}
	m.consumerInflight.Inc()
}

func (m *Metrics) DecConsumerInFlight() {
	if m == nil {
		return
	}
	m.consumerInflight.Dec()
}

func (m *Metrics) IncPendingReprocessed() {
	if m == nil {
		return
	}
	m.pendingReprocessedTotal.Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
