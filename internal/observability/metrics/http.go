package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
)

const namespace = "vob"

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	*dependencyMetrics

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	transitionsTotal     *prometheus.CounterVec
	gateDecisionsTotal   *prometheus.CounterVec
	passcodeChecksTotal  *prometheus.CounterVec
	notificationFailures *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "route", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "route"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	transitionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Accepted vendor request status transitions.",
		},
		[]string{"from", "to"},
	)
	gateDecisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "gate_decisions_total",
			Help:      "Approval gate decisions by gate and outcome.",
		},
		[]string{"gate", "decision"},
	)
	passcodeChecksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "access",
			Name:      "passcode_verifications_total",
			Help:      "Vendor passcode verification attempts by result.",
		},
		[]string{"result"},
	)
	notificationFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_failed_total",
			Help:      "Notifications that could not be handed to the mail service.",
		},
		[]string{"template"},
	)
	deps := newDependencyMetrics(service)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		transitionsTotal,
		gateDecisionsTotal,
		passcodeChecksTotal,
		notificationFailures,
	)
	deps.register(registry)

	return &HTTPServerMetrics{
		registry:             registry,
		dependencyMetrics:    deps,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		transitionsTotal:     transitionsTotal,
		gateDecisionsTotal:   gateDecisionsTotal,
		passcodeChecksTotal:  passcodeChecksTotal,
		notificationFailures: notificationFailures,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware labels requests by chi route pattern so secure tokens never become label values.
func (m *HTTPServerMetrics) Middleware(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			m.requestInFlight.Inc()
			defer m.requestInFlight.Dec()

			next.ServeHTTP(recorder, r)

			route := routePattern(r)
			m.requestTotal.WithLabelValues(service, r.Method, route, strconv.Itoa(recorder.statusCode)).Inc()
			m.requestDuration.WithLabelValues(service, r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

func (m *HTTPServerMetrics) RecordTransition(from, to domain.RequestStatus) {
	if from == "" {
		from = "none"
	}
	m.transitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

func (m *HTTPServerMetrics) RecordGateDecision(gate string, approved bool) {
	decision := "rejected"
	if approved {
		decision = "approved"
	}
	m.gateDecisionsTotal.WithLabelValues(gate, decision).Inc()
}

func (m *HTTPServerMetrics) RecordPasscodeVerification(result string) {
	m.passcodeChecksTotal.WithLabelValues(result).Inc()
}

func (m *HTTPServerMetrics) RecordNotificationFailure(template domain.NotificationTemplate) {
	m.notificationFailures.WithLabelValues(string(template)).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
