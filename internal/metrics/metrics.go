package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "predico"

// Collector exposes Prometheus metrics for inbound HTTP requests and market
// activity. A nil *Collector is valid and records nothing.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	submissions          *prometheus.CounterVec
	challengesCreated    prometheus.Counter
	ensemblesCreated     prometheus.Counter
	sessionTransitions   *prometheus.CounterVec
	notificationsDropped prometheus.Counter
}

// New constructs a collector on its own registry
func New() (*Collector, error) {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "path", "status"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "submissions_total",
			Help:      "Submission attempts by outcome and error code.",
		}, []string{"outcome", "code"}),
		challengesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "challenges_created_total",
			Help:      "Challenges created.",
		}),
		ensemblesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "ensembles_created_total",
			Help:      "Ensembles registered.",
		}),
		sessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "session_transitions_total",
			Help:      "Session status changes by target status.",
		}, []string{"status"}),
		notificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "dropped_total",
			Help:      "Notifications dropped because the dispatch queue was full.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.requestDuration, c.requestTotal, c.submissions, c.challengesCreated,
		c.ensemblesCreated, c.sessionTransitions, c.notificationsDropped,
	} {
		if err := registry.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Registry exposes the underlying registry for tests
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
// The path label is the matched route template, not the raw URL.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := routeTemplate(r)

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

// SubmissionAccepted counts a stored submission
func (c *Collector) SubmissionAccepted(updated bool) {
	if c == nil {
		return
	}
	code := "created"
	if updated {
		code = "updated"
	}
	c.submissions.WithLabelValues("accepted", code).Inc()
}

// SubmissionRejected counts a rejected submission by error code
func (c *Collector) SubmissionRejected(code string) {
	if c == nil {
		return
	}
	c.submissions.WithLabelValues("rejected", code).Inc()
}

// ChallengeCreated counts a new challenge
func (c *Collector) ChallengeCreated() {
	if c == nil {
		return
	}
	c.challengesCreated.Inc()
}

// EnsembleCreated counts a new ensemble
func (c *Collector) EnsembleCreated() {
	if c == nil {
		return
	}
	c.ensemblesCreated.Inc()
}

// SessionTransition counts a session entering status
func (c *Collector) SessionTransition(status string) {
	if c == nil {
		return
	}
	c.sessionTransitions.WithLabelValues(status).Inc()
}

// NotificationDropped counts a notification lost to backpressure
func (c *Collector) NotificationDropped() {
	if c == nil {
		return
	}
	c.notificationsDropped.Inc()
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the instrumented writer
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
