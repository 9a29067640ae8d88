package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/predico/internal/api/handlers"
	"github.com/wonny/predico/internal/auth"
	"github.com/wonny/predico/internal/metrics"
	"github.com/wonny/predico/pkg/logger"
	"github.com/wonny/predico/pkg/redis"
)

// Handlers groups the market endpoint handlers
type Handlers struct {
	Session    *handlers.SessionHandler
	Challenge  *handlers.ChallengeHandler
	Submission *handlers.SubmissionHandler
	Ensemble   *handlers.EnsembleHandler
	Score      *handlers.ScoreHandler
}

// Options carries the cross-cutting pieces of the router. Metrics, Limiter,
// Events and Health may be nil.
type Options struct {
	Verifier             *auth.Verifier
	Metrics              *metrics.Collector
	Limiter              *redis.RateLimiter
	SubmissionsPerMinute int
	Events               http.Handler
	RequestTimeout       time.Duration
	Health               func(ctx context.Context) error
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, opts Options, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler(opts.Health)).Methods(http.MethodGet)

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	}
	if opts.Events != nil {
		r.Handle("/ws/events", opts.Verifier.OptionalMiddleware(opts.Events)).Methods(http.MethodGet)
	}

	market := r.PathPrefix("/api/market").Subrouter()
	market.Use(opts.Verifier.Middleware)
	market.Use(timeoutMiddleware(opts.RequestTimeout))

	// Sessions
	market.HandleFunc("/session", h.Session.Create).Methods(http.MethodPost)
	market.HandleFunc("/session", h.Session.List).Methods(http.MethodGet)
	market.HandleFunc("/session/{id}", h.Session.Get).Methods(http.MethodGet)
	market.HandleFunc("/session/{id}", h.Session.Update).Methods(http.MethodPatch)

	// Challenges
	market.HandleFunc("/challenges", h.Challenge.Create).Methods(http.MethodPost)
	market.HandleFunc("/challenges", h.Challenge.List).Methods(http.MethodGet)
	market.HandleFunc("/challenges/{id}", h.Challenge.Update).Methods(http.MethodPatch)
	market.HandleFunc("/challenges/{id}/solution", h.Challenge.Solution).Methods(http.MethodGet)

	// Submissions
	submit := rateLimitMiddleware(opts.Limiter, opts.SubmissionsPerMinute, log)
	market.Handle("/challenges/{id}/submissions", submit(http.HandlerFunc(h.Submission.CreateOrUpdate))).Methods(http.MethodPost)
	market.HandleFunc("/submissions", h.Submission.List).Methods(http.MethodGet)

	// Ensembles and contributions
	market.HandleFunc("/challenges/{id}/ensembles", h.Ensemble.Create).Methods(http.MethodPost)
	market.HandleFunc("/challenges/{id}/ensembles", h.Ensemble.List).Methods(http.MethodGet)
	market.HandleFunc("/ensembles/{id}/weights", h.Ensemble.SetWeights).Methods(http.MethodPut)
	market.HandleFunc("/ensembles/{id}/contributions", h.Ensemble.CreateContribution).Methods(http.MethodPost)
	market.HandleFunc("/challenges/{id}/contributions", h.Ensemble.ListContributions).Methods(http.MethodGet)

	// Scores
	market.HandleFunc("/challenges/{id}/scores", h.Score.Get).Methods(http.MethodGet)
	market.HandleFunc("/challenges/{id}/scores", h.Score.Publish).Methods(http.MethodPost)

	// Apply middleware
	r.Use(recoveryMiddleware(log))
	r.Use(loggingMiddleware(log))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.InstrumentHandler)
	}

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  status,
			"service": "predico-api",
		})
	}
}
