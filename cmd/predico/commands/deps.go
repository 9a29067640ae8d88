package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/predico/internal/auth"
	"github.com/wonny/predico/internal/challenge"
	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/internal/eligibility"
	"github.com/wonny/predico/internal/ensemble"
	"github.com/wonny/predico/internal/measurements"
	"github.com/wonny/predico/internal/memstore"
	"github.com/wonny/predico/internal/metrics"
	"github.com/wonny/predico/internal/notify"
	"github.com/wonny/predico/internal/realtime"
	"github.com/wonny/predico/internal/scoring"
	"github.com/wonny/predico/internal/session"
	"github.com/wonny/predico/internal/submission"
	"github.com/wonny/predico/pkg/config"
	"github.com/wonny/predico/pkg/database"
	"github.com/wonny/predico/pkg/httputil"
	"github.com/wonny/predico/pkg/logger"
	"github.com/wonny/predico/pkg/redis"
)

// devJWTSecret signs tokens outside production when JWT_SECRET is unset
const devJWTSecret = "predico-development-secret"

// stores groups the repositories of one backend
type stores struct {
	sessions     contracts.SessionRepository
	challenges   contracts.ChallengeRepository
	submissions  contracts.SubmissionRepository
	ensembles    contracts.EnsembleRepository
	scores       contracts.ScoreRepository
	resources    contracts.ResourceDirectory
	measurements contracts.MeasurementStore
	uploads      contracts.HistoricalForecastStore
}

// app holds every long-lived dependency of a command
// ⭐ SSOT: 의존성 조립은 여기서만
type app struct {
	cfg *config.Config
	log *logger.Logger

	db      *database.DB
	redis   *redis.Client
	limiter *redis.RateLimiter
	metrics *metrics.Collector

	verifier   *auth.Verifier
	hub        *realtime.Hub
	dispatcher *notify.Dispatcher

	sessions   *session.Registry
	challenges *challenge.Manager
	ledger     *submission.Ledger
	ensembles  *ensemble.Registry
	scores     *scoring.Engine
}

// loadConfig reads the environment and applies global flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if storeFlag != "" {
		cfg.Store = storeFlag
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newApp connects the configured backends and builds the market services
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg)

	a := &app{cfg: cfg, log: log}

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.MetricsEnabled {
		a.metrics, err = metrics.New()
		if err != nil {
			a.close()
			return nil, fmt.Errorf("init metrics: %w", err)
		}
	}

	a.redis, err = redis.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, caching and rate limits disabled")
		a.redis = redis.Disabled()
	}
	a.limiter = redis.NewRateLimiter(a.redis, "predico")
	cache := redis.NewCache(a.redis, "predico")

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		log.Warn("JWT_SECRET not set, using development secret")
		secret = devJWTSecret
	}
	a.verifier = auth.NewVerifier(secret, cfg.Auth.Issuer)

	// notifications: async outbound sinks plus the websocket hub
	sinks := []notify.Sink{notify.NewLogSink(log)}
	if cfg.Notify.WebhookURL != "" {
		client := httputil.New(log, cfg.Notify.Timeout)
		sinks = append(sinks, notify.NewWebhookSink(client, cfg.Notify.WebhookURL))
	}
	a.dispatcher = notify.NewDispatcher(notify.DispatcherConfig{
		RatePerSec: cfg.Notify.RatePerSec,
		Timeout:    cfg.Notify.Timeout,
	}, a.metrics, log, sinks...)
	// drained by close() so one-shot commands still deliver
	a.dispatcher.Start(context.Background())
	a.hub = realtime.NewHub(log)
	notifier := notify.Fanout{a.dispatcher, a.hub}

	a.sessions = session.NewRegistry(st.sessions, notifier, a.metrics, log)
	a.sessions.SetStrictTransitions(cfg.Market.StrictTransitions)

	a.challenges = challenge.NewManager(st.challenges, st.sessions, st.resources, st.measurements, notifier, a.metrics,
		challenge.Settings{
			MinRawDataPoints: cfg.Market.MinRawDataPoints,
			Resolution:       cfg.Market.ForecastResolution,
		}, log)

	checker := eligibility.NewChecker(cfg.Market.EligibilityWindowDays, cfg.Market.MinSubmissionPoints,
		eligibility.NewSubmissionHistory(st.submissions),
		eligibility.NewUploadHistory(st.uploads))
	a.ledger = submission.NewLedger(st.submissions, a.challenges, checker, notifier, a.metrics, log)
	a.ensembles = ensemble.NewRegistry(st.ensembles, a.challenges, a.metrics, log)
	a.scores = scoring.NewEngine(st.scores, a.challenges, cache, log)

	log.WithFields(map[string]interface{}{
		"store": cfg.Store,
		"redis": a.redis.Enabled(),
	}).Info("Market services initialized")

	return a, nil
}

func (a *app) openStores(ctx context.Context) (*stores, error) {
	if a.cfg.Store == config.StoreMemory {
		a.log.Warn("Using in-memory store, data is lost on exit")
		mem := memstore.New()
		return &stores{
			sessions:     mem.Sessions(),
			challenges:   mem.Challenges(),
			submissions:  mem.Submissions(),
			ensembles:    mem.Ensembles(),
			scores:       mem.Scores(),
			resources:    mem,
			measurements: mem,
			uploads:      mem,
		}, nil
	}

	db, err := database.New(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.db = db
	a.log.Info("Connected to database")

	if migrateOnStart {
		if _, err := db.Migrate(ctx, a.log); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	data := measurements.NewRepository(db.Pool)
	return &stores{
		sessions:     session.NewRepository(db.Pool),
		challenges:   challenge.NewRepository(db.Pool),
		submissions:  submission.NewRepository(db.Pool),
		ensembles:    ensemble.NewRepository(db.Pool),
		scores:       scoring.NewRepository(db.Pool),
		resources:    data,
		measurements: data,
		uploads:      data,
	}, nil
}

// health reports whether the backing stores answer
func (a *app) health(ctx context.Context) error {
	if a.db != nil {
		status, err := a.db.HealthCheck(ctx)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		a.log.WithFields(map[string]interface{}{
			"response_time":  status.ResponseTime,
			"acquired_conns": status.Stats.AcquiredConns,
			"total_conns":    status.Stats.TotalConns,
		}).Debug("Database health check")
	}
	if err := a.redis.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// close releases connections. Safe on a partially built app.
func (a *app) close() {
	if a.dispatcher != nil {
		a.dispatcher.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close redis")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

// shutdownTimeout bounds graceful shutdown of long-running commands
const shutdownTimeout = 30 * time.Second
