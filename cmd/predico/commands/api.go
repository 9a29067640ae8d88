package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/predico/internal/api"
	"github.com/wonny/predico/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `마켓 REST API 서버를 시작합니다.

Endpoints:
  GET   /health
  GET   /metrics
  GET   /ws/events
  POST  /api/market/session
  GET   /api/market/session
  GET   /api/market/session/{id}
  PATCH /api/market/session/{id}
  POST  /api/market/challenges
  GET   /api/market/challenges
  PATCH /api/market/challenges/{id}
  GET   /api/market/challenges/{id}/solution
  POST  /api/market/challenges/{id}/submissions
  GET   /api/market/submissions
  POST  /api/market/challenges/{id}/ensembles
  GET   /api/market/challenges/{id}/ensembles
  PUT   /api/market/ensembles/{id}/weights
  POST  /api/market/ensembles/{id}/contributions
  GET   /api/market/challenges/{id}/contributions
  GET   /api/market/challenges/{id}/scores
  POST  /api/market/challenges/{id}/scores

Example:
  go run ./cmd/predico api
  go run ./cmd/predico api --port 8080 --store memory`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본값: PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	go a.hub.Run(ctx)

	router := api.NewRouter(api.Handlers{
		Session:    handlers.NewSessionHandler(a.sessions, a.log),
		Challenge:  handlers.NewChallengeHandler(a.challenges, a.log),
		Submission: handlers.NewSubmissionHandler(a.ledger, a.log),
		Ensemble:   handlers.NewEnsembleHandler(a.ensembles, a.log),
		Score:      handlers.NewScoreHandler(a.scores, a.log),
	}, api.Options{
		Verifier:             a.verifier,
		Metrics:              a.metrics,
		Limiter:              a.limiter,
		SubmissionsPerMinute: a.cfg.Market.SubmissionsPerMinute,
		Events:               a.hub,
		RequestTimeout:       a.cfg.RequestTimeout,
		Health:               a.health,
	}, a.log)

	server := api.New(a.cfg, a.log, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}
