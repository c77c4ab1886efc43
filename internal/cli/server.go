package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scorm-quiz-service/internal/app"
	"scorm-quiz-service/internal/config"
	"scorm-quiz-service/internal/metrics"
	transport "scorm-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	log := rt.log

	metrics.Register(prometheus.DefaultRegisterer)

	scoring := app.NewScoringService(rt.quizzes, rt.docs, log)
	prefetcher := app.NewPrefetcher(rt.fetcher, cfg.Prefetch.Concurrency, rt.prefetchTimeout(), log).
		WithCache(config.TTLDuration(cfg.Prefetch.CacheTTL, 10*time.Minute), time.Now)
	attempts := app.NewAttemptService(rt.sessions, rt.quizzes, prefetcher, rt.state, scoring, log)

	handler := transport.NewHandler(transport.Services{
		Scoring:   scoring,
		Results:   app.NewResultsService(rt.docs),
		Quizzes:   app.NewQuizService(rt.store, rt.quizzes, log),
		Attempts:  attempts,
		Builder:   rt.builder(),
		Blobs:     rt.blobs,
		PublicURL: cfg.Server.PublicURL,
	}, log)
	router := transport.NewRouter(handler, transport.NewWSHandler(attempts, log), cfg.Server.CORSOrigins)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}

	go func() {
		log.Info("starting quiz service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
