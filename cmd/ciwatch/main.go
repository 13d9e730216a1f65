// ciwatch ingests CI workflow runs from GitHub Actions and evaluates
// user-defined alert rules against them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"

	"github.com/kwestby/ciwatch/internal/alerting"
	"github.com/kwestby/ciwatch/internal/api"
	"github.com/kwestby/ciwatch/internal/conf"
	"github.com/kwestby/ciwatch/internal/datastore"
	"github.com/kwestby/ciwatch/internal/datastore/repository"
	"github.com/kwestby/ciwatch/internal/ingest"
	"github.com/kwestby/ciwatch/internal/logger"
)

func main() {
	configFile := flag.String("config", "", "path to config file (default: ciwatch.yaml in . or /etc/ciwatch)")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintln(os.Stderr, "ciwatch:", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	settings, err := conf.Load(configFile)
	if err != nil {
		return err
	}

	log := logger.NewSlogLogger(os.Stderr, logger.ParseLevel(settings.Log.Level), nil)

	manager, err := datastore.Open(settings.Database.Dialect, settings.Database.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = manager.Close() }()

	if err := manager.Migrate(); err != nil {
		return err
	}

	runRepo := repository.NewRunRepository(manager.DB())
	cursorRepo := repository.NewCursorRepository(manager.DB(), manager.IsMySQL())
	alertRuleRepo := repository.NewAlertRuleRepository(manager.DB())

	dispatcher := alerting.NewDispatcher(
		log.With(logger.String("component", "dispatcher")),
		settings.Alerting.DispatchTimeout.Std(),
	)
	evaluator := alerting.NewEvaluator(
		alertRuleRepo,
		runRepo,
		dispatcher.Dispatch,
		settings.Alerting.SuppressionWindow.Std(),
		log.With(logger.String("component", "evaluator")),
	)

	source := ingest.NewGitHubSource(
		settings.GitHub.APIBaseURL,
		settings.GitHub.Token,
		settings.GitHub.FetchTimeout.Std(),
	)
	pipeline := ingest.NewPipeline(
		source,
		runRepo,
		cursorRepo,
		evaluator,
		settings.GitHub.SyncPageLimit,
		settings.GitHub.SyncPageSize,
		log.With(logger.String("component", "ingest")),
	)

	controller := api.NewController(pipeline, runRepo, alertRuleRepo, settings.GitHub.WebhookSecret, log.With(logger.String("component", "api")))

	e := echo.New()
	e.HideBanner = true
	controller.RegisterRoutes(e)

	if settings.GitHub.WebhookSecret == "" {
		log.Warn("webhook secret not configured; all webhook deliveries will be rejected")
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", logger.String("listen", settings.Server.Listen))
		if err := e.Start(settings.Server.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", logger.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.Server.ShutdownTimeout.Std())
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
