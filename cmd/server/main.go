package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/campaign-automation/internal/adapters/notify"
	"github.com/frostdev-ops/campaign-automation/internal/adapters/platform"
	"github.com/frostdev-ops/campaign-automation/internal/api"
	"github.com/frostdev-ops/campaign-automation/internal/api/handlers"
	"github.com/frostdev-ops/campaign-automation/internal/config"
	"github.com/frostdev-ops/campaign-automation/internal/core/alerts"
	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
	"github.com/frostdev-ops/campaign-automation/internal/core/metrics"
	"github.com/frostdev-ops/campaign-automation/internal/core/scheduler"
	"github.com/frostdev-ops/campaign-automation/internal/database"
	"github.com/frostdev-ops/campaign-automation/internal/websocket"
	"github.com/frostdev-ops/campaign-automation/pkg/logger"
	"github.com/frostdev-ops/campaign-automation/pkg/version"
)

const redisLockPrefix = "campaign-automation:lock:"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{}).Fatal("Failed to load configuration: ", err)
	}

	log := logger.New(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	build := version.GetBuildInfo()
	log.WithFields(logrus.Fields{
		"version":    build.Version,
		"git_commit": build.GitCommit,
		"build_date": build.BuildDate,
	}).Info("Starting campaign automation")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.Initialize(cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to initialize database: ", err)
	}
	defer db.Close()

	if cfg.Database.Migration.Enabled {
		if err := database.Migrate(db); err != nil {
			log.Fatal("Failed to run migrations: ", err)
		}
	}
	repos := database.NewRepositories(db, log)

	var collector *metrics.PrometheusCollector
	if cfg.Metrics.Enabled {
		collector = metrics.NewPrometheusCollector(&metrics.MetricsConfig{Enabled: true, Prefix: cfg.Metrics.Prefix})
	}

	// In-app push
	hub := websocket.NewHub(log)
	if collector != nil {
		hub.SetObserver(collector)
	}
	go hub.Run(ctx)

	gateway, err := platform.NewClient(cfg.Gateway, log)
	if err != nil {
		log.Fatal("Failed to create platform gateway client: ", err)
	}

	notifier, closeNotifier := buildNotifier(cfg.Notifications, repos, hub, log)
	defer closeNotifier()

	// Automation core
	location := cfg.Scheduler.Location()
	dispatcher := automation.NewDispatcher(gateway, notifier, cfg.Automation.ActionTimeout, log)
	aggregator := automation.NewAggregator(repos.Campaigns, location, cfg.Automation.MetricsTimeout)
	engine := automation.NewEngine(repos.Rules, repos.Campaigns, aggregator,
		automation.NewRateLimiter(repos.Rules, location), dispatcher, log)
	workflow := automation.NewApprovalWorkflow(repos.Rules, dispatcher, log)
	evaluator := alerts.NewEvaluator(repos.Alerts, repos.Campaigns, aggregator, notifier, location, log)

	lock, closeLock := buildPassLock(ctx, cfg, log)
	defer closeLock()

	driver := scheduler.NewDriver(scheduler.DriverDeps{
		Organizations: repos.Rules,
		Rules:         repos.Rules,
		Engine:        engine,
		Approvals:     workflow,
		Alerts:        repos.Alerts,
		Evaluator:     evaluator,
		Lock:          lock,
	}, cfg.Scheduler.Workers, log)

	var exporter api.MetricsExporter
	if collector != nil {
		dispatcher.SetObserver(collector)
		workflow.SetObserver(collector)
		driver.SetObserver(collector)
		exporter = collector
	}

	var runner *scheduler.Runner
	if cfg.Scheduler.Enabled {
		runner, err = scheduler.NewRunner(driver, scheduler.RunnerConfig{
			RulesSchedule:  cfg.Scheduler.RulesSchedule,
			AlertsSchedule: cfg.Scheduler.AlertsSchedule,
			Location:       location,
			DrainTimeout:   cfg.Server.ShutdownTimeout,
		}, log)
		if err != nil {
			log.Fatal("Failed to create scheduler: ", err)
		}
		if err := runner.Start(ctx); err != nil {
			log.Fatal("Failed to start scheduler: ", err)
		}
	} else {
		log.Warn("Scheduler disabled; passes run only on demand")
	}

	router := api.NewRouter(cfg.Server, handlers.Deps{
		Rules:         repos.Rules,
		Alerts:        repos.Alerts,
		Campaigns:     repos.Campaigns,
		Notifications: repos.Notifications,
		Passes:        driver,
		Approvals:     workflow,
		AlertHistory:  evaluator,
		Connections:   hub,
	}, api.Options{Hub: hub, Metrics: exporter}, log)

	srv := &http.Server{
		Addr:        cfg.Server.Address(),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// manual passes run inside the request
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("address", srv.Addr).Info("Admin API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Admin API server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Admin API did not shut down cleanly")
	}
	if runner != nil {
		if err := runner.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop scheduler")
		}
	}

	log.Info("Server exited")
}

// buildNotifier registers a sink for every configured channel. In-app is
// always available.
func buildNotifier(cfg config.NotificationsConfig, repos *database.Repositories, hub *websocket.Hub, log *logrus.Logger) (*notify.Notifier, func()) {
	notifier := notify.NewNotifier(cfg.Timeout, log)
	notifier.Register(automation.ChannelInApp, notify.NewInAppSink(repos.Notifications, hub))

	if cfg.SlackWebhookURL != "" {
		notifier.Register(automation.ChannelSlack, notify.NewSlackSink(cfg.SlackWebhookURL, cfg.Timeout))
	}

	closeFn := func() {}
	if cfg.NATS.Enabled {
		queue, err := notify.ConnectEmailQueue(cfg.NATS, log)
		if err != nil {
			log.WithError(err).Error("Email notifications disabled")
		} else {
			notifier.Register(automation.ChannelEmail, queue)
			closeFn = queue.Close
		}
	}

	log.WithField("channels", notifier.Channels()).Info("Notification channels configured")
	return notifier, closeFn
}

func buildPassLock(ctx context.Context, cfg *config.Config, log *logrus.Logger) (scheduler.PassLock, func()) {
	if cfg.Scheduler.Lock.Backend != "redis" {
		return scheduler.NewLocalLock(), func() {}
	}

	client, err := scheduler.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("Failed to connect pass lock backend: ", err)
	}
	log.WithField("addr", cfg.Redis.Addr).Info("Using Redis pass lock")
	return scheduler.NewRedisLock(client, redisLockPrefix, cfg.Scheduler.Lock.TTL, log), func() { client.Close() }
}
