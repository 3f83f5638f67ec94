package main

import (
	"context"
	"time"

	"nurtura/config"
	"nurtura/engine"
	"nurtura/middleware"
	"nurtura/routes"
	"nurtura/tracker"
	"nurtura/utils"
	"nurtura/worker"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Warnf("Sentry initialization failed: %v", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	profile, err := engine.ParseTimingProfile(config.AppConfig.TimingProfile)
	if err != nil {
		logger.Fatalf("Invalid timing profile: %v", err)
	}

	// Shared components.
	trk := tracker.NewGormTracker(config.DB)
	hub := engine.NewProgressHub()
	mailer := utils.NewMailer(config.AppConfig.SMTP)
	notifier := utils.NewSlackNotifier(config.AppConfig.SlackWebhookURL, logger.WithField("component", "slack"))

	executor := engine.NewExecutor(trk, mailer, logger.WithField("component", "executor"))
	executor.Notifier = notifier
	executor.Hub = hub

	queue := worker.NewQueue(config.DB)
	orchestrator := engine.NewOrchestrator(trk, queue, profile, logger.WithField("component", "orchestrator"))
	if !config.AppConfig.SkipAddressVetting {
		orchestrator.Checker = utils.NewAddressVerifier(logger.WithField("component", "verifier"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stepWorker := worker.NewStepWorker(
		config.DB,
		executor,
		trk,
		logger.WithField("component", "step-worker"),
		config.AppConfig.WorkerPollInterval,
		config.AppConfig.WorkerMaxAttempts,
	)
	go stepWorker.Start(ctx)

	replyWorker := worker.NewReplyWorker(
		trk,
		logger.WithField("component", "reply-worker"),
		config.AppConfig.IMAP,
		config.AppConfig.Google,
		config.AppConfig.ReplyPollInterval,
	)
	go replyWorker.Start(ctx)

	app := fiber.New()
	app.Use(middleware.CORS())

	routes.SetupRoutes(app, routes.Deps{
		Tracker:      trk,
		Orchestrator: orchestrator,
		Hub:          hub,
		Logger:       logger,
	})

	logger.Infof("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
