package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/ticketops/sla-engine/internal/api/http"
	"github.com/ticketops/sla-engine/internal/api/http/handlers"
	"github.com/ticketops/sla-engine/internal/auth"
	"github.com/ticketops/sla-engine/internal/config"
	"github.com/ticketops/sla-engine/internal/events"
	"github.com/ticketops/sla-engine/internal/notify"
	"github.com/ticketops/sla-engine/internal/observability"
	"github.com/ticketops/sla-engine/internal/persistence"
	"github.com/ticketops/sla-engine/internal/repository"
	"github.com/ticketops/sla-engine/internal/service"
	"github.com/ticketops/sla-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	policyRepo := repository.NewPolicyRepository(pool)
	violationRepo := repository.NewViolationRepository(pool)
	escalationRepo := repository.NewEscalationRepository(pool)
	ruleRepo := repository.NewRuleRepository(pool)
	logRepo := repository.NewNotificationLogRepository(pool)
	reportRepo := repository.NewReportRepository(pool)

	dispatcher := events.NewInMemoryDispatcher(func(event events.Event, err error) {
		logger.Error("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	})

	channels := []notify.Channel{
		notify.NewEmailChannel(cfg.Channels.Email),
		notify.NewChatChannel(cfg.Channels.ChatWebhookURL, nil),
		notify.NewWebhookChannel(cfg.Channels.WebhookEndpoints, cfg.Channels.WebhookSecret, nil),
		notify.NewRealtimeChannel(redis),
	}
	notifyDispatcher := notify.NewDispatcher(logRepo, channels, cfg.Dispatch.ChannelTimeout(), logger, metrics)

	policyService := service.NewPolicyService(policyRepo)
	escalationService := service.NewEscalationService(service.EscalationDependencies{
		TicketRepo:     ticketRepo,
		EscalationRepo: escalationRepo,
		Locker:         redis,
		Assignees:      service.NewTierAssignees(cfg.SLA.EscalationContacts),
		Dispatcher:     dispatcher,
		Logger:         logger,
		Metrics:        metrics,
	})
	detectorService := service.NewDetectorService(cfg.SLA, service.DetectorDependencies{
		TicketRepo:    ticketRepo,
		ViolationRepo: violationRepo,
		Resolver:      policyService,
		Escalator:     escalationService,
		Dispatcher:    dispatcher,
		Logger:        logger,
		Metrics:       metrics,
	})
	ruleService := service.NewRuleService(ruleRepo, logger)
	reportService := service.NewReportService(reportRepo)
	pipeline := service.NewNotificationPipeline(ruleService, notifyDispatcher, logger)

	detectorService.RegisterHandlers(dispatcher)
	pipeline.RegisterHandlers(dispatcher)

	go worker.NewSweepWorker(detectorService, cfg.SLA.SweepInterval(), logger).Run(ctx)
	go worker.NewDelayWorker(logRepo, notifyDispatcher, cfg.Dispatch.DelayPollInterval(),
		cfg.Dispatch.DelayBatchSize, logger).Run(ctx)

	authMiddleware := auth.NewAuthMiddleware(auth.NewTokenManager(cfg.Auth.JWTSecret), cfg.Auth.APIKeyHash)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Events:         handlers.NewEventsHandler(dispatcher, detectorService),
		Policies:       handlers.NewPoliciesHandler(policyService),
		Rules:          handlers.NewRulesHandler(ruleService),
		Violations:     handlers.NewViolationsHandler(detectorService),
		Escalations:    handlers.NewEscalationsHandler(escalationService),
		Notifications:  handlers.NewNotificationsHandler(logRepo),
		Reports:        handlers.NewReportsHandler(reportService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
