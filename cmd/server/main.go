package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/InviteGate/config"
	appmodel "github.com/sifan077/InviteGate/internal/app/model"
	apprepository "github.com/sifan077/InviteGate/internal/app/repository"
	appserver "github.com/sifan077/InviteGate/internal/app/server"
	appservice "github.com/sifan077/InviteGate/internal/app/service"
	"github.com/sifan077/InviteGate/internal/http/middleware"
	"github.com/sifan077/InviteGate/internal/infra/captcha"
	"github.com/sifan077/InviteGate/internal/infra/database"
	"github.com/sifan077/InviteGate/internal/infra/discord"
	"github.com/sifan077/InviteGate/internal/infra/logger"
	infraNATS "github.com/sifan077/InviteGate/internal/infra/nats"
	infraPrometheus "github.com/sifan077/InviteGate/internal/infra/prometheus"
	infraRedis "github.com/sifan077/InviteGate/internal/infra/redis"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.MustInit(logger.Config{Development: true}).Fatal("Failed to load config", zap.Error(err))
	}

	log := logger.MustInit(logger.FromApp(cfg.App))
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("env", cfg.App.Env),
		zap.String("addr", cfg.App.Addr),
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("redis_addr", infraRedis.Addr(cfg.Redis)),
		zap.Bool("nats_enabled", cfg.NATS.Enabled),
		zap.Bool("prometheus_enabled", cfg.Prometheus.Enabled),
		zap.Int("admins", len(cfg.Admin.IDs)),
	)

	gormDB, err := database.Open(cfg.Database, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := database.AutoMigrate(ctx, gormDB, &appmodel.Account{}, &appmodel.InviteMapping{}, &appmodel.AuditEvent{}); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}
	log.Info("Database ready", zap.String("driver", cfg.Database.Driver))

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	accountRepo := apprepository.NewAccountRepository(gormDB)
	mappingRepo := apprepository.NewMappingRepository(gormDB)
	auditRepo := apprepository.NewAuditEventRepository(gormDB)

	var (
		js         nats.JetStreamContext
		filterSync *appservice.FilterSync
	)
	if cfg.NATS.Enabled {
		natsConn, jsCtx, err := infraNATS.Connect(cfg.NATS, logger.Named("nats"))
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer natsConn.Drain()
		js = jsCtx
		filterSync = appservice.NewFilterSync(natsConn, logger.Named("filter-sync"))
		log.Info("Connected to NATS successfully", zap.String("url", infraNATS.URL(cfg.NATS)))

		consumer := appservice.NewAuditConsumer(js, logger.Named("audit-consumer"), auditRepo)
		if err := consumer.Start(ctx); err != nil {
			log.Fatal("Failed to start audit consumer", zap.Error(err))
		}
	} else {
		log.Info("NATS disabled, audit events are not recorded")
	}
	audit := appservice.NewAuditPublisher(js, logger.Named("audit"))

	if cfg.Prometheus.Enabled {
		promServer := infraPrometheus.NewServer(cfg.Prometheus, infraPrometheus.Registry)
		go func() {
			log.Info("Starting Prometheus metrics server", zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	}

	discordClient := discord.New(discord.Config{
		ClientID:     cfg.Discord.ClientID,
		ClientSecret: cfg.Discord.ClientSecret,
		BotToken:     cfg.Discord.BotToken,
		APIBase:      cfg.Discord.APIBase,
		Timeout:      cfg.Discord.Timeout,
	})
	captchaClient := captcha.New(captcha.Config{
		Secret:    cfg.Captcha.Secret,
		SiteKey:   cfg.Captcha.SiteKey,
		VerifyURL: cfg.Captcha.VerifyURL,
		Timeout:   cfg.Captcha.Timeout,
	})

	mappingService := appservice.NewMappingService(appservice.MappingDeps{
		Logger:   logger.Named("mappings"),
		Mappings: mappingRepo,
		Accounts: accountRepo,
		Captcha:  captchaClient,
		Audit:    audit,
		Sync:     filterSync,

		TrustFilterMisses: cfg.URLFilter.TrustMisses,
	})
	if err := filterSync.Start(mappingService.Learn); err != nil {
		log.Fatal("Failed to start custom URL filter sync", zap.Error(err))
	}
	defer filterSync.Stop()
	if err := mappingService.RebuildFilter(ctx); err != nil {
		log.Fatal("Failed to warm custom URL filter", zap.Error(err))
	}
	refresher := appservice.NewFilterRefresher(logger.Named("filter-refresher"), mappingService, cfg.URLFilter.Refresh)
	refresher.Start()
	defer refresher.Stop()

	joinFlow := appservice.NewJoinFlow(appservice.JoinFlowDeps{
		Logger:      logger.Named("join"),
		Mappings:    mappingRepo,
		Discord:     discordClient,
		Captcha:     captchaClient,
		Audit:       audit,
		RedirectURI: cfg.Discord.JoinRedirectURI,
	})

	server := appserver.New(appserver.Dependencies{
		Logger:         log,
		SessionStorage: infraRedis.NewStorage(redisClient, ""),
		Limiter:        redisClient,
		RateLimit: middleware.RateLimitConfig{
			MaxRequests: cfg.RateLimit.MaxRequests,
			Window:      cfg.RateLimit.Window,
		},
		Mappings:    mappingService,
		Accounts:    appservice.NewAccountService(logger.Named("accounts"), accountRepo, audit),
		Join:        joinFlow,
		OAuth:       discordClient,
		AuditEvents: auditRepo,
		Ping: func(ctx context.Context) error {
			return database.Ping(ctx, gormDB)
		},
		Admins:            cfg.Admin.IDs,
		SessionSecret:     cfg.Session.Secret,
		SessionExpiration: cfg.Session.Expiration,
		CookieSecure:      cfg.Session.CookieSecure || cfg.IsProduction(),
		LoginRedirectURI:  cfg.Discord.LoginRedirectURI,
		JoinRedirectURI:   cfg.Discord.JoinRedirectURI,
		CaptchaSiteKey:    captchaClient.SiteKey(),
	})

	go func() {
		<-ctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("Fiber shutdown failed", zap.Error(err))
		}
	}()

	log.Info("Starting HTTP server", zap.String("addr", cfg.App.Addr))
	if err := server.Listen(cfg.App.Addr); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}
