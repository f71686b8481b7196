package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/martagiraldo/promptstash-backend/api/controllers"
	"github.com/martagiraldo/promptstash-backend/api/routes"
	"github.com/martagiraldo/promptstash-backend/internal/analytics"
	"github.com/martagiraldo/promptstash-backend/internal/subscriptions"
	"github.com/martagiraldo/promptstash-backend/internal/tiers"
	"github.com/martagiraldo/promptstash-backend/internal/usage"
	"github.com/martagiraldo/promptstash-backend/internal/users"
	"github.com/martagiraldo/promptstash-backend/pkg/config"
	"github.com/martagiraldo/promptstash-backend/pkg/db"
	"github.com/martagiraldo/promptstash-backend/pkg/logger"
	"github.com/martagiraldo/promptstash-backend/pkg/metrics"
	"github.com/martagiraldo/promptstash-backend/pkg/migrate"
	"github.com/martagiraldo/promptstash-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	usersRepo := users.NewRepository(dbClient.DB())
	tiersRepo := tiers.NewRepository(dbClient.DB())
	usageRepo := usage.NewRepository(dbClient.DB())
	subsRepo := subscriptions.NewRepository(dbClient.DB())

	tierService, err := tiers.NewService(tiers.ServiceParams{Repo: tiersRepo})
	if err != nil {
		logg.Error(context.Background(), "failed to create tier service", err)
		os.Exit(1)
	}

	quotaMetrics := metrics.NewQuotaMetrics(prometheus.DefaultRegisterer)
	usageService, err := usage.NewService(usage.ServiceParams{
		Repo:    usageRepo,
		Users:   usersRepo,
		Tiers:   tiersRepo,
		Metrics: quotaMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create usage service", err)
		os.Exit(1)
	}

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:      subsRepo,
		Users:     usersRepo,
		Tiers:     tiersRepo,
		Tx:        dbClient,
		Logger:    logg,
		TrialDays: cfg.Billing.TrialDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	analyticsService, err := analytics.NewService(analytics.ServiceParams{
		Usage:         usageService,
		Users:         usersRepo,
		Tiers:         tiersRepo,
		Subscriptions: subsRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create analytics service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:        cfg,
			Logger:        logg,
			Usage:         usageService,
			Subscriptions: subscriptionService,
			Analytics:     analyticsService,
			Tiers:         tierService,
			Readiness: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
