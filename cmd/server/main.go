package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoAffiliate/tiergate/internal/admission"
	"github.com/GoAffiliate/tiergate/internal/backend"
	"github.com/GoAffiliate/tiergate/internal/config"
	"github.com/GoAffiliate/tiergate/internal/handler"
	"github.com/GoAffiliate/tiergate/internal/ledger"
	"github.com/GoAffiliate/tiergate/internal/middleware"
	"github.com/GoAffiliate/tiergate/internal/model"
	"github.com/GoAffiliate/tiergate/internal/notify"
	"github.com/GoAffiliate/tiergate/internal/pkg/logger"
	"github.com/GoAffiliate/tiergate/internal/repository"
	"github.com/GoAffiliate/tiergate/internal/tier"
	"github.com/GoAffiliate/tiergate/internal/usage"
	"github.com/GoAffiliate/tiergate/internal/warning"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Server.LogLevel, "json")

	// 2. Static Tier Definitions
	tiers := tier.NewRegistry(cfg.Tiers)
	if err := tiers.ValidateTotal(cfg.Program.MaxAffiliates); err != nil {
		// soft invariant: log loudly and keep going
		logger.Error("⚠️ Tier configuration mismatch", "error", err)
	}

	// 3. Initialize Persistence
	// Usage counters (Redis > Memory)
	var usageStore usage.Store
	if cfg.Redis.Addr != "" {
		redisClient, err := repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("✅ Connected to Redis")
			usageStore = redisClient
		} else {
			logger.Error("⚠️ Failed to connect to Redis, falling back to memory", "error", err)
		}
	}
	if usageStore == nil {
		usageStore = usage.NewMemoryStore()
	}

	// Warning history (Postgres > ring buffer only)
	var warningRepo warning.HistoryRepo
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err == nil {
			repo, merr := repository.NewPostgresWarningRepo(db)
			if merr == nil {
				logger.Info("✅ Connected to PostgreSQL")
				warningRepo = repo
				if days := cfg.Database.WarningRetentionDays; days > 0 {
					retention := time.Duration(days) * 24 * time.Hour
					go func() {
						ticker := time.NewTicker(24 * time.Hour)
						defer ticker.Stop()
						for range ticker.C {
							if err := repo.Cleanup(context.Background(), retention); err != nil {
								logger.Error("Warning history cleanup failed", "error", err)
							}
						}
					}()
				}
			} else {
				logger.Error("⚠️ Warning table migration failed, history will be memory-only", "error", merr)
			}
		} else {
			logger.Error("⚠️ Failed to connect to DB, warning history will be memory-only", "error", err)
		}
	}

	// 4. Initialize Core Services
	client := backend.NewHTTPClient(cfg.Backend)
	led := ledger.New(client, tiers, cfg.Program)

	displayFor := time.Duration(cfg.Refresh.WarningDisplaySeconds) * time.Second
	engine := warning.New(tiers, displayFor)
	history := warning.NewHistory(warningRepo)
	engine.SetSink(history)

	notifier := notify.New()
	hub := notify.NewHub()
	notifier.Subscribe(hub)

	led.OnUpdate(func(snap *model.CapacitySnapshot) {
		engine.Evaluate(snap)
		notifier.Publish(snap)
	})

	admissionSvc := admission.New(client, led, tiers, usageStore, cfg.Refresh)

	// 5. Initialize Handlers and Router
	capacityHandler := handler.NewCapacityHandler(led, engine, history, hub)
	admissionHandler := handler.NewAdmissionHandler(admissionSvc, led, tiers)

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "tiergate"})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg))
	v1.Use(middleware.RateLimitMiddleware(admissionSvc))
	{
		v1.GET("/capacity", capacityHandler.GetCapacity)
		v1.GET("/capacity/status", capacityHandler.GetStatus)
		v1.POST("/capacity/refresh", capacityHandler.Refresh)
		v1.GET("/capacity/ws", capacityHandler.ServeWS)

		v1.GET("/warnings", capacityHandler.GetWarnings)
		v1.DELETE("/warnings/:key", capacityHandler.DismissWarning)

		v1.GET("/tiers", admissionHandler.ListTiers)
		v1.GET("/tiers/:name/capacity", admissionHandler.GetTierCapacity)
		v1.GET("/signup/tier", admissionHandler.GetSignupTier)

		v1.GET("/affiliates/:id/tier", admissionHandler.GetTierStatus)
		v1.GET("/affiliates/:id/upgrade", admissionHandler.GetUpgradeEligibility)
		v1.POST("/affiliates/:id/upgrade", admissionHandler.RequestUpgrade)

		v1.POST("/admission/check", admissionHandler.CheckAction)
	}

	admin := r.Group("/v1/admin")
	admin.Use(middleware.AdminMiddleware(cfg))
	{
		admin.POST("/warnings/reset", capacityHandler.ResetWarnings)
		admin.GET("/warnings/history", capacityHandler.WarningHistory)
	}

	// 6. First Refresh + Periodic Schedule
	// Best effort: a dead backend at boot must not stop the service.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if _, err := led.Refresh(startupCtx); err != nil {
		logger.Warn("Initial capacity refresh failed, will retry on schedule", "error", err)
	}
	startupCancel()
	led.StartPeriodic(time.Duration(cfg.Refresh.IntervalSeconds) * time.Second)

	// 7. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("🚀 TierGate started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	led.Stop()
	hub.Close()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	// after the server drains: an in-flight refresh can fire warnings until
	// the last request completes
	history.Close()

	logger.Info("Server exiting")
}
