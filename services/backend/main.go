package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diagnosis/ukrbe-market/internal/database"
	"github.com/diagnosis/ukrbe-market/pkg/config"
	pgdb "github.com/diagnosis/ukrbe-market/pkg/database"
	"github.com/diagnosis/ukrbe-market/pkg/events"
	"github.com/diagnosis/ukrbe-market/pkg/logger"
	mw "github.com/diagnosis/ukrbe-market/pkg/middleware"
	"github.com/diagnosis/ukrbe-market/services/backend/internal/handlers"
	"github.com/diagnosis/ukrbe-market/services/backend/internal/repository"
	"github.com/diagnosis/ukrbe-market/services/backend/internal/service"
	"github.com/diagnosis/ukrbe-market/services/backend/internal/sms"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := pgdb.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Error("Failed to prepare schema", "error", err)
		os.Exit(1)
	}

	// Connect to event bus
	var eventBus events.Publisher = events.Nop{}
	if cfg.NATS.URL != "" {
		bus, err := events.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		eventBus = bus
	} else {
		logger.Warn("NATS_URL not set, listing change events disabled")
	}
	defer eventBus.Close()

	// Redis backs the server-side SMS quota; without it the quota is skipped.
	var quota repository.SMSQuotaRepository
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis unavailable, SMS quota disabled", "error", err)
	} else {
		quota = repository.NewSMSQuotaRepository(rdb, cfg.Redis.KeyPrefix)
	}
	cancel()
	defer rdb.Close()

	var sender sms.Sender
	if cfg.SMS.DevMode {
		sender = sms.NewDevSender()
		logger.Info("SMS dev mode: codes are logged, not sent")
	} else {
		sender = sms.NewMailerSend(cfg.SMS.MailerSendKey, cfg.SMS.From)
	}

	// Initialize repositories
	listingRepo := repository.NewListingRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)
	codeRepo := repository.NewCodeRepository(pool)

	// Initialize services
	authService := service.NewAuthService(profileRepo, codeRepo, quota, sender, cfg)
	listingService := service.NewListingService(listingRepo, eventBus)

	h := handlers.New(authService, listingService, cfg)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("backend"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(mw.CORS(cfg.Agent.Origins))
	h.Routes(r)

	go cleanupCodes(ctx, codeRepo)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down backend...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Backend shutdown error", "error", err)
		}
	}()

	logger.Info("Starting backend", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Backend error", "error", err)
		os.Exit(1)
	}
}

func cleanupCodes(ctx context.Context, codes repository.CodeRepository) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := codes.DeleteExpired(ctx)
			if err != nil {
				logger.Warn("Failed to delete expired codes", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("Deleted expired codes", "count", n)
			}
		}
	}
}
