package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/diagnosis/ukrbe-market/internal/device"
	"github.com/diagnosis/ukrbe-market/internal/listing"
	"github.com/diagnosis/ukrbe-market/internal/otp"
	"github.com/diagnosis/ukrbe-market/pkg/config"
	"github.com/diagnosis/ukrbe-market/pkg/events"
	"github.com/diagnosis/ukrbe-market/pkg/kv"
	"github.com/diagnosis/ukrbe-market/pkg/logger"
	mw "github.com/diagnosis/ukrbe-market/pkg/middleware"
	"github.com/diagnosis/ukrbe-market/services/agent/internal/actor"
	"github.com/diagnosis/ukrbe-market/services/agent/internal/handlers"
	"github.com/diagnosis/ukrbe-market/services/agent/internal/remote"
	"github.com/go-chi/chi/v5"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := kv.Open(ctx, kv.Options{
		Driver:        cfg.Agent.KVDriver,
		Path:          cfg.Agent.KVPath,
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		KeyPrefix:     cfg.Redis.KeyPrefix,
	})
	if err != nil {
		logger.Error("Failed to open local store", "driver", cfg.Agent.KVDriver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	mode := listing.ModeLocal
	var (
		client *remote.Client
		auth   otp.AuthService
	)
	if cfg.Agent.RemoteConfigured() {
		mode = listing.ModeRemote
		client = remote.NewClient(cfg.Agent.BackendURL, nil)
		auth = client
	} else {
		logger.Warn("BACKEND_URL not set, running local-only")
	}

	gate := otp.NewGate(auth, otp.NewLimiter(store), store)
	current := actor.New(gate, device.NewIdentity(store))

	var remoteStore listing.RemoteStore
	if client != nil {
		remoteStore = client.WithCredentials(current)
	}
	syncer, err := listing.NewSyncer(mode, store, remoteStore, current)
	if err != nil {
		logger.Error("Failed to create listing syncer", "error", err)
		os.Exit(1)
	}

	// Change notifications keep caches fresh while the agent runs.
	if cfg.NATS.URL != "" && mode == listing.ModeRemote {
		bus, err := events.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			logger.Warn("NATS unavailable, listing changes will not be pushed", "error", err)
		} else {
			defer bus.Close()
			for _, d := range listing.Domains {
				if err := syncer.Watch(ctx, d, bus, nil); err != nil {
					logger.Warn("Failed to watch listings", "domain", d, "error", err)
				}
			}
		}
	}

	h := handlers.New(syncer, listing.NewFavorites(store), gate)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("agent"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(mw.CORS(cfg.Agent.Origins))
	r.Route("/api", h.Routes)

	srv := &http.Server{
		Addr:         "127.0.0.1:" + cfg.Agent.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down agent...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Agent shutdown error", "error", err)
		}
	}()

	logger.Info("Starting agent", "addr", srv.Addr, "mode", mode)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Agent error", "error", err)
		os.Exit(1)
	}
}
