/*
Package main is the entry point for the HZ Bot application.

It is responsible for loading configuration, initializing the global logging system,
opening the entity store and the message bus, wiring the command dispatcher to the
platform connectors, serving the HTTP API, and gracefully handling operating system
interrupt signals (SIGINT, SIGTERM) to ensure a smooth shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"hzbot/internal/app/bus"
	"hzbot/internal/app/cache"
	"hzbot/internal/app/command"
	"hzbot/internal/app/connector/discord"
	"hzbot/internal/app/connector/local"
	"hzbot/internal/app/connector/twitch"
	"hzbot/internal/app/db"
	"hzbot/internal/app/delivery"
	"hzbot/internal/app/gate"
	"hzbot/internal/app/inquiry"
	"hzbot/internal/app/store"
	"hzbot/internal/configs"
	"hzbot/internal/handler"
	"hzbot/internal/pkg/logx"
	"hzbot/internal/pkg/telemetry"
)

// Version is reported by the ping command. Overridden at build time with -ldflags.
var Version = "dev"

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Bool("memory_store", cfg.UseMemoryStore()).
		Bool("redis_bus", cfg.RedisURL != "").
		Str("cooldown_scope", string(cfg.CooldownScope)).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry.Init()

	entityStore, err := openStore(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open entity store")
	}
	defer entityStore.Close()

	broker, err := openBroker(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open message bus")
	}
	defer broker.Close()

	entityCache := cache.New(entityStore, broker, cfg.CacheIntervals)
	if err := entityCache.Start(); err != nil {
		logx.Fatal(err, "Failed to start cache sweeps")
	}
	defer entityCache.Stop()

	if err := entityCache.SyncChannels(ctx); err != nil {
		logx.Error(err, "Failed to synchronize channel sets")
	}

	cooldowns := gate.New(cfg.CooldownScope)
	go cooldowns.Run(ctx)

	sender := delivery.NewSender(entityCache, broker, cfg.OutgoingTopicPrefix)
	dispatcher := command.NewDispatcher(entityCache, cooldowns, inquiry.New(), sender, command.Config{
		DefaultPrefix:   cfg.CommandPrefix,
		DefaultCooldown: cfg.DefaultCooldown,
		StoreTimeout:    cfg.StoreTimeout,
		AdminUser:       cfg.AdminUser,
		Version:         Version,
	})

	// Start platform connectors
	var connectors sync.WaitGroup
	runConnector := func(name string, run func(context.Context) error) {
		connectors.Add(1)
		go func() {
			defer connectors.Done()
			logx.Info("Connector starting", "platform", name)
			if err := run(ctx); err != nil && ctx.Err() == nil {
				logx.Error(err, "Connector stopped unexpectedly", "platform", name)
			}
		}()
	}

	localManager := local.NewManager(ctx, dispatcher, broker, local.Config{
		OutgoingPrefix: cfg.OutgoingTopicPrefix,
		CommandPrefix:  cfg.CommandPrefix,
		ModAddrs:       cfg.LocalModAddrs,
	})
	runConnector("local", localManager.Run)

	if cfg.TwitchUsername != "" {
		tw := twitch.New(twitch.Config{
			Username:       cfg.TwitchUsername,
			OAuthToken:     cfg.TwitchOAuthToken,
			OutgoingPrefix: cfg.OutgoingTopicPrefix,
		}, dispatcher, broker, broker)
		runConnector("twitch", tw.Run)
	}

	if cfg.DiscordToken != "" {
		dc, err := discord.New(discord.Config{
			Token:          cfg.DiscordToken,
			OutgoingPrefix: cfg.OutgoingTopicPrefix,
		}, dispatcher, broker)
		if err != nil {
			logx.Error(err, "Failed to create Discord connector")
		} else {
			runConnector("discord", dc.Run)
		}
	}

	// Setup HTTP server and routes
	router := handler.Router(ctx, &handler.AppDeps{
		Config: cfg,
		Cache:  entityCache,
		Local:  localManager,
	})

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("HZ Bot server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	localManager.Shutdown()
	connectors.Wait()

	logx.Info("Server gracefully stopped.")
}

func openStore(ctx context.Context, cfg *configs.AppConfig) (store.Store, error) {
	if cfg.UseMemoryStore() {
		logx.Warn("Using the in-memory entity store, nothing will be persisted")
		return store.NewMemory(), nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	return store.NewPostgres(pool), nil
}

func openBroker(ctx context.Context, cfg *configs.AppConfig) (bus.Broker, error) {
	if cfg.RedisURL == "" {
		return bus.NewHub(), nil
	}
	return bus.NewRedis(ctx, cfg.RedisURL)
}
