package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koelab/koe-sentinel/internal/cache"
	"github.com/koelab/koe-sentinel/internal/config"
	"github.com/koelab/koe-sentinel/internal/logger"
	"github.com/koelab/koe-sentinel/internal/privacy"
	"github.com/koelab/koe-sentinel/internal/reformat"
	"github.com/koelab/koe-sentinel/internal/secrets"
	"github.com/koelab/koe-sentinel/internal/server"
	"github.com/koelab/koe-sentinel/internal/settings"
	"github.com/koelab/koe-sentinel/internal/stats"
	"github.com/koelab/koe-sentinel/internal/transcribe"
	"github.com/koelab/koe-sentinel/internal/websocket"
	"go.uber.org/zap"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("Koe-Sentinel %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Koe-Sentinel",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	// WebSocket hub doubles as the settings-change notifier.
	hub := websocket.NewHub(&websocket.HubConfig{
		BroadcastSettings: cfg.WebSocket.Events.BroadcastSettings,
		BroadcastMasking:  cfg.WebSocket.Events.BroadcastMasking,
		BroadcastPTT:      cfg.WebSocket.Events.BroadcastPTT,
		BroadcastSystem:   cfg.WebSocket.Events.BroadcastSystem,
		AllowedOrigins:    cfg.WebSocket.AllowedOrigins,
	}, log.WithComponent("websocket").Logger)

	settingsStore := settings.NewStore(cfg.Storage.SettingsPath, log.WithComponent("settings"), hub)
	secretsStore := secrets.NewStore(cfg.Storage.SecretsPath)
	masker := privacy.NewMasker(log.WithComponent("privacy"))

	var formatCache *cache.FormatCache
	if cfg.Cache.Enabled {
		formatCache, err = cache.NewFormatCache(&cache.Config{
			RedisURL:       cfg.Cache.RedisURL,
			MaxConnections: cfg.Cache.MaxConnections,
			MinIdleConns:   cfg.Cache.MinIdleConns,
			DefaultTTL:     cfg.Cache.DefaultTTL,
			KeyPrefix:      cfg.Cache.KeyPrefix,
		}, log.WithComponent("cache").Logger)
		if err != nil {
			log.Warn("Reformat cache unavailable, continuing without it", zap.Error(err))
			formatCache = nil
		} else {
			defer formatCache.Close()
		}
	}

	var statsStore *stats.Store
	if cfg.Stats.Enabled {
		statsStore, err = stats.NewStore(&stats.Config{
			DatabaseURL:     cfg.Stats.DatabaseURL,
			MaxOpenConns:    cfg.Stats.MaxOpenConns,
			MaxIdleConns:    cfg.Stats.MaxIdleConns,
			ConnMaxLifetime: cfg.Stats.ConnMaxLifetime,
		}, log.WithComponent("stats").Logger)
		if err != nil {
			log.Warn("Usage-stats store unavailable, continuing without it", zap.Error(err))
			statsStore = nil
		} else {
			defer statsStore.Close()
			go runStatsPruner(statsStore, settingsStore, cfg.Stats.PruneInterval, log)
		}
	}

	transcriber := transcribe.NewClient(cfg.Upstream.GroqURL, cfg.Upstream.Timeout, secretsStore, log.WithComponent("transcribe"))
	reformatter := reformat.NewClient(cfg.Upstream.GeminiURL, cfg.Upstream.Timeout, secretsStore, formatCache, log.WithComponent("reformat"))

	deps := server.Deps{
		Settings:    settingsStore,
		Secrets:     secretsStore,
		Masker:      masker,
		Transcriber: transcriber,
		Reformatter: reformatter,
		Hub:         hub,
	}
	if statsStore != nil {
		deps.Stats = statsStore
	}

	srv, err := server.New(cfg, log, deps)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	// Process config changes require a restart; just make that visible.
	if err := config.Watch(cfg, func(newCfg *config.Config) {
		log.Info("Configuration file changed; restart to apply",
			zap.Int("new_port", newCfg.Server.Port))
	}); err != nil {
		log.Warn("Configuration watch unavailable", zap.Error(err))
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// runStatsPruner periodically deletes usage-stats rows older than the
// user-configured retention window.
func runStatsPruner(store *stats.Store, settingsStore *settings.Store, interval time.Duration, log *logger.Logger) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		snapshot := settingsStore.Get()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if _, err := store.PruneOlderThan(ctx, snapshot.AutoDeleteLogsAfterDays); err != nil {
			log.Warn("Usage-stats prune failed", zap.Error(err))
		}
		cancel()
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck() {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://localhost:8818/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
