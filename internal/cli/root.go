package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/healer"
	"github.com/vietddude/healer/internal/core/config"
	"github.com/vietddude/healer/internal/healing/health"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "healer",
	Short: "Self-healing element locator service",
	Long:  `Healer recovers broken UI-test selectors: it caches working locators and uses DOM and visual analysis to propose replacements when a selector stops matching.`,
	Run:   runHealer,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

func runHealer(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	// Load Configuration
	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open cache backend", "error", err)
		os.Exit(1)
	}

	// The run command drives a canned demo page, standing in for a real
	// browser session so the pipeline can be exercised end to end.
	adapter := newDemoAdapter()
	loc, err := healer.New(ctx, healer.Config{
		Adapter:          adapter,
		DOM:              demoDOMAnalyzer(),
		Visual:           demoVisualAnalyzer(),
		Mode:             healer.Mode(cfg.Strategy.Mode),
		QuickTimeout:     cfg.Strategy.QuickTimeout,
		LocateTimeout:    cfg.Strategy.LocateTimeout,
		OverallTimeout:   cfg.Strategy.OverallTimeout,
		FailureThreshold: cfg.Resilience.FailureThreshold,
		Cooldown:         cfg.Resilience.Cooldown,
		MaxAttempts:      cfg.Resilience.MaxAttempts,
		RetryBaseDelay:   cfg.Resilience.RetryBaseDelay,
		RetryMaxDelay:    cfg.Resilience.RetryMaxDelay,
		CallTimeout:      cfg.Resilience.CallTimeout,
		Backend:          backend,
		CacheCapacity:    cfg.Cache.Capacity,
		CacheTTL:         cfg.Cache.TTL,
		SlidingTTL:       cfg.Cache.Sliding,
	})
	if err != nil {
		slog.Error("Failed to initialize healer", "error", err)
		os.Exit(1)
	}

	healthServer := health.NewServer(loc.Monitor(), cfg.Server.Port)
	go func() {
		if err := healthServer.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("Health server failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	slog.Info("Healer started", "config", cfgPath, "port", cfg.Server.Port, "backend", cfg.Cache.Backend)

	go runDemoLookups(ctx, loc)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := healthServer.Stop(shutdownCtx); err != nil {
		slog.Error("Error stopping health server", "error", err)
	}
	if err := loc.Close(); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}
