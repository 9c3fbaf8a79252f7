package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/streetwatch/streamserver/internal/config"
	"github.com/streetwatch/streamserver/internal/events"
	"github.com/streetwatch/streamserver/internal/logger"
	"github.com/streetwatch/streamserver/internal/metrics"
	"github.com/streetwatch/streamserver/internal/stream"
)

var (
	flagConfig   string
	flagLogLevel string
	flagLogColor bool
	flagListen   string
	flagWatch    bool
)

var rootCmd = &cobra.Command{
	Use:   "streamserver",
	Short: "Camera stream distribution and motion recording server",
	Long: `streamserver ingests frames from TCP cameras, fans them out to
subscribers as JPEG, and records motion-triggered MP4 clips with
pre and post roll context.`,
	RunE: runServer,
}

func init() {
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "streamserver.toml", "Path to TOML configuration file")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error, silent); overrides config")
	rootCmd.Flags().BoolVar(&flagLogColor, "log-color", true, "Enable colored log output")
	rootCmd.Flags().StringVar(&flagListen, "listen", "", "Metrics listen address; overrides config")
	rootCmd.Flags().BoolVar(&flagWatch, "watch", true, "Reload configuration when the file changes")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	levelName := cfg.LogLevel
	if flagLogLevel != "" {
		levelName = flagLogLevel
	}
	level, err := logger.ParseLevel(levelName)
	if err != nil {
		return err
	}
	logger.Init(level, os.Stderr, flagLogColor)

	listenAddr := cfg.ListenAddr
	if flagListen != "" {
		listenAddr = flagListen
	}

	logger.Info("Main", "streamserver starting, %d streams configured", len(cfg.Streams))

	m := metrics.New()
	bus := events.NewBus()
	bus.Subscribe(func(e events.ClipSavedEvent) {
		logger.Info("Main", "[%s] clip ready: %s (%.2fs)", e.StreamID, e.Path, e.Duration.Seconds())
	})

	registry := stream.NewRegistry(cfg.FFmpegPath, m, bus)
	registry.ApplyConfig(cfg)

	var watcher *config.Watcher
	if flagWatch {
		watcher = config.NewWatcher(flagConfig)
		watcher.OnReload(registry.ApplyConfig)
		if err := watcher.Start(); err != nil {
			logger.Warn("Main", "config watch disabled: %v", err)
			watcher = nil
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	httpServer := &http.Server{Addr: listenAddr, Handler: mux}
	go func() {
		logger.Info("Main", "metrics listening on %s", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Main", "metrics server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Main", "received %s, shutting down", sig)

	if watcher != nil {
		watcher.Stop()
	}
	registry.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Main", "metrics shutdown: %v", err)
	}

	logger.Info("Main", "server stopped")
	return nil
}
