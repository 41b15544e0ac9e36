package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bookflow/config"
	"bookflow/internal/channel"
	"bookflow/internal/dashboard"
	"bookflow/internal/metrics"
	"bookflow/logger"
	"bookflow/models"
	"bookflow/reader"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	instrument := flag.String("instrument", "", "Instrument to subscribe to, overrides feed.instrument")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting bookflow")

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channels := channel.NewBookChannels(cfg.Channels.BookBuffer)

	feed, err := reader.NewFeed(cfg, reader.WebsocketDialer{HandshakeTimeout: cfg.Feed.DialTimeout}, channels)
	if err != nil {
		log.WithError(err).Error("Failed to create feed")
		os.Exit(1)
	}

	start := cfg.Feed.Instrument
	if *instrument != "" {
		start = models.InstrumentID(*instrument)
	}
	if err := feed.Start(ctx, start); err != nil {
		log.WithError(err).Error("Failed to start feed")
		os.Exit(1)
	}

	var wg sync.WaitGroup
	dash, err := dashboard.NewServer(cfg.Dashboard, feed, channels, log)
	if err != nil {
		log.WithError(err).Error("Failed to create dashboard")
		os.Exit(1)
	}
	if dash != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dash.Run(ctx); err != nil {
				log.WithError(err).Error("dashboard stopped")
			}
		}()
	} else {
		// Nothing reads the views without the dashboard.
		go drain(ctx, channels)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	// The feed publishes into channels, so it stops first.
	log.Info("stopping feed")
	if err := feed.Stop(); err != nil {
		log.WithError(err).Warn("feed stop")
	}
	cancel()
	channels.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(10 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	stats := channels.GetStats()
	log.WithFields(logger.Fields{
		"views_sent":    stats.ViewsSent,
		"views_evicted": stats.ViewsEvicted,
	}).Info("bookflow stopped")
}

func drain(ctx context.Context, channels *channel.BookChannels) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-channels.Views:
			if !ok {
				return
			}
		}
	}
}
