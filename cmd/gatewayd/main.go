package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/alarmbridge/isecnet-gateway/internal/cache"
	"github.com/alarmbridge/isecnet-gateway/internal/cloudapi"
	"github.com/alarmbridge/isecnet-gateway/internal/config"
	"github.com/alarmbridge/isecnet-gateway/internal/events"
	"github.com/alarmbridge/isecnet-gateway/internal/facade"
	"github.com/alarmbridge/isecnet-gateway/internal/httpapi"
	"github.com/alarmbridge/isecnet-gateway/internal/pool"
	"github.com/alarmbridge/isecnet-gateway/internal/session"
)

// Version info - increment based on change magnitude:
// Major (x.0.0): Breaking changes, major rewrites
// Minor (0.y.0): New features, significant enhancements
// Patch (0.0.z): Bug fixes, minor improvements
var Version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if logDir := filepath.Dir(cfg.Logs.FilePath); logDir != "." {
		os.MkdirAll(logDir, 0755)
	}
	logFile, err := os.OpenFile(cfg.Logs.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err == nil {
		log.SetOutput(logFile)
	}
	if lvl, err := log.ParseLevel(cfg.Logs.Level); err == nil {
		log.SetLevel(lvl)
	}

	log.Infof("Starting isecnet-gateway v%s", Version)
	log.Infof("  vendor cloud: %s", cfg.VendorCloud.BaseURL)
	log.Infof("  cache file: %s", cfg.Cache.FilePath)
	log.Infof("  listen addr: %s", cfg.Server.ListenAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down...")
		cancel()
	}()

	if cacheDir := filepath.Dir(cfg.Cache.FilePath); cacheDir != "." {
		os.MkdirAll(cacheDir, 0755)
	}
	c, err := cache.New(cfg.Cache.FilePath, cfg.Cache.ConnectionInfoTTL)
	if err != nil {
		log.Fatalf("failed to load cache: %v", err)
	}

	sessionCfg := session.Config{
		RecvTimeout:    cfg.Gateway.RecvTimeout,
		ArmRecvTimeout: cfg.Gateway.ArmRecvTimeout,
		ArmVerifySleep: cfg.Gateway.ArmVerifySleep,
	}
	p := pool.New(cfg.Gateway.IdleThreshold, cfg.Gateway.SweepInterval, sessionCfg, log.NewEntry(log.StandardLogger()))
	p.Start(ctx)

	lister := cloudapi.New(cfg.VendorCloud.BaseURL, cfg.VendorCloud.Timeout)
	hub := events.NewHub()
	f := facade.New(c, p, lister, hub, log.NewEntry(log.StandardLogger()))

	srv := httpapi.New(cfg.Server.ListenAddr, f, hub, log.NewEntry(log.StandardLogger()))

	go func() {
		sweepEvery := cfg.Cache.SweepInterval
		if sweepEvery <= 0 {
			sweepEvery = 60 * time.Second
		}
		ticker := time.NewTicker(sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.SweepExpiredTokens()
			}
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http server shutdown")
		}
		p.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
