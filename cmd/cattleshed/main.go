package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mmizutani/wandbox/internal/config"
	"github.com/mmizutani/wandbox/internal/history"
	"github.com/mmizutani/wandbox/internal/metrics"
	"github.com/mmizutani/wandbox/internal/server"
	"github.com/mmizutani/wandbox/internal/versioncache"
	"github.com/mmizutani/wandbox/pkg/logger"
)

const (
	defaultConfigPath      = "configs/cattleshed.yaml"
	defaultShutdownTimeout = 10 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := context.Background()

	promRecorder := metrics.NewPrometheus()
	var recorder metrics.Recorder = promRecorder

	historySink := history.Sink(history.Noop{})
	if cfg.History.Enabled {
		sink, err := history.NewKafkaSink(history.KafkaConfig{
			Brokers:       cfg.History.Brokers,
			Topic:         cfg.History.Topic,
			ConsumerGroup: cfg.History.ConsumerGroup,
			MySQLDSN:      cfg.History.MySQLDSN,
			QueueSize:     cfg.History.QueueSize,
			FlushTimeout:  cfg.History.FlushTimeout,
		})
		if err != nil {
			logger.Error(ctx, "init history sink failed", zap.Error(err))
			os.Exit(1)
		}
		defer func() {
			_ = sink.Close()
		}()
		historySink = sink
	}

	versionCache := versioncache.Cache(versioncache.Noop{})
	if cfg.VersionCache.Enabled {
		redisCache := versioncache.NewRedis(cfg.VersionCache.Addr, cfg.VersionCache.Key, cfg.VersionCache.TTL)
		defer func() {
			_ = redisCache.Close()
		}()
		versionCache = redisCache
	}

	srv := server.New(cfg, recorder, historySink, versionCache)

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	debugMux := http.NewServeMux()
	debugMux.Handle("/metrics", promhttp.HandlerFor(promRecorder.Registry(), promhttp.HandlerOpts{}))
	debugServer := &http.Server{
		Addr:    cfg.System.DebugAddr,
		Handler: debugMux,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof(ctx, "debug endpoint listening at %s", cfg.System.DebugAddr)
		errCh <- debugServer.ListenAndServe()
	}()
	go func() {
		errCh <- srv.ListenAndServe(shutdownCtx)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	shutdownTimeoutCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := debugServer.Shutdown(shutdownTimeoutCtx); err != nil {
		logger.Error(ctx, "debug server shutdown failed", zap.Error(err))
	}
}
