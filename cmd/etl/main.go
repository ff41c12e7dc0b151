// Command etl runs the flood ground-truth pipeline over a data tree, once or
// on an interval.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/adapter/floodmap"
	gdaladapter "github.com/couchcryptid/flood-ground-truth-etl/internal/adapter/gdal"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/flood-ground-truth-etl/internal/adapter/kafka"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/adapter/publish"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/adapter/registry"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/config"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/observability"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	opts, err := pipeline.OptionsFromConfig(cfg)
	if err != nil {
		logger.Error("invalid pipeline options", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, err := registry.Load(cfg.RegistryCSV)
	if err != nil {
		logger.Warn("activation registry unavailable, continuing without event dates", "path", cfg.RegistryCSV, "error", err)
		reg = registry.Empty()
	} else if skipped := reg.Skipped(); len(skipped) > 0 {
		logger.Warn("registry rows with invalid codes ignored", "codes", skipped)
	}

	publisher, err := publish.New(ctx, publish.Options{
		Backend:  cfg.PublishBackend,
		Bucket:   cfg.PublishBucket,
		Region:   cfg.AWSRegion,
		Endpoint: cfg.PublishEndpoint,
	}, logger)
	if err != nil {
		logger.Error("failed to create publisher", "error", err)
		return 1
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("publisher close error", "error", err)
		}
	}()

	reprojector := gdaladapter.NewReprojector()
	defer reprojector.Close()

	deps := pipeline.Deps{
		Rasters:     gdaladapter.NewStore(logger),
		Mosaicker:   gdaladapter.NewMosaicker(logger),
		FloodMaps:   floodmap.NewReader(cfg.FloodMapDir),
		Reprojector: reprojector,
		Registry:    reg,
		Publisher:   publisher,
	}
	if len(cfg.KafkaBrokers) > 0 {
		notifier := kafkaadapter.NewNotifier(cfg, logger)
		defer func() {
			if err := notifier.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		deps.Notifier = notifier
		logger.Info("publication notifications enabled", "topic", cfg.KafkaTopic)
	}
	if cfg.Progress {
		deps.Progress = &barProgress{}
	}

	p := pipeline.New(opts, deps, logger, metrics)

	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	code := 0
	if cfg.RunSchedule != nil || cfg.RunInterval > 0 {
		var err error
		if cfg.RunSchedule != nil {
			err = p.RunOnSchedule(ctx, cfg.RunSchedule)
		} else {
			err = p.RunEvery(ctx, cfg.RunInterval)
		}
		if err != nil {
			logger.Error("pipeline error", "error", err)
			code = 1
		}
	} else {
		sum, err := p.Run(ctx)
		switch {
		case err != nil:
			logger.Error("pass aborted", "error", err)
			code = 1
		case !sum.OK():
			code = 1
		}
	}

	logger.Info("shutting down")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}
	logger.Info("shutdown complete")
	return code
}
