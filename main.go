// entry point of the application
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"vidgate/internal/config"
	"vidgate/internal/consts"
	"vidgate/internal/downloader"
	httprouter "vidgate/internal/infrastructure/delivery/http"
	"vidgate/internal/observability"
	"vidgate/internal/proxy"
	"vidgate/internal/service"
	"vidgate/internal/storage"
	"vidgate/internal/toolchain"
	httpserver "vidgate/pkg/http/server"
	"vidgate/pkg/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("vidgate exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New()
	if err != nil {
		return err
	}

	log, err := logger.New(&logger.Options{
		AddSource: true,
		Level:     cfg.App.LogLevel,
		Format:    cfg.App.LogFormat,
	})
	if err != nil {
		log.WarnContext(ctx, "logger options invalid; using defaults", slog.Any("error", err))
	}

	metrics := observability.NewDefault()

	var (
		engine    downloader.Engine
		readiness httprouter.ReadinessChecker
	)

	switch cfg.App.Engine {
	case consts.EngineMock:
		log.WarnContext(ctx, "mock engine enabled, nothing is fetched from the network")

		engine = downloader.NewMock(log, downloader.DefaultMockMetadata())
	default:
		tc := toolchain.New(log, cfg)

		log.InfoContext(ctx, "resolving yt-dlp and ffmpeg. it may take some time...")

		if err := tc.Start(ctx); err != nil {
			return err
		}

		proxyMgr, err := proxy.New(log, cfg.Proxy)
		if err != nil {
			return err
		}

		engine = downloader.NewYTdlp(log, cfg, tc, proxyMgr, metrics)
		readiness = tc
	}

	storer, err := storage.New(ctx, log, cfg, metrics)
	if err != nil {
		return err
	}

	svc := service.New(log, cfg, engine, storer, metrics)
	router := httprouter.New(log, cfg, svc, metrics, readiness)

	httpSrv, err := httpserver.New(router, httpserver.Options{
		Addr:            cfg.HTTP.Port,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	})
	if err != nil {
		return err
	}

	log.InfoContext(ctx, "vidgate started",
		slog.String("addr", httpSrv.Addr()), slog.String("engine", engine.Name()))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case err, ok := <-httpSrv.Notify():
			if ok {
				return err
			}

			return nil
		case <-gctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		<-gctx.Done()

		return httpSrv.Shutdown()
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.InfoContext(context.WithoutCancel(ctx), "vidgate shut down gracefully")

	return nil
}
