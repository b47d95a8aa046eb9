package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/johbar/ocr-sample/internal/cache"
	natsconn "github.com/johbar/ocr-sample/internal/cache/nats"
	"github.com/johbar/ocr-sample/internal/config"
	"github.com/johbar/ocr-sample/internal/recognizer"
	"github.com/johbar/ocr-sample/internal/server"
	"github.com/johbar/ocr-sample/pkg/tesswrap"
)

func main() {
	conf, err := config.NewOcrConfigFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Invalid configuration:", err)
		os.Exit(1)
	}
	opts, err := parseFlags(os.Args[1:], conf, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	// one shot mode: don't start a server, just process a single image
	if opts.oneShot() {
		os.Exit(runOneShot(opts, conf, os.Stdin, os.Stdout, os.Stderr))
	}
	os.Exit(serve(conf))
}

// serve runs the HTTP server and/or NATS micro service until interrupted
func serve(conf *config.OcrConfig) int {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: conf.LogLevel, AddSource: conf.Debug}))

	if os.Getenv("GOMEMLIMIT") != "" {
		logger.Info("GOMEMLIMIT", "Bytes", debug.SetMemoryLimit(-1), "MBytes", debug.SetMemoryLimit(-1)/1024/1024)
	}
	buildinfo, _ := debug.ReadBuildInfo()
	logger.Debug("Info", "buildinfo", buildinfo)

	if !tesswrap.Initialized {
		logger.Warn("Tesseract is not available. Every recognition will fail.", "impl", tesswrap.Implementation)
	} else {
		logger.Info("Tesseract found", "impl", tesswrap.Implementation, "version", tesswrap.Version, "models", conf.ModelsDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := recognizer.New(conf, logger)
	defer rec.Close()

	nc, err := natsconn.SetupNatsConnection(conf, logger)
	if err != nil {
		logger.Error("Could not connect to NATS", "err", err)
		return 1
	}
	var ocrCache cache.Cache = &cache.NopCache{}
	if nc != nil {
		defer nc.Drain()
		if ocrCache, err = cache.New(conf, logger, nc); err != nil {
			logger.Error("Could not initialize cache", "err", err)
			return 1
		}
	}

	s := server.New(conf, rec, ocrCache, logger)
	defer s.Close()
	if nc != nil {
		svc, err := s.RegisterNatsService(nc)
		if err != nil {
			logger.Error("Could not register NATS micro service", "err", err)
			return 1
		}
		defer svc.Stop()
		logger.Info("NATS micro service registered", "name", svc.Info().Name, "id", svc.Info().ID)
	}

	if conf.NoHttp {
		if nc == nil {
			logger.Error("Fatal: NATS not connected and HTTP disabled.")
			return 1
		}
		logger.Info("Service started with no HTTP endpoints. Waiting for interrupt.")
		<-ctx.Done()
		return 0
	}

	srv := &http.Server{Addr: conf.SrvAddr, Handler: s.Router(logger)}
	logger.Info("Service started", "address", srv.Addr)
	defer logger.Info("HTTP Server stopped.")
	if err := runHTTP(ctx, srv, srv.ListenAndServe, logger); err != nil {
		logger.Error("Webserver failed", "err", err)
		return 1
	}
	return 0
}

// runHTTP serves until ctx is done and returns after in-flight requests
// have been drained or the shutdown timeout has passed.
func runHTTP(ctx context.Context, srv *http.Server, listen func() error, logger *slog.Logger) error {
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", "err", err)
		}
	}()
	if err := listen(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	// Serve returns as soon as Shutdown starts
	<-shutdownDone
	return nil
}
