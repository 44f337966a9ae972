// answer-server serves a small JSON API and static files over the answer
// HTTP/1.1 stack.
//
// Configuration comes from ANSWER_* environment variables, overridden by
// flags. ANSWER_LOG_LEVEL and ANSWER_LOG_FORMAT (console or json) control
// logging.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"answer/pkg/http"
	"answer/pkg/router"
	"answer/pkg/server"
)

func main() {
	logger := newLogger(os.Getenv("ANSWER_LOG_LEVEL"), os.Getenv("ANSWER_LOG_FORMAT"))

	cfg, err := server.ConfigFromEnv("ANSWER")
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid environment")
	}
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flag.StringVar(&cfg.StaticDir, "static", cfg.StaticDir, "directory served for unmatched paths")
	flag.BoolVar(&cfg.IOURing, "iouring", cfg.IOURing, "use io_uring for socket I/O on Linux")
	grace := flag.Duration("grace", 10*time.Second, "graceful shutdown timeout")
	flag.Parse()
	cfg.Logger = &logger

	table := router.New()
	table.Use(
		router.RecoveryMiddleware(),
		router.RequestIDMiddleware(),
		router.LoggingMiddleware(logger),
	)

	// The ready route needs the server, which needs the finished table.
	var srv *server.Server
	ready := http.HandlerFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return srv.ReadyHandler().ServeHTTP(ctx, req)
	})
	setupRoutes(table, ready, cfg.StaticDir)

	srv, err = server.New(cfg, table)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid route table")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if !errors.Is(err, server.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), *grace)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Error().Err(err).Msg("forced shutdown")
		}
	}
	logger.Info().Msg("server exited")
}

func newLogger(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if format == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}
