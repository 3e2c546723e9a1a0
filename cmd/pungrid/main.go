package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"

	"github.com/pungrid/pungrid/pkg/controller"
	"github.com/pungrid/pungrid/pkg/events"
	"github.com/pungrid/pungrid/pkg/gme"
	"github.com/pungrid/pungrid/pkg/log"
	"github.com/pungrid/pungrid/pkg/server"
	"github.com/pungrid/pungrid/pkg/storage"
)

func main() {
	// init packages
	g := gme.Configured()
	s := storage.Configured()
	p := events.Configured()
	c := controller.Configured(g, s, p)

	// init server
	srv := server.Configured(c)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	log.SetDefaultLogLevel(level)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = log.With(ctx, logger)

	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()
	defer func() {
		if err := p.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close event publisher", slog.Any("error", err))
		}
	}()

	if err := c.Start(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to start price engine", slog.Any("error", err))
		os.Exit(1)
	}
	defer c.Stop()

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
