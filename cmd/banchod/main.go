package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mikoto-dev/banchod/internal/channel"
	"github.com/mikoto-dev/banchod/internal/config"
	"github.com/mikoto-dev/banchod/internal/dispatch"
	"github.com/mikoto-dev/banchod/internal/httpapi"
	"github.com/mikoto-dev/banchod/internal/match"
	"github.com/mikoto-dev/banchod/internal/session"
	"github.com/mikoto-dev/banchod/internal/spectator"
	"github.com/mikoto-dev/banchod/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	var st store.Store
	if cfg.DatabaseDSN != "" {
		db, err := store.Open(cfg.DatabaseDSN, logger)
		if err != nil {
			logger.Fatal("opening store", zap.Error(err))
		}
		st = db
	} else {
		logger.Warn("no database configured, using in-memory store")
		st = store.NewMemory()
	}

	registry := session.NewRegistry(logger)
	channels := channel.NewTable(logger, cfg.ChannelEchoSender)

	// Static channels live for the process.
	channels.Add(channel.New("#osu", "general discussion", 0, 0, true, false))
	channels.Add(channel.New("#announce", "server announcements", 0, 16, false, false))
	lobby := channels.Add(channel.New(dispatch.LobbyChannel, "multiplayer room listing", 0, 0, false, false))

	matches := match.NewTable(logger, channels, lobby, cfg.MatchRequireMaps)
	relay := spectator.NewRelay(logger, registry, channels)

	// Removal cascade in global lock order: match resignation first, then
	// spectator edges, then channel parts.
	registry.OnRemove(matches.Resign)
	registry.OnRemove(relay.Detach)
	registry.OnRemove(channels.LeaveAll)

	d := dispatch.New(cfg, logger, registry, channels, matches, relay, st)
	sweeper := dispatch.NewSweeper(logger, registry, cfg.SweepInterval, cfg.SessionTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(d, logger),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := sweeper.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		return srv.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
