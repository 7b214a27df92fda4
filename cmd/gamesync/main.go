package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chessrith/gamesync/internal/bridge"
	"github.com/chessrith/gamesync/internal/cache"
	appcfg "github.com/chessrith/gamesync/internal/config"
	"github.com/chessrith/gamesync/internal/domain"
	"github.com/chessrith/gamesync/internal/obslog"
	"github.com/chessrith/gamesync/internal/profile"
	"github.com/chessrith/gamesync/internal/provider"
	"github.com/chessrith/gamesync/internal/provider/chesscom"
	"github.com/chessrith/gamesync/internal/provider/lichess"
	"github.com/chessrith/gamesync/internal/server"
	"github.com/chessrith/gamesync/internal/session"
	"github.com/chessrith/gamesync/internal/source"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()

	store, err := cache.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("cache init error: %v", err)
	}

	timeout := time.Duration(cfg.FetchTimeoutSec) * time.Second
	fetchers := map[domain.Platform]provider.Fetcher{
		domain.PlatformChessCom: chesscom.NewClient(cfg.ChessComBaseURL, chesscom.WithTimeout(timeout)),
		domain.PlatformLichess:  lichess.NewClient(cfg.LichessBaseURL, lichess.WithTimeout(timeout)),
	}

	sess := session.New()
	loop := session.NewLoop(sess, logger)
	loop.OnAccept(func(c session.Candidate) {
		saveSnapshot(store, sess, c, logger)
	})

	resolver := source.NewResolver(store, fetchers, logger)
	profiles := profile.NewLoader(store, fetchers, logger)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	go loop.Run(rootCtx)

	// Seed the session identity from whatever the cache remembers.
	restored := profiles.Restore(rootCtx)
	if restored.Username != "" {
		logger.Info("session restored",
			zap.String("username", restored.Username),
			zap.String("platform", restored.Platform),
			zap.Int("cached_games", len(restored.Games)),
		)
	}

	var listener *bridge.Listener
	if cfg.BridgeWSURL != "" {
		listener = bridge.NewListener(cfg.BridgeWSURL, cfg.BridgeMaxAttempts, time.Second)
		listener.OnMessage(func(msg *bridge.Message) {
			ref := source.FromFrameMessage(msg.PGN, msg.Orientation)
			loop.Submit(session.Candidate{
				PGN:         ref.PGN,
				WhiteBottom: ref.WhiteBottom,
				Origin:      session.OriginFrame,
			})
		})
		listener.OnStateChange(func(state bridge.State) {
			logger.Info("bridge state", zap.String("state", string(state)))
		})
		cctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
		if err := listener.Connect(cctx); err != nil {
			logger.Warn("bridge connect failed, retrying in background", zap.Error(err))
		}
		cancel()
	}

	srv := server.New(resolver, loop, sess, profiles, logger)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(cfg.ListenAddr); err != nil {
			logger.Error("server stopped", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	rootCancel()
	_ = srv.Shutdown()
	if listener != nil {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = listener.Close(sctx)
		scancel()
	}
	_ = store.Close()
}

// saveSnapshot persists an accepted game under game_{id}; games that
// arrived without a provider id get a generated one.
func saveSnapshot(store *cache.Store, sess *session.Session, c session.Candidate, logger *zap.Logger) {
	id := c.ID
	if id == "" {
		id = uuid.NewString()
	}
	orientation := "white"
	if !sess.View().WhiteBottom {
		orientation = "black"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := store.SaveSnapshot(ctx, id, &cache.Snapshot{
		ID:          id,
		Platform:    c.Platform,
		Orientation: orientation,
		PGN:         c.PGN,
	})
	if err != nil {
		logger.Warn("snapshot save failed", zap.String("id", id), zap.Error(err))
	}
}
