// Package main runs the match server: the WebSocket lobby, the admin health
// service and, when enabled, match history persistence.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/frontend/ws"
	"github.com/cory-johannsen/duel/internal/game/engine"
	"github.com/cory-johannsen/duel/internal/game/grace"
	"github.com/cory-johannsen/duel/internal/game/random"
	"github.com/cory-johannsen/duel/internal/game/room"
	"github.com/cory-johannsen/duel/internal/game/session"
	"github.com/cory-johannsen/duel/internal/gameserver"
	"github.com/cory-johannsen/duel/internal/observability"
	"github.com/cory-johannsen/duel/internal/server"
	"github.com/cory-johannsen/duel/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	gamesFile := flag.String("games", "", "path to the game catalogue YAML (overrides match.games_file)")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *gamesFile != "" {
		cfg.Match.GamesFile = *gamesFile
	}

	logger, err := observability.NewLogger(cfg.Logging, zap.String("service", "duel"))
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting match server",
		zap.String("ws_addr", cfg.Transport.Addr()),
		zap.String("admin_addr", cfg.Admin.Addr()),
		zap.Bool("history", cfg.Database.Enabled),
	)

	catalog, err := engine.LoadCatalogFromFile(cfg.Match.GamesFile)
	if err != nil {
		logger.Fatal("loading game catalogue", zap.Error(err))
	}
	engines, err := engine.NewRegistryFromCatalog(catalog)
	if err != nil {
		logger.Fatal("building engine registry", zap.Error(err))
	}
	if !engines.Has(cfg.Match.DefaultGameType) {
		logger.Fatal("default game type is not enabled in the catalogue",
			zap.String("game_type", cfg.Match.DefaultGameType),
		)
	}
	logger.Info("game catalogue loaded", zap.Strings("types", engines.Types()))

	lifecycle := server.NewLifecycle(logger)

	health := server.NewHealth(cfg.Admin.Addr(), observability.Component(logger, "health"))
	lifecycle.Add("admin", health)

	var (
		history *gameserver.HistoryWriter
		matches ws.MatchLister
	)
	if cfg.Database.Enabled {
		dbStart := time.Now()
		pool, err := postgres.Open(ctx, cfg.Database, observability.Component(logger, "postgres"))
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected", zap.Duration("elapsed", time.Since(dbStart)))

		repo := pool.Matches()
		matches = repo
		history = gameserver.NewHistoryWriter(repo, cfg.Match.HistoryBuffer, observability.Component(logger, "history"))

		lifecycle.Add("postgres", pool)
		lifecycle.Add("history", history)
	}

	lobbyLogger := observability.Component(logger, "lobby")
	lobby := gameserver.NewService(
		gameserver.Config{
			GraceWindow:     cfg.Match.GraceWindow,
			DefaultGameType: cfg.Match.DefaultGameType,
		},
		session.NewManager(),
		room.NewRegistry(engines, cfg.Match.AccessCodeCost),
		grace.NewScheduler(),
		gameserver.NewDispatcher(lobbyLogger),
		random.NewCryptoSource(),
		history,
		lobbyLogger,
	)
	stopLobby := make(chan struct{})
	lifecycle.Add("lobby", &server.FuncService{
		StartFn: func() error {
			<-stopLobby
			return nil
		},
		StopFn: func() {
			lobby.Close()
			close(stopLobby)
		},
	})

	acceptor := ws.NewAcceptor(cfg.Transport, lobby, matches, observability.Component(logger, "ws"))
	lifecycle.Add("websocket", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn: func() {
			health.SetServing(false)
			acceptor.Stop()
		},
	})

	health.SetServing(true)
	logger.Info("match server initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
