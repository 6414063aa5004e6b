package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/calvinhon/ft-transcendence-sub004/internal/auth"
	"github.com/calvinhon/ft-transcendence-sub004/internal/config"
	"github.com/calvinhon/ft-transcendence-sub004/internal/history"
	"github.com/calvinhon/ft-transcendence-sub004/internal/logging"
	"github.com/calvinhon/ft-transcendence-sub004/internal/match"
	"github.com/calvinhon/ft-transcendence-sub004/internal/matchmaking"
	"github.com/calvinhon/ft-transcendence-sub004/internal/protocol"
	"github.com/calvinhon/ft-transcendence-sub004/internal/registry"
	"github.com/calvinhon/ft-transcendence-sub004/internal/tournament"
)

func main() {
	//1.- Local .env files are a development convenience; absence is not an error.
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.L().Error("invalid configuration", logging.Error(err))
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		logging.L().Error("logger setup failed", logging.Error(err))
		os.Exit(1)
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("game service exited with error", logging.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := history.NewStore(cfg.HistoryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := registry.NewRegistry()
	verifier := auth.NewVerifier(cfg.JWTSecret)
	if !verifier.Enabled() {
		logger.Warn("token verification disabled, trusting client identities")
	}

	gateway := protocol.NewGateway(nil, reg, verifier, logger)

	managerOpts := []match.Option{
		match.WithTickRate(cfg.TickRate),
		match.WithForfeitGrace(cfg.ForfeitGrace),
		match.WithResumePolicy(cfg.ResumePolicy),
		match.WithHistory(store),
		match.WithLogger(logger),
	}
	if cfg.ReplayDir != "" {
		managerOpts = append(managerOpts, match.WithReplayRoot(cfg.ReplayDir))
	}
	if cfg.TournamentURL != "" {
		bridge, err := tournament.NewBridge(cfg.TournamentURL, nil, logger)
		if err != nil {
			return err
		}
		managerOpts = append(managerOpts, match.WithBridge(bridge))
	}
	manager := match.NewManager(gateway, managerOpts...)
	queue := matchmaking.NewQueue(gateway.OnMatch, matchmaking.WithWaitTimeout(cfg.MatchWaitTimeout))
	gateway.Bind(manager, queue)

	hub := NewHub(cfg, gateway, logger)
	gateway.SetSender(hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"connections": hub.Count(),
			"matches":     manager.Count(),
		})
	})
	mux.HandleFunc("/online", func(w http.ResponseWriter, r *http.Request) {
		//1.- The built-in bots are always available opponents, so they are always listed.
		now := time.Now().UTC()
		entries := append(reg.Snapshot(),
			registry.Entry{UserID: -1, Username: "EasyBot", Status: registry.StatusOnline, LastSeen: now},
			registry.Entry{UserID: -2, Username: "MediumBot", Status: registry.StatusOnline, LastSeen: now},
			registry.Entry{UserID: -3, Username: "HardBot", Status: registry.StatusOnline, LastSeen: now},
		)
		writeJSON(w, http.StatusOK, entries)
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "userId must be an integer"})
			return
		}
		stats, err := store.StatsFor(r.Context(), userID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats lookup failed"})
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	server := &http.Server{
		Addr:              cfg.Address,
		Handler:           logging.HTTPTraceMiddleware(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("game service listening",
			logging.String("addr", cfg.Address),
			logging.Float64("tick_rate", cfg.TickRate))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down game service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", logging.Error(err))
	}
	queue.Close()
	manager.Shutdown()
	hub.Shutdown()

	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
