package main

import (
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/velotrips/velo/internal/auth"
	"github.com/velotrips/velo/internal/config"
	"github.com/velotrips/velo/internal/exchange"
	"github.com/velotrips/velo/internal/ledger"
	"github.com/velotrips/velo/internal/server"
	"github.com/velotrips/velo/internal/service"
	"github.com/velotrips/velo/internal/storage/sqlite"
	"github.com/velotrips/velo/pkg/logging"
)

func main() {
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DatabasePath)

	rates := exchange.NewClient(cfg.ExchangeAPIURL, cfg.ExchangeAPIKey, exchange.NewCache(cfg.RateCacheTTL))
	if cfg.ExchangeAPIKey == "" {
		slog.Warn("No exchange API key configured, using static fallback rates")
	}

	ldg := ledger.New(store, rates)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenDuration)
	authenticator := auth.NewPasswordAuthenticator(store)

	srv := server.New(
		service.NewAuthService(authenticator, jwtManager, store),
		service.NewTripService(store),
		service.NewExpenseService(store, ldg, rates, rand.New(rand.NewSource(time.Now().UnixNano()))),
		service.NewBalanceService(store, ldg),
		ldg,
		jwtManager,
	)

	addr := ":" + cfg.Port
	slog.Info("Server starting", "address", addr)
	if err := http.ListenAndServe(addr, srv.Router()); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
