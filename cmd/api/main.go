package main

import (
	"context"
	"net/http"
	"os"

	"github.com/dinowallet/walletd/internal/api"
	"github.com/dinowallet/walletd/internal/config"
	"github.com/dinowallet/walletd/internal/logging"
	"github.com/dinowallet/walletd/internal/service"
	"github.com/dinowallet/walletd/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.NewLogger("api", "info")
		bootLog.Fatal().Err(err).Msg("config load failed")
	}

	log := logging.NewLogger("api", cfg.LogLevel)

	ledgerStore, err := store.NewLedgerStore(cfg.DBSource)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to connect to database")
	}
	defer ledgerStore.Close()

	if err := store.Migrate(context.Background(), ledgerStore.Pool()); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	transferService := service.NewTransferService(ledgerStore.Pool(), logging.NewLogger("transfer", cfg.LogLevel))
	handler := api.NewHandler(ledgerStore, transferService, log)
	router := api.NewRouter(handler)

	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
