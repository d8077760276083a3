package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"giveserver/internal/adapter/repo"
	"giveserver/internal/flood"
	"giveserver/internal/givestripe"
	"giveserver/internal/http/handlers"
	"giveserver/internal/http/httpapi"
	"giveserver/internal/infra"
	"giveserver/internal/infra/credentials"
	"giveserver/internal/infra/geoip"
	"giveserver/internal/notify"
	"giveserver/internal/settlement"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	donations := repo.NewDonationRepository(dbpool)
	forms := repo.NewGiveFormRepository(dbpool)
	problems := repo.NewProblemLogRepository(dbpool)
	creds := credentials.NewStore(dbpool, cfg.StripeSecretKey, cfg.StripePublishableKey)

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}

	// An empty webhook URL makes the dispatcher a no-op.
	notifier := notify.NewWebhookDispatcher(cfg.ReceiptWebhookURL, logger)

	settler := settlement.NewService(
		donations,
		forms,
		givestripe.New(),
		notifier,
		creds,
		nil,
		logger,
	)

	app := &handlers.App{
		Logger:        logger,
		Donations:     donations,
		Forms:         forms,
		Problems:      problems,
		Settler:       settler,
		Flood:         flood.NewLimiter(nil),
		PubKeys:       creds,
		GeoIP:         resolver,
		FloodLimit:    cfg.FloodLimit,
		FloodInterval: cfg.FloodInterval,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		AdminJWTSecret: cfg.AdminJWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
