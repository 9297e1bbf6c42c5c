package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ferreirogomes/lastro/blockchain_listener"
	"github.com/ferreirogomes/lastro/config"
	"github.com/ferreirogomes/lastro/handlers"
	"github.com/ferreirogomes/lastro/logging"
	"github.com/ferreirogomes/lastro/metadata"
	"github.com/ferreirogomes/lastro/services"
	"github.com/ferreirogomes/lastro/storage"
)

func main() {
	configPath := flag.String("config", os.Getenv("LASTRO_CONFIG"), "arquivo TOML de configuração")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger := logging.New("lastro", "info", true)
		bootLogger.Fatal().Err(err).Msg("Falha ao carregar configuração")
	}
	logger := logging.New("lastro", cfg.LogLevel, cfg.LogPretty)

	db, err := storage.NewDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Falha fatal ao conectar ao banco de dados e aplicar migrações")
	}
	defer db.Close()

	pinner, err := metadata.NewStore(cfg.MetadataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("Falha ao inicializar armazenamento de metadados")
	}

	solanaIntegrationService, err := services.NewSolanaIntegrationService(services.SolanaConfig{
		RPCURL:      cfg.Ledger.RPCURL,
		FeePayerKey: cfg.Ledger.FeePayerKey,
		Keyring:     cfg.Ledger.Keyring,
		CallTimeout: cfg.Ledger.CallTimeout,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Falha ao inicializar serviço Solana")
	}

	lifecycle := services.NewLifecycleService(db, solanaIntegrationService, pinner, logger)
	transfer := services.NewTransferService(db, solanaIntegrationService, logger)
	redemption := services.NewRedemptionService(db, solanaIntegrationService, logger)
	royalty := services.NewRoyaltyService(db, solanaIntegrationService, lifecycle, services.RoyaltyOptions{
		AmountPlaces: cfg.AmountPlaces,
	}, logger)
	market := services.NewMarketplaceService(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Listener em goroutine separada: fecha os resgates cujo burn ficou pendente.
	listener := blockchain_listener.NewBlockchainListener(market, redemption, cfg.ListenerInterval, logger)
	go listener.StartListening(ctx)

	router := handlers.NewRouter(
		handlers.NewAssetHandler(lifecycle, transfer, redemption, market),
		handlers.NewPoolHandler(royalty, market),
		handlers.NewHolderHandler(market, pinner),
		logger,
	)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("falha ao encerrar servidor HTTP")
		}
	}()

	logger.Info().Str("addr", cfg.HTTPAddr).Msg("Servidor backend rodando")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("servidor HTTP encerrou com erro")
	}
}
