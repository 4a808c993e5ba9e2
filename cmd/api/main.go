package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/mohasbks/advanced-cid-bot/internal/config"
	"github.com/mohasbks/advanced-cid-bot/internal/domain/admin"
	"github.com/mohasbks/advanced-cid-bot/internal/domain/catalog"
	"github.com/mohasbks/advanced-cid-bot/internal/domain/consumption"
	"github.com/mohasbks/advanced-cid-bot/internal/domain/deposit"
	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
	"github.com/mohasbks/advanced-cid-bot/internal/domain/purchase"
	"github.com/mohasbks/advanced-cid-bot/internal/domain/voucher"
	"github.com/mohasbks/advanced-cid-bot/internal/middleware"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/database"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/logger"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/pidkey"
	pkgresponse "github.com/mohasbks/advanced-cid-bot/internal/pkg/response"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/token"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/tronscan"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting CID ledger service")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	tokenService := token.NewService(cfg.JWTSecret, cfg.ServiceTokenTTL)

	// ---------- External collaborators ----------
	explorer := tronscan.NewClient(tronscan.Config{
		BaseURL: cfg.TronAPIBaseURL,
		APIKey:  cfg.TronAPIKey,
		Timeout: cfg.TronTimeout,
	})
	issuer := pidkey.NewClient(pidkey.Config{
		BaseURL: cfg.PIDKeyBaseURL,
		APIKey:  cfg.PIDKeyAPIKey,
		Timeout: cfg.PIDKeyTimeout,
	})

	// ---------- Repositories ----------
	ledgerRepo := ledger.NewRepository(db)
	catalogRepo := catalog.NewRepository(db)
	voucherRepo := voucher.NewRepository(db, ledgerRepo)
	purchaseRepo := purchase.NewRepository(db, ledgerRepo)
	consumptionRepo := consumption.NewRepository(db, ledgerRepo)
	adminRepo := admin.NewRepository(db, ledgerRepo)

	// ---------- Services ----------
	ledgerService := ledger.NewService(ledgerRepo)
	catalogService := catalog.NewService(catalogRepo)
	voucherService := voucher.NewService(voucherRepo, ledgerService)
	purchaseService := purchase.NewService(purchaseRepo, catalogService, ledgerService, purchase.Options{
		ReservationTTL:   cfg.ReservationTTL,
		PaymentTolerance: cfg.PaymentToleranceUSD,
	})
	depositService := deposit.NewService(explorer, ledgerRepo, purchaseService, ledgerService, redis, deposit.Options{
		WalletAddress:    cfg.DepositWallet,
		USDTContract:     cfg.USDTContract,
		MinConfirmations: cfg.MinConfirmations,
		MinDepositUSD:    cfg.MinDepositUSD,
		PaymentTolerance: cfg.PaymentToleranceUSD,
	})
	consumptionService := consumption.NewService(consumptionRepo, issuer, ledgerService, redis, consumption.Options{
		CostCID: cfg.CIDRequestCost,
	})
	adminService := admin.NewService(adminRepo, ledgerService, ledgerService)

	// ---------- Handlers ----------
	ledgerHandler := ledger.NewHandler(ledgerService)
	catalogHandler := catalog.NewHandler(catalogService)
	voucherHandler := voucher.NewHandler(voucherService)
	purchaseHandler := purchase.NewHandler(purchaseService)
	depositHandler := deposit.NewHandler(depositService)
	consumptionHandler := consumption.NewHandler(consumptionService)
	adminHandler := admin.NewHandler(adminService)

	gatewayAuth := middleware.Auth(tokenService, token.ScopeGateway)
	adminAuth := middleware.Auth(tokenService, token.ScopeAdmin)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))
	r.Use(chimw.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/users", ledgerHandler.Routes(gatewayAuth))
		r.Mount("/packages", catalogHandler.Routes(gatewayAuth))
		r.Mount("/vouchers", voucherHandler.Routes(gatewayAuth))
		r.Mount("/purchases", purchaseHandler.Routes(gatewayAuth))
		r.Mount("/reservations", purchaseHandler.ReservationRoutes(gatewayAuth))
		r.Mount("/deposits", depositHandler.Routes(gatewayAuth))
		r.Mount("/cid-requests", consumptionHandler.Routes(gatewayAuth))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Mount("/", adminHandler.Routes(adminAuth))
		r.Mount("/vouchers", voucherHandler.AdminRoutes(adminAuth))
		r.Mount("/deposits", depositHandler.AdminRoutes(adminAuth))
		r.Mount("/cid-requests", consumptionHandler.AdminRoutes(adminAuth))
	})

	// ---------- Reservation housekeeping ----------
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go runReservationSweeper(sweepCtx, cfg.ReservationSweep, purchaseService)

	// The write timeout must outlive a CID issuance round trip: pidkey can
	// hold a request for up to PIDKeyTimeout before answering.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.PIDKeyTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

// reservationSweeper is the slice of the purchase engine the housekeeping
// loop needs.
type reservationSweeper interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// runReservationSweeper flips overdue reservations to expired on a fixed
// interval until the context is cancelled.
func runReservationSweeper(ctx context.Context, interval time.Duration, sweeper reservationSweeper) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sweeper.ExpireStale(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("reservation sweep failed")
			}
		}
	}
}
