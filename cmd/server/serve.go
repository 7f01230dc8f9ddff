package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vaultpay/backend/docs"
	"github.com/vaultpay/backend/internal/chain"
	"github.com/vaultpay/backend/internal/config"
	"github.com/vaultpay/backend/internal/database"
	"github.com/vaultpay/backend/internal/handlers"
	mW "github.com/vaultpay/backend/internal/middleware"
	"github.com/vaultpay/backend/internal/onmeta"
	"github.com/vaultpay/backend/internal/payram"
	"github.com/vaultpay/backend/internal/reporting"
	"github.com/vaultpay/backend/internal/services"
	"github.com/vaultpay/backend/internal/store"
)

type app struct {
	payLinks     *handlers.PayLinkHandler
	onramp       *handlers.OnrampHandler
	transactions *handlers.TransactionHandler
}

func runServe(ctx context.Context, configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.OnMeta.WebhookSecret == "" {
		logger.Warn("ONMETA_WEBHOOK_SECRET is not set, every webhook delivery will be rejected")
	}
	if cfg.JWT.SecretKey == "" {
		logger.Warn("JWT_SECRET_KEY is not set, authenticated routes will reject every request")
	}

	reporter, err := reporting.Init(cfg.Sentry)
	if err != nil {
		logger.Warn("sentry disabled", zap.Error(err))
	}
	defer reporter.Flush()

	db, err := database.InitDB(cfg.Database, logger)
	if err != nil {
		return err
	}
	rdb := database.InitRedis(cfg.Redis, logger)

	a, err := newApp(cfg, db, rdb, reporter, logger)
	if err != nil {
		return multierr.Append(err, closeAll(db, rdb))
	}

	docs.SwaggerInfo.Host = "localhost:" + cfg.HTTP.Port

	server := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      a.router(cfg, logger),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr), zap.String("version", Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return multierr.Append(errors.Wrap(err, "listen"), closeAll(db, rdb))
		}
	case <-ctx.Done():
	}

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	err = multierr.Append(server.Shutdown(shutdownCtx), closeAll(db, rdb))
	if err != nil {
		logger.Error("unclean shutdown", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

func newApp(cfg *config.Config, db *sql.DB, rdb *redis.Client, reporter *reporting.Reporter, logger *zap.Logger) (*app, error) {
	verifier, err := chain.NewVerifier(chain.NewRPCClient(cfg.Solana.RPCURL), cfg.Solana, logger)
	if err != nil {
		return nil, errors.Wrap(err, "solana verifier")
	}

	// Unconfigured clients stay nil interfaces so the services skip them.
	var advisory services.AdvisoryVerifier
	if c := payram.NewClient(cfg.PayRam); c.Configured() {
		advisory = c
	} else {
		logger.Info("payram not configured, pay links rely on chain verification only")
	}
	var fetcher services.OrderFetcher
	if c := onmeta.NewClient(cfg.OnMeta); c.Configured() {
		fetcher = c
	} else {
		logger.Info("onmeta api key not configured, order refresh disabled")
	}

	st := store.New(db)
	ledger := services.NewLedgerService(st, logger)
	payLinkService := services.NewPayLinkService(st, ledger, verifier, advisory, rdb, cfg.PayLink, reporter, logger)
	onrampService := services.NewOnrampService(st, ledger, fetcher, rdb, cfg.OnMeta, reporter, logger)

	return &app{
		payLinks:     handlers.NewPayLinkHandler(payLinkService, logger),
		onramp:       handlers.NewOnrampHandler(onrampService, logger),
		transactions: handlers.NewTransactionHandler(ledger, logger),
	}, nil
}

func (a *app) router(cfg *config.Config, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mW.SecurityHeaders)
	r.Use(mW.Metrics)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.HTTP.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handlers.SignatureHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// Any method reaches the handler so it can answer 405 itself.
	r.HandleFunc("/webhooks/onramp", a.onramp.Webhook)

	r.Route("/api/v1", func(r chi.Router) {
		// Public: payers are not account holders.
		r.Get("/paylinks/{id}", a.payLinks.GetPayLink)
		r.Get("/paylinks/{id}/qr", a.payLinks.PayLinkQR)
		r.Post("/paylinks/pay", a.payLinks.PayPayLink)

		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware(cfg.JWT.SecretKey, logger))

			r.Post("/merchants", a.payLinks.CreateMerchant)
			r.Get("/merchants/{id}/paylinks", a.payLinks.ListMerchantPayLinks)

			r.Post("/paylinks", a.payLinks.CreatePayLink)
			r.Post("/paylinks/{id}/cancel", a.payLinks.CancelPayLink)

			r.Post("/onramp/orders", a.onramp.CreateOrder)
			r.Get("/onramp/orders", a.onramp.ListOrders)
			r.Get("/onramp/orders/{orderId}", a.onramp.GetOrder)
			r.Post("/onramp/orders/{orderId}/refresh", a.onramp.RefreshOrder)

			r.Get("/transactions", a.transactions.ListTransactions)
		})
	})

	return r
}

func closeAll(db *sql.DB, rdb *redis.Client) error {
	err := db.Close()
	if rdb != nil {
		err = multierr.Append(err, rdb.Close())
	}
	return err
}
