package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/quickcart/quickcart-backend/api"
	"github.com/quickcart/quickcart-backend/api/routes"
	"github.com/quickcart/quickcart-backend/internal/cart"
	"github.com/quickcart/quickcart-backend/internal/checkout"
	"github.com/quickcart/quickcart-backend/internal/inventory"
	"github.com/quickcart/quickcart-backend/internal/orders"
	"github.com/quickcart/quickcart-backend/internal/pricing"
	product "github.com/quickcart/quickcart-backend/internal/products"
	"github.com/quickcart/quickcart-backend/pkg/config"
	"github.com/quickcart/quickcart-backend/pkg/db"
	"github.com/quickcart/quickcart-backend/pkg/logger"
	"github.com/quickcart/quickcart-backend/pkg/metrics"
	"github.com/quickcart/quickcart-backend/pkg/migrate"
	"github.com/quickcart/quickcart-backend/pkg/outbox"
	"github.com/quickcart/quickcart-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	// Redis backs idempotency and rate limiting; without it both are off.
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, redisClient.Close()) }()
	} else {
		logg.Warn(ctx, "redis not configured: idempotency and rate limiting disabled")
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrderMetrics(promRegistry)

	conn := dbClient.DB()
	publisher := outbox.NewService(outbox.NewRepository(conn), logg)
	products := product.NewRepository(conn)

	ledger, err := inventory.NewLedger(conn, dbClient, publisher, logg)
	if err != nil {
		return err
	}
	ledger = ledger.WithMetrics(orderMetrics)

	cartRepo := cart.NewRepository(conn)
	cartService, err := cart.NewService(cartRepo, products, dbClient, logg)
	if err != nil {
		return err
	}

	orderRepo := orders.NewRepository(conn)
	orderService, err := orders.NewService(orderRepo, dbClient, publisher, ledger, cfg.Orders.PageSize, orderMetrics, logg)
	if err != nil {
		return err
	}

	calculator := pricing.NewCalculator(cfg.Pricing)
	checkoutService, err := checkout.NewService(checkout.Deps{
		Tx:             dbClient,
		Carts:          cartRepo,
		CartClearer:    cartService,
		Products:       products,
		Orders:         orderRepo,
		Stock:          ledger,
		Calculator:     &calculator,
		Numbers:        orders.NewNumberGenerator(cfg.Orders.NumberPrefix),
		NumberAttempts: cfg.Orders.NumberMaxAttempts,
		Outbox:         publisher,
		Metrics:        orderMetrics,
		Logger:         logg,
	})
	if err != nil {
		return err
	}

	router := routes.NewRouter(routes.Deps{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		Metrics:  promRegistry,
		Cart:     cartService,
		Checkout: checkoutService,
		Orders:   orderService,
		Stock:    ledger,
	})
	server := api.NewServer(cfg, router, logg)
	logg.Info(logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": server.Addr(),
	}), "starting api server")

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "api server stopped")
	return nil
}
