package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-redis/redis/v8"

	"github.com/aaravsagar/agriatoo-core/internal/api"
	"github.com/aaravsagar/agriatoo-core/internal/auth"
	"github.com/aaravsagar/agriatoo-core/internal/checkout"
	"github.com/aaravsagar/agriatoo-core/internal/config"
	"github.com/aaravsagar/agriatoo-core/internal/docstore"
	"github.com/aaravsagar/agriatoo-core/internal/domain/cart"
	"github.com/aaravsagar/agriatoo-core/internal/domain/order"
	"github.com/aaravsagar/agriatoo-core/internal/domain/product"
	"github.com/aaravsagar/agriatoo-core/internal/logger"
	"github.com/aaravsagar/agriatoo-core/internal/pincode"
	"github.com/aaravsagar/agriatoo-core/internal/stock"
	"github.com/aaravsagar/agriatoo-core/internal/stockfeed"
)

func main() {
	cfg := config.MustLoad()
	log := logger.Setup(cfg.Env)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("starting agriatoo core",
		slog.String("env", cfg.Env),
		slog.String("docstore", cfg.Docstore.Backend),
		slog.String("address", cfg.HTTPServer.Address))

	store, err := buildStore(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize docstore", slog.Any("error", err))
		os.Exit(1)
	}

	// Stock feed. With Kafka enabled changes flow broker-wide; otherwise
	// the cache watches the document store directly, which only covers a
	// single process.
	var (
		source    stock.Source
		publisher stock.Publisher
	)
	if cfg.Kafka.Enabled {
		feed := stockfeed.NewFeed(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, log)
		defer feed.Close()
		go func() {
			if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("stock feed stopped", slog.Any("error", err))
			}
		}()

		producer := stockfeed.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()

		source = feed
		publisher = producer
	} else {
		watcher, ok := store.(docstore.Watcher)
		if !ok {
			log.Error("docstore backend cannot push updates and kafka is disabled")
			os.Exit(1)
		}
		source = stock.NewStoreSource(watcher, product.Collection)
	}

	cache := stock.NewCache(source, log, cfg.Stock.AssumeInStockWhenUnknown)
	alerts := stock.NewAlertService(store, log)
	reducer := stock.NewReducer(store, alerts, publisher, log, cfg.Stock.LowStockThreshold)

	carts := cart.NewRegistry(buildCartStoreFactory(cfg, log), cache, cache, log)

	catalog := product.NewCatalog(store)
	orders := order.NewService(store, log)

	var pincodes pincode.Validator
	if len(cfg.Pincodes.Static) > 0 {
		pincodes = pincode.NewStatic(cfg.Pincodes.Static)
	} else {
		pincodes = pincode.NewStoreValidator(store, cfg.Pincodes.Collection)
	}

	orchestrator := checkout.NewOrchestrator(
		pincodes,
		cache,
		orders,
		reducer,
		checkout.UPIPayee{Address: cfg.UPI.PayeeAddress, Name: cfg.UPI.PayeeName},
		log,
	)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiry, cfg.JWT.RefreshExpiry)
	users := auth.NewUserService(store, jwtService, log)

	handlers := api.NewHandlers(users, jwtService, catalog, carts, cache, alerts, reducer, orders, orchestrator, log)
	router := api.NewRouter(handlers, jwtService)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("http server listening", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", slog.Any("error", err))
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPServer.Timeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", slog.Any("error", err))
	}
	log.Info("stopped")
}

func buildStore(ctx context.Context, cfg *config.Config) (docstore.Store, error) {
	switch cfg.Docstore.Backend {
	case "postgres":
		db, err := docstore.ConnectPostgres(cfg.Docstore.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		pg := docstore.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	case "dynamo":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Docstore.Dynamo.Region))
		if err != nil {
			return nil, err
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.Docstore.Dynamo.Endpoint != "" {
				o.BaseEndpoint = &cfg.Docstore.Dynamo.Endpoint
			}
		})
		return docstore.NewDynamo(client, cfg.Docstore.Dynamo.Table), nil
	default:
		return docstore.NewMemory(), nil
	}
}

func buildCartStoreFactory(cfg *config.Config, log *slog.Logger) cart.StoreFactory {
	if !cfg.Redis.Enabled {
		return func(ownerID string) cart.Store {
			return cart.NewMemoryStore()
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return func(ownerID string) cart.Store {
		return cart.NewRedisStore(client, ownerID, log)
	}
}
