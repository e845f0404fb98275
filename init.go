package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/tournevent/postershop/internal/config"
	"github.com/tournevent/postershop/internal/downloads"
	"github.com/tournevent/postershop/internal/fulfillment"
	"github.com/tournevent/postershop/internal/graphql"
	"github.com/tournevent/postershop/internal/ledger"
	"github.com/tournevent/postershop/internal/notify"
	"github.com/tournevent/postershop/internal/returns"
	"github.com/tournevent/postershop/internal/store"
	"github.com/tournevent/postershop/internal/telemetry"
	"github.com/tournevent/postershop/pkg/carrier"
	"github.com/tournevent/postershop/pkg/carrier/delhivery"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(cfg *config.Config) (*otelzap.Logger, error) {
	return telemetry.NewLogger(cfg.LogLevel, cfg.ServiceName, cfg.Version)
}

func initTracer(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return func(context.Context) error { return nil }, nil
	}

	_, shutdown, err := telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version)
	return shutdown, err
}

func initMetrics() (*prometheus.Registry, *telemetry.Metrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, telemetry.NewMetrics(registry)
}

func initPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return store.NewPool(ctx, store.PoolConfig{URL: cfg.DatabaseURL})
}

func initCarrier(cfg *config.Config, logger *otelzap.Logger, metrics *telemetry.Metrics) carrier.Gateway {
	tracer := otel.GetTracerProvider().Tracer(cfg.ServiceName)

	client := delhivery.New(delhivery.Config{
		APIToken:          cfg.CarrierAPIToken,
		BaseURL:           cfg.CarrierBaseURL,
		Timeout:           cfg.CarrierTimeout,
		UseMock:           cfg.CarrierUseMock,
		WarehouseAPI:      cfg.WarehouseAPI(),
		CacheTTL:          cfg.CarrierCacheTTL,
		RequestsPerSecond: cfg.CarrierRPS,
	}, logger, tracer).WithRecorder(metrics)

	if !client.Configured() {
		logger.Warn("Carrier is not configured; answering from deterministic mock data",
			zap.String("carrier", client.Name()),
		)
	}
	return client
}

// initRepositories returns the order, return and shipment stores. Without a
// database everything is kept in memory.
func initRepositories(pool *pgxpool.Pool) (store.OrderRepository, store.ReturnRepository, ledger.Ledger) {
	if pool == nil {
		mem := store.NewMemory()
		return mem, mem, ledger.NewMemory()
	}
	pg := store.NewPostgres(pool)
	return pg, pg, ledger.NewPostgres(pool)
}

func initCounter(ctx context.Context, cfg *config.Config) (downloads.Counter, func(), error) {
	if cfg.RedisAddr == "" {
		return downloads.NewMemoryCounter(), func() {}, nil
	}
	client, err := downloads.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	return downloads.NewRedisCounter(client), func() { client.Close() }, nil
}

func initSigner(ctx context.Context, cfg *config.Config) (downloads.Signer, error) {
	if cfg.DownloadSigner == "s3" {
		presigner, err := downloads.NewS3Presigner(ctx, downloads.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
		}, cfg.DownloadTTL)
		if err != nil {
			return nil, err
		}
		return presigner, nil
	}

	signer, err := downloads.NewJWTSigner(cfg.DownloadSecret, cfg.DownloadBaseURL, cfg.DownloadTTL)
	if err != nil {
		return nil, err
	}
	return signer, nil
}

// initNotifier returns the configured notification transport. Components
// publish through their own Bus in front of it.
func initNotifier(cfg *config.Config, logger *otelzap.Logger) (notify.Notifier, func(), error) {
	switch cfg.NotifyTransport {
	case "nats":
		conn, err := notify.DialNATS(cfg.NATSURL, cfg.ServiceName)
		if err != nil {
			return nil, nil, err
		}
		return notify.NewNATSNotifier(conn, cfg.NATSSubject), func() { conn.Drain() }, nil
	case "kafka":
		k := notify.NewKafkaNotifier(notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		return k, func() { k.Close() }, nil
	}
	return notify.NewLogNotifier(logger), func() {}, nil
}

// app is the wired service.
type app struct {
	resolver *graphql.Resolver
	registry *prometheus.Registry
	// orderEvents and returnEvents are the fulfillment and returns buses.
	orderEvents  *notify.Bus
	returnEvents *notify.Bus
	closers      []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func initApp(ctx context.Context, cfg *config.Config, logger *otelzap.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	registry, metrics := initMetrics()
	a.registry = registry

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = initPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
	} else {
		logger.Warn("DATABASE_URL is not set; orders, returns and shipments are kept in memory")
	}
	orders, returnsRepo, shipments := initRepositories(pool)

	counter, closeCounter, err := initCounter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("download counter: %w", err)
	}
	a.closers = append(a.closers, closeCounter)

	signer, err := initSigner(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("download signer: %w", err)
	}

	transport, closeNotifier, err := initNotifier(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}
	a.closers = append(a.closers, closeNotifier)
	a.orderEvents = notify.NewBus(transport)
	a.returnEvents = notify.NewBus(transport)

	gateway := initCarrier(cfg, logger, metrics)

	orch := fulfillment.New(fulfillment.Deps{
		Orders:   orders,
		Ledger:   shipments,
		Gateway:  gateway,
		Signer:   signer,
		Counter:  counter,
		Notifier: a.orderEvents,
		Metrics:  metrics,
		Logger:   logger,
	}, fulfillment.Config{
		DefaultWarehouse: cfg.DefaultWarehouse,
		OperatorEmail:    cfg.OperatorEmail,
	})

	workflow := returns.New(returns.Deps{
		Orders:   orders,
		Returns:  returnsRepo,
		Gateway:  gateway,
		Notifier: a.returnEvents,
		Metrics:  metrics,
		Logger:   logger,
	}, returns.Config{
		Window:          cfg.ReturnWindow(),
		ReturnWarehouse: cfg.ReturnWarehouse,
		OperatorEmail:   cfg.OperatorEmail,
	})

	a.resolver = graphql.NewResolver(orch, workflow, gateway,
		graphql.Info{Service: cfg.ServiceName, Version: cfg.Version}, logger, metrics)
	return a, nil
}
