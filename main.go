package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"fadedreams/garage/config"
	"fadedreams/garage/discovery"
	"fadedreams/garage/domain"
	"fadedreams/garage/grpcsvc"
	"fadedreams/garage/handlers"
	"fadedreams/garage/kafka"
	"fadedreams/garage/logging"
	"fadedreams/garage/metrics"
	"fadedreams/garage/service"
	"fadedreams/garage/store/memory"
	"fadedreams/garage/store/mongodb"
	"fadedreams/garage/store/postgres"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// initTracer initializes OpenTelemetry tracer
func initTracer(cfg *config.Config, logger *slog.Logger) (func(), error) {
	logger.Info("Initializing tracer", "otlp_endpoint", cfg.OTLPEndpoint)

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithURLPath("/v1/traces"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	resources := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(cfg.ServiceName),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter, sdktrace.WithExportTimeout(5*time.Second))),
		sdktrace.WithResource(resources),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func() {
		logger.Info("Shutting down tracer provider")
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Error("Error shutting down tracer provider", "error", err)
		}
	}, nil
}

// openStore connects the configured backend.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn("Using in-memory store, data is lost on restart")
		return memory.NewStore(), nil
	case config.BackendPostgres:
		return postgres.Open(ctx, cfg.PostgresDSN)
	default:
		client, err := mongodb.Connect(cfg.MongoURI, 5, 2*time.Second, logger)
		if err != nil {
			return nil, err
		}
		repo := mongodb.NewMongoRepository(client, cfg.MongoDatabase)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return repo, nil
	}
}

// startOutbox wires the Kafka producer as event encoder and publisher. The returned
// function flushes and closes the producer.
func startOutbox(ctx context.Context, cfg *config.Config, store domain.Store, consul *discovery.Client,
	m *metrics.Metrics, logger *slog.Logger) (domain.EventEncoder, func(), error) {
	bootstrap := cfg.KafkaBootstrapServers
	if bootstrap == "" && consul != nil {
		addr, err := consul.Resolve(ctx, "kafka")
		if err != nil {
			logger.Warn("Failed to resolve Kafka from Consul, using default", "error", err)
		} else {
			bootstrap = addr
		}
	}
	if bootstrap == "" {
		bootstrap = "kafka:9092"
	}

	producer, err := kafka.NewProducer(bootstrap, cfg.SchemaRegistryURL, cfg.KafkaTopic, logger)
	if err != nil {
		return nil, nil, err
	}
	codec, err := kafka.NewCodec(producer.SchemaID)
	if err != nil {
		producer.Close()
		return nil, nil, err
	}
	processor := kafka.NewOutboxProcessor(store, producer, cfg.OutboxInterval, logger, m)
	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Outbox processor stopped", "error", err)
		}
	}()
	logger.Info("Kafka outbox enabled", "bootstrap", bootstrap, "topic", cfg.KafkaTopic)
	return codec, producer.Close, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, logFile, err := logging.New(cfg.ServiceName, cfg.LogFile)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer logFile.Close()
	slog.SetDefault(logger)

	logger.Info("Starting garage service", "backend", cfg.StoreBackend, "timestamp", time.Now().Unix())

	if err := run(cfg, logger); err != nil {
		logger.Error("Service stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := initTracer(cfg, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.StoreBackend, err)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	}()

	var consul *discovery.Client
	if cfg.ConsulEnabled {
		if consul, err = discovery.NewClient(cfg.ConsulAddress, logger); err != nil {
			return err
		}
	}

	m := metrics.New()
	opts := []service.Option{
		service.WithMetrics(m),
		service.WithPolicy(service.Policy{
			RejectOutOfStock:  cfg.RejectOutOfStock,
			RejectActionStock: cfg.RejectActionStock,
		}),
	}
	if cfg.KafkaEnabled {
		encoder, closeProducer, err := startOutbox(ctx, cfg, store, consul, m, logger)
		if err != nil {
			return err
		}
		defer closeProducer()
		opts = append(opts, service.WithEventEncoder(encoder))
	}

	repairs := service.NewRepairService(store, logger, opts...)
	inventory := service.NewInventoryService(store, logger, opts...)
	customers := service.NewCustomerService(store, logger, opts...)
	handler := handlers.NewHandler(repairs, inventory, customers, store, m, logger)

	grpcServer, monitor := grpcsvc.NewServer(cfg.ServiceName, store, logger)
	go monitor.Run(ctx, 10*time.Second)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC: %w", err)
	}
	errs := make(chan error, 2)
	go func() {
		logger.Info("Starting gRPC server", "port", cfg.GRPCPort)
		errs <- grpcServer.Serve(lis)
	}()

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServicePort,
		Handler:           handler.Router(cfg.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "port", cfg.ServicePort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	if consul != nil {
		reg, err := registration(cfg)
		if err != nil {
			return err
		}
		if err := consul.Register(reg); err != nil {
			return fmt.Errorf("failed to register with Consul: %w", err)
		}
		defer func() {
			if err := consul.Deregister(reg); err != nil {
				logger.Error("Failed to deregister from Consul", "error", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errs:
		logger.Error("Server failed", "error", err)
	}

	monitor.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down HTTP server", "error", err)
	}
	grpcServer.GracefulStop()
	logger.Info("Garage service stopped")
	return nil
}

func registration(cfg *config.Config) (discovery.Registration, error) {
	httpPort, err := strconv.Atoi(cfg.ServicePort)
	if err != nil {
		return discovery.Registration{}, fmt.Errorf("invalid SERVICE_PORT: %w", err)
	}
	grpcPort, err := strconv.Atoi(cfg.GRPCPort)
	if err != nil {
		return discovery.Registration{}, fmt.Errorf("invalid GRPC_PORT: %w", err)
	}
	return discovery.Registration{
		Name:     cfg.ServiceName,
		Address:  cfg.ServiceAddress,
		HTTPPort: httpPort,
		GRPCPort: grpcPort,
	}, nil
}
