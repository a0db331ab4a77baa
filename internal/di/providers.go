package di

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"ModelHub/internal/domain/repository"
	"ModelHub/internal/handler/api"
	internalrepo "ModelHub/internal/repository"
	"ModelHub/internal/service/ratelimit"
	"ModelHub/internal/services/forecast"
	"ModelHub/internal/usecase"
	"ModelHub/pkg/cache"
	pkgch "ModelHub/pkg/clickhouse"
	"ModelHub/pkg/config"
	xhttp "ModelHub/pkg/http"
	pkgkafka "ModelHub/pkg/kafka"
	applogger "ModelHub/pkg/logger"
	"ModelHub/pkg/metrics"
	"ModelHub/pkg/server"

	"github.com/labstack/echo/v4"
)

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(pkgkafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		RequiredAcks: cfg.Kafka.RequiredAcks,
		Compression:  cfg.Kafka.Compression,
		MaxAttempts:  cfg.Kafka.Producer.MaxAttempts,
		WriteTimeout: cfg.Kafka.Producer.WriteTimeout,
		ReadTimeout:  cfg.Kafka.Producer.ReadTimeout,
		BatchSize:    cfg.Kafka.Producer.BatchSize,
		BatchBytes:   cfg.Kafka.Producer.BatchBytes,
		BatchTimeout: cfg.Kafka.Producer.Linger,
		Async:        cfg.Kafka.Producer.Async,
	}, pkgkafka.WithKeyHashing())
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the application logger. Repeated errors are aggregated
// onto the logs topic when the collector is enabled and Kafka is available.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collector.Enabled && producer != nil {
		interval, threshold := cfg.Log.Collector.Interval, cfg.Log.Collector.CountThreshold
		if interval <= 0 {
			interval = 30 * time.Second
		}
		if threshold <= 0 {
			threshold = 100
		}
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   interval,
			CountThreshold: threshold,
			Topic:          cfg.Kafka.Topics.Logs,
			Publisher:      producer,
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

func ProvideDialect(cfg *config.Config) (internalrepo.Dialect, error) {
	return internalrepo.ParseDialect(cfg.Store.Driver)
}

// ProvideDatabase opens the model database for the configured driver.
func ProvideDatabase(cfg *config.Config, d internalrepo.Dialect) (*sql.DB, error) {
	if d == internalrepo.DialectSQLite {
		db, err := internalrepo.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return db, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := pkgch.Open(ctx, pkgch.Config{
		Host:        cfg.ClickHouse.Host,
		Port:        cfg.ClickHouse.Port,
		Database:    cfg.ClickHouse.Database,
		User:        cfg.ClickHouse.User,
		Password:    cfg.ClickHouse.Password,
		UseHTTP:     cfg.ClickHouse.UseHTTP,
		DialTimeout: cfg.ClickHouse.DialTimeout,
		ReadTimeout: cfg.ClickHouse.ReadTimeout,
		MaxExecTime: cfg.ClickHouse.MaxExecutionTime,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse: %w", err)
	}
	return db, nil
}

// ProvideModelStore creates the model store and ensures its schema.
func ProvideModelStore(db *sql.DB, d internalrepo.Dialect) (repository.ModelStore, error) {
	store := internalrepo.NewSQLModelStore(db, d)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("model store schema: %w", err)
	}
	return store, nil
}

// ProvideRegistryStore shares the model database; its table is created by ProvideModelStore.
func ProvideRegistryStore(db *sql.DB, d internalrepo.Dialect, _ repository.ModelStore) repository.RegistryStore {
	return internalrepo.NewSQLRegistry(db, d)
}

// ProvideCache returns an in-process cache, layered over Redis when enabled.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(cfg.Redis.MemorySize), nil
	}
	rc, err := cache.NewRedisCache(context.Background(), cache.RedisConfig{
		Addr:     net.JoinHostPort(cfg.Redis.Host, strconv.Itoa(cfg.Redis.Port)),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(rc, cfg.Redis.MemorySize, 5*time.Minute), nil
}

func ProvideBlobCache(c cache.Service) repository.BlobCache {
	return internalrepo.NewCachedBlobs(c)
}

// ProvideEventPublisher publishes run events to Kafka, or drops them when Kafka is disabled.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.EventPublisher {
	if producer == nil {
		return internalrepo.NopEventPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topics.RunEvents)
}

// ProvideEngine creates the forecast engine.
func ProvideEngine() *forecast.Engine {
	return forecast.NewEngine()
}

// ProvideTrainingUseCase creates the training use case.
func ProvideTrainingUseCase(
	cfg *config.Config,
	engine *forecast.Engine,
	store repository.ModelStore,
	blobs repository.BlobCache,
	events repository.EventPublisher,
	hub *usecase.RunHub,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.TrainingUseCase {
	return usecase.NewTrainingUseCase(engine, store, blobs, events, hub, m, l.With(applogger.String("component", "training")), usecase.TrainingConfig{
		Timeout:         cfg.Training.Timeout,
		MaxWorkers:      cfg.Training.MaxWorkers,
		DefaultSeed:     cfg.Training.DefaultSeed,
		ValidationSplit: cfg.Training.ValidationSplit,
		MaxPoints:       cfg.Training.MaxPoints,
		DefaultHorizon:  cfg.Training.DefaultHorizon,
		BlobCacheTTL:    cfg.Training.BlobCacheTTL,
		SideEffectLimit: cfg.Training.EventPublishLimit,
	})
}

// ProvideHandlers assembles the HTTP route groups. Training routes sit behind
// a per-client token bucket when rate limiting is enabled.
func ProvideHandlers(
	cfg *config.Config,
	l *applogger.Logger,
	training *usecase.TrainingUseCase,
	registry *usecase.RegistryUseCase,
	hub *usecase.RunHub,
) []xhttp.Handler {
	var guard []echo.MiddlewareFunc
	if cfg.RateLimit.Enabled {
		guard = append(guard, ratelimit.Middleware(ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.Refill), ratelimit.RealIP))
	}
	return []xhttp.Handler{
		api.NewTimeSeriesHandler(l, training, cfg.Training.MaxUploadBytes, cfg.Training.MaxPoints, guard...),
		api.NewRegistryHandler(l, registry),
		api.NewPreprocessHandler(l),
		api.NewRunsHandler(l, hub),
	}
}

// ProvideHTTPServer creates the echo server with health checks for the store and cache.
func ProvideHTTPServer(
	cfg *config.Config,
	l *applogger.Logger,
	handlers []xhttp.Handler,
	store repository.ModelStore,
	c cache.Service,
) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(handlers,
		xhttp.WithListen(cfg.Server.Host, cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l.With(applogger.String("component", "http"))),
		xhttp.WithBodyLimit(cfg.Server.BodyLimit),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithHealthCheck("store", store.Health),
		xhttp.WithHealthCheck("cache", c.Ping),
	)
}

// ProvideKafkaConsumer creates the train-request consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:    cfg.Kafka.Brokers,
		GroupID:    cfg.Kafka.Consumer.GroupID,
		Workers:    cfg.Kafka.Consumer.Workers,
		BufferSize: cfg.Kafka.Consumer.BufferSize,
		DLQTopic:   cfg.Kafka.Consumer.DLQTopic,
		MinBytes:   cfg.Kafka.Consumer.MinBytes,
		MaxBytes:   cfg.Kafka.Consumer.MaxBytes,
	}, l.With(applogger.String("component", "kafka")))
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.AddHook(pkgkafka.RequestIDHook())
	return consumer, nil
}

func ProvideKafkaTrainHandler(cfg *config.Config, training *usecase.TrainingUseCase, m repository.Metrics, l *applogger.Logger) *usecase.KafkaTrainHandler {
	return usecase.NewKafkaTrainHandler(cfg.Kafka.Topics.TrainRequests, training, m, l.With(applogger.String("component", "kafka_train")))
}

// ProvideApp assembles the application lifecycle. The event publisher owns
// the Kafka producer and closes it.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	trainHandler *usecase.KafkaTrainHandler,
	events repository.EventPublisher,
	c cache.Service,
	store repository.ModelStore,
) *server.App {
	return server.New(cfg, l, httpServer,
		server.WithConsumer(consumer, trainHandler),
		server.WithClosers(events, c, store),
	)
}
