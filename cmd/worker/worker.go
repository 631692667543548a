package main

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/septivank/biometric-pipeline/internal/api"
	"github.com/septivank/biometric-pipeline/internal/config"
	"github.com/septivank/biometric-pipeline/internal/db"
	"github.com/septivank/biometric-pipeline/internal/device"
	"github.com/septivank/biometric-pipeline/internal/mq"
	"github.com/septivank/biometric-pipeline/internal/orchestrator"
	"github.com/septivank/biometric-pipeline/internal/privacy"
	"github.com/septivank/biometric-pipeline/internal/repository"
	"github.com/septivank/biometric-pipeline/internal/service"
	"github.com/septivank/biometric-pipeline/internal/store"
	"github.com/septivank/biometric-pipeline/internal/stream"
	"github.com/septivank/biometric-pipeline/internal/validation"
)

// ProvideRedisClient creates the Redis client when the redis backend is
// selected; memory deployments get nil.
func ProvideRedisClient(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	if cfg.Storage.Backend != "redis" {
		return nil, nil
	}
	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return err
			}
			logger.Info("connected to redis")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

// ProvideStores selects the key-value backend for profiles, devices,
// consent, audit and alerts.
func ProvideStores(cfg *config.Config, client *redis.Client) (*store.Stores, error) {
	return store.New(cfg.Storage, client)
}

// ProvideDBPool creates the pgx pool when persistence is enabled.
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*pgxpool.Pool, error) {
	if !cfg.Database.Enabled {
		return nil, nil
	}
	return db.NewPool(lc, logger, cfg.Database.URL)
}

// ProvideRepository creates the readings repository when persistence is
// enabled.
func ProvideRepository(pool *pgxpool.Pool) *repository.Repository {
	if pool == nil {
		return nil
	}
	return repository.NewRepository(pool)
}

// ProvideMQConnection connects to RabbitMQ when queue I/O is enabled.
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	if !cfg.RabbitMQ.Enabled {
		return nil, nil
	}
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvidePublisher creates the events publisher when queue I/O is enabled.
func ProvidePublisher(conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	if conn == nil {
		return nil, nil
	}
	return mq.NewPublisher(conn, cfg.RabbitMQ.EventsExchange, logger)
}

// ProvideValidationEngine creates the field-validation engine.
func ProvideValidationEngine(cfg *config.Config) *validation.Engine {
	return validation.NewEngine(cfg.Validation)
}

// ProvidePrivacyManager creates the consent and privacy manager.
func ProvidePrivacyManager(stores *store.Stores, cfg *config.Config, logger *zap.Logger) *privacy.Manager {
	return privacy.NewManager(stores.Consent, stores.Audit, cfg.Privacy, logger)
}

// ProvideStreamManager creates the real-time stream manager, resolving
// baselines from the profile store.
func ProvideStreamManager(stores *store.Stores, cfg *config.Config, logger *zap.Logger) *stream.Manager {
	return stream.NewManager(cfg.Stream, stores.Profiles.GetProfile, logger)
}

// ProvideDeviceRegistry creates the adapter registry with the built-in
// vendor integrations.
func ProvideDeviceRegistry(cfg *config.Config, logger *zap.Logger) *device.Registry {
	registry := device.NewRegistry()
	for vendor, baseURL := range device.DefaultVendors() {
		registry.Register(vendor, device.NewRESTAdapter(vendor, baseURL, cfg.Adapter, logger))
	}
	return registry
}

// ProvideOrchestrator wires the pipeline orchestrator and its optional
// persistence and MQ hooks.
func ProvideOrchestrator(
	stores *store.Stores,
	priv *privacy.Manager,
	validator *validation.Engine,
	streams *stream.Manager,
	registry *device.Registry,
	repo *repository.Repository,
	cfg *config.Config,
	logger *zap.Logger,
) *orchestrator.Orchestrator {
	orch := orchestrator.New(stores, priv, validator, streams, registry, cfg, logger)
	if repo != nil {
		orch.SetReadingSource(repo)
	}
	return orch
}

// ProvideIngestService creates the queue message processor.
func ProvideIngestService(
	orch *orchestrator.Orchestrator,
	repo *repository.Repository,
	publisher *mq.Publisher,
	cfg *config.Config,
	logger *zap.Logger,
) *service.IngestService {
	svc := service.NewIngestService(orch, repo, publisher, cfg, logger)
	if publisher != nil {
		orch.SetAlertPublisher(svc.PublishAlert)
	}
	return svc
}

// ProvideAPIServer creates the HTTP server.
func ProvideAPIServer(
	orch *orchestrator.Orchestrator,
	priv *privacy.Manager,
	cfg *config.Config,
	logger *zap.Logger,
) *api.Server {
	return api.NewServer(orch, priv, cfg, logger)
}

// startWorker attaches the consumer, HTTP server and retention janitor to
// the fx lifecycle.
func startWorker(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	processor *service.IngestService,
	server *api.Server,
	stores *store.Stores,
	streams *stream.Manager,
	repo *repository.Repository,
) error {
	ctx, cancel := context.WithCancel(context.Background())

	var consumer *mq.Consumer
	if conn != nil {
		var err error
		consumer, err = mq.NewConsumer(mq.ConsumerConfig{
			Connection:    conn,
			Queue:         cfg.RabbitMQ.IngestQueue,
			DLQQueue:      cfg.RabbitMQ.DLQQueue,
			Exchange:      cfg.RabbitMQ.IngestExchange,
			RoutingKey:    cfg.RabbitMQ.IngestRoutingKey,
			PrefetchCount: cfg.RabbitMQ.PrefetchCount,
			Logger:        logger,
			Handler:       processor.ProcessMessage,
		})
		if err != nil {
			cancel()
			return err
		}
	}

	janitor := store.NewJanitor(stores, time.Duration(cfg.Privacy.RetentionSweepMinutes)*time.Minute, logger)
	if repo != nil {
		janitor.SetReadingPruner(repo.PruneReadings)
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			if consumer != nil {
				logger.Info("starting ingest consumer",
					zap.String("queue", cfg.RabbitMQ.IngestQueue),
					zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
				if err := consumer.Start(ctx); err != nil {
					return err
				}
			}
			go janitor.Run(ctx)
			server.Start()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			streams.StopAll()
			if err := server.Shutdown(stopCtx); err != nil {
				logger.Error("failed to shut down http server", zap.Error(err))
			}
			if consumer != nil {
				if err := consumer.Close(); err != nil {
					logger.Error("failed to close consumer", zap.Error(err))
					return err
				}
			}
			logger.Info("worker stopped gracefully")
			return nil
		},
	})
	return nil
}
