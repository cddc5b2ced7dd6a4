package di

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cosmo-migrator/internal/migration/adapter/api"
	"cosmo-migrator/internal/migration/adapter/audit"
	"cosmo-migrator/internal/migration/adapter/credentials"
	"cosmo-migrator/internal/migration/adapter/dump"
	apphttp "cosmo-migrator/internal/migration/adapter/http"
	"cosmo-migrator/internal/migration/adapter/persistence/memory"
	"cosmo-migrator/internal/migration/adapter/persistence/mongodb"
	redisstore "cosmo-migrator/internal/migration/adapter/persistence/redis"
	"cosmo-migrator/internal/migration/config"
	"cosmo-migrator/internal/migration/domain/repository"
	"cosmo-migrator/internal/migration/domain/service"
	"cosmo-migrator/internal/migration/usecase"
	"cosmo-migrator/internal/shared/eventbus"
	"cosmo-migrator/internal/shared/logger"
	"cosmo-migrator/internal/shared/metrics"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// Container assembles the adapters and use cases of one migration run from
// its configuration and owns their lifecycle.
type Container struct {
	mu sync.Mutex

	Config  *config.Config
	Logger  logger.Logger
	Bus     *eventbus.EventBus
	Metrics *metrics.Metrics

	Source      repository.SourceReader
	Scanner     repository.DocumentScanner
	Destination repository.DestinationWriter
	Dump        repository.DumpStore
	Filter      *service.EntityFilter
	Audit       *audit.MultiSink

	Tracker      *apphttp.Tracker
	StatusServer *apphttp.Server

	mongoClient *mongo.Client
	redisClient *redis.Client
}

// NewContainer creates an empty container for cfg.
func NewContainer(cfg *config.Config, log logger.Logger) *Container {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Container{Config: cfg, Logger: log}
}

// Initialize builds every component the configured mode needs.
func (c *Container) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Bus = eventbus.NewEventBus(c.Logger.WithComponent("eventbus"))
	c.Metrics = metrics.New()
	c.Tracker = apphttp.NewTracker(c.Bus)

	filter, err := service.NewEntityFilter(c.Config.Filter)
	if err != nil {
		return fmt.Errorf("invalid MIGRATION_FILTER: %w", err)
	}
	c.Filter = filter

	if c.Config.Mode != config.ModeImport {
		if err := c.initializeSource(ctx); err != nil {
			return fmt.Errorf("failed to initialize source: %w", err)
		}
	}
	if c.Config.Mode != config.ModeExport {
		if err := c.initializeDestination(ctx); err != nil {
			return fmt.Errorf("failed to initialize destination: %w", err)
		}
	}
	if c.Config.Mode != config.ModeDirect {
		if err := c.initializeDump(ctx); err != nil {
			return fmt.Errorf("failed to initialize dump store: %w", err)
		}
	}
	if err := c.initializeAudit(ctx); err != nil {
		return fmt.Errorf("failed to initialize audit sinks: %w", err)
	}

	if c.Config.Status.Addr != "" {
		handler := apphttp.NewStatusHandler(c.Tracker, c.Bus, c.Metrics.Registry(), c.Logger)
		c.StatusServer = apphttp.NewServer(c.Config.Status.Addr, handler, c.Logger)
	}
	return nil
}

func (c *Container) strategy() repository.IDStrategy {
	return repository.IDStrategy(c.Config.IDStrategy)
}

func (c *Container) initializeSource(ctx context.Context) error {
	switch c.Config.SourceBackend {
	case config.BackendMongoDB:
		client, err := c.connectMongo(ctx)
		if err != nil {
			return err
		}
		db := mongodb.NewMongoDatabaseAdapter(client.Database(c.Config.Mongo.Database))
		reader := mongodb.NewSourceReader(db, c.Logger)
		c.Source, c.Scanner = reader, reader
	case config.BackendRedis:
		client, err := c.connectRedis(ctx)
		if err != nil {
			return err
		}
		store := redisstore.NewStore(client, c.Config.Redis.Prefix(), c.strategy(), c.Logger)
		c.Source, c.Scanner = store, store
	case config.BackendMemory:
		store := memory.NewStore(c.strategy())
		c.Source, c.Scanner = store, store
	case config.BackendAPI:
		client, err := c.apiClient(ctx, c.Config.Source)
		if err != nil {
			return err
		}
		c.Source = client
	default:
		return fmt.Errorf("unsupported source backend %q", c.Config.SourceBackend)
	}
	if c.Config.Mode == config.ModeExport && c.Scanner == nil {
		return fmt.Errorf("source backend %q cannot be scanned for export", c.Config.SourceBackend)
	}
	c.Logger.Infof("source backend: %s", c.Config.SourceBackend)
	return nil
}

func (c *Container) initializeDestination(ctx context.Context) error {
	switch c.Config.DestinationBackend {
	case config.BackendRedis:
		client, err := c.connectRedis(ctx)
		if err != nil {
			return err
		}
		c.Destination = redisstore.NewStore(client, c.Config.Redis.Prefix(), c.strategy(), c.Logger)
	case config.BackendMemory:
		c.Destination = memory.NewStore(c.strategy())
	case config.BackendAPI:
		client, err := c.apiClient(ctx, c.Config.Destination)
		if err != nil {
			return err
		}
		c.Destination = client
	default:
		return fmt.Errorf("unsupported destination backend %q", c.Config.DestinationBackend)
	}
	c.Logger.Infof("destination backend: %s (id strategy %s)", c.Config.DestinationBackend, c.Config.IDStrategy)
	return nil
}

func (c *Container) initializeDump(ctx context.Context) error {
	cfg := c.Config.Dump
	switch cfg.Backend {
	case "s3":
		store, err := dump.NewS3Store(ctx, dump.S3Config{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PathStyle:       cfg.S3PathStyle,
		})
		if err != nil {
			return err
		}
		c.Dump = store
	default:
		store, err := dump.NewFSStore(cfg.Dir)
		if err != nil {
			return err
		}
		c.Dump = store
	}
	return nil
}

func (c *Container) initializeAudit(ctx context.Context) error {
	cfg := c.Config.Audit
	var sinks []repository.AuditSink

	if cfg.CSVPath != "" {
		sink, err := audit.NewCSVSink(cfg.CSVPath)
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}
	if cfg.XLSXPath != "" {
		sink, err := audit.NewXLSXSink(cfg.XLSXPath)
		if err != nil {
			return errors.Join(err, audit.NewMultiSink(sinks...).Close())
		}
		sinks = append(sinks, sink)
	}
	if cfg.RedisStream != "" {
		client, err := c.connectRedis(ctx)
		if err != nil {
			return errors.Join(err, audit.NewMultiSink(sinks...).Close())
		}
		sinks = append(sinks, audit.NewRedisStreamSink(client, cfg.RedisStream, c.Config.Redis.StreamMaxLength))
	}
	sinks = append(sinks, audit.NewBusSink(c.Bus))

	c.Audit = audit.NewMultiSink(sinks...)
	return nil
}

func (c *Container) apiClient(ctx context.Context, cfg config.APIConfig) (*api.Client, error) {
	ts, err := credentials.NewTokenSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	httpClient := credentials.NewHTTPClient(ctx, ts, cfg.Timeout)
	return api.NewClient(cfg.URL, httpClient, c.strategy(), c.Logger)
}

// connectMongo connects once and is shared by every component that needs it.
func (c *Container) connectMongo(ctx context.Context) (*mongo.Client, error) {
	if c.mongoClient != nil {
		return c.mongoClient, nil
	}
	client, err := mongodb.Connect(ctx, c.Config.Mongo)
	if err != nil {
		return nil, err
	}
	c.Logger.Info("MongoDB connection established successfully")
	c.mongoClient = client
	return client, nil
}

func (c *Container) connectRedis(ctx context.Context) (*redis.Client, error) {
	if c.redisClient != nil {
		return c.redisClient, nil
	}
	client, err := config.NewRedisClient(&c.Config.Redis)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", c.Config.Redis.GetAddr(), err)
	}
	c.Logger.Info("Redis connection established successfully")
	c.redisClient = client
	return client, nil
}

// MigratorDeps bundles the components shared by every entity migrator.
func (c *Container) MigratorDeps() usecase.MigratorDeps {
	deps := usecase.MigratorDeps{
		Source:  c.Source,
		Dest:    c.Destination,
		Filter:  c.Filter,
		Metrics: c.Metrics,
		Logger:  c.Logger,
	}
	if c.Audit != nil {
		deps.Audit = c.Audit
	}
	return deps
}

// Orchestrator returns the direct-mode driver.
func (c *Container) Orchestrator() *usecase.Orchestrator {
	return usecase.NewOrchestrator(c.MigratorDeps(), c.Bus, usecase.OrchestratorConfig{
		OrganizationID:      c.Config.OrganizationID,
		MigrateDatasets:     c.Config.MigrateDatasets,
		MigrateScenarioRuns: c.Config.MigrateScenarioRuns,
		Parallelism:         c.Config.Parallelism,
	})
}

// Transfer returns the export/import driver.
func (c *Container) Transfer() *usecase.TransferUsecase {
	return usecase.NewTransferUsecase(c.MigratorDeps(), c.Scanner, c.Dump)
}

// HealthCheck pings the database connections the container opened.
func (c *Container) HealthCheck(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mongoClient != nil {
		if err := c.mongoClient.Ping(ctx, nil); err != nil {
			return fmt.Errorf("MongoDB health check failed: %w", err)
		}
	}
	if c.redisClient != nil {
		if err := c.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("Redis health check failed: %w", err)
		}
	}
	return nil
}

// Cleanup releases resources in reverse order of initialization.
func (c *Container) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.Tracker != nil {
		c.Tracker.Stop()
		c.Tracker = nil
	}
	if c.Audit != nil {
		if err := c.Audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close audit sinks: %w", err))
		}
		c.Audit = nil
	}
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
		c.redisClient = nil
	}
	if c.mongoClient != nil {
		if err := c.mongoClient.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to disconnect MongoDB: %w", err))
		}
		c.mongoClient = nil
	}
	return errors.Join(errs...)
}

// Close runs Cleanup with a bounded timeout.
func (c *Container) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Cleanup(ctx); err != nil {
		c.Logger.Warnf("cleanup errors occurred: %v", err)
		return err
	}
	c.Logger.Info("container resources closed")
	return nil
}
