package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	cacheadapter "github.com/Sarmad-dev/pivot-pus-sub000/internal/adapters/cache"
	eventadapter "github.com/Sarmad-dev/pivot-pus-sub000/internal/adapters/events"
	grpcadapter "github.com/Sarmad-dev/pivot-pus-sub000/internal/adapters/grpc"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/adapters/postgres"
	provideradapter "github.com/Sarmad-dev/pivot-pus-sub000/internal/adapters/providers"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/application"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/ensemble"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/pivot"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/ports"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/queue"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/risk"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/scenario"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/simcache"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	service    *application.Service
	datasets   *provideradapter.DatasetRegistry
	grpcServer *grpc.Server
	grpcLis    net.Listener
	cleanupFn  func()
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)

	var closers []io.Closer

	// Stores degrade to in-memory implementations when postgres is not
	// configured, so the worker can run standalone.
	repos := postgres.NewMemoryRepositories()
	if cfg.DatabaseURL != "" {
		db, dbErr := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
		if dbErr != nil {
			return nil, dbErr
		}
		sqlDB, sqlErr := db.DB()
		if sqlErr != nil {
			return nil, sqlErr
		}
		if migErr := postgres.RunMigrations(ctx, db); migErr != nil {
			_ = sqlDB.Close()
			return nil, migErr
		}
		repos = postgres.NewRepositories(db)
		closers = append(closers, sqlDB)
	}

	cacheStore := ports.CacheStore(cacheadapter.NewMemoryCacheStore())
	if cfg.RedisURL != "" {
		redisClient, redisErr := cacheadapter.Connect(ctx, cfg.RedisURL)
		if redisErr != nil {
			closeAll(closers)
			return nil, redisErr
		}
		cacheStore = cacheadapter.NewRedisCacheStore(redisClient)
		closers = append(closers, redisClient)
	}

	publisher := ports.EventPublisher(eventadapter.NewNoopPublisher())
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, pubErr := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, map[string]string{
			"simulation.completed": cfg.TopicCompleted,
			"simulation.failed":    cfg.TopicFailed,
			"simulation.cancelled": cfg.TopicCancelled,
		})
		if pubErr != nil {
			logger.WarnContext(ctx, "kafka publisher disabled, events dropped", "error", pubErr)
		} else {
			publisher = kafkaPublisher
			closers = append(closers, kafkaPublisher)
		}
	}

	datasets := provideradapter.NewDatasetRegistry()
	service := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:     cfg.ServiceID,
			ProviderTimeout: cfg.ProviderTimeout,
			MaxRetries:      cfg.MaxRetries,
			Queue: queue.Config{
				Concurrency:  cfg.QueueConcurrency,
				TickInterval: cfg.QueueTick,
			},
			Scenario: scenario.Options{IncludeMarketFactors: true},
		},
		Datasets:  datasets,
		Providers: []ports.PredictionProvider{provideradapter.NewHeuristicProvider()},
		Results:   repos.Results,
		Queue:     repos.Queue,
		Feedback:  repos.Feedback,
		Events:    publisher,
		Coordinator: ensemble.NewCoordinator(ensemble.Config{
			Strategy:            ensemble.Strategy(cfg.EnsembleStrategy),
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			DisabledModels:      cfg.DisabledModels,
		}, logger),
		Scenarios: scenario.NewGenerator(scenario.Config{}, logger),
		Risks:     risk.NewDetector(risk.Config{}, logger),
		Pivots:    pivot.NewEngine(logger),
		Cache:     simcache.New(simcache.Config{TTL: cfg.CacheTTL}, cacheStore, logger),
		Logger:    logger,
	})

	grpcServer := grpc.NewServer()
	grpcadapter.Register(grpcServer, grpcadapter.NewSimulationInternalServer(service))
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		closeAll(closers)
		return nil, err
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		service:    service,
		datasets:   datasets,
		grpcServer: grpcServer,
		grpcLis:    lis,
		cleanupFn:  func() { closeAll(closers) },
	}, nil
}

// Service exposes the orchestrator for embedding callers.
func (r *Runtime) Service() *application.Service { return r.service }

// Datasets exposes the dataset registry so ingestion can seed campaigns.
func (r *Runtime) Datasets() *provideradapter.DatasetRegistry { return r.datasets }

// RunWorker drives the scheduler and health endpoint until a signal arrives.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 2)

	go func() {
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- err
		}
	}()
	go func() {
		if err := r.service.RunScheduler(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		r.logger.ErrorContext(ctx, "runtime failure", "error", err)
	}
	r.grpcServer.GracefulStop()
	r.cleanupFn()
	return nil
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}
