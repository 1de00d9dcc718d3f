package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/ensemble"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/pivot"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/ports"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/queue"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/risk"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/scenario"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/simcache"
)

type Config struct {
	ServiceName string

	// ProviderTimeout bounds each provider call independently.
	ProviderTimeout time.Duration
	// MaxRetries, RetryBaseDelay, RetryMaxDelay, RetryMultiplier shape the
	// exponential backoff applied to retryable provider failures.
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	RetryMultiplier float64

	// DegradedErrorWindow / DegradedErrorThreshold drive circuit-breaking.
	DegradedErrorWindow    time.Duration
	DegradedErrorThreshold int

	Queue    queue.Config
	Scenario scenario.Options
	Pivot    pivot.Options
}

func (c Config) withDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = "pivotpulse-simulation-engine"
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.RetryMultiplier <= 0 {
		c.RetryMultiplier = 2
	}
	if c.DegradedErrorWindow <= 0 {
		c.DegradedErrorWindow = 5 * time.Minute
	}
	if c.DegradedErrorThreshold <= 0 {
		c.DegradedErrorThreshold = 5
	}
	return c
}

type Dependencies struct {
	Config Config

	Datasets  ports.DatasetProvider
	Providers []ports.PredictionProvider

	Results  ports.ResultStore
	Queue    ports.QueueStore
	Feedback ports.FeedbackStore
	Events   ports.EventPublisher

	Coordinator *ensemble.Coordinator
	Scenarios   *scenario.Generator
	Risks       *risk.Detector
	Pivots      *pivot.Engine
	Cache       *simcache.Cache

	Logger *slog.Logger
}

// Service is the simulation orchestrator: it owns the request lifecycle and
// sequences the engine components for each job.
type Service struct {
	cfg    Config
	logger *slog.Logger
	nowFn  func() time.Time

	datasets  ports.DatasetProvider
	providers []ports.PredictionProvider
	results   ports.ResultStore
	feedback  ports.FeedbackStore
	events    ports.EventPublisher

	coordinator *ensemble.Coordinator
	scenarios   *scenario.Generator
	risks       *risk.Detector
	pivots      *pivot.Engine
	cache       *simcache.Cache
	tracker     *ErrorTracker
	jobs        *queue.Queue

	retry retryPolicy
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		cfg:         cfg,
		logger:      logger,
		nowFn:       func() time.Time { return time.Now().UTC() },
		datasets:    deps.Datasets,
		providers:   deps.Providers,
		results:     deps.Results,
		feedback:    deps.Feedback,
		events:      deps.Events,
		coordinator: deps.Coordinator,
		scenarios:   deps.Scenarios,
		risks:       deps.Risks,
		pivots:      deps.Pivots,
		cache:       deps.Cache,
		tracker:     NewErrorTracker(cfg.DegradedErrorWindow, cfg.DegradedErrorThreshold),
		retry: retryPolicy{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
			Multiplier:  cfg.RetryMultiplier,
		},
	}
	s.jobs = queue.New(cfg.Queue, s.processJob, deps.Queue, logger)
	return s
}

// RunScheduler drives the queue's dispatch loop until context cancellation.
func (s *Service) RunScheduler(ctx context.Context) error {
	return s.jobs.Run(ctx)
}

// DispatchNow runs a single scheduler pass; used by tests and callers that
// do not run the background loop.
func (s *Service) DispatchNow(ctx context.Context) {
	s.jobs.Dispatch(ctx)
}

// EnsembleMetrics exposes the per-model rolling performance state.
func (s *Service) EnsembleMetrics() []ensemble.ModelMetrics {
	return s.coordinator.Metrics()
}
