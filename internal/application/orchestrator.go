package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/domain"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/pivot"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/ports"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/queue"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/simcache"
)

// Pipeline step names reported through job progress.
const (
	stepFetchDataset    = "fetch_dataset"
	stepPredict         = "predict"
	stepEnsemble        = "ensemble"
	stepScenariosRisks  = "scenarios_risks"
	stepRecommendations = "recommendations"
	stepPersist         = "persist"
)

// Submission is the outcome of submitting a simulation request. On a cache
// hit the result is returned immediately and nothing is queued.
type Submission struct {
	SimulationID string
	Status       domain.SimulationStatus
	CacheHit     bool
	Result       *domain.SimulationResult
}

// StatusReport answers a status poll from either live queue state or the
// result store.
type StatusReport struct {
	SimulationID string
	Status       domain.SimulationStatus
	Progress     int
	CurrentStep  string
	Result       *domain.SimulationResult
}

// RunSimulation validates the request, consults the cache, and enqueues a
// job on a miss. Invalid requests fail fast and are never queued.
func (s *Service) RunSimulation(ctx context.Context, req domain.SimulationRequest) (Submission, error) {
	if err := validateRequest(req); err != nil {
		return Submission{}, err
	}

	if s.cache != nil {
		cached, hit, err := s.cache.Get(ctx, req)
		if err != nil {
			s.logger.WarnContext(ctx, "result cache read failed; treating as miss",
				"module", "application",
				"operation", "run_simulation",
				"campaign_id", req.CampaignID,
				"error", err,
			)
		}
		if err == nil && hit {
			s.logger.InfoContext(ctx, "simulation served from cache",
				"module", "application",
				"operation", "run_simulation",
				"outcome", "cache_hit",
				"campaign_id", req.CampaignID,
			)
			return Submission{
				SimulationID: cached.SimulationID,
				Status:       domain.StatusCompleted,
				CacheHit:     true,
				Result:       &cached,
			}, nil
		}
	}

	simulationID := uuid.NewString()
	entry := domain.SimulationQueueEntry{
		SimulationID:      simulationID,
		Request:           req,
		EstimatedDuration: s.estimateDuration(req),
	}
	if err := s.jobs.Submit(ctx, entry); err != nil {
		return Submission{}, err
	}

	s.logger.InfoContext(ctx, "simulation queued",
		"module", "application",
		"operation", "run_simulation",
		"outcome", "queued",
		"simulation_id", simulationID,
		"campaign_id", req.CampaignID,
		"tier", string(req.Tier),
	)
	return Submission{SimulationID: simulationID, Status: domain.StatusQueued}, nil
}

// GetSimulationStatus checks live queue state first, then falls back to the
// result store for resolved simulations.
func (s *Service) GetSimulationStatus(ctx context.Context, simulationID string) (StatusReport, error) {
	if entry, ok := s.jobs.Status(simulationID); ok {
		return StatusReport{
			SimulationID: simulationID,
			Status:       entry.Status,
			Progress:     entry.Progress,
			CurrentStep:  entry.CurrentStep,
		}, nil
	}
	result, err := s.results.Get(ctx, simulationID)
	if err != nil {
		return StatusReport{}, err
	}
	return StatusReport{
		SimulationID: simulationID,
		Status:       result.Status,
		Progress:     100,
		Result:       &result,
	}, nil
}

// CancelSimulation cancels a queued or processing simulation. It reports
// false for unknown or already-completed simulations. A queued job is removed
// immediately; a processing job is cancelled cooperatively by its worker.
func (s *Service) CancelSimulation(ctx context.Context, simulationID string) (bool, error) {
	entry, tracked := s.jobs.Status(simulationID)
	if !tracked {
		return false, nil
	}
	wasQueued := entry.Status == domain.StatusQueued
	if !s.jobs.Cancel(ctx, simulationID) {
		return false, nil
	}
	if wasQueued {
		// The job never started, so the worker cannot write the terminal
		// record; do it here so later polls resolve via the store.
		s.persistTerminal(ctx, s.cancelledResult(entry), "simulation.cancelled")
	}
	s.logger.InfoContext(ctx, "simulation cancelled",
		"module", "application",
		"operation", "cancel_simulation",
		"outcome", "success",
		"simulation_id", simulationID,
		"was_queued", wasQueued,
	)
	return true, nil
}

// FeedbackInput grades one model's accuracy on a completed simulation.
type FeedbackInput struct {
	SimulationID string
	Model        string
	Accuracy     float64
	Comment      string
}

// RecordFeedback persists the correction and feeds the ensemble's rolling
// performance history.
func (s *Service) RecordFeedback(ctx context.Context, input FeedbackInput) error {
	if strings.TrimSpace(input.SimulationID) == "" || strings.TrimSpace(input.Model) == "" {
		return fmt.Errorf("%w: simulation id and model are required", domain.ErrInvalidInput)
	}
	if input.Accuracy < 0 || input.Accuracy > 1 {
		return fmt.Errorf("%w: accuracy %.3f outside [0,1]", domain.ErrInvalidInput, input.Accuracy)
	}
	if s.feedback != nil {
		if err := s.feedback.Record(ctx, feedbackRecord(input, s.nowFn())); err != nil {
			return fmt.Errorf("record feedback: %w", err)
		}
	}
	s.coordinator.UpdateModelPerformance(input.Model, input.Accuracy)
	return nil
}

// processJob is the queue executor: the full per-simulation pipeline. The
// context is cancelled on external cancellation and is checked between steps;
// an aborted job persists only its terminal status, never partial results.
func (s *Service) processJob(ctx context.Context, entry domain.SimulationQueueEntry, progress queue.ProgressFn) error {
	req := entry.Request

	progress(stepFetchDataset, 10)
	dataset, err := s.datasets.GetEnrichedDataset(ctx, req.CampaignID, req.ExternalDataSources)
	if err != nil {
		return s.failJob(ctx, entry, fmt.Errorf("fetch dataset: %w", err))
	}
	if err := s.checkCancelled(ctx, entry); err != nil {
		return err
	}

	progress(stepPredict, 30)
	predictions, err := s.collectPredictions(ctx, dataset, req)
	if err != nil {
		return s.failJob(ctx, entry, err)
	}
	if err := s.checkCancelled(ctx, entry); err != nil {
		return err
	}

	progress(stepEnsemble, 50)
	combined, err := s.coordinator.Combine(predictions, &dataset)
	if err != nil {
		return s.failJob(ctx, entry, fmt.Errorf("ensemble: %w", err))
	}
	if err := s.checkCancelled(ctx, entry); err != nil {
		return err
	}

	// Scenario expansion and risk detection are independent reads over the
	// merged trajectory, so they run concurrently.
	progress(stepScenariosRisks, 70)
	var (
		scenarios []domain.ScenarioResult
		risks     []domain.RiskAlert
	)
	var g errgroup.Group
	g.Go(func() error {
		scenarios = s.scenarios.Generate(combined.Output.Trajectory, req.Scenarios, dataset, s.cfg.Scenario)
		return nil
	})
	g.Go(func() error {
		risks = s.risks.Detect(combined.Output.Trajectory, dataset, s.nowFn())
		return nil
	})
	_ = g.Wait()
	if err := s.checkCancelled(ctx, entry); err != nil {
		return err
	}
	if len(scenarios) == 0 {
		return s.failJob(ctx, entry, fmt.Errorf("%w: no scenario could be generated", domain.ErrInsufficientData))
	}

	progress(stepRecommendations, 85)
	recommendations := s.pivots.Generate(pivot.Context{
		Trajectory: combined.Output.Trajectory,
		Risks:      risks,
		Dataset:    dataset,
	}, s.cfg.Pivot)
	if err := s.checkCancelled(ctx, entry); err != nil {
		return err
	}

	progress(stepPersist, 95)
	now := s.nowFn()
	models := make([]string, 0, len(predictions))
	for _, p := range predictions {
		models = append(models, p.Model)
	}
	result := domain.SimulationResult{
		SimulationID:    entry.SimulationID,
		CampaignID:      req.CampaignID,
		OrganizationID:  req.OrganizationID,
		Status:          domain.StatusCompleted,
		Trajectory:      combined.Output.Trajectory,
		Scenarios:       scenarios,
		Risks:           risks,
		Recommendations: recommendations,
		Metadata: domain.ModelMetadata{
			Models:         models,
			Weights:        combined.Weights,
			Strategy:       string(combined.Strategy),
			ConsensusScore: combined.ConsensusScore,
			DiversityScore: combined.DiversityScore,
		},
		CreatedAt:   entry.SubmittedAt,
		CompletedAt: now,
	}

	if err := s.results.Save(ctx, result); err != nil {
		return s.failJob(ctx, entry, fmt.Errorf("persist result: %w", err))
	}
	if s.cache != nil && simcache.ShouldCache(req) {
		if err := s.cache.Put(ctx, req, result); err != nil {
			s.logger.WarnContext(ctx, "result cache write failed",
				"module", "application",
				"simulation_id", entry.SimulationID,
				"error", err,
			)
		}
	}
	s.publishLifecycle(ctx, result, "simulation.completed")

	s.logger.InfoContext(ctx, "simulation completed",
		"module", "application",
		"operation", "process_job",
		"outcome", "success",
		"simulation_id", entry.SimulationID,
		"model_count", len(models),
		"scenario_count", len(scenarios),
		"risk_count", len(risks),
		"recommendation_count", len(recommendations),
	)
	return nil
}

// collectPredictions fans out to every enabled provider in parallel. A single
// provider's failure is logged and skipped; the job fails only when zero
// providers succeed.
func (s *Service) collectPredictions(ctx context.Context, dataset domain.EnrichedDataset, req domain.SimulationRequest) ([]domain.ModelPrediction, error) {
	if len(s.providers) == 0 {
		return nil, domain.ErrNoPredictions
	}

	var (
		mu          sync.Mutex
		predictions []domain.ModelPrediction
		failures    []error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, provider := range s.providers {
		provider := provider
		g.Go(func() error {
			pred, err := s.callProvider(gctx, provider, dataset, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, fmt.Errorf("%s: %w", provider.Name(), err))
				s.logger.WarnContext(gctx, "provider prediction failed; skipping",
					"module", "application",
					"operation", "collect_predictions",
					"outcome", "failure",
					"provider", provider.Name(),
					"error", err,
				)
				return nil
			}
			predictions = append(predictions, pred)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if len(predictions) == 0 {
		primary := errors.Join(failures...)
		return nil, &domain.TotalFailureError{
			Primary:  fmt.Errorf("all %d providers failed", len(s.providers)),
			Fallback: primary,
		}
	}
	return predictions, nil
}

// callProvider applies circuit-breaking, a per-call timeout, retry with
// backoff for retryable failures, and eager output validation.
func (s *Service) callProvider(ctx context.Context, provider ports.PredictionProvider, dataset domain.EnrichedDataset, req domain.SimulationRequest) (domain.ModelPrediction, error) {
	name := provider.Name()
	if s.tracker.Degraded(name) {
		return domain.ModelPrediction{}, fmt.Errorf("%w: provider %s", domain.ErrServiceDegraded, name)
	}

	var output domain.PredictionOutput
	started := s.nowFn()
	err := withRetry(ctx, s.retry, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
		defer cancel()
		out, err := provider.Predict(callCtx, dataset, req.Timeframe, req.Metrics)
		if err != nil {
			s.tracker.Record(name)
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%w: provider %s", domain.ErrProcessingTimeout, name)
			}
			return err
		}
		if err := out.Validate(); err != nil {
			return err
		}
		output = out
		return nil
	})
	if err != nil {
		return domain.ModelPrediction{}, err
	}

	elapsed := s.nowFn().Sub(started)
	confidence := 0.0
	for _, p := range output.Trajectory {
		confidence += p.Confidence
	}
	confidence /= float64(len(output.Trajectory))

	return domain.ModelPrediction{
		Model:          name,
		Output:         output,
		Weight:         1,
		Confidence:     confidence,
		ProcessingTime: elapsed,
	}, nil
}

// checkCancelled persists the terminal cancelled record when the job context
// has been cancelled between steps.
func (s *Service) checkCancelled(ctx context.Context, entry domain.SimulationQueueEntry) error {
	if err := ctx.Err(); err != nil {
		s.persistTerminal(ctx, s.cancelledResult(entry), "simulation.cancelled")
		return err
	}
	return nil
}

func (s *Service) failJob(ctx context.Context, entry domain.SimulationQueueEntry, cause error) error {
	if errors.Is(cause, context.Canceled) {
		return s.checkCancelled(ctx, entry)
	}
	now := s.nowFn()
	result := domain.SimulationResult{
		SimulationID:   entry.SimulationID,
		CampaignID:     entry.Request.CampaignID,
		OrganizationID: entry.Request.OrganizationID,
		Status:         domain.StatusFailed,
		FailureReason:  cause.Error(),
		CreatedAt:      entry.SubmittedAt,
		CompletedAt:    now,
	}
	s.persistTerminal(ctx, result, "simulation.failed")
	return cause
}

func (s *Service) cancelledResult(entry domain.SimulationQueueEntry) domain.SimulationResult {
	return domain.SimulationResult{
		SimulationID:   entry.SimulationID,
		CampaignID:     entry.Request.CampaignID,
		OrganizationID: entry.Request.OrganizationID,
		Status:         domain.StatusCancelled,
		CreatedAt:      entry.SubmittedAt,
		CompletedAt:    s.nowFn(),
	}
}

// persistTerminal writes the terminal status record and publishes the
// lifecycle event. Both are best-effort on the failure/cancellation paths.
func (s *Service) persistTerminal(ctx context.Context, result domain.SimulationResult, eventType string) {
	saveCtx := context.WithoutCancel(ctx)
	if err := s.results.Save(saveCtx, result); err != nil {
		s.logger.ErrorContext(saveCtx, "terminal status write failed",
			"module", "application",
			"simulation_id", result.SimulationID,
			"status", string(result.Status),
			"error", err,
		)
	}
	s.publishLifecycle(saveCtx, result, eventType)
}

func (s *Service) publishLifecycle(ctx context.Context, result domain.SimulationResult, eventType string) {
	if s.events == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"event_id":      uuid.NewString(),
		"simulation_id": result.SimulationID,
		"campaign_id":   result.CampaignID,
		"status":        result.Status,
		"occurred_at":   s.nowFn().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}
	if err := s.events.Publish(ctx, eventType, payload, result.CampaignID); err != nil {
		s.logger.WarnContext(ctx, "lifecycle event publish failed",
			"module", "application",
			"event_type", eventType,
			"simulation_id", result.SimulationID,
			"error", err,
		)
	}
}

func (s *Service) estimateDuration(req domain.SimulationRequest) time.Duration {
	base := 2 * time.Second
	perPeriod := 100 * time.Millisecond * time.Duration(req.Timeframe.Periods())
	perProvider := 500 * time.Millisecond * time.Duration(len(s.providers))
	return base + perPeriod + perProvider
}

func validateRequest(req domain.SimulationRequest) error {
	if strings.TrimSpace(req.CampaignID) == "" {
		return fmt.Errorf("%w: campaign id is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(req.OrganizationID) == "" {
		return fmt.Errorf("%w: organization id is required", domain.ErrInvalidInput)
	}
	switch req.Tier {
	case domain.TierFree, domain.TierPro, domain.TierEnterprise:
	default:
		return fmt.Errorf("%w: unknown subscription tier %q", domain.ErrInvalidInput, req.Tier)
	}
	switch req.Timeframe.Granularity {
	case domain.GranularityDaily, domain.GranularityWeekly:
	default:
		return fmt.Errorf("%w: unknown granularity %q", domain.ErrInvalidInput, req.Timeframe.Granularity)
	}
	if req.Timeframe.Periods() <= 0 {
		return fmt.Errorf("%w: timeframe spans no periods", domain.ErrInvalidInput)
	}
	if len(req.Metrics) == 0 {
		return fmt.Errorf("%w: at least one metric is required", domain.ErrInvalidInput)
	}
	for _, m := range req.Metrics {
		if strings.TrimSpace(m.Type) == "" {
			return fmt.Errorf("%w: metric type must not be empty", domain.ErrInvalidInput)
		}
		if m.Weight < 0 {
			return fmt.Errorf("%w: metric %s has negative weight", domain.ErrInvalidInput, m.Type)
		}
	}
	if len(req.Scenarios) == 0 {
		return fmt.Errorf("%w: at least one scenario is required", domain.ErrInvalidInput)
	}
	for _, sc := range req.Scenarios {
		switch sc.Type {
		case domain.ScenarioOptimistic, domain.ScenarioRealistic, domain.ScenarioPessimistic, domain.ScenarioCustom:
		default:
			return fmt.Errorf("%w: unknown scenario type %q", domain.ErrInvalidInput, sc.Type)
		}
		if sc.Percentile != nil && (*sc.Percentile < 0 || *sc.Percentile > 100) {
			return fmt.Errorf("%w: percentile %.1f outside [0,100]", domain.ErrInvalidInput, *sc.Percentile)
		}
	}
	return nil
}

func feedbackRecord(input FeedbackInput, now time.Time) ports.FeedbackRecord {
	return ports.FeedbackRecord{
		SimulationID: input.SimulationID,
		Model:        input.Model,
		Accuracy:     input.Accuracy,
		Comment:      input.Comment,
		RecordedAt:   now,
	}
}
