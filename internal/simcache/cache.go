package simcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/domain"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/ports"
)

type Config struct {
	TTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	return c
}

// Cache is a content-addressed cache of completed simulation results keyed by
// a user-independent projection of the request, so identical requests from
// different users share entries.
type Cache struct {
	cfg    Config
	store  ports.CacheStore
	logger *slog.Logger
}

func New(cfg Config, store ports.CacheStore, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{cfg: cfg.withDefaults(), store: store, logger: logger}
}

// keyProjection is the normalized, requester-independent shape that is
// hashed. Metrics, scenario types, and sources are sorted so argument order
// never changes the key.
type keyProjection struct {
	CampaignID  string   `json:"campaign_id"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Granularity string   `json:"granularity"`
	Metrics     []string `json:"metrics"`
	Scenarios   []string `json:"scenarios"`
	Sources     []string `json:"sources"`
}

// Key computes the stable cache key for a request.
func Key(req domain.SimulationRequest) string {
	metrics := make([]string, 0, len(req.Metrics))
	for _, m := range req.Metrics {
		metrics = append(metrics, m.Type)
	}
	sort.Strings(metrics)

	scenarios := make([]string, 0, len(req.Scenarios))
	for _, s := range req.Scenarios {
		scenarios = append(scenarios, string(s.Type))
	}
	sort.Strings(scenarios)

	sources := append([]string(nil), req.ExternalDataSources...)
	sort.Strings(sources)

	proj := keyProjection{
		CampaignID:  req.CampaignID,
		Start:       req.Timeframe.StartDate.UTC().Format(time.RFC3339),
		End:         req.Timeframe.EndDate.UTC().Format(time.RFC3339),
		Granularity: string(req.Timeframe.Granularity),
		Metrics:     metrics,
		Scenarios:   scenarios,
		Sources:     sources,
	}
	data, _ := json.Marshal(proj)
	sum := sha256.Sum256(data)
	return "sim:result:" + hex.EncodeToString(sum[:])
}

// Get returns the cached result for an equivalent request, if present.
func (c *Cache) Get(ctx context.Context, req domain.SimulationRequest) (domain.SimulationResult, bool, error) {
	data, found, err := c.store.Get(ctx, Key(req))
	if err != nil {
		return domain.SimulationResult{}, false, fmt.Errorf("cache get: %w", err)
	}
	if !found {
		return domain.SimulationResult{}, false, nil
	}
	var result domain.SimulationResult
	if err := json.Unmarshal(data, &result); err != nil {
		// A corrupt entry is treated as a miss and evicted.
		_ = c.store.Delete(ctx, Key(req))
		return domain.SimulationResult{}, false, nil
	}
	return result, true, nil
}

// Put stores a completed result under the request's key with the configured TTL.
func (c *Cache) Put(ctx context.Context, req domain.SimulationRequest, result domain.SimulationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	return c.store.Set(ctx, Key(req), data, c.cfg.TTL)
}

// ShouldCache recommends caching for requests whose recomputation is
// expensive: multiple scenarios, multiple external sources, long timeframes,
// or many metrics.
func ShouldCache(req domain.SimulationRequest) bool {
	if len(req.Scenarios) > 1 {
		return true
	}
	if len(req.ExternalDataSources) > 1 {
		return true
	}
	if req.Timeframe.Periods() > 7 {
		return true
	}
	return len(req.Metrics) > 3
}

// EstimateCacheValue scores the expected benefit of caching this request in
// [0,1], used to prioritize cache warmup.
func EstimateCacheValue(req domain.SimulationRequest) float64 {
	score := 0.0
	score += 0.3 * minF(float64(len(req.Scenarios))/3, 1)
	score += 0.2 * minF(float64(len(req.ExternalDataSources))/3, 1)
	score += 0.3 * minF(float64(req.Timeframe.Periods())/30, 1)
	score += 0.2 * minF(float64(len(req.Metrics))/5, 1)
	return score
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
