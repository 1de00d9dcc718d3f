package domain

import (
	"encoding/json"
	"time"
)

// DataQualityScore grades the enriched dataset on four axes, each in [0,1].
type DataQualityScore struct {
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
	Freshness    float64 `json:"freshness"`
	Consistency  float64 `json:"consistency"`
	Overall      float64 `json:"overall"`
}

type Campaign struct {
	CampaignID    string    `json:"campaign_id"`
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	TotalBudget   float64   `json:"total_budget"`
	SpentBudget   float64   `json:"spent_budget"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	Channels      []string  `json:"channels"`
	ScheduleHours []int     `json:"schedule_hours,omitempty"`
}

type AudienceInsights struct {
	TotalReach   int64              `json:"total_reach"`
	AgeRangeMin  int                `json:"age_range_min"`
	AgeRangeMax  int                `json:"age_range_max"`
	Demographics map[string]float64 `json:"demographics,omitempty"`
	Locations    []string           `json:"locations,omitempty"`
}

type CreativeAsset struct {
	AssetID         string    `json:"asset_id"`
	Type            string    `json:"type"`
	PublishedAt     time.Time `json:"published_at"`
	EngagementScore float64   `json:"engagement_score"`
}

type ChannelBudget struct {
	Allocated float64 `json:"allocated"`
	Spent     float64 `json:"spent"`
}

type CompetitorRecord struct {
	Competitor string    `json:"competitor"`
	Date       time.Time `json:"date"`
	Value      float64   `json:"value"`
}

type SeasonalTrend struct {
	Name     string  `json:"name"`
	Strength float64 `json:"strength"`
}

type MarketData struct {
	Volatility         float64            `json:"volatility"`
	CompetitorActivity []CompetitorRecord `json:"competitor_activity,omitempty"`
	SeasonalTrends     []SeasonalTrend    `json:"seasonal_trends,omitempty"`
}

// EnrichedDataset is assembled by the dataset collaborator and is read-only
// inside the engine.
type EnrichedDataset struct {
	Campaign   Campaign                   `json:"campaign"`
	Historical []TrajectoryPoint          `json:"historical"`
	Audience   AudienceInsights           `json:"audience"`
	Creatives  []CreativeAsset            `json:"creatives,omitempty"`
	Budget     map[string]ChannelBudget   `json:"budget,omitempty"`
	Market     MarketData                 `json:"market"`
	External   map[string]json.RawMessage `json:"external,omitempty"`
	Quality    DataQualityScore           `json:"quality"`
}

// RemainingDays counts campaign days left at the given instant.
func (c Campaign) RemainingDays(now time.Time) int {
	if now.After(c.EndDate) {
		return 0
	}
	return int(c.EndDate.Sub(now).Hours() / 24)
}

// ElapsedDays counts campaign days already run at the given instant, never
// below one so spend-rate projections stay finite.
func (c Campaign) ElapsedDays(now time.Time) int {
	if now.Before(c.StartDate) {
		return 1
	}
	days := int(now.Sub(c.StartDate).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}
