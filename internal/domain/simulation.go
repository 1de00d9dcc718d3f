package domain

import "time"

type Granularity string

const (
	GranularityDaily  Granularity = "daily"
	GranularityWeekly Granularity = "weekly"
)

type ScenarioType string

const (
	ScenarioOptimistic  ScenarioType = "optimistic"
	ScenarioRealistic   ScenarioType = "realistic"
	ScenarioPessimistic ScenarioType = "pessimistic"
	ScenarioCustom      ScenarioType = "custom"
)

type SubscriptionTier string

const (
	TierFree       SubscriptionTier = "free"
	TierPro        SubscriptionTier = "pro"
	TierEnterprise SubscriptionTier = "enterprise"
)

// QueueLimit is the maximum number of simultaneously queued simulations an
// organization on this tier may hold.
func (t SubscriptionTier) QueueLimit() int {
	switch t {
	case TierEnterprise:
		return 50
	case TierPro:
		return 10
	default:
		return 3
	}
}

// Priority maps the tier to a scheduler priority score.
func (t SubscriptionTier) Priority() int {
	switch t {
	case TierEnterprise:
		return 90
	case TierPro:
		return 50
	default:
		return 10
	}
}

type SimulationStatus string

const (
	StatusQueued     SimulationStatus = "queued"
	StatusProcessing SimulationStatus = "processing"
	StatusCompleted  SimulationStatus = "completed"
	StatusFailed     SimulationStatus = "failed"
	StatusCancelled  SimulationStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s SimulationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type AdjustmentFactor string

const (
	AdjustBudget          AdjustmentFactor = "budget"
	AdjustCompetition     AdjustmentFactor = "competition"
	AdjustSeasonality     AdjustmentFactor = "seasonality"
	AdjustCreativeFatigue AdjustmentFactor = "creative_fatigue"
)

type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

type Timeframe struct {
	StartDate   time.Time   `json:"start_date"`
	EndDate     time.Time   `json:"end_date"`
	Granularity Granularity `json:"granularity"`
}

// Periods returns the number of trajectory points the timeframe spans.
func (tf Timeframe) Periods() int {
	if tf.EndDate.Before(tf.StartDate) {
		return 0
	}
	days := int(tf.EndDate.Sub(tf.StartDate).Hours()/24) + 1
	if tf.Granularity == GranularityWeekly {
		return (days + 6) / 7
	}
	return days
}

// PeriodStep is the duration between consecutive trajectory points.
func (tf Timeframe) PeriodStep() time.Duration {
	if tf.Granularity == GranularityWeekly {
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}

type MetricSpec struct {
	Type      string   `json:"type"`
	Weight    float64  `json:"weight"`
	Benchmark *float64 `json:"benchmark,omitempty"`
}

type ScenarioAdjustment struct {
	Factor     AdjustmentFactor `json:"factor"`
	Multiplier float64          `json:"multiplier"`
	Timeframe  *DateRange       `json:"timeframe,omitempty"`
}

type ScenarioConfig struct {
	Type        ScenarioType         `json:"type"`
	Percentile  *float64             `json:"percentile,omitempty"`
	Adjustments []ScenarioAdjustment `json:"adjustments,omitempty"`
}

// SimulationRequest is immutable once submitted; the orchestrator copies it
// into the queue entry and never mutates it afterwards.
type SimulationRequest struct {
	CampaignID          string           `json:"campaign_id"`
	OrganizationID      string           `json:"organization_id"`
	RequestedBy         string           `json:"requested_by"`
	Tier                SubscriptionTier `json:"tier"`
	Timeframe           Timeframe        `json:"timeframe"`
	Metrics             []MetricSpec     `json:"metrics"`
	Scenarios           []ScenarioConfig `json:"scenarios"`
	ExternalDataSources []string         `json:"external_data_sources,omitempty"`
}

type TrajectoryPoint struct {
	Date       time.Time          `json:"date"`
	Metrics    map[string]float64 `json:"metrics"`
	Confidence float64            `json:"confidence"`
}

type ScenarioResult struct {
	Type        ScenarioType      `json:"type"`
	Probability float64           `json:"probability"`
	Trajectory  []TrajectoryPoint `json:"trajectory"`
	KeyFactors  []string          `json:"key_factors"`
	Confidence  float64           `json:"confidence"`
}

type RiskType string

const (
	RiskPerformanceDip   RiskType = "performance_dip"
	RiskAudienceFatigue  RiskType = "audience_fatigue"
	RiskCompetitorThreat RiskType = "competitor_threat"
	RiskBudgetOverrun    RiskType = "budget_overrun"
)

type RiskSeverity string

const (
	SeverityLow      RiskSeverity = "low"
	SeverityMedium   RiskSeverity = "medium"
	SeverityHigh     RiskSeverity = "high"
	SeverityCritical RiskSeverity = "critical"
)

// Rank orders severities for sorting; higher is worse.
func (s RiskSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

type RiskAlert struct {
	Type            RiskType     `json:"type"`
	Severity        RiskSeverity `json:"severity"`
	Probability     float64      `json:"probability"`
	ImpactScore     float64      `json:"impact_score"`
	Window          DateRange    `json:"window"`
	Metric          string       `json:"metric,omitempty"`
	Description     string       `json:"description"`
	Recommendations []string     `json:"recommendations"`
	Confidence      float64      `json:"confidence"`
}

type RecommendationType string

const (
	PivotBudgetReallocation RecommendationType = "budget_reallocation"
	PivotCreativeRefresh    RecommendationType = "creative_refresh"
	PivotAudienceExpansion  RecommendationType = "audience_expansion"
	PivotChannelShift       RecommendationType = "channel_shift"
	PivotTimingAdjustment   RecommendationType = "timing_adjustment"
)

type EffortTier string

const (
	EffortLow    EffortTier = "low"
	EffortMedium EffortTier = "medium"
	EffortHigh   EffortTier = "high"
)

type ImpactEstimate struct {
	Metric         string  `json:"metric"`
	ImprovementPct float64 `json:"improvement_pct"`
	Confidence     float64 `json:"confidence"`
}

type ImplementationPlan struct {
	Description string     `json:"description"`
	Steps       []string   `json:"steps"`
	Effort      EffortTier `json:"effort"`
	Timeline    string     `json:"timeline"`
}

type PivotRecommendation struct {
	Type     RecommendationType `json:"type"`
	Priority int                `json:"priority"`
	Impact   ImpactEstimate     `json:"impact"`
	Plan     ImplementationPlan `json:"plan"`
	Preview  []TrajectoryPoint  `json:"preview,omitempty"`
}

type SimulationQueueEntry struct {
	SimulationID      string            `json:"simulation_id"`
	Request           SimulationRequest `json:"request"`
	Priority          int               `json:"priority"`
	Status            SimulationStatus  `json:"status"`
	Progress          int               `json:"progress"`
	CurrentStep       string            `json:"current_step,omitempty"`
	SubmittedAt       time.Time         `json:"submitted_at"`
	StartedAt         *time.Time        `json:"started_at,omitempty"`
	FinishedAt        *time.Time        `json:"finished_at,omitempty"`
	EstimatedDuration time.Duration     `json:"estimated_duration"`
}

type ModelMetadata struct {
	Models         []string        `json:"models"`
	Weights        EnsembleWeights `json:"weights"`
	Strategy       string          `json:"strategy"`
	ConsensusScore float64         `json:"consensus_score"`
	DiversityScore float64         `json:"diversity_score"`
}

// SimulationResult is created once and immutable after completion.
type SimulationResult struct {
	SimulationID    string                `json:"simulation_id"`
	CampaignID      string                `json:"campaign_id"`
	OrganizationID  string                `json:"organization_id"`
	Status          SimulationStatus      `json:"status"`
	Trajectory      []TrajectoryPoint     `json:"trajectory"`
	Scenarios       []ScenarioResult      `json:"scenarios"`
	Risks           []RiskAlert           `json:"risks"`
	Recommendations []PivotRecommendation `json:"recommendations"`
	Metadata        ModelMetadata         `json:"metadata"`
	FailureReason   string                `json:"failure_reason,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	CompletedAt     time.Time             `json:"completed_at"`
}
