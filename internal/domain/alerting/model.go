package alerting

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/woundcare/internal/domain/quality"
	"github.com/ehr/woundcare/internal/platform/audit"
)

// Type classifies what an alert is about.
type Type string

const (
	TypeDepthIncrease      Type = "depth_increase"
	TypeVolumeExpansion    Type = "volume_expansion"
	TypeAcuteDeterioration Type = "acute_deterioration"
)

// CoverageDisclaimer is attached to every alert.
const CoverageDisclaimer = "Advisory clinical alert only. It does not change, and must not be used to determine, coverage eligibility."

// AdvisoryLabel marks an alert as informational.
type AdvisoryLabel struct {
	IsAdvisoryOnly     bool   `json:"is_advisory_only"`
	CoverageDisclaimer string `json:"coverage_disclaimer"`
}

func advisory() AdvisoryLabel {
	return AdvisoryLabel{IsAdvisoryOnly: true, CoverageDisclaimer: CoverageDisclaimer}
}

// CrossValidation is the outcome of checking depth against area, volume and
// the reported treatment response.
type CrossValidation struct {
	Flags            []string `json:"flags,omitempty"`
	ConfidenceFactor float64  `json:"confidence_factor"`
}

// Cross-validation flags.
const (
	FlagPossibleMeasurementError = "possible_measurement_error"
	FlagCorroboratedByArea       = "corroborated_by_area"
	FlagTreatmentDiscrepancy     = "treatment_response_discrepancy"
)

// TriggerEvidence records what crossed which threshold.
type TriggerEvidence struct {
	DepthVelocity     *float64            `json:"depth_velocity_mm_per_week,omitempty"`
	DepthIncreaseMM   float64             `json:"depth_increase_mm"`
	VolumeIncreasePct float64             `json:"volume_increase_pct"`
	Triggers          []string            `json:"triggers"`
	Thresholds        Thresholds          `json:"thresholds"`
	Modifiers         []Modifier          `json:"modifiers,omitempty"`
	CrossValidation   CrossValidation     `json:"cross_validation"`
	Evidence          []EvidenceReference `json:"evidence,omitempty"`
}

// ConfidenceMetrics summarize the evidence quality behind an alert. Adjusted
// confidence includes cross-validation; gating always uses Confidence.
type ConfidenceMetrics struct {
	QualityScore         float64             `json:"quality_score"`
	QualityGrade         quality.Grade       `json:"quality_grade"`
	Confidence           float64             `json:"confidence"`
	AdjustedConfidence   float64             `json:"adjusted_confidence"`
	MeasurementCount     int                 `json:"measurement_count"`
	ConsecutiveIntervals int                 `json:"consecutive_intervals"`
	Gate                 *quality.GateResult `json:"gate,omitempty"`
}

// Alert is immutable once created. Its lifecycle continues through a
// clinical review.
type Alert struct {
	ID                uuid.UUID         `json:"id"`
	EpisodeID         string            `json:"episode_id"`
	ProviderID        string            `json:"provider_id,omitempty"`
	Type              Type              `json:"type"`
	Tier              Tier              `json:"urgency_tier"`
	CreatedAt         time.Time         `json:"created_at"`
	RespondBy         time.Time         `json:"respond_by"`
	TriggerEvidence   TriggerEvidence   `json:"trigger_evidence"`
	ConfidenceMetrics ConfidenceMetrics `json:"confidence_metrics"`
	Override          *OverrideRecord   `json:"override,omitempty"`
	AdvisoryLabel     AdvisoryLabel     `json:"advisory_label"`
	AuditTrail        audit.Trail       `json:"audit_trail"`
}

// BlockedProposal is a graduated alert that failed its quality gate and had
// no override.
type BlockedProposal struct {
	Type Type               `json:"type"`
	Tier Tier               `json:"urgency_tier"`
	Gate quality.GateResult `json:"gate"`
}
