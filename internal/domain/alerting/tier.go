// Package alerting turns progression findings into graduated clinical alerts.
// It owns the tier thresholds and their evidence, context modifiers,
// cross-parameter validation, the safety override path and alert-fatigue
// suppression. Alerts are advisory and never affect coverage.
package alerting

import (
	"fmt"
	"time"
)

// Tier is the urgency of an alert. Emergency is reserved for safety overrides.
type Tier string

const (
	TierMinor     Tier = "minor_concern"
	TierModerate  Tier = "moderate_concern"
	TierUrgent    Tier = "urgent_clinical_review"
	TierCritical  Tier = "critical_intervention"
	TierEmergency Tier = "emergency"
)

var tierRank = map[Tier]int{
	TierMinor:     1,
	TierModerate:  2,
	TierUrgent:    3,
	TierCritical:  4,
	TierEmergency: 5,
}

// Rank orders tiers; unknown tiers rank 0.
func (t Tier) Rank() int { return tierRank[t] }

// Valid reports whether t is a declared tier.
func (t Tier) Valid() bool { return tierRank[t] > 0 }

// BypassesFatigue reports whether the tier always overrides suppression.
func (t Tier) BypassesFatigue() bool {
	return t == TierCritical || t == TierEmergency
}

// ParseTier validates a tier name.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("invalid alert tier %q", s)
	}
	return t, nil
}

// ResponseWindow is the time within which a clinician should act on an alert
// of the tier.
func (t Tier) ResponseWindow() time.Duration {
	switch t {
	case TierEmergency:
		return time.Hour
	case TierCritical:
		return 4 * time.Hour
	case TierUrgent:
		return 24 * time.Hour
	case TierModerate:
		return 72 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// graduatedTiers are the tiers the engine can propose, lowest first.
var graduatedTiers = []Tier{TierMinor, TierModerate, TierUrgent, TierCritical}

// Thresholds are the triggers of one tier. Any one breached triggers it.
type Thresholds struct {
	DepthRateMMPerWeek float64 `json:"depth_rate_mm_per_week"`
	AbsoluteDepthMM    float64 `json:"absolute_depth_mm"`
	VolumeIncreasePct  float64 `json:"volume_increase_pct"`
	TimeframeDays      float64 `json:"timeframe_days"`
}

// EvidenceReference is an immutable citation justifying a threshold.
type EvidenceReference struct {
	Source  string `json:"source"`
	Finding string `json:"finding"`
	Grade   string `json:"grade"`
}

type tierDefinition struct {
	thresholds Thresholds
	evidence   []EvidenceReference
}

var tierDefinitions = map[Tier]tierDefinition{
	TierMinor: {
		thresholds: Thresholds{DepthRateMMPerWeek: 0.5, AbsoluteDepthMM: 1.0, VolumeIncreasePct: 10, TimeframeDays: 28},
		evidence: []EvidenceReference{
			{Source: "Sheehan P et al. Diabetes Care 2003;26(6):1879-82", Finding: "Failure to reduce wound size over 4 weeks predicts non-healing at 12 weeks", Grade: "B"},
		},
	},
	TierModerate: {
		thresholds: Thresholds{DepthRateMMPerWeek: 1.0, AbsoluteDepthMM: 2.0, VolumeIncreasePct: 25, TimeframeDays: 21},
		evidence: []EvidenceReference{
			{Source: "Lavery LA et al. Wound Repair Regen 2008;16(3):367-73", Finding: "Sustained depth increase is associated with deep-tissue involvement", Grade: "B"},
		},
	},
	TierUrgent: {
		thresholds: Thresholds{DepthRateMMPerWeek: 1.5, AbsoluteDepthMM: 3.0, VolumeIncreasePct: 35, TimeframeDays: 14},
		evidence: []EvidenceReference{
			{Source: "Armstrong DG et al. Diabetes Care 1998;21(5):855-9", Finding: "Wound depth progression tracks probing-to-bone and amputation risk", Grade: "A"},
		},
	},
	TierCritical: {
		thresholds: Thresholds{DepthRateMMPerWeek: 2.0, AbsoluteDepthMM: 5.0, VolumeIncreasePct: 50, TimeframeDays: 14},
		evidence: []EvidenceReference{
			{Source: "IWGDF Guidelines 2019, infection chapter", Finding: "Rapid wound deterioration warrants urgent evaluation for deep infection", Grade: "A"},
			{Source: "Oyibo SO et al. Diabetes Care 2001;24(1):84-8", Finding: "Depth to tendon or bone is the strongest predictor of poor outcome", Grade: "B"},
		},
	},
}

// DefaultThresholds returns the evidence-derived thresholds of a graduated tier.
func DefaultThresholds(t Tier) (Thresholds, bool) {
	d, ok := tierDefinitions[t]
	return d.thresholds, ok
}

// Evidence returns a copy of the citations behind a tier's thresholds.
func Evidence(t Tier) []EvidenceReference {
	refs := tierDefinitions[t].evidence
	out := make([]EvidenceReference, len(refs))
	copy(out, refs)
	return out
}
