// Package coverage evaluates advanced wound-care product coverage: the
// two-phase area-reduction rule and the surrounding LCD eligibility criteria.
//
// Everything in this package works from wound area alone. Depth, volume,
// progression and alert state are never read here.
package coverage

import (
	"fmt"
	"time"
)

// Phase is the coverage phase of an episode.
type Phase string

const (
	PhasePreProduct  Phase = "pre_product"
	PhasePostProduct Phase = "post_product"
)

var validPhases = map[Phase]bool{
	PhasePreProduct:  true,
	PhasePostProduct: true,
}

// ParsePhase accepts the canonical names and their hyphenated forms.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "pre-product":
		return PhasePreProduct, nil
	case "post-product":
		return PhasePostProduct, nil
	}
	p := Phase(s)
	if !validPhases[p] {
		return "", fmt.Errorf("invalid phase %q", s)
	}
	return p, nil
}

// Status is the overall compliance verdict.
type Status string

const (
	StatusCompliant        Status = "compliant"
	StatusNonCompliant     Status = "non_compliant"
	StatusInsufficientData Status = "insufficient_data"
)

// Rule thresholds, in percent and days.
const (
	PreProductMaxReductionPct  = 50.0
	PostProductMinReductionPct = 20.0
	WindowDays                 = 28
	PreferredToleranceDays     = 7
	ExtendedToleranceDays      = 14
)

// AreaPoint is the only measurement shape the compliance engine accepts.
type AreaPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Area      float64   `json:"area"`
}

// PhaseBaseline anchors reduction for one phase. It is chosen once from the
// series and never modified.
type PhaseBaseline struct {
	Phase           Phase     `json:"phase"`
	AnchorTimestamp time.Time `json:"anchor_timestamp"`
	AnchorArea      float64   `json:"anchor_area"`
}

// WindowMatch describes how a window's measurement was located.
type WindowMatch string

const (
	MatchPreferred WindowMatch = "preferred"
	MatchExtended  WindowMatch = "extended"
	MatchNone      WindowMatch = "none"
)

// PeriodWindow is one 4-week evaluation window.
type PeriodWindow struct {
	PeriodStartDay   int         `json:"period_start_day"`
	TargetDay        int         `json:"target_day"`
	Match            WindowMatch `json:"match"`
	Measurement      *AreaPoint  `json:"measurement,omitempty"`
	DaysFromBaseline float64     `json:"days_from_baseline,omitempty"`
	ReductionPct     *float64    `json:"reduction_pct,omitempty"`
	MeetsRequirement *bool       `json:"meets_requirement,omitempty"`
}

// ComplianceAssessment is derived on every evaluation and never persisted as
// the source of truth.
type ComplianceAssessment struct {
	Phase                 Phase          `json:"phase"`
	Baseline              *PhaseBaseline `json:"baseline,omitempty"`
	CurrentReductionPct   float64        `json:"current_reduction_pct"`
	DaysFromBaseline      float64        `json:"days_from_baseline"`
	PeriodWindows         []PeriodWindow `json:"period_windows"`
	MeetsPhaseRequirement bool           `json:"meets_phase_requirement"`
	OverallCompliance     Status         `json:"overall_compliance"`
}
