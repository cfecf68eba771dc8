package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/ehr/woundcare/internal/domain/measurement"
	"github.com/ehr/woundcare/internal/domain/progression"
	"github.com/ehr/woundcare/internal/domain/quality"
)

// Severity is the outcome of the safety override scan.
type Severity string

const (
	SeverityNone      Severity = "none"
	SeveritySevere    Severity = "severe"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Acute-deterioration signatures.
const (
	RapidDepthMM           = 5.0
	RapidDepthWindowDays   = 7.0
	SevereVolumePct        = 50.0
	SevereVolumeWindowDays = 14.0
	ConcerningDepthMM      = 3.0
	MinInfectionIndicators = 2
	HighPainScore          = 8
)

// severeInfectionIndicators is the closed set of findings that count toward
// the concurrent-infection signature.
var severeInfectionIndicators = map[string]bool{
	"purulent_drainage":  true,
	"cellulitis":         true,
	"spreading_erythema": true,
	"crepitus":           true,
	"necrosis":           true,
	"gangrene":           true,
	"abscess":            true,
	"probe_to_bone":      true,
	"lymphangitis":       true,
	"malodor":            true,
}

// Signals are the acute-deterioration findings of one scan.
type Signals struct {
	RapidDepth          bool     `json:"rapid_depth"`
	MaxDepthIncreaseMM  float64  `json:"max_depth_increase_mm"`
	SevereVolume        bool     `json:"severe_volume"`
	MaxVolumeIncrease   float64  `json:"max_volume_increase_pct"`
	Infection           bool     `json:"infection"`
	InfectionIndicators []string `json:"infection_indicators,omitempty"`
	Systemic            bool     `json:"systemic"`
}

// OverrideDecision is the result of the safety scan. Only critical and
// emergency decisions authorize bypassing quality gates.
type OverrideDecision struct {
	Severity         Severity      `json:"severity"`
	BypassAuthorized bool          `json:"bypass_authorized"`
	EscalateWithin   time.Duration `json:"escalate_within"`
	Signals          Signals       `json:"signals"`
	Rationale        []string      `json:"rationale,omitempty"`
}

// Tier maps an authorizing severity to the alert tier it raises.
func (d OverrideDecision) Tier() Tier {
	switch d.Severity {
	case SeverityEmergency:
		return TierEmergency
	case SeverityCritical:
		return TierCritical
	case SeveritySevere:
		return TierUrgent
	}
	return ""
}

// OverrideRecord is attached to every alert issued while an override was
// active, listing exactly which gates it bypassed.
type OverrideRecord struct {
	Severity       Severity           `json:"severity"`
	BypassedGates  []quality.GateName `json:"bypassed_gates"`
	Rationale      []string           `json:"rationale"`
	EscalateWithin string             `json:"escalate_within"`
	EscalateBy     time.Time          `json:"escalate_by"`
}

func (d OverrideDecision) record(bypassed []quality.GateName, at time.Time) *OverrideRecord {
	if bypassed == nil {
		bypassed = []quality.GateName{}
	}
	return &OverrideRecord{
		Severity:       d.Severity,
		BypassedGates:  bypassed,
		Rationale:      d.Rationale,
		EscalateWithin: d.EscalateWithin.String(),
		EscalateBy:     at.Add(d.EscalateWithin),
	}
}

// EvaluateOverride scans a series and clinical context for acute
// deterioration, independently of the graduated engine.
func EvaluateOverride(series measurement.Series, ctx Context) OverrideDecision {
	var s Signals
	dt, dv := progression.DepthPoints(series)
	s.MaxDepthIncreaseMM = progression.MaxChangeWithin(dt, dv, RapidDepthWindowDays)
	s.RapidDepth = s.MaxDepthIncreaseMM >= RapidDepthMM

	vt, vv := progression.RecordedVolumePoints(series)
	s.MaxVolumeIncrease = progression.MaxPctIncreaseWithin(vt, vv, SevereVolumeWindowDays)
	s.SevereVolume = s.MaxVolumeIncrease >= SevereVolumePct

	for _, ind := range ctx.InfectionIndicators {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(ind)), " ", "_")
		if severeInfectionIndicators[key] {
			s.InfectionIndicators = append(s.InfectionIndicators, key)
		}
	}
	s.Infection = len(s.InfectionIndicators) >= MinInfectionIndicators
	s.Systemic = len(ctx.SystemicSigns) > 0 || (ctx.PainScore != nil && *ctx.PainScore >= HighPainScore)

	d := OverrideDecision{Severity: SeverityNone, Signals: s}
	if s.RapidDepth {
		d.Rationale = append(d.Rationale, fmt.Sprintf("depth increased %.1f mm within %.0f days", s.MaxDepthIncreaseMM, RapidDepthWindowDays))
	}
	if s.SevereVolume {
		d.Rationale = append(d.Rationale, fmt.Sprintf("volume expanded %.0f%% within %.0f days", s.MaxVolumeIncrease, SevereVolumeWindowDays))
	}
	if s.Infection {
		d.Rationale = append(d.Rationale, fmt.Sprintf("concurrent severe infection indicators: %s", strings.Join(s.InfectionIndicators, ", ")))
	}
	if s.Systemic {
		d.Rationale = append(d.Rationale, "high pain or systemic signs reported")
	}

	acute := 0
	for _, b := range []bool{s.RapidDepth, s.SevereVolume, s.Infection} {
		if b {
			acute++
		}
	}
	switch {
	case acute >= 2:
		d.Severity, d.EscalateWithin, d.BypassAuthorized = SeverityEmergency, time.Hour, true
	case s.RapidDepth, s.SevereVolume && (s.Infection || s.Systemic):
		d.Severity, d.EscalateWithin, d.BypassAuthorized = SeverityCritical, 4*time.Hour, true
	case s.MaxDepthIncreaseMM >= ConcerningDepthMM, s.Infection && s.Systemic:
		d.Severity, d.EscalateWithin = SeveritySevere, 24*time.Hour
		if s.MaxDepthIncreaseMM >= ConcerningDepthMM {
			d.Rationale = append(d.Rationale, fmt.Sprintf("depth increased %.1f mm within %.0f days", s.MaxDepthIncreaseMM, RapidDepthWindowDays))
		}
	}
	return d
}
