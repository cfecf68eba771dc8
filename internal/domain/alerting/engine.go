package alerting

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/woundcare/internal/domain/measurement"
	"github.com/ehr/woundcare/internal/domain/progression"
	"github.com/ehr/woundcare/internal/domain/quality"
	"github.com/ehr/woundcare/internal/platform/audit"
)

// Cross-validation parameters.
const (
	areaDecreaseErrorPct   = -5.0
	measurementErrorFactor = 0.7
	corroborationFactor    = 1.15
)

// Input is everything one engine evaluation reads.
type Input struct {
	EpisodeID  string
	ProviderID string
	Series     measurement.Series
	Metrics    progression.Metrics
	Context    Context
	Override   OverrideDecision
	At         time.Time
}

// Result is the engine's output for one evaluation.
type Result struct {
	ProposedTier    Tier              `json:"proposed_tier,omitempty"`
	Alerts          []Alert           `json:"alerts"`
	Blocked         []BlockedProposal `json:"blocked,omitempty"`
	CrossValidation CrossValidation   `json:"cross_validation"`
}

// Engine maps progression findings onto graduated alert tiers.
type Engine struct {
	thresholds map[Tier]Thresholds
	newID      func() uuid.UUID
}

// NewEngine creates an engine with the evidence-derived default thresholds.
func NewEngine() *Engine {
	th := make(map[Tier]Thresholds, len(graduatedTiers))
	for _, t := range graduatedTiers {
		th[t], _ = DefaultThresholds(t)
	}
	return &Engine{thresholds: th, newID: uuid.New}
}

type proposal struct {
	tier         Tier
	typ          Type
	thresholds   Thresholds
	modifiers    []Modifier
	triggers     []string
	depthIncMM   float64
	volumeIncPct float64
}

// Evaluate proposes at most one graduated alert and applies its quality gate.
// A gate failure blocks the alert unless the override authorizes a bypass;
// blocked proposals are never downgraded to a lower tier.
func (e *Engine) Evaluate(in Input) (Result, audit.Trail) {
	var trail audit.Trail
	res := Result{Alerts: []Alert{}}

	p := e.propose(in)
	res.CrossValidation = crossValidate(in.Metrics, in.Context)
	for _, f := range res.CrossValidation.Flags {
		trail.Info(f, "cross-validation flag %s (confidence x%.2f)", f, res.CrossValidation.ConfidenceFactor)
	}

	if p != nil {
		res.ProposedTier = p.tier
		consecutive := e.consecutive(in.Series, p)
		gate := gateFor(p.tier, in.Metrics.Quality, consecutive)

		switch {
		case gate == nil || gate.Passed:
			a := e.build(in, p, res.CrossValidation, consecutive, gate)
			if in.Override.Severity != SeverityNone {
				a.Override = in.Override.record(e.elevate(&a, in, consecutive), in.At)
			}
			res.Alerts = append(res.Alerts, a)
			trail.Info("alert_proposed", "%s %s alert issued", a.Tier, a.Type)
		case in.Override.BypassAuthorized:
			a := e.build(in, p, res.CrossValidation, consecutive, gate)
			bypassed := append([]quality.GateName{}, gate.Failed...)
			for _, g := range e.elevate(&a, in, consecutive) {
				if !containsGate(bypassed, g) {
					bypassed = append(bypassed, g)
				}
			}
			a.Override = in.Override.record(bypassed, in.At)
			res.Alerts = append(res.Alerts, a)
			trail.Info("gate_bypassed", "%s override bypassed %s gates %v", in.Override.Severity, p.tier, bypassed)
		default:
			res.Blocked = append(res.Blocked, BlockedProposal{Type: p.typ, Tier: p.tier, Gate: *gate})
			trail.Outcome("alert_blocked_by_quality_gate", "%s %s alert blocked: %v", p.tier, p.typ, gate.Reasons)
		}
	}

	if len(res.Alerts) > 0 || in.Override.Severity == SeverityNone {
		return res, trail
	}

	// No graduated alert was issued; the override raises its own.
	if in.Override.BypassAuthorized && p == nil {
		a := e.acute(in, in.Override.Tier(), res.CrossValidation, nil)
		a.Override = in.Override.record(nil, in.At)
		res.Alerts = append(res.Alerts, a)
		trail.Info("override_alert", "%s override raised %s alert", in.Override.Severity, a.Tier)
		return res, trail
	}
	if in.Override.Severity == SeveritySevere && p == nil {
		gate := quality.Check(quality.UrgentRequirement, in.Metrics.Quality, 0)
		if !gate.Passed {
			res.Blocked = append(res.Blocked, BlockedProposal{Type: TypeAcuteDeterioration, Tier: TierUrgent, Gate: gate})
			trail.Outcome("alert_blocked_by_quality_gate", "severe override alert blocked: %v", gate.Reasons)
			return res, trail
		}
		a := e.acute(in, TierUrgent, res.CrossValidation, &gate)
		a.Override = in.Override.record(nil, in.At)
		res.Alerts = append(res.Alerts, a)
		trail.Info("override_alert", "severe override raised urgent alert")
	}
	return res, trail
}

// elevate raises an alert to the tier of a bypass-authorizing override and
// returns the gates of the raised tier that the evidence fails.
func (e *Engine) elevate(a *Alert, in Input, consecutive int) []quality.GateName {
	target := in.Override.Tier()
	if !in.Override.BypassAuthorized || target.Rank() <= a.Tier.Rank() {
		return nil
	}
	a.Tier = target
	a.RespondBy = in.At.Add(target.ResponseWindow())
	a.AuditTrail.Info("tier_elevated", "raised to %s by %s override", target, in.Override.Severity)
	if g := gateFor(target, in.Metrics.Quality, consecutive); g != nil && !g.Passed {
		a.AuditTrail.Info("gate_bypassed", "%s override bypassed gates %v", in.Override.Severity, g.Failed)
		return g.Failed
	}
	return nil
}

func containsGate(gates []quality.GateName, g quality.GateName) bool {
	for _, x := range gates {
		if x == g {
			return true
		}
	}
	return false
}

// propose returns the highest graduated tier any of whose adjusted
// thresholds is breached.
func (e *Engine) propose(in Input) *proposal {
	dt, dv := progression.DepthPoints(in.Series)
	vt, vv := progression.RecordedVolumePoints(in.Series)

	for i := len(graduatedTiers) - 1; i >= 0; i-- {
		tier := graduatedTiers[i]
		mods := Modifiers(tier, in.Context)
		th := Adjust(e.thresholds[tier], mods)

		p := &proposal{tier: tier, thresholds: th, modifiers: mods}
		p.depthIncMM = progression.MaxChangeWithin(dt, dv, th.TimeframeDays)
		p.volumeIncPct = progression.MaxPctIncreaseWithin(vt, vv, th.TimeframeDays)

		if v := in.Metrics.DepthVelocity; v != nil && *v >= th.DepthRateMMPerWeek {
			p.triggers = append(p.triggers, fmt.Sprintf("depth rate %.2f mm/week >= %.2f", *v, th.DepthRateMMPerWeek))
		}
		if p.depthIncMM >= th.AbsoluteDepthMM {
			p.triggers = append(p.triggers, fmt.Sprintf("depth +%.1f mm within %.0f days >= %.2f", p.depthIncMM, th.TimeframeDays, th.AbsoluteDepthMM))
		}
		depthTriggered := len(p.triggers) > 0
		if p.volumeIncPct >= th.VolumeIncreasePct {
			p.triggers = append(p.triggers, fmt.Sprintf("volume +%.0f%% within %.0f days >= %.1f%%", p.volumeIncPct, th.TimeframeDays, th.VolumeIncreasePct))
		}
		if len(p.triggers) == 0 {
			continue
		}
		p.typ = TypeVolumeExpansion
		if depthTriggered {
			p.typ = TypeDepthIncrease
		}
		return p
	}
	return nil
}

// consecutive counts the trailing intervals that each breach the proposal's
// thresholds on their own. Volume proposals are confirmed on recorded
// volumes, depth proposals on depth.
func (e *Engine) consecutive(series measurement.Series, p *proposal) int {
	th := p.thresholds
	if p.typ == TypeVolumeExpansion {
		return quality.TrailingBreaches(recordedVolumeObservations(series), func(prev, next quality.Observation) bool {
			days := next.Time.Sub(prev.Time).Hours() / 24
			if days <= 0 || days > th.TimeframeDays || prev.Value <= 0 {
				return false
			}
			return (next.Value-prev.Value)/prev.Value*100 >= th.VolumeIncreasePct
		})
	}

	obs := quality.DepthObservations(series)
	return quality.TrailingBreaches(obs, func(prev, next quality.Observation) bool {
		delta := next.Value - prev.Value
		days := next.Time.Sub(prev.Time).Hours() / 24
		if days <= 0 {
			return false
		}
		return delta/(days/7) >= th.DepthRateMMPerWeek ||
			(days <= th.TimeframeDays && delta >= th.AbsoluteDepthMM)
	})
}

func recordedVolumeObservations(series measurement.Series) []quality.Observation {
	ts, vs := progression.RecordedVolumePoints(series)
	obs := make([]quality.Observation, len(ts))
	for i := range ts {
		obs[i] = quality.Observation{Time: ts[i], Value: vs[i]}
	}
	return obs
}

func gateFor(tier Tier, a quality.Assessment, consecutive int) *quality.GateResult {
	var r quality.GateResult
	switch tier {
	case TierUrgent:
		r = quality.Check(quality.UrgentRequirement, a, consecutive)
	case TierCritical, TierEmergency:
		r = quality.Check(quality.CriticalRequirement, a, consecutive)
	default:
		return nil
	}
	return &r
}

// crossValidate checks a depth increase against area and treatment response.
// A contradicting area trend down-weights reported confidence; an agreeing
// one raises it. Neither suppresses an alert.
func crossValidate(m progression.Metrics, ctx Context) CrossValidation {
	cv := CrossValidation{ConfidenceFactor: 1}
	if m.DepthChangeMM <= 0 {
		return cv
	}
	switch {
	case m.AreaChangePct < areaDecreaseErrorPct:
		cv.Flags = append(cv.Flags, FlagPossibleMeasurementError)
		cv.ConfidenceFactor = measurementErrorFactor
	case m.AreaChangePct > 0:
		cv.Flags = append(cv.Flags, FlagCorroboratedByArea)
		cv.ConfidenceFactor = corroborationFactor
	}
	if ctx.TreatmentResponse == ResponseGood && m.DepthTrend == progression.TrendDeepening {
		cv.Flags = append(cv.Flags, FlagTreatmentDiscrepancy)
	}
	return cv
}

func (e *Engine) build(in Input, p *proposal, cv CrossValidation, consecutive int, gate *quality.GateResult) Alert {
	a := Alert{
		ID:         e.newID(),
		EpisodeID:  in.EpisodeID,
		ProviderID: in.ProviderID,
		Type:       p.typ,
		Tier:       p.tier,
		CreatedAt:  in.At,
		RespondBy:  in.At.Add(p.tier.ResponseWindow()),
		TriggerEvidence: TriggerEvidence{
			DepthVelocity:     in.Metrics.DepthVelocity,
			DepthIncreaseMM:   p.depthIncMM,
			VolumeIncreasePct: p.volumeIncPct,
			Triggers:          p.triggers,
			Thresholds:        p.thresholds,
			Modifiers:         p.modifiers,
			CrossValidation:   cv,
			Evidence:          Evidence(p.tier),
		},
		ConfidenceMetrics: confidenceMetrics(in.Metrics.Quality, cv, consecutive, gate),
		AdvisoryLabel:     advisory(),
	}
	for _, t := range p.triggers {
		a.AuditTrail.Info("threshold_breached", "%s: %s", p.tier, t)
	}
	for _, m := range p.modifiers {
		a.AuditTrail.Info("threshold_modifier", "%s tightened thresholds by %.0f%%", m.Name, m.Reduction*100)
	}
	for _, f := range cv.Flags {
		a.AuditTrail.Info(f, "cross-validation flag")
	}
	return a
}

func (e *Engine) acute(in Input, tier Tier, cv CrossValidation, gate *quality.GateResult) Alert {
	a := Alert{
		ID:         e.newID(),
		EpisodeID:  in.EpisodeID,
		ProviderID: in.ProviderID,
		Type:       TypeAcuteDeterioration,
		Tier:       tier,
		CreatedAt:  in.At,
		RespondBy:  in.At.Add(tier.ResponseWindow()),
		TriggerEvidence: TriggerEvidence{
			DepthVelocity:     in.Metrics.DepthVelocity,
			DepthIncreaseMM:   in.Override.Signals.MaxDepthIncreaseMM,
			VolumeIncreasePct: in.Override.Signals.MaxVolumeIncrease,
			Triggers:          in.Override.Rationale,
			CrossValidation:   cv,
		},
		ConfidenceMetrics: confidenceMetrics(in.Metrics.Quality, cv, 0, gate),
		AdvisoryLabel:     advisory(),
	}
	for _, r := range in.Override.Rationale {
		a.AuditTrail.Info("acute_deterioration", "%s", r)
	}
	return a
}

func confidenceMetrics(q quality.Assessment, cv CrossValidation, consecutive int, gate *quality.GateResult) ConfidenceMetrics {
	return ConfidenceMetrics{
		QualityScore:         q.QualityScore,
		QualityGrade:         q.Grade,
		Confidence:           q.Confidence,
		AdjustedConfidence:   math.Min(1, q.Confidence*cv.ConfidenceFactor),
		MeasurementCount:     q.MeasurementCount,
		ConsecutiveIntervals: consecutive,
		Gate:                 gate,
	}
}
