package coverage

import (
	"math"
	"sort"
	"time"

	"github.com/ehr/woundcare/internal/platform/audit"
)

// Request is the input to Evaluate. ProductStart is required for the
// post-product phase; for the pre-product phase it bounds the series so
// measurements taken under the product never count as standard care.
// A zero AsOf evaluates at the latest measurement.
type Request struct {
	Phase        Phase       `json:"phase"`
	ProductStart *time.Time  `json:"product_start_date,omitempty"`
	AsOf         time.Time   `json:"as_of,omitempty"`
	Points       []AreaPoint `json:"measurements"`
}

// Evaluate applies the two-phase area-reduction rule. It is a pure function
// of the request: the same points always give the same assessment.
func Evaluate(req Request) (ComplianceAssessment, audit.Trail) {
	var trail audit.Trail
	out := ComplianceAssessment{
		Phase:             req.Phase,
		PeriodWindows:     []PeriodWindow{},
		OverallCompliance: StatusInsufficientData,
	}

	if !validPhases[req.Phase] {
		trail.Input("invalid_phase", "phase %q is not recognized", req.Phase)
		return out, trail
	}

	points := cleanPoints(req.Points, &trail)
	if req.Phase == PhasePreProduct && req.ProductStart != nil {
		points = before(points, *req.ProductStart)
	}
	if len(points) == 0 {
		trail.Input("no_measurements", "no usable area measurements for %s phase", req.Phase)
		return out, trail
	}

	baseline, ok := selectBaseline(req.Phase, points, req.ProductStart, &trail)
	if !ok {
		return out, trail
	}
	out.Baseline = &baseline
	trail.Info("baseline_selected", "%s baseline %.2f cm2 at %s", baseline.Phase, baseline.AnchorArea, baseline.AnchorTimestamp.Format(time.RFC3339))

	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = points[len(points)-1].Timestamp
	}
	followups := between(points, baseline.AnchorTimestamp, asOf)
	elapsed := daysBetween(baseline.AnchorTimestamp, asOf)
	out.DaysFromBaseline = round2(elapsed)

	for start := 0; float64(start+WindowDays) <= elapsed+PreferredToleranceDays; start += WindowDays {
		out.PeriodWindows = append(out.PeriodWindows, evaluateWindow(req.Phase, baseline, followups, start))
	}

	if elapsed < WindowDays {
		trail.Outcome("insufficient_elapsed_days", "%.1f days from baseline, %d required", elapsed, WindowDays)
		if len(followups) > 0 {
			out.CurrentReductionPct = reductionPct(baseline.AnchorArea, followups[len(followups)-1].Area)
		}
		return out, trail
	}

	var current *PeriodWindow
	for i := len(out.PeriodWindows) - 1; i >= 0; i-- {
		if out.PeriodWindows[i].ReductionPct != nil {
			current = &out.PeriodWindows[i]
			break
		}
	}

	switch {
	case current != nil:
		out.CurrentReductionPct = *current.ReductionPct
	case len(followups) > 0:
		latest := followups[len(followups)-1]
		out.CurrentReductionPct = reductionPct(baseline.AnchorArea, latest.Area)
		trail.Info("window_fallback_latest", "no measurement inside any window; using %s", latest.Timestamp.Format(time.RFC3339))
	default:
		trail.Input("no_followup_measurement", "no measurement after the %s baseline", req.Phase)
		return out, trail
	}

	out.MeetsPhaseRequirement = meetsRequirement(req.Phase, out.CurrentReductionPct)
	if out.MeetsPhaseRequirement {
		out.OverallCompliance = StatusCompliant
		trail.Info("phase_compliant", "%s reduction %.2f%% meets requirement", req.Phase, out.CurrentReductionPct)
	} else {
		out.OverallCompliance = StatusNonCompliant
		trail.Outcome("phase_non_compliant", "%s reduction %.2f%% fails requirement", req.Phase, out.CurrentReductionPct)
	}
	return out, trail
}

func meetsRequirement(phase Phase, pct float64) bool {
	if phase == PhasePreProduct {
		return pct < PreProductMaxReductionPct
	}
	return pct >= PostProductMinReductionPct
}

// reductionPct is rounded to two decimals so threshold comparisons are not
// perturbed by floating-point noise.
func reductionPct(baseline, area float64) float64 {
	return round2((baseline - area) / baseline * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func daysBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24
}

// cleanPoints drops unusable areas, orders the rest by time and keeps the
// last supplied record for any repeated timestamp.
func cleanPoints(in []AreaPoint, trail *audit.Trail) []AreaPoint {
	type indexed struct {
		idx int
		p   AreaPoint
	}
	ordered := make([]indexed, 0, len(in))
	for i, p := range in {
		switch {
		case p.Timestamp.IsZero():
			trail.Input("measurement_invalid", "measurement %d has no timestamp", i)
		case math.IsNaN(p.Area) || math.IsInf(p.Area, 0) || p.Area < 0:
			trail.Input("measurement_invalid", "measurement %d has unusable area %v", i, p.Area)
		default:
			ordered = append(ordered, indexed{idx: i, p: p})
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].p.Timestamp.Before(ordered[j].p.Timestamp)
	})

	out := make([]AreaPoint, 0, len(ordered))
	for _, o := range ordered {
		if len(out) > 0 && out[len(out)-1].Timestamp.Equal(o.p.Timestamp) {
			trail.Info("measurement_superseded", "area at %s superseded by record %d", o.p.Timestamp.Format(time.RFC3339), o.idx)
			out[len(out)-1] = o.p
			continue
		}
		out = append(out, o.p)
	}
	return out
}

func before(points []AreaPoint, cutoff time.Time) []AreaPoint {
	out := make([]AreaPoint, 0, len(points))
	for _, p := range points {
		if p.Timestamp.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// between returns points strictly after from and not after to.
func between(points []AreaPoint, from, to time.Time) []AreaPoint {
	out := make([]AreaPoint, 0, len(points))
	for _, p := range points {
		if p.Timestamp.After(from) && !p.Timestamp.After(to) {
			out = append(out, p)
		}
	}
	return out
}

// selectBaseline picks the first measurement for the pre-product phase and
// the measurement nearest the product start for the post-product phase.
// Ties favour the earlier measurement.
func selectBaseline(phase Phase, points []AreaPoint, productStart *time.Time, trail *audit.Trail) (PhaseBaseline, bool) {
	anchor := points[0]
	if phase == PhasePostProduct {
		if productStart == nil {
			trail.Input("product_start_missing", "post-product evaluation requires a product start date")
			return PhaseBaseline{}, false
		}
		best := math.Inf(1)
		for _, p := range points {
			d := math.Abs(daysBetween(*productStart, p.Timestamp))
			if d < best {
				best = d
				anchor = p
			}
		}
	}
	if anchor.Area <= 0 {
		trail.Input("baseline_area_invalid", "baseline area %.2f at %s cannot anchor a reduction", anchor.Area, anchor.Timestamp.Format(time.RFC3339))
		return PhaseBaseline{}, false
	}
	return PhaseBaseline{Phase: phase, AnchorTimestamp: anchor.Timestamp, AnchorArea: anchor.Area}, true
}

// evaluateWindow finds the measurement closest to the window's target day,
// first within the preferred tolerance, then within the extended one.
// Ties favour the later measurement.
func evaluateWindow(phase Phase, base PhaseBaseline, followups []AreaPoint, periodStart int) PeriodWindow {
	target := periodStart + WindowDays
	w := PeriodWindow{PeriodStartDay: periodStart, TargetDay: target, Match: MatchNone}

	var found *AreaPoint
	best := math.Inf(1)
	for i := range followups {
		offset := math.Abs(daysBetween(base.AnchorTimestamp, followups[i].Timestamp) - float64(target))
		if offset <= ExtendedToleranceDays && offset <= best {
			best = offset
			found = &followups[i]
		}
	}
	if found == nil {
		return w
	}

	w.Match = MatchExtended
	if best <= PreferredToleranceDays {
		w.Match = MatchPreferred
	}
	p := *found
	pct := reductionPct(base.AnchorArea, p.Area)
	meets := meetsRequirement(phase, pct)
	w.Measurement = &p
	w.DaysFromBaseline = round2(daysBetween(base.AnchorTimestamp, p.Timestamp))
	w.ReductionPct = &pct
	w.MeetsRequirement = &meets
	return w
}
