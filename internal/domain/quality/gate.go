package quality

import "fmt"

// GateName identifies one evidence requirement.
type GateName string

const (
	GateQualityScore GateName = "quality_score"
	GateConfidence   GateName = "confidence"
	GateMeasurements GateName = "measurement_count"
	GateConsecutive  GateName = "consecutive_intervals"
)

// Requirement is the minimum evidence an alert tier needs.
type Requirement struct {
	MinQuality      float64 `json:"min_quality"`
	MinConfidence   float64 `json:"min_confidence"`
	MinMeasurements int     `json:"min_measurements"`
	MinConsecutive  int     `json:"min_consecutive"`
}

var (
	// UrgentRequirement gates urgent alerts.
	UrgentRequirement = Requirement{MinQuality: 0.70, MinConfidence: 0.60, MinMeasurements: 3}
	// CriticalRequirement gates critical alerts.
	CriticalRequirement = Requirement{MinQuality: 0.80, MinConfidence: 0.75, MinMeasurements: 4, MinConsecutive: 2}
)

// GateResult reports whether a requirement was met and, if not, which gates failed.
type GateResult struct {
	Passed  bool       `json:"passed"`
	Failed  []GateName `json:"failed,omitempty"`
	Reasons []string   `json:"reasons,omitempty"`
}

// Check evaluates an assessment against req. consecutive is the number of
// trailing intervals that breached the tier's threshold.
func Check(req Requirement, a Assessment, consecutive int) GateResult {
	var r GateResult
	fail := func(g GateName, format string, args ...interface{}) {
		r.Failed = append(r.Failed, g)
		r.Reasons = append(r.Reasons, fmt.Sprintf(format, args...))
	}

	if a.QualityScore < req.MinQuality {
		fail(GateQualityScore, "quality %.2f below %.2f", a.QualityScore, req.MinQuality)
	}
	if a.Confidence < req.MinConfidence {
		fail(GateConfidence, "confidence %.2f below %.2f", a.Confidence, req.MinConfidence)
	}
	if a.MeasurementCount < req.MinMeasurements {
		fail(GateMeasurements, "%d measurements, need %d", a.MeasurementCount, req.MinMeasurements)
	}
	if consecutive < req.MinConsecutive {
		fail(GateConsecutive, "%d consecutive breaching intervals, need %d", consecutive, req.MinConsecutive)
	}
	r.Passed = len(r.Failed) == 0
	return r
}

// TrailingBreaches counts the intervals at the end of obs for which breach
// holds without interruption. A non-breaching interval resets the run.
func TrailingBreaches(obs []Observation, breach func(prev, next Observation) bool) int {
	run := 0
	for i := 1; i < len(obs); i++ {
		if breach(obs[i-1], obs[i]) {
			run++
		} else {
			run = 0
		}
	}
	return run
}
