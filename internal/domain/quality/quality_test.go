package quality

import (
	"math"
	"testing"
	"time"

	"github.com/ehr/woundcare/internal/domain/measurement"
)

var day0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func weekly(values []float64, status measurement.ValidationStatus) []Observation {
	out := make([]Observation, len(values))
	for i, v := range values {
		out[i] = Observation{
			Time:     day0.AddDate(0, 0, 7*i),
			Value:    v,
			Status:   status,
			Complete: true,
		}
	}
	return out
}

func TestAssess_Empty(t *testing.T) {
	a := NewScorer(DefaultConfig()).Assess(nil)
	if a.Confidence != 0 || a.QualityScore != 0 {
		t.Errorf("empty series scored confidence=%v quality=%v, want 0", a.Confidence, a.QualityScore)
	}
	if a.Grade != GradeF {
		t.Errorf("Grade = %s, want F", a.Grade)
	}
}

func TestAssess_WeeklyDeepeningSeries(t *testing.T) {
	obs := weekly([]float64{3, 5, 8, 12, 18}, measurement.StatusValidated)
	a := NewScorer(DefaultConfig()).Assess(obs)

	if math.Abs(a.Confidence-1.0) > 1e-9 {
		t.Errorf("Confidence = %v, want 1.0", a.Confidence)
	}
	if a.Grade != GradeA {
		t.Errorf("Grade = %s, want A", a.Grade)
	}
	if len(a.Outliers) != 0 {
		t.Errorf("Outliers = %v, want none", a.Outliers)
	}
	if a.OutlierMethod != OutlierMAD {
		t.Errorf("OutlierMethod = %s, want mad", a.OutlierMethod)
	}
	if a.SpanDays != 28 {
		t.Errorf("SpanDays = %v, want 28", a.SpanDays)
	}
}

func TestAssess_ConfidenceRisesWithEvidence(t *testing.T) {
	obs := weekly([]float64{3, 5, 8, 12, 18}, measurement.StatusValidated)
	s := NewScorer(DefaultConfig())

	prev := -1.0
	for n := 2; n <= len(obs); n++ {
		c := s.Assess(obs[:n]).Confidence
		if c < prev {
			t.Errorf("confidence fell from %v to %v at %d measurements", prev, c, n)
		}
		prev = c
	}
	if first := s.Assess(obs[:2]).Confidence; first >= prev {
		t.Errorf("two-point confidence %v should be below full-series %v", first, prev)
	}
}

func TestAssess_ValidationWeights(t *testing.T) {
	s := NewScorer(DefaultConfig())
	validated := s.Assess(weekly([]float64{3, 5, 8}, measurement.StatusValidated))
	pending := s.Assess(weekly([]float64{3, 5, 8}, measurement.StatusPending))
	flagged := s.Assess(weekly([]float64{3, 5, 8}, measurement.StatusFlagged))

	if validated.Components.Validation != 1 || pending.Components.Validation != 0.5 || flagged.Components.Validation != 0 {
		t.Errorf("validation components = %v/%v/%v, want 1/0.5/0",
			validated.Components.Validation, pending.Components.Validation, flagged.Components.Validation)
	}
	if !(validated.Confidence > pending.Confidence && pending.Confidence > flagged.Confidence) {
		t.Errorf("confidence ordering broken: %v, %v, %v", validated.Confidence, pending.Confidence, flagged.Confidence)
	}
}

func TestAssess_SparseSeriesPenalized(t *testing.T) {
	obs := []Observation{
		{Time: day0, Value: 4, Status: measurement.StatusValidated, Complete: true},
		{Time: day0.AddDate(0, 0, 28), Value: 6, Status: measurement.StatusValidated, Complete: true},
		{Time: day0.AddDate(0, 0, 56), Value: 8, Status: measurement.StatusValidated, Complete: true},
	}
	a := NewScorer(DefaultConfig()).Assess(obs)
	// 3 of an expected 9 weekly measurements.
	if math.Abs(a.Components.Frequency-3.0/9.0) > 1e-9 {
		t.Errorf("Frequency = %v, want %v", a.Components.Frequency, 3.0/9.0)
	}
}

func TestAssess_IncompleteRecordsLowerQuality(t *testing.T) {
	s := NewScorer(DefaultConfig())
	complete := weekly([]float64{3, 5, 8, 12}, measurement.StatusValidated)
	partial := weekly([]float64{3, 5, 8, 12}, measurement.StatusValidated)
	for i := range partial {
		partial[i].Complete = false
	}
	a, b := s.Assess(complete), s.Assess(partial)
	if a.Confidence != b.Confidence {
		t.Errorf("completeness must not change confidence: %v vs %v", a.Confidence, b.Confidence)
	}
	if !(b.QualityScore < a.QualityScore) {
		t.Errorf("incomplete quality %v should be below complete %v", b.QualityScore, a.QualityScore)
	}
}

func TestDetectOutliers(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name   string
		values []float64
		want   []int
		method OutlierMethod
	}{
		{"small sample MAD", []float64{3, 3.2, 3.1, 20}, []int{3}, OutlierMAD},
		{"small sample no spread", []float64{4, 4, 4, 4}, nil, OutlierMAD},
		{"large sample zscore", []float64{1, 1, 1, 1, 1, 1, 10}, []int{6}, OutlierZScore},
		{"too few", []float64{1, 50}, nil, OutlierNone},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, method := detectOutliers(tc.values, cfg)
			if method != tc.method {
				t.Errorf("method = %s, want %s", method, tc.method)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("outliers = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("outliers = %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestTrendConsistency(t *testing.T) {
	if got := trendConsistency([]float64{1, 2}); got != 0.5 {
		t.Errorf("two points = %v, want 0.5", got)
	}
	if got := trendConsistency([]float64{1, 2, 3, 4}); got != 1 {
		t.Errorf("monotone = %v, want 1", got)
	}
	if got := trendConsistency([]float64{2, 6, 3, 8}); math.Abs(got-2.0/3.0) > 1e-9 {
		t.Errorf("zigzag = %v, want 2/3", got)
	}
}

func TestGradeFor(t *testing.T) {
	tests := []struct {
		score float64
		want  Grade
	}{
		{0.95, GradeA}, {0.9, GradeA}, {0.89, GradeB}, {0.8, GradeB},
		{0.75, GradeC}, {0.6, GradeD}, {0.59, GradeF}, {0, GradeF},
	}
	for _, tc := range tests {
		if got := GradeFor(tc.score); got != tc.want {
			t.Errorf("GradeFor(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

// -- Gates --

func TestCheck_LowConfidenceBlocksUrgent(t *testing.T) {
	a := Assessment{QualityScore: 0.9, Confidence: 0.59, MeasurementCount: 5}
	r := Check(UrgentRequirement, a, 0)
	if r.Passed {
		t.Fatal("urgent gate passed with confidence 0.59")
	}
	if len(r.Failed) != 1 || r.Failed[0] != GateConfidence {
		t.Errorf("Failed = %v, want [confidence]", r.Failed)
	}
}

func TestCheck_Thresholds(t *testing.T) {
	tests := []struct {
		name        string
		req         Requirement
		a           Assessment
		consecutive int
		passed      bool
	}{
		{"urgent at thresholds", UrgentRequirement, Assessment{QualityScore: 0.70, Confidence: 0.60, MeasurementCount: 3}, 0, true},
		{"urgent too few", UrgentRequirement, Assessment{QualityScore: 0.9, Confidence: 0.9, MeasurementCount: 2}, 0, false},
		{"critical at thresholds", CriticalRequirement, Assessment{QualityScore: 0.80, Confidence: 0.75, MeasurementCount: 4}, 2, true},
		{"critical single interval", CriticalRequirement, Assessment{QualityScore: 0.9, Confidence: 0.9, MeasurementCount: 6}, 1, false},
		{"critical low quality", CriticalRequirement, Assessment{QualityScore: 0.79, Confidence: 0.9, MeasurementCount: 6}, 3, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := Check(tc.req, tc.a, tc.consecutive)
			if r.Passed != tc.passed {
				t.Errorf("Passed = %v, want %v (failed %v)", r.Passed, tc.passed, r.Failed)
			}
			if !r.Passed && len(r.Reasons) != len(r.Failed) {
				t.Errorf("reasons %v do not match failed gates %v", r.Reasons, r.Failed)
			}
		})
	}
}

func TestTrailingBreaches(t *testing.T) {
	obs := weekly([]float64{2, 5, 5, 7, 9}, measurement.StatusValidated)
	rising := func(prev, next Observation) bool { return next.Value-prev.Value >= 1 }

	if got := TrailingBreaches(obs, rising); got != 2 {
		t.Errorf("TrailingBreaches = %d, want 2", got)
	}
	if got := TrailingBreaches(obs[:3], rising); got != 0 {
		t.Errorf("TrailingBreaches after flat interval = %d, want 0", got)
	}
	if got := TrailingBreaches(nil, rising); got != 0 {
		t.Errorf("TrailingBreaches(nil) = %d, want 0", got)
	}
}
