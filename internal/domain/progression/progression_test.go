package progression

import (
	"math"
	"testing"
	"time"

	"github.com/ehr/woundcare/internal/domain/measurement"
	"github.com/ehr/woundcare/internal/domain/quality"
)

var day0 = time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

func depthSeries(t *testing.T, depths ...float64) measurement.Series {
	t.Helper()
	raw := make([]measurement.Measurement, len(depths))
	for i, d := range depths {
		raw[i] = measurement.Measurement{
			Length:           4,
			Width:            3,
			Depth:            ptr(d),
			Unit:             "cm",
			DepthUnit:        "mm",
			Timestamp:        day0.AddDate(0, 0, 7*i),
			Method:           measurement.MethodElliptical,
			RecordedBy:       "rn-ortiz",
			ValidationStatus: measurement.StatusValidated,
		}
	}
	s, _ := measurement.NormalizeSeries(raw, "left foot plantar")
	if len(s) != len(depths) {
		t.Fatalf("normalized %d of %d measurements", len(s), len(depths))
	}
	return s
}

func newAnalyzer() *Analyzer {
	return NewAnalyzer(quality.NewScorer(quality.DefaultConfig()))
}

func TestAnalyze_DeepeningScenario(t *testing.T) {
	s := depthSeries(t, 3, 5, 8, 12, 18)
	m, trail := newAnalyzer().Analyze(s, measurement.SiteFoot)

	if m.DepthTrend != TrendDeepening {
		t.Errorf("DepthTrend = %s, want deepening", m.DepthTrend)
	}
	if m.DepthVelocity == nil || math.Abs(*m.DepthVelocity-3.75) > 1e-9 {
		t.Errorf("DepthVelocity = %v, want 3.75", m.DepthVelocity)
	}
	if m.VolumeTrend != TrendExpanding {
		t.Errorf("VolumeTrend = %s, want expanding", m.VolumeTrend)
	}
	if m.Thickness == nil || m.Thickness.Classification != DeepPartialThickness {
		t.Errorf("Thickness = %+v, want deep_partial_thickness", m.Thickness)
	}
	if m.QualityGrade != quality.GradeA {
		t.Errorf("QualityGrade = %s, want A", m.QualityGrade)
	}
	if len(m.Intervals) != 4 {
		t.Errorf("Intervals = %d, want 4", len(m.Intervals))
	}
	if !trail.Has("depth_trend") {
		t.Errorf("trail %v missing depth_trend", trail.Codes())
	}
}

func TestAnalyze_ThicknessConfidenceRisesEachStep(t *testing.T) {
	s := depthSeries(t, 3, 5, 8, 12, 18)
	prev := 0.0
	for n := 1; n <= len(s); n++ {
		m, _ := newAnalyzer().Analyze(s[:n], measurement.SiteFoot)
		if m.Thickness == nil {
			t.Fatalf("no thickness assessment at %d measurements", n)
		}
		if m.Thickness.Confidence <= prev {
			t.Errorf("confidence %v at step %d did not rise above %v", m.Thickness.Confidence, n, prev)
		}
		prev = m.Thickness.Confidence
	}
}

func TestAnalyze_Trends(t *testing.T) {
	tests := []struct {
		name   string
		depths []float64
		want   Trend
	}{
		{"healing", []float64{10, 8, 6, 4}, TrendHealing},
		{"stable", []float64{5, 5.5, 5}, TrendStable},
		{"boundary stays stable", []float64{4, 5}, TrendStable},
		{"single measurement", []float64{5}, TrendInsufficient},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, _ := newAnalyzer().Analyze(depthSeries(t, tc.depths...), measurement.SiteFoot)
			if m.DepthTrend != tc.want {
				t.Errorf("DepthTrend = %s, want %s", m.DepthTrend, tc.want)
			}
		})
	}
}

func TestClassifyThickness(t *testing.T) {
	tests := []struct {
		depth float64
		want  Classification
	}{
		{5.9, Superficial},
		{6, PartialThickness},
		{15.9, PartialThickness},
		{16, DeepPartialThickness},
		{20, FullThickness},
		{30, FullThickness},
		{31, DeepFullThickness},
	}
	for _, tc := range tests {
		s := depthSeries(t, tc.depth)
		got := ClassifyThickness(s, measurement.SiteFoot)
		if got.Classification != tc.want {
			t.Errorf("depth %v: Classification = %s, want %s", tc.depth, got.Classification, tc.want)
		}
	}
}

func TestClassifyThickness_ConsistencyLowersConfidence(t *testing.T) {
	rising := ClassifyThickness(depthSeries(t, 4, 8), measurement.SiteFoot)
	receding := ClassifyThickness(depthSeries(t, 8, 4), measurement.SiteFoot)
	if !(receding.Confidence < rising.Confidence) {
		t.Errorf("receding confidence %v should be below rising %v", receding.Confidence, rising.Confidence)
	}
	if receding.MaxRecordedMM != 8 {
		t.Errorf("MaxRecordedMM = %v, want 8", receding.MaxRecordedMM)
	}
}

func TestIntervals(t *testing.T) {
	iv := Intervals(depthSeries(t, 3, 5, 8))
	if len(iv) != 2 {
		t.Fatalf("len = %d, want 2", len(iv))
	}
	if iv[1].DepthDeltaMM == nil || *iv[1].DepthDeltaMM != 3 {
		t.Errorf("DepthDeltaMM = %v, want 3", iv[1].DepthDeltaMM)
	}
	if iv[1].DepthRateMMWeek == nil || math.Abs(*iv[1].DepthRateMMWeek-3) > 1e-9 {
		t.Errorf("DepthRateMMWeek = %v, want 3", iv[1].DepthRateMMWeek)
	}
	if iv[0].AreaDeltaPct == nil || *iv[0].AreaDeltaPct != 0 {
		t.Errorf("AreaDeltaPct = %v, want 0", iv[0].AreaDeltaPct)
	}
}

func TestMaxChangeWithin(t *testing.T) {
	ts := []time.Time{day0, day0.AddDate(0, 0, 3), day0.AddDate(0, 0, 10)}
	if got := MaxChangeWithin(ts, []float64{2, 8, 9}, 7); got != 6 {
		t.Errorf("MaxChangeWithin = %v, want 6", got)
	}
	if got := MaxPctIncreaseWithin(ts, []float64{2, 3, 3.3}, 7); got != 50 {
		t.Errorf("MaxPctIncreaseWithin = %v, want 50", got)
	}
	if got := MaxChangeWithin(ts, []float64{9, 8, 2}, 14); got != 0 {
		t.Errorf("MaxChangeWithin decreasing = %v, want 0", got)
	}
}
