// Package quality grades wound-measurement series and decides whether their
// evidence is strong enough to support high-urgency alerts.
package quality

import (
	"math"
	"time"

	"github.com/ehr/woundcare/internal/domain/measurement"
)

// Observation is one timestamped value of the metric under assessment.
type Observation struct {
	Time     time.Time
	Value    float64
	Status   measurement.ValidationStatus
	Complete bool
}

// DepthObservations extracts the depth series (mm) from normalized measurements.
func DepthObservations(s measurement.Series) []Observation {
	out := make([]Observation, 0, len(s))
	for _, n := range s {
		if n.DepthMM == nil {
			continue
		}
		out = append(out, Observation{Time: n.Timestamp, Value: *n.DepthMM, Status: n.ValidationStatus, Complete: n.Complete()})
	}
	return out
}

// AreaObservations extracts the area series (cm²) from normalized measurements.
func AreaObservations(s measurement.Series) []Observation {
	out := make([]Observation, len(s))
	for i, n := range s {
		out[i] = Observation{Time: n.Timestamp, Value: n.AreaCM2, Status: n.ValidationStatus, Complete: n.Complete()}
	}
	return out
}

// Weights of the confidence composite. They sum to 1.
type Weights struct {
	Frequency  float64
	Trend      float64
	Outlier    float64
	TimeSpan   float64
	Validation float64
}

// Config tunes the scorer.
type Config struct {
	Weights              Weights
	ExpectedIntervalDays float64
	MinimumSpanDays      float64
	SmallSampleMax       int
	MADThreshold         float64
	ZThreshold           float64
	// CompletenessWeight is the share of the quality score taken by record
	// completeness; the rest is the confidence composite.
	CompletenessWeight float64
}

// DefaultConfig returns the standard scoring parameters.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Frequency:  0.25,
			Trend:      0.30,
			Outlier:    0.20,
			TimeSpan:   0.15,
			Validation: 0.10,
		},
		ExpectedIntervalDays: 7,
		MinimumSpanDays:      14,
		SmallSampleMax:       5,
		MADThreshold:         2.5,
		ZThreshold:           2.0,
		CompletenessWeight:   0.2,
	}
}

// Grade is a letter bucket of the quality score.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// GradeFor buckets a 0-1 score.
func GradeFor(score float64) Grade {
	switch {
	case score >= 0.9:
		return GradeA
	case score >= 0.8:
		return GradeB
	case score >= 0.7:
		return GradeC
	case score >= 0.6:
		return GradeD
	default:
		return GradeF
	}
}

// Components are the individual 0-1 factors behind an assessment.
type Components struct {
	Frequency        float64 `json:"frequency"`
	TrendConsistency float64 `json:"trend_consistency"`
	Outlier          float64 `json:"outlier"`
	TimeSpan         float64 `json:"time_span"`
	Validation       float64 `json:"validation"`
	Completeness     float64 `json:"completeness"`
}

// Assessment is the quality and confidence verdict for one series.
type Assessment struct {
	QualityScore     float64       `json:"quality_score"`
	Grade            Grade         `json:"grade"`
	Confidence       float64       `json:"confidence"`
	MeasurementCount int           `json:"measurement_count"`
	SpanDays         float64       `json:"span_days"`
	Outliers         []int         `json:"outliers,omitempty"`
	OutlierMethod    OutlierMethod `json:"outlier_method"`
	Components       Components    `json:"components"`
}

// Scorer computes assessments. It holds no mutable state.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer with the given configuration.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Assess grades a time-ordered observation series.
func (s *Scorer) Assess(obs []Observation) Assessment {
	a := Assessment{MeasurementCount: len(obs), OutlierMethod: OutlierNone, Grade: GradeF}
	if len(obs) == 0 {
		return a
	}

	values := make([]float64, len(obs))
	for i, o := range obs {
		values[i] = o.Value
	}
	span := obs[len(obs)-1].Time.Sub(obs[0].Time).Hours() / 24
	a.SpanDays = span

	expected := math.Floor(span/s.cfg.ExpectedIntervalDays) + 1
	c := Components{
		Frequency:        clamp01(float64(len(obs)) / expected),
		TrendConsistency: trendConsistency(values),
		TimeSpan:         clamp01(span / s.cfg.MinimumSpanDays),
	}

	a.Outliers, a.OutlierMethod = detectOutliers(values, s.cfg)
	c.Outlier = clamp01(1 - float64(len(a.Outliers))/float64(len(obs)))

	var validation, complete float64
	for _, o := range obs {
		switch o.Status {
		case measurement.StatusValidated:
			validation += 1
		case measurement.StatusPending, "":
			validation += 0.5
		}
		if o.Complete {
			complete++
		}
	}
	c.Validation = validation / float64(len(obs))
	c.Completeness = complete / float64(len(obs))
	a.Components = c

	w := s.cfg.Weights
	a.Confidence = clamp01(w.Frequency*c.Frequency +
		w.Trend*c.TrendConsistency +
		w.Outlier*c.Outlier +
		w.TimeSpan*c.TimeSpan +
		w.Validation*c.Validation)
	a.QualityScore = clamp01((1-s.cfg.CompletenessWeight)*a.Confidence + s.cfg.CompletenessWeight*c.Completeness)
	a.Grade = GradeFor(a.QualityScore)
	return a
}

// trendConsistency is the share of intervals moving in the direction of the
// net change. Intervals within 5% of the mean magnitude count as agreeing.
// Series with fewer than two intervals score a neutral 0.5.
func trendConsistency(values []float64) float64 {
	if len(values) < 3 {
		return 0.5
	}
	var absSum float64
	for _, v := range values {
		absSum += math.Abs(v)
	}
	tol := 0.05 * absSum / float64(len(values))

	net := values[len(values)-1] - values[0]
	dir := 0
	if net > tol {
		dir = 1
	} else if net < -tol {
		dir = -1
	}

	agree := 0
	for i := 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		switch {
		case math.Abs(d) <= tol:
			agree++
		case dir > 0 && d > 0, dir < 0 && d < 0:
			agree++
		}
	}
	return float64(agree) / float64(len(values)-1)
}
