// Package progression computes depth and volume trends for a wound episode
// and classifies tissue involvement against anatomical references.
package progression

import (
	"math"

	"github.com/ehr/woundcare/internal/domain/measurement"
	"github.com/ehr/woundcare/internal/domain/quality"
	"github.com/ehr/woundcare/internal/platform/audit"
)

// Trend is the direction of a progression metric.
type Trend string

const (
	TrendDeepening    Trend = "deepening"
	TrendExpanding    Trend = "expanding"
	TrendStable       Trend = "stable"
	TrendHealing      Trend = "healing"
	TrendInsufficient Trend = "insufficient_data"
)

// Trend bands.
const (
	DepthStableBandMMPerWeek   = 1.0
	VolumeStableBandCM3PerWeek = 0.5
)

// Metrics are derived on every evaluation.
type Metrics struct {
	DepthVelocity   *float64             `json:"depth_velocity_mm_per_week,omitempty"`
	VolumeVelocity  *float64             `json:"volume_velocity_cm3_per_week,omitempty"`
	DepthTrend      Trend                `json:"depth_trend"`
	VolumeTrend     Trend                `json:"volume_trend"`
	DepthChangeMM   float64              `json:"depth_change_mm"`
	AreaChangePct   float64              `json:"area_change_pct"`
	VolumeChangePct *float64             `json:"volume_change_pct,omitempty"`
	WeeksElapsed    float64              `json:"weeks_elapsed"`
	Confidence      float64              `json:"confidence"`
	QualityGrade    quality.Grade        `json:"quality_grade"`
	Quality         quality.Assessment   `json:"quality"`
	Thickness       *ThicknessAssessment `json:"thickness,omitempty"`
	Intervals       []Interval           `json:"intervals"`
}

// Analyzer computes progression metrics. It is stateless apart from its scorer.
type Analyzer struct {
	scorer *quality.Scorer
}

// NewAnalyzer creates an analyzer that grades depth evidence with scorer.
func NewAnalyzer(scorer *quality.Scorer) *Analyzer {
	return &Analyzer{scorer: scorer}
}

// Analyze computes depth and volume progression for a normalized series.
func (a *Analyzer) Analyze(series measurement.Series, site measurement.AnatomicalSite) (Metrics, audit.Trail) {
	var trail audit.Trail
	m := Metrics{
		DepthTrend:  TrendInsufficient,
		VolumeTrend: TrendInsufficient,
		Intervals:   Intervals(series),
	}

	depthObs := quality.DepthObservations(series)
	m.Quality = a.scorer.Assess(depthObs)
	m.Confidence = m.Quality.Confidence
	m.QualityGrade = m.Quality.Grade

	if first, ok := series.First(); ok {
		last, _ := series.Last()
		if first.AreaCM2 > 0 {
			m.AreaChangePct = (last.AreaCM2 - first.AreaCM2) / first.AreaCM2 * 100
		}
	}

	if len(depthObs) < 2 {
		trail.Input("depth_series_insufficient", "%d depth measurements, need 2 for a trend", len(depthObs))
	} else {
		first, last := depthObs[0], depthObs[len(depthObs)-1]
		weeks := last.Time.Sub(first.Time).Hours() / 24 / 7
		m.WeeksElapsed = weeks
		m.DepthChangeMM = last.Value - first.Value
		if weeks > 0 {
			v := m.DepthChangeMM / weeks
			m.DepthVelocity = &v
			m.DepthTrend = depthTrend(v)
		}
	}

	vols := volumes(series)
	if len(vols) >= 2 {
		first, last := vols[0], vols[len(vols)-1]
		weeks := last.at.Sub(first.at).Hours() / 24 / 7
		if weeks > 0 {
			v := (last.cm3 - first.cm3) / weeks
			m.VolumeVelocity = &v
			m.VolumeTrend = volumeTrend(v)
		}
		if first.cm3 > 0 {
			pct := (last.cm3 - first.cm3) / first.cm3 * 100
			m.VolumeChangePct = &pct
		}
	}

	if depthSeries := series.WithDepth(); len(depthSeries) > 0 {
		t := ClassifyThickness(depthSeries, site)
		m.Thickness = &t
		if t.Classification == DeepFullThickness {
			trail.Info("depth_exceeds_site_maximum", "depth %.1f mm exceeds %s maximum %.0f mm", t.DepthMM, site, t.MaxMM)
		}
	}

	if m.DepthVelocity != nil {
		trail.Info("depth_trend", "depth %s at %.2f mm/week over %.1f weeks", m.DepthTrend, *m.DepthVelocity, m.WeeksElapsed)
	}
	return m, trail
}

func depthTrend(v float64) Trend {
	switch {
	case v > DepthStableBandMMPerWeek:
		return TrendDeepening
	case v < -DepthStableBandMMPerWeek:
		return TrendHealing
	default:
		return TrendStable
	}
}

func volumeTrend(v float64) Trend {
	switch {
	case v > VolumeStableBandCM3PerWeek:
		return TrendExpanding
	case v < -VolumeStableBandCM3PerWeek:
		return TrendHealing
	default:
		return TrendStable
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
