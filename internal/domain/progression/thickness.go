package progression

import (
	"math"

	"github.com/ehr/woundcare/internal/domain/measurement"
)

// Classification is the tissue involvement of a wound.
type Classification string

const (
	Superficial          Classification = "superficial"
	PartialThickness     Classification = "partial_thickness"
	DeepPartialThickness Classification = "deep_partial_thickness"
	FullThickness        Classification = "full_thickness"
	DeepFullThickness    Classification = "deep_full_thickness"
)

// Ratio cut points against the site's typical tissue thickness.
const (
	superficialRatio = 0.3
	partialRatio     = 0.8
	fullRatio        = 1.0
)

// anatomicalCertainty is the fixed trust placed in the reference table.
const anatomicalCertainty = 0.8

// ThicknessAssessment classifies the current depth against the site reference.
type ThicknessAssessment struct {
	Classification Classification `json:"classification"`
	DepthMM        float64        `json:"depth_mm"`
	MaxRecordedMM  float64        `json:"max_recorded_mm"`
	TypicalMM      float64        `json:"typical_mm"`
	MaxMM          float64        `json:"max_mm"`
	RatioToTypical float64        `json:"ratio_to_typical"`
	Confidence     float64        `json:"confidence"`
}

// ClassifyThickness classifies the latest depth of a depth-bearing series.
// Confidence blends measurement count (saturating at 5), the fixed
// anatomical-reference certainty and how close the current depth is to the
// deepest recorded depth.
func ClassifyThickness(depthSeries measurement.Series, site measurement.AnatomicalSite) ThicknessAssessment {
	ref := site.Thickness()
	a := ThicknessAssessment{TypicalMM: ref.TypicalMM, MaxMM: ref.MaxMM}
	if len(depthSeries) == 0 {
		return a
	}

	for _, n := range depthSeries {
		if *n.DepthMM > a.MaxRecordedMM {
			a.MaxRecordedMM = *n.DepthMM
		}
	}
	last, _ := depthSeries.Last()
	a.DepthMM = *last.DepthMM
	a.RatioToTypical = round2(a.DepthMM / ref.TypicalMM)

	ratio := a.DepthMM / ref.TypicalMM
	switch {
	case a.DepthMM > ref.MaxMM:
		a.Classification = DeepFullThickness
	case ratio >= fullRatio:
		a.Classification = FullThickness
	case ratio >= partialRatio:
		a.Classification = DeepPartialThickness
	case ratio >= superficialRatio:
		a.Classification = PartialThickness
	default:
		a.Classification = Superficial
	}

	consistency := 1.0
	if a.MaxRecordedMM > 0 {
		consistency = a.DepthMM / a.MaxRecordedMM
	}
	count := math.Min(float64(len(depthSeries))/5, 1)
	a.Confidence = 0.4*count + 0.3*anatomicalCertainty + 0.3*consistency
	return a
}
