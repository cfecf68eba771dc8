package measurement

import (
	"fmt"
	"math"
	"strings"
)

// Kind is the physical quantity being normalized.
type Kind string

const (
	KindLength Kind = "length"
	KindWidth  Kind = "width"
	KindDepth  Kind = "depth"
	KindArea   Kind = "area"
	KindVolume Kind = "volume"
)

// StandardUnit returns the unit every value of the kind is converted to.
func (k Kind) StandardUnit() string {
	switch k {
	case KindDepth:
		return "mm"
	case KindArea:
		return "cm2"
	case KindVolume:
		return "cm3"
	default:
		return "cm"
	}
}

// Absolute dimension bounds beyond which a value is not a plausible wound.
const (
	MaxLengthCM  = 50.0
	MaxWidthCM   = 50.0
	MaxAreaCM2   = 1000.0
	MaxVolumeCM3 = 2000.0
)

// linearToMM converts one unit of linear measure to millimetres.
var linearToMM = map[string]float64{
	"mm": 1, "millimeter": 1, "millimeters": 1, "millimetre": 1, "millimetres": 1,
	"cm": 10, "centimeter": 10, "centimeters": 10, "centimetre": 10, "centimetres": 10,
	"m": 1000, "meter": 1000, "meters": 1000,
	"in": 25.4, "inch": 25.4, "inches": 25.4, "\"": 25.4,
}

// areaToCM2 converts one unit of area to square centimetres.
var areaToCM2 = map[string]float64{
	"cm2": 1, "cm²": 1, "cm^2": 1, "sq cm": 1, "sqcm": 1,
	"mm2": 0.01, "mm²": 0.01, "mm^2": 0.01, "sq mm": 0.01,
	"in2": 6.4516, "in²": 6.4516, "in^2": 6.4516, "sq in": 6.4516,
	"m2": 10000, "m²": 10000,
}

// volumeToCM3 converts one unit of volume to cubic centimetres.
var volumeToCM3 = map[string]float64{
	"cm3": 1, "cm³": 1, "cc": 1, "ml": 1,
	"mm3": 0.001, "mm³": 0.001,
	"in3": 16.387064, "in³": 16.387064,
}

// fallbackLinear resolves units like "mm (approx)" by substring.
// Order matters: "mm" must be tried before "m"-bearing strings.
func fallbackLinear(u string) (float64, bool) {
	switch {
	case strings.Contains(u, "mm"):
		return 1, true
	case strings.Contains(u, "cm"):
		return 10, true
	case strings.Contains(u, "in"):
		return 25.4, true
	}
	return 0, false
}

// Factor returns the multiplier converting value-in-unit to the kind's standard unit.
func Factor(unit string, kind Kind) (float64, error) {
	u := strings.ToLower(strings.TrimSpace(unit))
	switch kind {
	case KindArea:
		if f, ok := areaToCM2[u]; ok {
			return f, nil
		}
		if mm, ok := fallbackLinear(u); ok {
			cm := mm / 10
			return cm * cm, nil
		}
	case KindVolume:
		if f, ok := volumeToCM3[u]; ok {
			return f, nil
		}
		if mm, ok := fallbackLinear(u); ok {
			cm := mm / 10
			return cm * cm * cm, nil
		}
	default:
		mm, ok := linearToMM[u]
		if !ok {
			mm, ok = fallbackLinear(u)
		}
		if ok {
			if kind == KindDepth {
				return mm, nil
			}
			return mm / 10, nil
		}
	}
	return 0, fmt.Errorf("%w: %q for %s", ErrUnsupportedUnit, unit, kind)
}

// Result is the output of a single-value normalization.
type Result struct {
	NormalizedValue   float64  `json:"normalized_value"`
	Unit              string   `json:"unit"`
	IsValid           bool     `json:"is_valid"`
	PlausibilityScore float64  `json:"plausibility_score"`
	Flags             []string `json:"flags,omitempty"`
}

// Normalize converts value to the standard unit for kind and screens it for
// anatomical plausibility at location. Implausible values are flagged, never
// dropped.
func Normalize(value float64, unit string, kind Kind, location string) (Result, error) {
	factor, err := Factor(unit, kind)
	if err != nil {
		return Result{}, err
	}
	r := Result{
		NormalizedValue:   value * factor,
		Unit:              kind.StandardUnit(),
		IsValid:           true,
		PlausibilityScore: 1.0,
	}

	v := r.NormalizedValue
	if math.IsNaN(v) || math.IsInf(v, 0) {
		r.IsValid = false
		r.PlausibilityScore = 0
		r.Flags = append(r.Flags, "non_finite_value")
		return r, nil
	}
	if v < 0 {
		r.IsValid = false
		r.PlausibilityScore = 0
		r.Flags = append(r.Flags, "negative_value")
		return r, nil
	}

	switch kind {
	case KindLength, KindWidth:
		limit := MaxLengthCM
		if kind == KindWidth {
			limit = MaxWidthCM
		}
		if v == 0 {
			r.PlausibilityScore = 0.5
			r.Flags = append(r.Flags, "zero_dimension")
		}
		if v > limit {
			r.IsValid = false
			r.PlausibilityScore = 0.1
			r.Flags = append(r.Flags, "exceeds_absolute_maximum")
		}
	case KindArea:
		if v > MaxAreaCM2 {
			r.IsValid = false
			r.PlausibilityScore = 0.1
			r.Flags = append(r.Flags, "exceeds_absolute_maximum")
		}
	case KindVolume:
		if v > MaxVolumeCM3 {
			r.IsValid = false
			r.PlausibilityScore = 0.1
			r.Flags = append(r.Flags, "exceeds_absolute_maximum")
		}
	case KindDepth:
		ref := ParseSite(location).Thickness()
		switch {
		case v > 2*ref.MaxMM:
			r.PlausibilityScore = 0.2
			r.Flags = append(r.Flags, "depth_anatomically_implausible")
		case v > ref.MaxMM:
			r.PlausibilityScore = 0.6
			r.Flags = append(r.Flags, "depth_exceeds_tissue_maximum")
		}
	}
	return r, nil
}
