package alerting

import (
	"fmt"
	"math"
	"strings"

	"github.com/ehr/woundcare/internal/domain/measurement"
)

// TreatmentResponse is the clinician-reported response to current treatment.
type TreatmentResponse string

const (
	ResponseUnknown TreatmentResponse = ""
	ResponseGood    TreatmentResponse = "good"
	ResponseFair    TreatmentResponse = "fair"
	ResponsePoor    TreatmentResponse = "poor"
)

// Context is the clinical context the engine and override evaluator read.
// It is built once from a validated profile and passed by value.
type Context struct {
	Diabetic            bool
	Age                 int
	ComorbidityCount    int
	Category            measurement.WoundCategory
	TreatmentResponse   TreatmentResponse
	PainScore           *int
	InfectionIndicators []string
	SystemicSigns       []string
}

// Modifier is one applied threshold tightening.
type Modifier struct {
	Name      string  `json:"name"`
	Reduction float64 `json:"reduction"`
}

// Modifier parameters.
const (
	ageModifierThreshold  = 65
	ageReductionPerDecade = 0.05
	ageReductionCap       = 0.15
	comorbidityThreshold  = 3
	comorbidityReduction  = 0.10
	minThresholdFactor    = 0.5
)

// diabeticReduction grows with tier so the most severe alerts are the most
// sensitive for diabetic patients.
var diabeticReduction = map[Tier]float64{
	TierMinor:    0.10,
	TierModerate: 0.15,
	TierUrgent:   0.20,
	TierCritical: 0.30,
}

// Modifiers returns the tightenings that apply to tier under ctx.
func Modifiers(tier Tier, ctx Context) []Modifier {
	var mods []Modifier
	if ctx.Diabetic {
		mods = append(mods, Modifier{Name: "diabetic", Reduction: diabeticReduction[tier]})
	}
	if ctx.Age > ageModifierThreshold {
		decades := float64((ctx.Age-ageModifierThreshold-1)/10 + 1)
		mods = append(mods, Modifier{Name: fmt.Sprintf("age_%d", ctx.Age), Reduction: math.Min(decades*ageReductionPerDecade, ageReductionCap)})
	}
	if ctx.ComorbidityCount >= comorbidityThreshold {
		mods = append(mods, Modifier{Name: "comorbidities", Reduction: comorbidityReduction})
	}
	if r := ctx.Category.Profile().AlertTightening; r > 0 {
		mods = append(mods, Modifier{Name: strings.ToLower(ctx.Category.String()) + "_wound_type", Reduction: r})
	}
	return mods
}

// Adjust applies modifiers multiplicatively to the trigger values of t. The
// combined factor never drops below half the evidence-derived threshold.
// The timeframe is not modified.
func Adjust(t Thresholds, mods []Modifier) Thresholds {
	factor := 1.0
	for _, m := range mods {
		factor *= 1 - m.Reduction
	}
	if factor < minThresholdFactor {
		factor = minThresholdFactor
	}
	t.DepthRateMMPerWeek *= factor
	t.AbsoluteDepthMM *= factor
	t.VolumeIncreasePct *= factor
	return t
}
