package coverage

import (
	"fmt"
	"time"

	"github.com/ehr/woundcare/internal/domain/measurement"
	"github.com/ehr/woundcare/internal/platform/audit"
)

// LCD criterion thresholds.
const (
	MinWoundDurationDays    = 28
	MinConservativeCareDays = 28
	MinABI                  = 0.65
	MinTcPO2                = 30.0
	MaxHbA1c                = 12.0
	MaxEligibleWagnerGrade  = 2
	MinEligibleWagnerGrade  = 1
)

// CareRecord is the standard-of-care documentation from one encounter.
type CareRecord struct {
	Date          time.Time `json:"date"`
	Offloading    bool      `json:"offloading"`
	Compression   bool      `json:"compression"`
	Debridement   bool      `json:"debridement"`
	MoistDressing bool      `json:"moist_dressing"`
}

// VascularAssessment is the most recent documented perfusion study.
type VascularAssessment struct {
	ABI   *float64 `json:"abi,omitempty"`
	TcPO2 *float64 `json:"tcpo2,omitempty"`
}

// EligibilityInput carries everything the LCD criteria read. It deliberately
// has no field for depth, volume, progression or alerts.
type EligibilityInput struct {
	Category         measurement.WoundCategory
	PrimaryDiagnosis string
	EpisodeStart     time.Time
	ProductStart     *time.Time
	AsOf             time.Time
	Points           []AreaPoint
	Care             []CareRecord
	Vascular         *VascularAssessment
	Diabetic         bool
	HbA1c            *float64
	WagnerGrade      *int
	ActiveInfection  bool
	Osteomyelitis    bool
}

// Criterion is one itemized LCD requirement.
type Criterion struct {
	Name   string `json:"name"`
	Met    bool   `json:"met"`
	Reason string `json:"reason"`
}

// EligibilityResult is the full coverage determination for an episode.
// Non-eligibility is a normal outcome, reported through FailureReasons and
// PolicyViolations.
type EligibilityResult struct {
	OverallEligible  bool                 `json:"overall_eligible"`
	Phase            Phase                `json:"phase"`
	Criteria         []Criterion          `json:"criteria"`
	FailureReasons   []string             `json:"failure_reasons"`
	PolicyViolations []string             `json:"policy_violations"`
	Compliance       ComplianceAssessment `json:"compliance"`
	ICD10            ICD10Mapping         `json:"icd10"`
	AuditTrail       audit.Trail          `json:"audit_trail"`
}

// ActivePhase is post-product once the product has been applied on or
// before asOf, and pre-product otherwise.
func ActivePhase(productStart *time.Time, asOf time.Time) Phase {
	if productStart != nil && !asOf.Before(*productStart) {
		return PhasePostProduct
	}
	return PhasePreProduct
}

// EvaluateEligibility itemizes every LCD criterion for the episode.
func EvaluateEligibility(in EligibilityInput) EligibilityResult {
	res := EligibilityResult{
		Criteria:         []Criterion{},
		FailureReasons:   []string{},
		PolicyViolations: []string{},
	}
	asOf := in.AsOf
	if asOf.IsZero() && len(in.Points) > 0 {
		asOf = in.Points[len(in.Points)-1].Timestamp
	}
	res.Phase = ActivePhase(in.ProductStart, asOf)
	profile := in.Category.Profile()

	add := func(name string, met bool, format string, args ...any) {
		reason := fmt.Sprintf(format, args...)
		res.Criteria = append(res.Criteria, Criterion{Name: name, Met: met, Reason: reason})
		if !met {
			res.FailureReasons = append(res.FailureReasons, reason)
			res.AuditTrail.Outcome("criterion_unmet", "%s: %s", name, reason)
		}
	}
	violate := func(name, format string, args ...any) {
		reason := fmt.Sprintf(format, args...)
		res.Criteria = append(res.Criteria, Criterion{Name: name, Met: false, Reason: reason})
		res.PolicyViolations = append(res.PolicyViolations, reason)
		res.AuditTrail.Outcome("policy_violation", "%s: %s", name, reason)
	}

	// -- Wound duration --
	if in.EpisodeStart.IsZero() {
		res.AuditTrail.Input("episode_start_missing", "episode start date not provided")
		add("wound_duration", false, "episode start date not documented")
	} else {
		days := daysBetween(in.EpisodeStart, asOf)
		add("wound_duration", days >= MinWoundDurationDays,
			"wound present %.0f days (minimum %d)", days, MinWoundDurationDays)
	}

	// -- Conservative care --
	checkConservativeCare(in, profile, asOf, add)

	// -- Vascular adequacy --
	switch {
	case in.Vascular != nil && (in.Vascular.ABI != nil || in.Vascular.TcPO2 != nil):
		ok := (in.Vascular.ABI != nil && *in.Vascular.ABI >= MinABI) ||
			(in.Vascular.TcPO2 != nil && *in.Vascular.TcPO2 >= MinTcPO2)
		add("vascular_adequacy", ok, "%s", describeVascular(in.Vascular))
	case profile.RequiresVascularTest:
		add("vascular_adequacy", false, "vascular assessment required for %s but not documented", profile.Display)
	default:
		add("vascular_adequacy", true, "vascular assessment not required for %s", profile.Display)
	}

	// -- Glycemic control --
	switch {
	case !in.Diabetic:
		add("glycemic_control", true, "not applicable: patient not diabetic")
	case in.HbA1c == nil:
		res.AuditTrail.Info("hba1c_missing", "diabetic patient without documented HbA1c")
		add("glycemic_control", true, "HbA1c not documented")
	default:
		add("glycemic_control", *in.HbA1c < MaxHbA1c, "HbA1c %.1f%% (must be below %.0f%%)", *in.HbA1c, MaxHbA1c)
	}

	// -- Wagner grade --
	if in.Category == measurement.CategoryDFU {
		switch {
		case in.WagnerGrade == nil:
			add("wagner_grade", false, "Wagner grade not documented for diabetic foot ulcer")
		case *in.WagnerGrade > MaxEligibleWagnerGrade:
			violate("wagner_grade", "Wagner grade %d indicates bone or tendon involvement", *in.WagnerGrade)
		default:
			add("wagner_grade", *in.WagnerGrade >= MinEligibleWagnerGrade,
				"Wagner grade %d (eligible %d-%d)", *in.WagnerGrade, MinEligibleWagnerGrade, MaxEligibleWagnerGrade)
		}
	}

	// -- Infection --
	switch {
	case in.Osteomyelitis:
		violate("infection_status", "osteomyelitis documented")
	case in.ActiveInfection:
		violate("infection_status", "active wound infection documented")
	default:
		add("infection_status", true, "no active infection documented")
	}

	// -- Phase compliance --
	compliance, trail := Evaluate(Request{Phase: res.Phase, ProductStart: in.ProductStart, AsOf: asOf, Points: in.Points})
	res.Compliance = compliance
	res.AuditTrail.Append(trail)
	switch compliance.OverallCompliance {
	case StatusCompliant:
		add("phase_compliance", true, "%s reduction %.2f%% meets requirement", res.Phase, compliance.CurrentReductionPct)
	case StatusNonCompliant:
		add("phase_compliance", false, "%s reduction %.2f%% fails requirement", res.Phase, compliance.CurrentReductionPct)
	default:
		add("phase_compliance", false, "insufficient area data to assess %s reduction", res.Phase)
	}

	res.ICD10 = MapICD10(in.PrimaryDiagnosis)
	if res.ICD10.RequiresClinicalReview {
		res.AuditTrail.Info("icd10_advisory", "diagnosis code %q derived from free text, clinical review required", res.ICD10.Code)
	}

	res.OverallEligible = len(res.FailureReasons) == 0 && len(res.PolicyViolations) == 0
	return res
}

func checkConservativeCare(in EligibilityInput, profile measurement.CategoryProfile, asOf time.Time, add func(string, bool, string, ...any)) {
	if len(in.Care) == 0 {
		add("conservative_care", false, "no standard-of-care documentation")
		return
	}

	// Care delivered after product start is not standard care.
	end := asOf
	if in.ProductStart != nil && in.ProductStart.Before(end) {
		end = *in.ProductStart
	}
	var first time.Time
	var offloading, compression, woundCare bool
	for _, c := range in.Care {
		if c.Date.After(end) {
			continue
		}
		if first.IsZero() || c.Date.Before(first) {
			first = c.Date
		}
		offloading = offloading || c.Offloading
		compression = compression || c.Compression
		woundCare = woundCare || c.Debridement || c.MoistDressing
	}
	if first.IsZero() {
		add("conservative_care", false, "no standard-of-care documentation before product start")
		return
	}

	var missing []string
	if days := daysBetween(first, end); days < MinConservativeCareDays {
		missing = append(missing, fmt.Sprintf("%.0f days documented (minimum %d)", days, MinConservativeCareDays))
	}
	if profile.RequiresOffloading && !offloading {
		missing = append(missing, "offloading not documented")
	}
	if profile.RequiresCompression && !compression {
		missing = append(missing, "compression therapy not documented")
	}
	if !woundCare {
		missing = append(missing, "debridement or moist wound dressing not documented")
	}
	if len(missing) > 0 {
		add("conservative_care", false, "standard of care incomplete: %v", missing)
		return
	}
	add("conservative_care", true, "standard of care documented")
}

func describeVascular(v *VascularAssessment) string {
	switch {
	case v.ABI != nil && v.TcPO2 != nil:
		return fmt.Sprintf("ABI %.2f, TcPO2 %.0f mmHg (need ABI >= %.2f or TcPO2 >= %.0f)", *v.ABI, *v.TcPO2, MinABI, MinTcPO2)
	case v.ABI != nil:
		return fmt.Sprintf("ABI %.2f (need >= %.2f)", *v.ABI, MinABI)
	default:
		return fmt.Sprintf("TcPO2 %.0f mmHg (need >= %.0f)", *v.TcPO2, MinTcPO2)
	}
}
