package coverage

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ehr/woundcare/internal/domain/measurement"
	"github.com/ehr/woundcare/internal/platform/audit"
)

var day0 = time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)

func day(n int) time.Time { return day0.AddDate(0, 0, n) }

func ptr[T any](v T) *T { return &v }

// -- Phase-compliance engine --

func TestEvaluate_PreProductScenario(t *testing.T) {
	got, _ := Evaluate(Request{
		Phase:  PhasePreProduct,
		Points: []AreaPoint{{Timestamp: day(0), Area: 12.0}, {Timestamp: day(29), Area: 9.8}},
	})
	if !got.MeetsPhaseRequirement {
		t.Error("MeetsPhaseRequirement = false, want true")
	}
	if got.OverallCompliance != StatusCompliant {
		t.Errorf("OverallCompliance = %s, want compliant", got.OverallCompliance)
	}
	if got.CurrentReductionPct != 18.33 {
		t.Errorf("CurrentReductionPct = %v, want 18.33", got.CurrentReductionPct)
	}
	if got.DaysFromBaseline != 29 {
		t.Errorf("DaysFromBaseline = %v, want 29", got.DaysFromBaseline)
	}
	if len(got.PeriodWindows) != 1 || got.PeriodWindows[0].Match != MatchPreferred {
		t.Errorf("PeriodWindows = %+v, want one preferred window", got.PeriodWindows)
	}
}

func TestEvaluate_ThresholdBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		phase Phase
		area  float64
		want  Status
	}{
		{"pre 49% compliant", PhasePreProduct, 51, StatusCompliant},
		{"pre 50% non-compliant", PhasePreProduct, 50, StatusNonCompliant},
		{"post 20% compliant", PhasePostProduct, 80, StatusCompliant},
		{"post 19% non-compliant", PhasePostProduct, 81, StatusNonCompliant},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := Request{
				Phase:  tc.phase,
				Points: []AreaPoint{{Timestamp: day(0), Area: 100}, {Timestamp: day(28), Area: tc.area}},
			}
			if tc.phase == PhasePostProduct {
				req.ProductStart = ptr(day(0))
			}
			got, _ := Evaluate(req)
			if got.OverallCompliance != tc.want {
				t.Errorf("OverallCompliance = %s (reduction %v), want %s", got.OverallCompliance, got.CurrentReductionPct, tc.want)
			}
		})
	}
}

func TestEvaluate_PostProductBaselineNearestProductStart(t *testing.T) {
	got, _ := Evaluate(Request{
		Phase:        PhasePostProduct,
		ProductStart: ptr(day(10)),
		Points: []AreaPoint{
			{Timestamp: day(0), Area: 10.0},
			{Timestamp: day(9), Area: 9.5},
			{Timestamp: day(38), Area: 7.6},
		},
	})
	if got.Baseline == nil || !got.Baseline.AnchorTimestamp.Equal(day(9)) {
		t.Fatalf("Baseline = %+v, want anchor at day 9", got.Baseline)
	}
	if got.CurrentReductionPct != 20 {
		t.Errorf("CurrentReductionPct = %v, want 20", got.CurrentReductionPct)
	}
	if got.OverallCompliance != StatusCompliant {
		t.Errorf("OverallCompliance = %s, want compliant", got.OverallCompliance)
	}
}

func TestEvaluate_TieBreaks(t *testing.T) {
	// Baseline: day 8 and day 12 are both two days from the product start.
	post, _ := Evaluate(Request{
		Phase:        PhasePostProduct,
		ProductStart: ptr(day(10)),
		Points: []AreaPoint{
			{Timestamp: day(8), Area: 10.0},
			{Timestamp: day(12), Area: 9.0},
			{Timestamp: day(40), Area: 7.0},
		},
	})
	if post.Baseline == nil || !post.Baseline.AnchorTimestamp.Equal(day(8)) {
		t.Errorf("Baseline = %+v, want the earlier anchor at day 8", post.Baseline)
	}

	// Window: day 26 and day 30 are both two days from the day-28 target.
	pre, _ := Evaluate(Request{
		Phase: PhasePreProduct,
		Points: []AreaPoint{
			{Timestamp: day(0), Area: 100},
			{Timestamp: day(26), Area: 60},
			{Timestamp: day(30), Area: 70},
		},
	})
	if len(pre.PeriodWindows) == 0 || pre.PeriodWindows[0].Measurement == nil {
		t.Fatalf("PeriodWindows = %+v, want a matched first window", pre.PeriodWindows)
	}
	if got := pre.PeriodWindows[0].Measurement.Timestamp; !got.Equal(day(30)) {
		t.Errorf("window measurement at %v, want the later day 30", got)
	}
}

func TestEvaluate_PreProductIgnoresMeasurementsUnderProduct(t *testing.T) {
	got, _ := Evaluate(Request{
		Phase:        PhasePreProduct,
		ProductStart: ptr(day(30)),
		Points: []AreaPoint{
			{Timestamp: day(0), Area: 10},
			{Timestamp: day(28), Area: 8},
			{Timestamp: day(45), Area: 2},
		},
	})
	if got.CurrentReductionPct != 20 {
		t.Errorf("CurrentReductionPct = %v, want 20 (post-product measurement must not count)", got.CurrentReductionPct)
	}
}

func TestEvaluate_InsufficientElapsed(t *testing.T) {
	got, trail := Evaluate(Request{
		Phase:  PhasePreProduct,
		Points: []AreaPoint{{Timestamp: day(0), Area: 10}, {Timestamp: day(20), Area: 9}},
	})
	if got.OverallCompliance != StatusInsufficientData {
		t.Errorf("OverallCompliance = %s, want insufficient_data", got.OverallCompliance)
	}
	if got.CurrentReductionPct != 10 {
		t.Errorf("CurrentReductionPct = %v, want 10", got.CurrentReductionPct)
	}
	if !trail.Has("insufficient_elapsed_days") {
		t.Errorf("trail %v missing insufficient_elapsed_days", trail.Codes())
	}
}

func TestEvaluate_ExtendedWindowAndFallback(t *testing.T) {
	got, _ := Evaluate(Request{
		Phase:  PhasePreProduct,
		Points: []AreaPoint{{Timestamp: day(0), Area: 10}, {Timestamp: day(40), Area: 8}},
	})
	if got.PeriodWindows[0].Match != MatchExtended {
		t.Errorf("Match = %s, want extended", got.PeriodWindows[0].Match)
	}

	got, trail := Evaluate(Request{
		Phase:  PhasePreProduct,
		Points: []AreaPoint{{Timestamp: day(0), Area: 10}, {Timestamp: day(45), Area: 9}},
	})
	if got.PeriodWindows[0].Match != MatchNone {
		t.Errorf("Match = %s, want none", got.PeriodWindows[0].Match)
	}
	if !trail.Has("window_fallback_latest") || got.OverallCompliance != StatusCompliant {
		t.Errorf("fallback: status %s, trail %v", got.OverallCompliance, trail.Codes())
	}
}

func TestEvaluate_InputErrors(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		code string
	}{
		{"no points", Request{Phase: PhasePreProduct}, "no_measurements"},
		{"bad phase", Request{Phase: "mid"}, "invalid_phase"},
		{"post without product start", Request{Phase: PhasePostProduct, Points: []AreaPoint{{Timestamp: day(0), Area: 5}}}, "product_start_missing"},
		{"zero baseline", Request{Phase: PhasePreProduct, Points: []AreaPoint{{Timestamp: day(0), Area: 0}, {Timestamp: day(30), Area: 1}}}, "baseline_area_invalid"},
		{"negative area", Request{Phase: PhasePreProduct, Points: []AreaPoint{{Timestamp: day(0), Area: -1}}}, "measurement_invalid"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, trail := Evaluate(tc.req)
			if got.OverallCompliance != StatusInsufficientData {
				t.Errorf("OverallCompliance = %s, want insufficient_data", got.OverallCompliance)
			}
			if !trail.Has(tc.code) {
				t.Errorf("trail %v missing %s", trail.Codes(), tc.code)
			}
		})
	}
}

func TestEvaluate_DuplicateTimestampLastWins(t *testing.T) {
	got, trail := Evaluate(Request{
		Phase: PhasePreProduct,
		Points: []AreaPoint{
			{Timestamp: day(0), Area: 10},
			{Timestamp: day(28), Area: 4},
			{Timestamp: day(28), Area: 8},
		},
	})
	if got.CurrentReductionPct != 20 {
		t.Errorf("CurrentReductionPct = %v, want 20", got.CurrentReductionPct)
	}
	if !trail.Has("measurement_superseded") {
		t.Errorf("trail %v missing measurement_superseded", trail.Codes())
	}
}

// -- Phase separation --

func TestAreaPoints_DepthAndVolumeNeverAffectCompliance(t *testing.T) {
	base := []measurement.Measurement{
		{Length: 4, Width: 3, Area: ptr(12.0), Unit: "cm", Timestamp: day(0)},
		{Length: 3.8, Width: 3, Area: ptr(10.5), Unit: "cm", Timestamp: day(14)},
		{Length: 3.5, Width: 2.8, Area: ptr(9.8), Unit: "cm", Timestamp: day(29)},
	}
	withDepth := make([]measurement.Measurement, len(base))
	copy(withDepth, base)
	withDepth[0].Depth = ptr(3.0)
	withDepth[1].Depth = ptr(-2.0) // would invalidate the record if depth were read
	withDepth[1].DepthUnit = "furlongs"
	withDepth[2].Depth = ptr(80.0)
	withDepth[2].Volume = ptr(5.0)

	a, _ := AreaPoints(base, "foot")
	b, _ := AreaPoints(withDepth, "foot")
	ca, _ := Evaluate(Request{Phase: PhasePreProduct, Points: a})
	cb, _ := Evaluate(Request{Phase: PhasePreProduct, Points: b})
	if !reflect.DeepEqual(ca, cb) {
		t.Errorf("compliance differs with depth present:\n%+v\n%+v", ca, cb)
	}
}

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"phase":"pre-product","measurements":[
		{"timestamp":"2024-01-08T10:00:00Z","area":12.0},
		{"timestamp":"2024-02-06T10:00:00Z","area":9.8}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Phase != PhasePreProduct || len(req.Points) != 2 || req.Points[1].Area != 9.8 {
		t.Errorf("decoded %+v", req)
	}
}

func TestDecodeRequest_DepthIsInvariantViolation(t *testing.T) {
	for _, key := range []string{"depth", "depth_mm", "Volume"} {
		body := `{"phase":"pre_product","measurements":[{"timestamp":"2024-01-08T10:00:00Z","area":12.0,"` + key + `":4}]}`
		_, err := DecodeRequest([]byte(body))
		if !errors.Is(err, audit.ErrInvariantViolation) {
			t.Errorf("%s: err = %v, want invariant violation", key, err)
		}
	}

	_, err := DecodeRequest([]byte(`{"phase":"pre_product","measurements":[{"area":"x"}]}`))
	if err == nil || errors.Is(err, audit.ErrInvariantViolation) {
		t.Errorf("malformed area: err = %v, want plain input error", err)
	}
}

// -- ICD-10 --

func TestMapICD10(t *testing.T) {
	tests := []struct {
		in     string
		code   string
		source MappingSource
		review bool
	}{
		{"E11.621", "E11.621", SourceProvided, false},
		{" l97.512 ", "L97.512", SourceProvided, false},
		{"Diabetic foot ulcer, left heel", "E11.621", SourceKeywordFallback, true},
		{"chronic venous stasis ulcer", "I83.0-", SourceKeywordFallback, true},
		{"Stage 3 pressure injury sacrum", "L89.-", SourceKeywordFallback, true},
		{"non-healing wound", "", SourceUnmapped, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got := MapICD10(tc.in)
			if got.Code != tc.code || got.Source != tc.source || got.RequiresClinicalReview != tc.review {
				t.Errorf("MapICD10(%q) = %+v", tc.in, got)
			}
			if !got.Advisory {
				t.Error("mapping must always be advisory")
			}
		})
	}
}

// -- Eligibility --

func eligibleDFU() EligibilityInput {
	return EligibilityInput{
		Category:         measurement.CategoryDFU,
		PrimaryDiagnosis: "E11.621",
		EpisodeStart:     day(0),
		Points:           []AreaPoint{{Timestamp: day(0), Area: 12}, {Timestamp: day(35), Area: 10}},
		Care: []CareRecord{
			{Date: day(0), Offloading: true, Debridement: true},
			{Date: day(30), Offloading: true, MoistDressing: true},
		},
		Vascular:    &VascularAssessment{ABI: ptr(0.9)},
		Diabetic:    true,
		HbA1c:       ptr(8.1),
		WagnerGrade: ptr(2),
	}
}

func TestEvaluateEligibility_Eligible(t *testing.T) {
	res := EvaluateEligibility(eligibleDFU())
	if !res.OverallEligible {
		t.Fatalf("OverallEligible = false, reasons %v violations %v", res.FailureReasons, res.PolicyViolations)
	}
	if res.Phase != PhasePreProduct {
		t.Errorf("Phase = %s, want pre_product", res.Phase)
	}
	for _, c := range res.Criteria {
		if !c.Met {
			t.Errorf("criterion %s unmet: %s", c.Name, c.Reason)
		}
	}
}

func TestEvaluateEligibility_Failures(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*EligibilityInput)
		reason     string
		violations int
	}{
		{"wagner 3", func(in *EligibilityInput) { in.WagnerGrade = ptr(3) }, "", 1},
		{"osteomyelitis", func(in *EligibilityInput) { in.Osteomyelitis = true }, "", 1},
		{"no offloading", func(in *EligibilityInput) {
			in.Care = []CareRecord{{Date: day(0), Debridement: true}, {Date: day(30), MoistDressing: true}}
		}, "offloading not documented", 0},
		{"short care", func(in *EligibilityInput) { in.Care[0].Date = day(20) }, "days documented", 0},
		{"poor perfusion", func(in *EligibilityInput) { in.Vascular = &VascularAssessment{ABI: ptr(0.5), TcPO2: ptr(20.0)} }, "ABI 0.50", 0},
		{"missing vascular", func(in *EligibilityInput) { in.Vascular = nil }, "vascular assessment required", 0},
		{"hba1c", func(in *EligibilityInput) { in.HbA1c = ptr(12.0) }, "HbA1c 12.0%", 0},
		{"healing too well", func(in *EligibilityInput) { in.Points[1].Area = 5 }, "fails requirement", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := eligibleDFU()
			tc.mutate(&in)
			res := EvaluateEligibility(in)
			if res.OverallEligible {
				t.Fatal("OverallEligible = true, want false")
			}
			if len(res.PolicyViolations) != tc.violations {
				t.Errorf("PolicyViolations = %v, want %d", res.PolicyViolations, tc.violations)
			}
			if tc.reason != "" && !containsReason(res.FailureReasons, tc.reason) {
				t.Errorf("FailureReasons %v missing %q", res.FailureReasons, tc.reason)
			}
		})
	}
}

func TestEvaluateEligibility_VLURequiresCompression(t *testing.T) {
	in := eligibleDFU()
	in.Category = measurement.CategoryVLU
	in.WagnerGrade = nil
	res := EvaluateEligibility(in)
	if res.OverallEligible || !containsReason(res.FailureReasons, "compression therapy not documented") {
		t.Errorf("VLU without compression: eligible=%v reasons=%v", res.OverallEligible, res.FailureReasons)
	}
}

func TestEvaluateEligibility_PostProductPhase(t *testing.T) {
	in := eligibleDFU()
	in.ProductStart = ptr(day(35))
	in.Points = append(in.Points, AreaPoint{Timestamp: day(63), Area: 7.5})
	res := EvaluateEligibility(in)
	if res.Phase != PhasePostProduct {
		t.Fatalf("Phase = %s, want post_product", res.Phase)
	}
	if res.Compliance.CurrentReductionPct != 25 || !res.OverallEligible {
		t.Errorf("post-product: reduction %v eligible %v reasons %v", res.Compliance.CurrentReductionPct, res.OverallEligible, res.FailureReasons)
	}
}

func containsReason(reasons []string, substr string) bool {
	for _, r := range reasons {
		if strings.Contains(r, substr) {
			return true
		}
	}
	return false
}
