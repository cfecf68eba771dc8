package episode

import (
	"testing"
	"time"

	"github.com/ehr/woundcare/internal/domain/alerting"
	"github.com/ehr/woundcare/internal/domain/coverage"
	"github.com/ehr/woundcare/internal/domain/measurement"
)

func intPtr(v int) *int { return &v }

func TestClinicalContextProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		profile ClinicalContextProfile
		wantErr bool
	}{
		{"empty", ClinicalContextProfile{}, false},
		{"full", ClinicalContextProfile{Age: 72, Diabetic: true, PainScore: intPtr(6), WagnerGrade: intPtr(2), TreatmentResponse: "Poor"}, false},
		{"negative age", ClinicalContextProfile{Age: -1}, true},
		{"age too high", ClinicalContextProfile{Age: 131}, true},
		{"pain above 10", ClinicalContextProfile{PainScore: intPtr(11)}, true},
		{"wagner above 5", ClinicalContextProfile{WagnerGrade: intPtr(6)}, true},
		{"unknown response", ClinicalContextProfile{TreatmentResponse: "excellent"}, true},
		{"blank comorbidity", ClinicalContextProfile{Comorbidities: []string{"ckd", " "}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAlertContext(t *testing.T) {
	p := ClinicalContextProfile{
		Age:                 70,
		Comorbidities:       []string{"ckd", "chf", "copd"},
		TreatmentResponse:   "Good",
		InfectionIndicators: []string{"Purulent Drainage", "spreading-erythema"},
	}
	ctx := p.alertContext(measurement.CategoryVLU, true)

	if !ctx.Diabetic {
		t.Error("encounter diabetes should set Diabetic")
	}
	if ctx.ComorbidityCount != 3 {
		t.Errorf("ComorbidityCount = %d, want 3", ctx.ComorbidityCount)
	}
	if ctx.TreatmentResponse != alerting.ResponseGood {
		t.Errorf("TreatmentResponse = %q, want good", ctx.TreatmentResponse)
	}
	if ctx.Category != measurement.CategoryVLU {
		t.Errorf("Category = %v, want VLU", ctx.Category)
	}
	want := []string{"purulent_drainage", "spreading_erythema"}
	for i, v := range want {
		if ctx.InfectionIndicators[i] != v {
			t.Errorf("InfectionIndicators[%d] = %q, want %q", i, ctx.InfectionIndicators[i], v)
		}
	}
}

func TestRequestHelpers(t *testing.T) {
	d1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 14)
	explicit := d2.Add(-time.Hour)
	abi := 0.9

	req := Request{Encounters: []Encounter{
		{
			Date:               d2,
			WoundDetails:       WoundDetails{Measurements: []measurement.Measurement{{Length: 2, Width: 1, Unit: "cm", Timestamp: explicit}}},
			VascularAssessment: &coverage.VascularAssessment{ABI: &abi},
			DiabeticStatus:     &DiabeticStatus{Diabetic: false, HbA1c: ptr(7.9)},
		},
		{
			Date:             d1,
			WoundDetails:     WoundDetails{Measurements: []measurement.Measurement{{Length: 3, Width: 2, Unit: "cm"}}},
			ConservativeCare: &ConservativeCare{Offloading: true},
			DiabeticStatus:   &DiabeticStatus{Diabetic: true, HbA1c: ptr(8.4)},
		},
	}}

	ms := req.measurements()
	if len(ms) != 2 {
		t.Fatalf("expected 2 measurements, got %d", len(ms))
	}
	if !ms[0].Timestamp.Equal(explicit) {
		t.Errorf("explicit timestamp overwritten: %v", ms[0].Timestamp)
	}
	if !ms[1].Timestamp.Equal(d1) {
		t.Errorf("missing timestamp should default to encounter date, got %v", ms[1].Timestamp)
	}

	sorted := req.sortedEncounters()
	if !sorted[0].Date.Equal(d1) {
		t.Error("encounters not sorted oldest first")
	}
	diabetic, hba1c := diabeticStatus(sorted)
	if !diabetic {
		t.Error("diabetes documented on any encounter should count")
	}
	if hba1c == nil || *hba1c != 7.9 {
		t.Errorf("HbA1c = %v, want latest 7.9", hba1c)
	}
	if v := latestVascular(sorted); v == nil || *v.ABI != 0.9 {
		t.Errorf("latestVascular = %+v", v)
	}
	care := careRecords(sorted)
	if len(care) != 1 || !care[0].Offloading || !care[0].Date.Equal(d1) {
		t.Errorf("careRecords = %+v", care)
	}
}

func TestRequestIdentifiers(t *testing.T) {
	req := Request{
		Episode: Episode{ID: "ep-77", PatientIdentifiers: []string{"Lopez", "MRN-4411"}},
		Encounters: []Encounter{{
			WoundDetails: WoundDetails{Measurements: []measurement.Measurement{{RecordedBy: "rn-ortiz"}, {}}},
			Notes:        "seen by Dr Smith",
		}},
	}
	got := req.identifiers()
	want := []string{"ep-77", "Lopez", "MRN-4411", "rn-ortiz"}
	if len(got) != len(want) {
		t.Fatalf("identifiers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("identifiers()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
