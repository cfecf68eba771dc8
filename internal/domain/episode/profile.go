package episode

import (
	"fmt"
	"strings"

	"github.com/ehr/woundcare/internal/domain/alerting"
	"github.com/ehr/woundcare/internal/domain/measurement"
)

const (
	maxAge         = 120
	maxPainScore   = 10
	maxWagnerGrade = 5
)

var validTreatmentResponses = map[alerting.TreatmentResponse]bool{
	alerting.ResponseUnknown: true,
	alerting.ResponseGood:    true,
	alerting.ResponseFair:    true,
	alerting.ResponsePoor:    true,
}

// ClinicalContextProfile is the patient context the alerting and coverage
// rules read. It is validated once when a request arrives.
type ClinicalContextProfile struct {
	Age                 int                        `json:"age"`
	Diabetic            bool                       `json:"diabetic"`
	Comorbidities       []string                   `json:"comorbidities,omitempty"`
	TreatmentResponse   alerting.TreatmentResponse `json:"treatment_response,omitempty"`
	PainScore           *int                       `json:"pain_score,omitempty"`
	InfectionIndicators []string                   `json:"infection_indicators,omitempty"`
	SystemicSigns       []string                   `json:"systemic_signs,omitempty"`
	WagnerGrade         *int                       `json:"wagner_grade,omitempty"`
	ActiveInfection     bool                       `json:"active_infection"`
	Osteomyelitis       bool                       `json:"osteomyelitis"`
}

func (p ClinicalContextProfile) Validate() error {
	if p.Age < 0 || p.Age > maxAge {
		return fmt.Errorf("age %d out of range 0-%d", p.Age, maxAge)
	}
	if p.PainScore != nil && (*p.PainScore < 0 || *p.PainScore > maxPainScore) {
		return fmt.Errorf("pain_score %d out of range 0-%d", *p.PainScore, maxPainScore)
	}
	if p.WagnerGrade != nil && (*p.WagnerGrade < 0 || *p.WagnerGrade > maxWagnerGrade) {
		return fmt.Errorf("wagner_grade %d out of range 0-%d", *p.WagnerGrade, maxWagnerGrade)
	}
	if !validTreatmentResponses[alerting.TreatmentResponse(strings.ToLower(string(p.TreatmentResponse)))] {
		return fmt.Errorf("invalid treatment_response %q", p.TreatmentResponse)
	}
	for _, list := range [][]string{p.Comorbidities, p.InfectionIndicators, p.SystemicSigns} {
		for _, v := range list {
			if strings.TrimSpace(v) == "" {
				return fmt.Errorf("empty entry in clinical context list")
			}
		}
	}
	return nil
}

// alertContext builds the engine context. Diabetes documented on any
// encounter counts even when the profile omits it.
func (p ClinicalContextProfile) alertContext(cat measurement.WoundCategory, encounterDiabetic bool) alerting.Context {
	return alerting.Context{
		Diabetic:            p.Diabetic || encounterDiabetic,
		Age:                 p.Age,
		ComorbidityCount:    len(p.Comorbidities),
		Category:            cat,
		TreatmentResponse:   alerting.TreatmentResponse(strings.ToLower(string(p.TreatmentResponse))),
		PainScore:           p.PainScore,
		InfectionIndicators: normalizeTerms(p.InfectionIndicators),
		SystemicSigns:       normalizeTerms(p.SystemicSigns),
	}
}

// normalizeTerms lowercases and snake-cases free-form finding names.
func normalizeTerms(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.ToLower(strings.TrimSpace(v))
		v = strings.NewReplacer(" ", "_", "-", "_").Replace(v)
		out = append(out, v)
	}
	return out
}
