package coverage

import (
	"regexp"
	"strings"
)

// MappingSource records where an ICD-10 code came from.
type MappingSource string

const (
	SourceProvided        MappingSource = "provided"
	SourceKeywordFallback MappingSource = "keyword_fallback"
	SourceUnmapped        MappingSource = "unmapped"
)

// ICD10Mapping is an advisory diagnosis code. Only a code supplied by the
// caller is trusted; anything derived from free text must be confirmed by a
// clinician before it is used on a claim.
type ICD10Mapping struct {
	Input                  string        `json:"input"`
	Code                   string        `json:"code,omitempty"`
	Display                string        `json:"display,omitempty"`
	Source                 MappingSource `json:"source"`
	Advisory               bool          `json:"advisory"`
	RequiresClinicalReview bool          `json:"requires_clinical_review"`
	Confidence             float64       `json:"confidence"`
}

var icd10Code = regexp.MustCompile(`^[A-TV-Z][0-9][0-9A-Z](\.[0-9A-Z]{1,4})?-?$`)

type keywordRule struct {
	all        []string
	any        []string
	code       string
	display    string
	confidence float64
}

// keywordRules are tried in order; the first match wins.
var keywordRules = []keywordRule{
	{all: []string{"diabet"}, any: []string{"foot", "ulcer", "heel", "toe"}, code: "E11.621", display: "Type 2 diabetes mellitus with foot ulcer (pair with L97.5-)", confidence: 0.6},
	{any: []string{"venous", "stasis", "varicose"}, code: "I83.0-", display: "Varicose veins of lower extremity with ulcer", confidence: 0.5},
	{any: []string{"pressure", "decubitus", "bedsore"}, code: "L89.-", display: "Pressure ulcer", confidence: 0.5},
	{any: []string{"arterial", "ischemic", "ischaemic", "atherosclero"}, code: "I70.2-", display: "Atherosclerosis of native arteries of extremities", confidence: 0.5},
	{any: []string{"surgical", "dehiscence", "incision"}, code: "T81.3-", display: "Disruption of wound, not elsewhere classified", confidence: 0.5},
	{any: []string{"trauma", "laceration", "injury", "abrasion"}, code: "S81.8-", display: "Other open wound of lower leg", confidence: 0.4},
}

func (r keywordRule) matches(text string) bool {
	for _, k := range r.all {
		if !strings.Contains(text, k) {
			return false
		}
	}
	if len(r.any) == 0 {
		return true
	}
	for _, k := range r.any {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// MapICD10 returns the diagnosis code for an episode. A well-formed code is
// passed through. Free text is matched against keyword heuristics, which miss
// real diagnoses regularly, so every derived code is flagged for clinical
// review and a miss is reported as unmapped rather than guessed.
func MapICD10(diagnosis string) ICD10Mapping {
	m := ICD10Mapping{Input: diagnosis, Advisory: true}
	trimmed := strings.ToUpper(strings.TrimSpace(diagnosis))
	if icd10Code.MatchString(trimmed) {
		m.Code = trimmed
		m.Source = SourceProvided
		m.Confidence = 1.0
		return m
	}

	m.RequiresClinicalReview = true
	text := strings.ToLower(diagnosis)
	for _, r := range keywordRules {
		if r.matches(text) {
			m.Code = r.code
			m.Display = r.display
			m.Source = SourceKeywordFallback
			m.Confidence = r.confidence
			return m
		}
	}

	m.Source = SourceUnmapped
	return m
}
