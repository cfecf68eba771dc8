package measurement

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AnatomicalSite keys the tissue-thickness reference table.
type AnatomicalSite string

const (
	SiteFoot    AnatomicalSite = "foot"
	SiteHeel    AnatomicalSite = "heel"
	SiteToe     AnatomicalSite = "toe"
	SiteLeg     AnatomicalSite = "leg"
	SiteAnkle   AnatomicalSite = "ankle"
	SiteDefault AnatomicalSite = "default"
)

// TissueThickness is the soft-tissue depth reference for a site, in mm.
type TissueThickness struct {
	MinMM     float64 `json:"min_mm"`
	MaxMM     float64 `json:"max_mm"`
	TypicalMM float64 `json:"typical_mm"`
}

var tissueThickness = map[AnatomicalSite]TissueThickness{
	SiteFoot:    {MinMM: 10, MaxMM: 30, TypicalMM: 20},
	SiteHeel:    {MinMM: 15, MaxMM: 35, TypicalMM: 25},
	SiteToe:     {MinMM: 4, MaxMM: 12, TypicalMM: 8},
	SiteLeg:     {MinMM: 8, MaxMM: 25, TypicalMM: 15},
	SiteAnkle:   {MinMM: 5, MaxMM: 18, TypicalMM: 10},
	SiteDefault: {MinMM: 5, MaxMM: 30, TypicalMM: 15},
}

// Thickness returns the reference for a site, falling back to the default row.
func (s AnatomicalSite) Thickness() TissueThickness {
	if t, ok := tissueThickness[s]; ok {
		return t
	}
	return tissueThickness[SiteDefault]
}

// ParseSite resolves a free-text wound location. More specific sites are
// matched before the enclosing region ("left heel" is heel, not foot).
func ParseSite(location string) AnatomicalSite {
	l := strings.ToLower(location)
	switch {
	case strings.Contains(l, "heel"), strings.Contains(l, "calcane"):
		return SiteHeel
	case strings.Contains(l, "toe"), strings.Contains(l, "hallux"), strings.Contains(l, "digit"):
		return SiteToe
	case strings.Contains(l, "ankle"), strings.Contains(l, "malleol"):
		return SiteAnkle
	case strings.Contains(l, "foot"), strings.Contains(l, "plantar"), strings.Contains(l, "metatarsal"):
		return SiteFoot
	case strings.Contains(l, "leg"), strings.Contains(l, "calf"), strings.Contains(l, "shin"), strings.Contains(l, "tibia"):
		return SiteLeg
	default:
		return SiteDefault
	}
}

// WoundCategory is the closed set of wound etiologies the pipeline understands.
type WoundCategory uint8

const (
	CategoryDFU WoundCategory = iota
	CategoryVLU
	CategoryTraumatic
	CategorySurgical
	CategoryPressure
	CategoryArterial

	categoryCount
)

// CategoryProfile holds the per-etiology rules used by coverage and alerting.
type CategoryProfile struct {
	Code                 string
	Display              string
	ICD10Family          string
	RequiresOffloading   bool
	RequiresCompression  bool
	RequiresVascularTest bool
	AlertTightening      float64
}

// categoryProfiles is indexed by WoundCategory; its length is fixed by
// categoryCount so a new variant cannot be added without a row.
var categoryProfiles = [categoryCount]CategoryProfile{
	CategoryDFU: {
		Code: "DFU", Display: "Diabetic foot ulcer", ICD10Family: "E11.621",
		RequiresOffloading: true, RequiresVascularTest: true, AlertTightening: 0.10,
	},
	CategoryVLU: {
		Code: "VLU", Display: "Venous leg ulcer", ICD10Family: "I83.0",
		RequiresCompression: true, RequiresVascularTest: true,
	},
	CategoryTraumatic: {
		Code: "TRAUMATIC", Display: "Traumatic wound", ICD10Family: "S81.8",
	},
	CategorySurgical: {
		Code: "SURGICAL", Display: "Surgical wound dehiscence", ICD10Family: "T81.3",
	},
	CategoryPressure: {
		Code: "PRESSURE", Display: "Pressure injury", ICD10Family: "L89",
	},
	CategoryArterial: {
		Code: "ARTERIAL", Display: "Arterial ulcer", ICD10Family: "I70.2",
		RequiresVascularTest: true,
	},
}

// Profile returns the rule row for the category.
func (c WoundCategory) Profile() CategoryProfile {
	if c >= categoryCount {
		return CategoryProfile{Code: "UNKNOWN"}
	}
	return categoryProfiles[c]
}

func (c WoundCategory) String() string { return c.Profile().Code }

// Valid reports whether c is one of the declared variants.
func (c WoundCategory) Valid() bool { return c < categoryCount }

// Categories lists every declared variant.
func Categories() []WoundCategory {
	out := make([]WoundCategory, 0, categoryCount)
	for c := WoundCategory(0); c < categoryCount; c++ {
		out = append(out, c)
	}
	return out
}

// ParseWoundCategory resolves a wound-type string. Codes are matched exactly,
// then free text is matched by keyword.
func ParseWoundCategory(s string) (WoundCategory, error) {
	l := strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories() {
		if strings.EqualFold(l, c.Profile().Code) {
			return c, nil
		}
	}
	switch {
	case strings.Contains(l, "diabet"), strings.Contains(l, "neuropathic"):
		return CategoryDFU, nil
	case strings.Contains(l, "venous"), strings.Contains(l, "stasis"):
		return CategoryVLU, nil
	case strings.Contains(l, "pressure"), strings.Contains(l, "decubitus"):
		return CategoryPressure, nil
	case strings.Contains(l, "arterial"), strings.Contains(l, "ischemic"):
		return CategoryArterial, nil
	case strings.Contains(l, "surgical"), strings.Contains(l, "dehisc"), strings.Contains(l, "incision"):
		return CategorySurgical, nil
	case strings.Contains(l, "trauma"), strings.Contains(l, "laceration"), strings.Contains(l, "abrasion"):
		return CategoryTraumatic, nil
	}
	return 0, fmt.Errorf("unrecognized wound type %q", s)
}

func (c WoundCategory) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *WoundCategory) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseWoundCategory(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
