package hipaa

// FieldKind says how a PHI field is screened.
type FieldKind string

const (
	// KindIdentifier values are redacted verbatim wherever they appear.
	KindIdentifier FieldKind = "identifier"
	// KindFreeText values are screened by the identifier patterns only.
	KindFreeText FieldKind = "free_text"
)

// PHIFieldConfig maps an input record type to the fields that may carry
// Protected Health Information per the HIPAA Safe Harbor de-identification
// standard (45 CFR 164.514(b)(2)).
type PHIFieldConfig struct {
	// Record is the input record name (e.g. "Encounter").
	Record string
	Kind   FieldKind
	// Fields lists the JSON field names within the record that may contain PHI.
	Fields []string
}

// DefaultPHIFields returns the fields of the evaluation inputs that can hold
// direct identifiers. Free-text fields are listed because clinicians paste
// names, phone numbers and record numbers into them.
func DefaultPHIFields() []PHIFieldConfig {
	return []PHIFieldConfig{
		{
			Record: "Episode",
			Kind:   KindIdentifier,
			Fields: []string{
				"id",                  // may embed the MRN
				"patient_identifiers", // names and MRNs supplied by the caller
			},
		},
		{
			Record: "Episode",
			Kind:   KindFreeText,
			Fields: []string{"primary_diagnosis"},
		},
		{
			Record: "Encounter",
			Kind:   KindFreeText,
			Fields: []string{"notes"},
		},
		{
			Record: "Measurement",
			Kind:   KindIdentifier,
			Fields: []string{
				"recorded_by", // clinician name
			},
		},
	}
}

// PHIFieldPaths returns a flat "<Record>.<field>" to kind map for fast
// look-up. Example key: "Encounter.notes".
func PHIFieldPaths() map[string]FieldKind {
	configs := DefaultPHIFields()
	paths := make(map[string]FieldKind, 8)
	for _, c := range configs {
		for _, f := range c.Fields {
			paths[c.Record+"."+f] = c.Kind
		}
	}
	return paths
}
