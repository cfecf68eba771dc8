package episode

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/woundcare/internal/domain/alerting"
	"github.com/ehr/woundcare/internal/domain/coverage"
	"github.com/ehr/woundcare/internal/domain/measurement"
	"github.com/ehr/woundcare/internal/domain/progression"
	"github.com/ehr/woundcare/internal/domain/review"
	"github.com/ehr/woundcare/internal/platform/audit"
	"github.com/ehr/woundcare/internal/platform/hipaa"
)

// ErrInvalidRequest marks a request the pipeline cannot evaluate at all, such
// as an unknown wound type. Bad measurements are not request errors; they are
// dropped with audit entries.
var ErrInvalidRequest = errors.New("invalid evaluation request")

// Episode is the storage collaborator's episode record.
type Episode struct {
	ID               string     `json:"id"`
	WoundType        string     `json:"wound_type"`
	WoundLocation    string     `json:"wound_location"`
	PrimaryDiagnosis string     `json:"primary_diagnosis,omitempty"`
	EpisodeStartDate time.Time  `json:"episode_start_date"`
	ProductStartDate *time.Time `json:"product_start_date,omitempty"`

	// PatientIdentifiers are names or record numbers known to the caller.
	// They are redacted from every audit detail and never echoed back.
	PatientIdentifiers []string `json:"patient_identifiers,omitempty"`
}

type WoundDetails struct {
	Measurements []measurement.Measurement `json:"measurements"`
}

type ConservativeCare struct {
	Offloading    bool `json:"offloading"`
	Compression   bool `json:"compression"`
	Debridement   bool `json:"debridement"`
	MoistDressing bool `json:"moist_dressing"`
}

type DiabeticStatus struct {
	Diabetic bool     `json:"diabetic"`
	HbA1c    *float64 `json:"hba1c,omitempty"`
}

// Encounter is one documented visit. Measurements without a timestamp take
// the encounter date.
type Encounter struct {
	Date               time.Time                    `json:"date"`
	WoundDetails       WoundDetails                 `json:"wound_details"`
	ConservativeCare   *ConservativeCare            `json:"conservative_care,omitempty"`
	VascularAssessment *coverage.VascularAssessment `json:"vascular_assessment,omitempty"`
	DiabeticStatus     *DiabeticStatus              `json:"diabetic_status,omitempty"`
	ProcedureCodes     []string                     `json:"procedure_codes,omitempty"`
	Notes              string                       `json:"notes,omitempty"`
}

// Request is one episode evaluation.
type Request struct {
	Episode     Episode                `json:"episode"`
	Encounters  []Encounter            `json:"encounters"`
	Context     ClinicalContextProfile `json:"context"`
	ProviderID  string                 `json:"provider_id"`
	EvaluatedAt *time.Time             `json:"evaluated_at,omitempty"`
	AssignTo    string                 `json:"assign_to,omitempty"`
}

// IssuedAlert is an alert that passed fatigue checks, with the review that
// now tracks it.
type IssuedAlert struct {
	Alert        alerting.Alert           `json:"alert"`
	Fatigue      alerting.FatigueDecision `json:"fatigue"`
	ReviewID     *uuid.UUID               `json:"review_id,omitempty"`
	ReviewStatus review.Status            `json:"review_status,omitempty"`
}

type SuppressedAlert struct {
	Alert   alerting.Alert           `json:"alert"`
	Fatigue alerting.FatigueDecision `json:"fatigue"`
}

// Result is everything one evaluation produced. All audit text in it has
// been sanitized.
type Result struct {
	EpisodeID        string                     `json:"episode_id"`
	EvaluatedAt      time.Time                  `json:"evaluated_at"`
	Category         measurement.WoundCategory  `json:"wound_category"`
	MeasurementCount int                        `json:"measurement_count"`
	Coverage         coverage.EligibilityResult `json:"coverage"`
	Progression      progression.Metrics        `json:"progression"`
	Override         alerting.OverrideDecision  `json:"override"`
	ProposedTier     alerting.Tier              `json:"proposed_tier,omitempty"`
	CrossValidation  alerting.CrossValidation   `json:"cross_validation"`
	Alerts           []IssuedAlert              `json:"alerts"`
	Suppressed       []SuppressedAlert          `json:"suppressed,omitempty"`
	Blocked          []alerting.BlockedProposal `json:"blocked,omitempty"`
	AuditTrail       audit.Trail                `json:"audit_trail"`
}

// measurements flattens every encounter's measurements, defaulting missing
// timestamps to the encounter date.
func (r Request) measurements() []measurement.Measurement {
	var out []measurement.Measurement
	for _, enc := range r.Encounters {
		for _, m := range enc.WoundDetails.Measurements {
			if m.Timestamp.IsZero() {
				m.Timestamp = enc.Date
			}
			out = append(out, m)
		}
	}
	return out
}

// identifiers returns the values of every identifier-kind PHI field of the
// request, for verbatim redaction.
func (r Request) identifiers() []string {
	paths := hipaa.PHIFieldPaths()
	var out []string
	add := func(path string, vals ...string) {
		if paths[path] != hipaa.KindIdentifier {
			return
		}
		for _, v := range vals {
			if v != "" {
				out = append(out, v)
			}
		}
	}
	add("Episode.id", r.Episode.ID)
	add("Episode.patient_identifiers", r.Episode.PatientIdentifiers...)
	for _, e := range r.Encounters {
		for _, m := range e.WoundDetails.Measurements {
			add("Measurement.recorded_by", m.RecordedBy)
		}
	}
	return out
}

// sortedEncounters returns the encounters oldest first.
func (r Request) sortedEncounters() []Encounter {
	out := append([]Encounter(nil), r.Encounters...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// careRecords returns the documented standard of care per encounter.
func careRecords(encounters []Encounter) []coverage.CareRecord {
	var out []coverage.CareRecord
	for _, enc := range encounters {
		if enc.ConservativeCare == nil {
			continue
		}
		cc := enc.ConservativeCare
		out = append(out, coverage.CareRecord{
			Date:          enc.Date,
			Offloading:    cc.Offloading,
			Compression:   cc.Compression,
			Debridement:   cc.Debridement,
			MoistDressing: cc.MoistDressing,
		})
	}
	return out
}

// latestVascular returns the most recent vascular assessment.
func latestVascular(encounters []Encounter) *coverage.VascularAssessment {
	var out *coverage.VascularAssessment
	for _, enc := range encounters {
		if enc.VascularAssessment != nil {
			out = enc.VascularAssessment
		}
	}
	return out
}

// diabeticStatus reports diabetes if any encounter documents it, with the
// most recent HbA1c.
func diabeticStatus(encounters []Encounter) (bool, *float64) {
	var diabetic bool
	var hba1c *float64
	for _, enc := range encounters {
		if enc.DiabeticStatus == nil {
			continue
		}
		diabetic = diabetic || enc.DiabeticStatus.Diabetic
		if enc.DiabeticStatus.HbA1c != nil {
			hba1c = enc.DiabeticStatus.HbA1c
		}
	}
	return diabetic, hba1c
}

func (r Request) validate() (measurement.WoundCategory, error) {
	if strings.TrimSpace(r.Episode.ID) == "" {
		return 0, fmt.Errorf("%w: episode id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.ProviderID) == "" {
		return 0, fmt.Errorf("%w: provider_id is required", ErrInvalidRequest)
	}
	if r.Episode.EpisodeStartDate.IsZero() {
		return 0, fmt.Errorf("%w: episode_start_date is required", ErrInvalidRequest)
	}
	cat, err := measurement.ParseWoundCategory(r.Episode.WoundType)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := r.Context.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return cat, nil
}
