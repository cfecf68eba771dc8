// Package review implements the clinical review workflow every issued alert
// goes through: a small state machine with an append-only transition log and
// compliance flags for response timeliness, documentation and oversight.
package review

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/woundcare/internal/domain/alerting"
	"github.com/ehr/woundcare/internal/platform/audit"
	"github.com/ehr/woundcare/internal/platform/hipaa"
)

var (
	// ErrNotFound is returned when no review matches the lookup.
	ErrNotFound = errors.New("review not found")
	// ErrInvalidTransition is returned for a move the state machine forbids.
	ErrInvalidTransition = errors.New("invalid review transition")
)

// notes are clinician free text and leave the service in API responses.
var notes = hipaa.NewSanitizer()

// Status is a review state.
type Status string

const (
	StatusPending        Status = "pending_review"
	StatusUnderReview    Status = "under_review"
	StatusAcknowledged   Status = "acknowledged"
	StatusActionTaken    Status = "action_taken"
	StatusNoActionNeeded Status = "no_action_needed"
	StatusEscalated      Status = "escalated"
	StatusDismissed      Status = "dismissed"
)

// allowedTransitions lists, per state, the states it may move to.
var allowedTransitions = map[Status][]Status{
	StatusPending:        {StatusUnderReview, StatusEscalated, StatusDismissed},
	StatusUnderReview:    {StatusAcknowledged, StatusEscalated, StatusDismissed},
	StatusAcknowledged:   {StatusActionTaken, StatusNoActionNeeded, StatusEscalated, StatusDismissed},
	StatusActionTaken:    {StatusEscalated},
	StatusNoActionNeeded: {StatusEscalated},
	StatusEscalated:      {StatusUnderReview, StatusDismissed},
	StatusDismissed:      {},
}

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := allowedTransitions[st]; !ok {
		return "", fmt.Errorf("invalid review status %q", s)
	}
	return st, nil
}

// Terminal reports whether the status closes the review. A closed review no
// longer counts as an unresolved alert.
func (s Status) Terminal() bool {
	return s == StatusActionTaken || s == StatusNoActionNeeded || s == StatusDismissed
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition is one entry of the review's history.
type Transition struct {
	From  Status    `json:"from,omitempty"`
	To    Status    `json:"to"`
	Actor string    `json:"actor"`
	Note  string    `json:"note,omitempty"`
	At    time.Time `json:"at"`
}

// Compliance holds the review's regulatory timeliness flags.
type Compliance struct {
	TimelineMet           bool `json:"timeline_met"`
	DocumentationComplete bool `json:"documentation_complete"`
	AppropriateOversight  bool `json:"appropriate_oversight"`
}

// Review tracks the clinical handling of one alert.
type Review struct {
	ID             uuid.UUID     `db:"id" json:"id"`
	AlertID        uuid.UUID     `db:"alert_id" json:"alert_id"`
	EpisodeID      string        `db:"episode_id" json:"episode_id"`
	ProviderID     string        `db:"provider_id" json:"provider_id,omitempty"`
	AlertType      alerting.Type `db:"alert_type" json:"alert_type"`
	Tier           alerting.Tier `db:"tier" json:"urgency_tier"`
	Status         Status        `db:"status" json:"status"`
	AssignedTo     string        `db:"assigned_to" json:"assigned_to,omitempty"`
	Rationale      string        `db:"rationale" json:"rationale,omitempty"`
	RespondBy      time.Time     `db:"respond_by" json:"respond_by"`
	AcknowledgedAt *time.Time    `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	WasEscalated   bool          `db:"was_escalated" json:"was_escalated"`
	Compliance     Compliance    `json:"compliance"`
	History        []Transition  `json:"history"`
	AuditTrail     audit.Trail   `json:"audit_trail"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// New opens a review for an alert. A review with an assignee starts under
// review. Critical and emergency alerts are escalated at the creation instant.
func New(a alerting.Alert, assignee string, at time.Time) *Review {
	r := &Review{
		ID:         uuid.New(),
		AlertID:    a.ID,
		EpisodeID:  a.EpisodeID,
		ProviderID: a.ProviderID,
		AlertType:  a.Type,
		Tier:       a.Tier,
		Status:     StatusPending,
		AssignedTo: assignee,
		RespondBy:  a.RespondBy,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	if r.RespondBy.IsZero() {
		r.RespondBy = at.Add(a.Tier.ResponseWindow())
	}
	if assignee != "" {
		r.Status = StatusUnderReview
	}
	r.History = append(r.History, Transition{To: r.Status, Actor: "system", At: at})
	r.AuditTrail.Info("review_opened", "review opened as %s for %s alert", r.Status, r.Tier)

	if r.Tier.BypassesFatigue() {
		r.record(StatusEscalated, "system", fmt.Sprintf("auto-escalated: %s alert", r.Tier), at)
		r.AuditTrail.Info("review_auto_escalated", "%s alert escalated at creation", r.Tier)
	}
	r.refreshCompliance(at)
	return r
}

// Apply moves the review to a new state. Forbidden moves return
// ErrInvalidTransition and leave the review untouched.
func (r *Review) Apply(to Status, actor, note string, at time.Time) error {
	if actor == "" {
		return fmt.Errorf("actor is required")
	}
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.record(to, actor, note, at)
	r.refreshCompliance(at)
	return nil
}

// Close moves the review to a terminal state and records the rationale that
// documents the decision.
func (r *Review) Close(to Status, actor, rationale string, at time.Time) error {
	if !to.Terminal() {
		return fmt.Errorf("%w: %s does not close a review", ErrInvalidTransition, to)
	}
	prev := r.Rationale
	r.Rationale = notes.Sanitize(rationale)
	if err := r.Apply(to, actor, rationale, at); err != nil {
		r.Rationale = prev
		return err
	}
	return nil
}

func (r *Review) record(to Status, actor, note string, at time.Time) {
	r.History = append(r.History, Transition{From: r.Status, To: to, Actor: actor, Note: notes.Sanitize(note), At: at})
	r.AuditTrail.Info("review_"+string(to), "%s -> %s by %s", r.Status, to, actor)
	if to == StatusEscalated {
		r.WasEscalated = true
	}
	if to == StatusAcknowledged && r.AcknowledgedAt == nil {
		t := at
		r.AcknowledgedAt = &t
	}
	r.Status = to
	r.UpdatedAt = at
}

// refreshCompliance recomputes the flags as of at. The timeline is met when
// the alert was acknowledged, or is still open, within its response window.
func (r *Review) refreshCompliance(at time.Time) {
	responded := at
	if r.AcknowledgedAt != nil {
		responded = *r.AcknowledgedAt
	}
	r.Compliance.TimelineMet = !responded.After(r.RespondBy)

	switch r.Status {
	case StatusActionTaken, StatusNoActionNeeded, StatusDismissed:
		r.Compliance.DocumentationComplete = r.Rationale != ""
	default:
		r.Compliance.DocumentationComplete = false
	}

	r.Compliance.AppropriateOversight = r.AssignedTo != "" &&
		(!r.Tier.BypassesFatigue() || r.WasEscalated)
}
