package review

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/woundcare/internal/domain/alerting"
	"github.com/ehr/woundcare/internal/platform/metrics"
)

// Resolver releases an alert from fatigue accounting once its review closes.
// *alerting.Tracker satisfies it.
type Resolver interface {
	Resolve(providerID string, alertID uuid.UUID) bool
}

type Service struct {
	repo     Repository
	resolver Resolver
	log      zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(repo Repository, resolver Resolver, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		resolver: resolver,
		log:      log.With().Str("component", "review").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Open persists an issued alert and its fatigue admission, then opens the
// review that tracks it.
func (s *Service) Open(ctx context.Context, a alerting.Alert, admission alerting.HistoryRecord, assignee string) (*Review, error) {
	if a.ID == uuid.Nil {
		return nil, fmt.Errorf("alert id is required")
	}
	if !a.Tier.Valid() {
		return nil, fmt.Errorf("invalid alert tier %q", a.Tier)
	}
	if err := s.repo.SaveAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("save alert: %w", err)
	}
	if err := s.repo.RecordAdmission(ctx, admission); err != nil {
		return nil, fmt.Errorf("record fatigue admission: %w", err)
	}

	r := New(a, assignee, s.now())
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}
	for _, tr := range r.History[1:] {
		s.metrics.ReviewTransition(string(tr.From), string(tr.To))
	}
	ev := s.log.Info()
	if r.Status == StatusEscalated {
		ev = s.log.Warn()
	}
	ev.Str("review_id", r.ID.String()).
		Str("alert_id", a.ID.String()).
		Str("tier", string(a.Tier)).
		Str("status", string(r.Status)).
		Msg("review opened")
	return r, nil
}

// SetMetrics attaches optional transition counters to the service.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Review, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, status Status, limit, offset int) ([]*Review, int, error) {
	return s.repo.List(ctx, status, limit, offset)
}

// Assign hands the review to a clinician. A pending or escalated review
// moves under review.
func (s *Service) Assign(ctx context.Context, id uuid.UUID, clinician, actor string) (*Review, error) {
	if clinician == "" {
		return nil, fmt.Errorf("clinician is required")
	}
	return s.mutate(ctx, id, func(r *Review, now time.Time) error {
		if r.Status == StatusDismissed {
			return fmt.Errorf("%w: cannot assign a dismissed review", ErrInvalidTransition)
		}
		r.AssignedTo = clinician
		if r.Status == StatusPending || r.Status == StatusEscalated {
			return r.Apply(StatusUnderReview, actor, "assigned to "+clinician, now)
		}
		r.AuditTrail.Info("review_assigned", "assigned to %s by %s", clinician, actor)
		r.refreshCompliance(now)
		return nil
	})
}

func (s *Service) Start(ctx context.Context, id uuid.UUID, actor string) (*Review, error) {
	return s.mutate(ctx, id, func(r *Review, now time.Time) error {
		if r.AssignedTo == "" {
			r.AssignedTo = actor
		}
		return r.Apply(StatusUnderReview, actor, "", now)
	})
}

func (s *Service) Acknowledge(ctx context.Context, id uuid.UUID, actor, note string) (*Review, error) {
	return s.mutate(ctx, id, func(r *Review, now time.Time) error {
		return r.Apply(StatusAcknowledged, actor, note, now)
	})
}

// Decide records the clinical decision on an acknowledged review.
func (s *Service) Decide(ctx context.Context, id uuid.UUID, decision Status, actor, rationale string) (*Review, error) {
	if decision != StatusActionTaken && decision != StatusNoActionNeeded {
		return nil, fmt.Errorf("decision must be %s or %s", StatusActionTaken, StatusNoActionNeeded)
	}
	return s.mutate(ctx, id, func(r *Review, now time.Time) error {
		return r.Close(decision, actor, rationale, now)
	})
}

func (s *Service) Escalate(ctx context.Context, id uuid.UUID, actor, reason string) (*Review, error) {
	return s.mutate(ctx, id, func(r *Review, now time.Time) error {
		return r.Apply(StatusEscalated, actor, reason, now)
	})
}

func (s *Service) Dismiss(ctx context.Context, id uuid.UUID, actor, reason string) (*Review, error) {
	return s.mutate(ctx, id, func(r *Review, now time.Time) error {
		return r.Close(StatusDismissed, actor, reason, now)
	})
}

func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(r *Review, now time.Time) error) (*Review, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := r.Status
	if err := fn(r, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("update review: %w", err)
	}

	if r.Status.Terminal() && !from.Terminal() {
		if s.resolver != nil {
			s.resolver.Resolve(r.ProviderID, r.AlertID)
		}
		if err := s.repo.MarkResolved(ctx, r.AlertID); err != nil {
			s.log.Error().Err(err).Str("alert_id", r.AlertID.String()).Msg("mark fatigue history resolved")
		}
	}

	if from != r.Status {
		s.metrics.ReviewTransition(string(from), string(r.Status))
	}
	s.log.Info().
		Str("review_id", r.ID.String()).
		Str("from", string(from)).
		Str("to", string(r.Status)).
		Bool("timeline_met", r.Compliance.TimelineMet).
		Msg("review transition")
	return r, nil
}
