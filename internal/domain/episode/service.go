package episode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/woundcare/internal/domain/alerting"
	"github.com/ehr/woundcare/internal/domain/coverage"
	"github.com/ehr/woundcare/internal/domain/measurement"
	"github.com/ehr/woundcare/internal/domain/progression"
	"github.com/ehr/woundcare/internal/domain/quality"
	"github.com/ehr/woundcare/internal/domain/review"
	"github.com/ehr/woundcare/internal/platform/audit"
	"github.com/ehr/woundcare/internal/platform/hipaa"
	"github.com/ehr/woundcare/internal/platform/metrics"
)

const defaultParallelism = 8

// ReviewOpener opens the clinical review for an issued alert.
// *review.Service satisfies it.
type ReviewOpener interface {
	Open(ctx context.Context, a alerting.Alert, admission alerting.HistoryRecord, assignee string) (*review.Review, error)
}

// Service runs the per-episode pipeline. The only state it shares across
// evaluations is the preventer's history tracker.
type Service struct {
	analyzer    *progression.Analyzer
	engine      *alerting.Engine
	preventer   *alerting.Preventer
	reviews     ReviewOpener
	log         zerolog.Logger
	metrics     *metrics.Metrics
	parallelism int
	now         func() time.Time
}

// NewService creates a pipeline. reviews may be nil, in which case issued
// alerts are returned without a review.
func NewService(preventer *alerting.Preventer, reviews ReviewOpener, log zerolog.Logger) *Service {
	return &Service{
		analyzer:    progression.NewAnalyzer(quality.NewScorer(quality.DefaultConfig())),
		engine:      alerting.NewEngine(),
		preventer:   preventer,
		reviews:     reviews,
		log:         log.With().Str("component", "episode").Logger(),
		parallelism: defaultParallelism,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetMetrics attaches optional pipeline counters.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetParallelism bounds how many episodes a batch evaluates at once.
func (s *Service) SetParallelism(n int) {
	if n > 0 {
		s.parallelism = n
	}
}

// Evaluate runs one episode through the pipeline. Only invariant violations
// and unusable requests are returned as errors; measurement problems and
// non-eligibility are reported in the result.
func (s *Service) Evaluate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := s.evaluate(ctx, req)

	outcome := "ok"
	switch {
	case errors.Is(err, audit.ErrInvariantViolation):
		outcome = "invariant_violation"
		s.log.Error().Err(err).Str("episode_id", req.Episode.ID).Msg("invariant violation during evaluation")
	case err != nil:
		outcome = "invalid_request"
	}
	s.metrics.ObserveEvaluation(outcome, time.Since(start))
	return res, err
}

func (s *Service) evaluate(ctx context.Context, req Request) (*Result, error) {
	cat, err := req.validate()
	if err != nil {
		return nil, err
	}
	at := s.now()
	if req.EvaluatedAt != nil {
		at = req.EvaluatedAt.UTC()
	}
	ep := req.Episode
	raw := req.measurements()
	encounters := req.sortedEncounters()
	encounterDiabetic, hba1c := diabeticStatus(encounters)
	san := hipaa.NewSanitizer(req.identifiers()...)

	var trail audit.Trail
	trail.Info("evaluation_started", "category %s, %d encounters, %d measurements", cat, len(encounters), len(raw))

	// -- Coverage: area-only projection, computed before any progression signal exists --
	points, areaTrail := coverage.AreaPoints(raw, ep.WoundLocation)
	elig := coverage.EvaluateEligibility(coverage.EligibilityInput{
		Category:         cat,
		PrimaryDiagnosis: ep.PrimaryDiagnosis,
		EpisodeStart:     ep.EpisodeStartDate,
		ProductStart:     ep.ProductStartDate,
		AsOf:             at,
		Points:           points,
		Care:             careRecords(encounters),
		Vascular:         latestVascular(encounters),
		Diabetic:         req.Context.Diabetic || encounterDiabetic,
		HbA1c:            hba1c,
		WagnerGrade:      req.Context.WagnerGrade,
		ActiveInfection:  req.Context.ActiveInfection,
		Osteomyelitis:    req.Context.Osteomyelitis,
	})
	var covTrail audit.Trail
	covTrail.Append(areaTrail)
	covTrail.Append(elig.AuditTrail)
	elig.AuditTrail = san.SanitizeTrail(covTrail)
	s.metrics.Determination(string(elig.Phase), string(elig.Compliance.OverallCompliance), elig.OverallEligible)

	// -- Progression --
	series, seriesTrail := measurement.NormalizeSeries(raw, ep.WoundLocation)
	trail.Append(seriesTrail)
	prog, progTrail := s.analyzer.Analyze(series, measurement.ParseSite(ep.WoundLocation))
	trail.Append(progTrail)

	// -- Alerting --
	actx := req.Context.alertContext(cat, encounterDiabetic)
	override := alerting.EvaluateOverride(series, actx)
	if override.Severity != alerting.SeverityNone {
		s.metrics.Override(string(override.Severity))
		s.log.Warn().
			Str("episode_id", ep.ID).
			Str("severity", string(override.Severity)).
			Bool("bypass_authorized", override.BypassAuthorized).
			Msg("safety override raised")
	}

	engRes, engTrail := s.engine.Evaluate(alerting.Input{
		EpisodeID:  ep.ID,
		ProviderID: req.ProviderID,
		Series:     series,
		Metrics:    prog,
		Context:    actx,
		Override:   override,
		At:         at,
	})
	trail.Append(engTrail)
	for _, b := range engRes.Blocked {
		s.metrics.AlertBlocked(string(b.Tier))
		s.log.Info().
			Str("episode_id", ep.ID).
			Str("tier", string(b.Tier)).
			Str("type", string(b.Type)).
			Msg("alert proposal blocked by quality gate")
	}

	res := &Result{
		EpisodeID:        ep.ID,
		EvaluatedAt:      at,
		Category:         cat,
		MeasurementCount: len(series),
		Coverage:         elig,
		Progression:      prog,
		Override:         sanitizeOverride(san, override),
		ProposedTier:     engRes.ProposedTier,
		CrossValidation:  engRes.CrossValidation,
		Alerts:           []IssuedAlert{},
		Blocked:          engRes.Blocked,
	}

	// -- Fatigue and review --
	for _, a := range engRes.Alerts {
		a = sanitizeAlert(san, a)
		bypass := a.Override != nil && override.BypassAuthorized
		d, err := s.preventer.Admit(a, bypass, at)
		if err != nil {
			return nil, fmt.Errorf("admit alert %s: %w", a.ID, err)
		}
		if d.Suppressed {
			trail.Outcome("alert_suppressed", "%s %s alert suppressed: %s", a.Tier, a.Type, strings.Join(d.Reasons, "; "))
			s.metrics.AlertSuppressed(string(a.Tier), string(a.Type))
			res.Suppressed = append(res.Suppressed, SuppressedAlert{Alert: a, Fatigue: d})
			continue
		}
		if d.Bypassed {
			trail.Outcome("fatigue_bypassed", "%s alert delivered despite: %s", a.Tier, strings.Join(d.Reasons, "; "))
		}
		s.metrics.AlertEmitted(string(a.Tier), string(a.Type), d.Bypassed)

		issued := IssuedAlert{Alert: a, Fatigue: d}
		if s.reviews != nil && d.Record != nil {
			r, err := s.reviews.Open(ctx, a, *d.Record, req.AssignTo)
			if err != nil {
				s.log.Error().Err(err).Str("alert_id", a.ID.String()).Msg("failed to open review")
				trail.Info("review_open_failed", "review for alert %s not opened", a.ID)
			} else {
				issued.ReviewID = &r.ID
				issued.ReviewStatus = r.Status
			}
		}
		res.Alerts = append(res.Alerts, issued)
	}

	res.AuditTrail = san.SanitizeTrail(trail)
	s.log.Info().
		Str("episode_id", ep.ID).
		Bool("eligible", elig.OverallEligible).
		Str("proposed_tier", string(engRes.ProposedTier)).
		Int("alerts", len(res.Alerts)).
		Int("suppressed", len(res.Suppressed)).
		Int("blocked", len(res.Blocked)).
		Msg("episode evaluated")
	return res, nil
}

// BatchItem is the outcome for one episode of a batch. Requests that cannot
// be evaluated carry an error message instead of a result.
type BatchItem struct {
	Index     int     `json:"index"`
	EpisodeID string  `json:"episode_id"`
	Result    *Result `json:"result,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// EvaluateBatch evaluates episodes concurrently. An invariant violation in
// any episode aborts the batch.
func (s *Service) EvaluateBatch(ctx context.Context, reqs []Request) ([]BatchItem, error) {
	items := make([]BatchItem, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items[i] = BatchItem{Index: i, EpisodeID: reqs[i].Episode.ID}
			res, err := s.Evaluate(gctx, reqs[i])
			switch {
			case errors.Is(err, audit.ErrInvariantViolation):
				return err
			case err != nil:
				items[i].Error = err.Error()
			default:
				items[i].Result = res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// Compliance decodes and evaluates a standalone phase-compliance request.
func (s *Service) Compliance(body []byte) (coverage.ComplianceAssessment, audit.Trail, error) {
	req, err := coverage.DecodeRequest(body)
	if err != nil {
		if errors.Is(err, audit.ErrInvariantViolation) {
			s.log.Error().Err(err).Msg("rejected compliance request carrying depth or volume")
		}
		return coverage.ComplianceAssessment{}, nil, err
	}
	assessment, trail := coverage.Evaluate(req)
	return assessment, hipaa.NewSanitizer().SanitizeTrail(trail), nil
}

func sanitizeOverride(san *hipaa.Sanitizer, d alerting.OverrideDecision) alerting.OverrideDecision {
	d.Rationale = sanitizeStrings(san, d.Rationale)
	return d
}

// sanitizeAlert rewrites copies of the alert's free-text fields; the
// engine's slices are left untouched.
func sanitizeAlert(san *hipaa.Sanitizer, a alerting.Alert) alerting.Alert {
	a.AuditTrail = san.SanitizeTrail(a.AuditTrail)
	a.TriggerEvidence.Triggers = sanitizeStrings(san, a.TriggerEvidence.Triggers)
	if a.Override != nil {
		o := *a.Override
		o.Rationale = sanitizeStrings(san, o.Rationale)
		a.Override = &o
	}
	return a
}

func sanitizeStrings(san *hipaa.Sanitizer, in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = san.Sanitize(v)
	}
	return out
}
