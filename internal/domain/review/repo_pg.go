package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/woundcare/internal/domain/alerting"
	"github.com/ehr/woundcare/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const reviewCols = `id, alert_id, episode_id, provider_id, alert_type, tier, status,
	assigned_to, rationale, respond_by, acknowledged_at, was_escalated,
	timeline_met, documentation_complete, appropriate_oversight,
	history, audit_trail, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, rv *Review) error {
	history, trail, err := encodeLogs(rv)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO clinical_review (`+reviewCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		rv.ID, rv.AlertID, rv.EpisodeID, rv.ProviderID, rv.AlertType, rv.Tier, rv.Status,
		rv.AssignedTo, rv.Rationale, rv.RespondBy, rv.AcknowledgedAt, rv.WasEscalated,
		rv.Compliance.TimelineMet, rv.Compliance.DocumentationComplete, rv.Compliance.AppropriateOversight,
		history, trail, rv.CreatedAt, rv.UpdatedAt,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Review, error) {
	return scanReview(r.conn(ctx).QueryRow(ctx, `SELECT `+reviewCols+` FROM clinical_review WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, rv *Review) error {
	history, trail, err := encodeLogs(rv)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE clinical_review SET
			status=$2, assigned_to=$3, rationale=$4, acknowledged_at=$5, was_escalated=$6,
			timeline_met=$7, documentation_complete=$8, appropriate_oversight=$9,
			history=$10, audit_trail=$11, updated_at=$12
		WHERE id = $1`,
		rv.ID, rv.Status, rv.AssignedTo, rv.Rationale, rv.AcknowledgedAt, rv.WasEscalated,
		rv.Compliance.TimelineMet, rv.Compliance.DocumentationComplete, rv.Compliance.AppropriateOversight,
		history, trail, rv.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, status Status, limit, offset int) ([]*Review, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM clinical_review WHERE ($1 = '' OR status = $1)`, status).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+reviewCols+` FROM clinical_review
		WHERE ($1 = '' OR status = $1)
		ORDER BY CASE tier
			WHEN 'emergency' THEN 5 WHEN 'critical_intervention' THEN 4
			WHEN 'urgent_clinical_review' THEN 3 WHEN 'moderate_concern' THEN 2 ELSE 1 END DESC,
			created_at ASC
		LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rv)
	}
	return items, total, rows.Err()
}

func (r *repoPG) SaveAlert(ctx context.Context, a alerting.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO alert_record (id, episode_id, provider_id, alert_type, tier, created_at, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO NOTHING`,
		a.ID, a.EpisodeID, a.ProviderID, a.Type, a.Tier, a.CreatedAt, payload,
	)
	return err
}

func (r *repoPG) RecordAdmission(ctx context.Context, h alerting.HistoryRecord) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO fatigue_history (alert_id, episode_id, provider_id, alert_type, tier, admitted_at, resolved, bypassed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		h.AlertID, h.EpisodeID, h.ProviderID, h.Type, h.Tier, h.At, h.Resolved, h.Bypassed,
	)
	return err
}

func (r *repoPG) MarkResolved(ctx context.Context, alertID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE fatigue_history SET resolved = TRUE WHERE alert_id = $1`, alertID)
	return err
}

func (r *repoPG) History(ctx context.Context, since time.Time) ([]alerting.HistoryRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT alert_id, episode_id, provider_id, alert_type, tier, admitted_at, resolved, bypassed
		FROM fatigue_history WHERE admitted_at >= $1 ORDER BY admitted_at`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alerting.HistoryRecord
	for rows.Next() {
		var h alerting.HistoryRecord
		if err := rows.Scan(&h.AlertID, &h.EpisodeID, &h.ProviderID, &h.Type, &h.Tier, &h.At, &h.Resolved, &h.Bypassed); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReview(row rowScanner) (*Review, error) {
	var rv Review
	var history, trail []byte
	err := row.Scan(
		&rv.ID, &rv.AlertID, &rv.EpisodeID, &rv.ProviderID, &rv.AlertType, &rv.Tier, &rv.Status,
		&rv.AssignedTo, &rv.Rationale, &rv.RespondBy, &rv.AcknowledgedAt, &rv.WasEscalated,
		&rv.Compliance.TimelineMet, &rv.Compliance.DocumentationComplete, &rv.Compliance.AppropriateOversight,
		&history, &trail, &rv.CreatedAt, &rv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(history, &rv.History); err != nil {
		return nil, fmt.Errorf("decode review history: %w", err)
	}
	if err := json.Unmarshal(trail, &rv.AuditTrail); err != nil {
		return nil, fmt.Errorf("decode review audit trail: %w", err)
	}
	return &rv, nil
}

func encodeLogs(rv *Review) ([]byte, []byte, error) {
	history, err := json.Marshal(rv.History)
	if err != nil {
		return nil, nil, fmt.Errorf("encode review history: %w", err)
	}
	trail, err := json.Marshal(rv.AuditTrail)
	if err != nil {
		return nil, nil, fmt.Errorf("encode review audit trail: %w", err)
	}
	return history, trail, nil
}
