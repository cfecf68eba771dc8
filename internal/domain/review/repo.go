package review

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/woundcare/internal/domain/alerting"
)

type Repository interface {
	Create(ctx context.Context, r *Review) error
	GetByID(ctx context.Context, id uuid.UUID) (*Review, error)
	Update(ctx context.Context, r *Review) error
	List(ctx context.Context, status Status, limit, offset int) ([]*Review, int, error)

	// Alerts
	SaveAlert(ctx context.Context, a alerting.Alert) error

	// Fatigue history
	RecordAdmission(ctx context.Context, h alerting.HistoryRecord) error
	MarkResolved(ctx context.Context, alertID uuid.UUID) error
	History(ctx context.Context, since time.Time) ([]alerting.HistoryRecord, error)
}

// memoryRepo is the default Repository when no database is configured.
type memoryRepo struct {
	mu      sync.RWMutex
	reviews map[uuid.UUID]*Review
	alerts  map[uuid.UUID]alerting.Alert
	history []alerting.HistoryRecord
}

func NewMemoryRepo() Repository {
	return &memoryRepo{
		reviews: make(map[uuid.UUID]*Review),
		alerts:  make(map[uuid.UUID]alerting.Alert),
	}
}

func (m *memoryRepo) Create(_ context.Context, r *Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews[r.ID] = clone(r)
	return nil
}

func (m *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reviews[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(r), nil
}

func (m *memoryRepo) Update(_ context.Context, r *Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reviews[r.ID]; !ok {
		return ErrNotFound
	}
	m.reviews[r.ID] = clone(r)
	return nil
}

func (m *memoryRepo) List(_ context.Context, status Status, limit, offset int) ([]*Review, int, error) {
	m.mu.RLock()
	var all []*Review
	for _, r := range m.reviews {
		if status == "" || r.Status == status {
			all = append(all, clone(r))
		}
	}
	m.mu.RUnlock()

	// Most urgent first, then oldest first.
	sort.Slice(all, func(i, j int) bool {
		if all[i].Tier.Rank() != all[j].Tier.Rank() {
			return all[i].Tier.Rank() > all[j].Tier.Rank()
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return []*Review{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memoryRepo) SaveAlert(_ context.Context, a alerting.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[a.ID] = a
	return nil
}

func (m *memoryRepo) RecordAdmission(_ context.Context, h alerting.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, h)
	return nil
}

func (m *memoryRepo) MarkResolved(_ context.Context, alertID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.history {
		if m.history[i].AlertID == alertID {
			m.history[i].Resolved = true
		}
	}
	return nil
}

func (m *memoryRepo) History(_ context.Context, since time.Time) ([]alerting.HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []alerting.HistoryRecord
	for _, h := range m.history {
		if !h.At.Before(since) {
			out = append(out, h)
		}
	}
	return out, nil
}

func clone(r *Review) *Review {
	c := *r
	c.History = append([]Transition(nil), r.History...)
	c.AuditTrail = append(r.AuditTrail[:0:0], r.AuditTrail...)
	if r.AcknowledgedAt != nil {
		t := *r.AcknowledgedAt
		c.AcknowledgedAt = &t
	}
	return &c
}
