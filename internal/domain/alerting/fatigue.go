package alerting

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/woundcare/internal/platform/audit"
)

// FatigueConfig holds the suppression caps.
type FatigueConfig struct {
	DailyCap         int
	WeeklyCap        int
	SameTypeLimit    int
	RepeatWindow     time.Duration
	SameTypeWindow   time.Duration
	HistoryRetention time.Duration
}

// DefaultFatigueConfig returns the standard caps.
func DefaultFatigueConfig() FatigueConfig {
	return FatigueConfig{
		DailyCap:         10,
		WeeklyCap:        50,
		SameTypeLimit:    2,
		RepeatWindow:     4 * time.Hour,
		SameTypeWindow:   24 * time.Hour,
		HistoryRetention: 7 * 24 * time.Hour,
	}
}

// HistoryRecord is one alert counted against a provider.
type HistoryRecord struct {
	AlertID    uuid.UUID `json:"alert_id"`
	EpisodeID  string    `json:"episode_id"`
	ProviderID string    `json:"provider_id"`
	Type       Type      `json:"type"`
	Tier       Tier      `json:"tier"`
	At         time.Time `json:"at"`
	Resolved   bool      `json:"resolved"`
	Bypassed   bool      `json:"bypassed"`
}

// providerHistory is the rolling alert window of one provider.
type providerHistory struct {
	mu      sync.Mutex
	records []HistoryRecord
}

// Tracker holds rolling per-provider alert history. It is constructed once
// and injected; each provider's window is read and written under its own lock.
type Tracker struct {
	mu        sync.RWMutex
	providers map[string]*providerHistory
	retention time.Duration
}

// NewTracker creates an empty tracker keeping retention of history.
func NewTracker(retention time.Duration) *Tracker {
	return &Tracker{
		providers: make(map[string]*providerHistory),
		retention: retention,
	}
}

func (t *Tracker) history(providerID string) *providerHistory {
	t.mu.RLock()
	h, exists := t.providers[providerID]
	t.mu.RUnlock()
	if exists {
		return h
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double-check after acquiring write lock.
	if h, exists = t.providers[providerID]; exists {
		return h
	}
	h = &providerHistory{}
	t.providers[providerID] = h
	return h
}

// Restore loads persisted history, e.g. at startup.
func (t *Tracker) Restore(records []HistoryRecord) {
	for _, r := range records {
		h := t.history(r.ProviderID)
		h.mu.Lock()
		h.records = append(h.records, r)
		h.mu.Unlock()
	}
}

// Resolve marks an alert resolved so it no longer counts as unresolved.
func (t *Tracker) Resolve(providerID string, alertID uuid.UUID) bool {
	h := t.history(providerID)
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.records {
		if h.records[i].AlertID == alertID {
			h.records[i].Resolved = true
			return true
		}
	}
	return false
}

// Snapshot returns a copy of a provider's history.
func (t *Tracker) Snapshot(providerID string) []HistoryRecord {
	h := t.history(providerID)
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryRecord, len(h.records))
	copy(out, h.records)
	return out
}

// FatigueDecision is the outcome of admitting one alert.
type FatigueDecision struct {
	Suppressed bool     `json:"suppressed"`
	Bypassed   bool     `json:"bypassed"`
	Reasons    []string `json:"reasons,omitempty"`
	RiskScore  float64  `json:"risk_score"`

	// Record is the history entry written for an admitted alert.
	Record *HistoryRecord `json:"-"`
}

// Preventer applies suppression rules against an injected tracker.
type Preventer struct {
	cfg     FatigueConfig
	tracker *Tracker
}

// NewPreventer creates a preventer over tracker.
func NewPreventer(cfg FatigueConfig, tracker *Tracker) *Preventer {
	return &Preventer{cfg: cfg, tracker: tracker}
}

// Tracker returns the preventer's history tracker.
func (p *Preventer) Tracker() *Tracker { return p.tracker }

// Admit decides whether an alert may be delivered and, if so, records it.
// Critical and emergency alerts are always admitted, with the suppression
// they overrode reported as a bypass. Requesting a bypass for any other tier
// is a programming error and fails with an invariant violation.
func (p *Preventer) Admit(a Alert, requestBypass bool, now time.Time) (FatigueDecision, error) {
	if requestBypass && !a.Tier.BypassesFatigue() {
		return FatigueDecision{}, audit.Violation("fatigue_bypass_without_critical_tier",
			fmt.Sprintf("alert %s requested suppression bypass at tier %q", a.ID, a.Tier))
	}

	h := p.tracker.history(a.ProviderID)
	h.mu.Lock()
	defer h.mu.Unlock()

	h.prune(now.Add(-p.tracker.retention))
	c := h.count(a, now, p.cfg)

	var d FatigueDecision
	if c.sameTypeUnresolved >= p.cfg.SameTypeLimit {
		d.Reasons = append(d.Reasons, fmt.Sprintf("%d unresolved %s alerts for episode within %s", c.sameTypeUnresolved, a.Type, p.cfg.SameTypeWindow))
	}
	if c.providerDay >= p.cfg.DailyCap {
		d.Reasons = append(d.Reasons, fmt.Sprintf("provider daily cap %d reached", p.cfg.DailyCap))
	}
	if c.providerWeek >= p.cfg.WeeklyCap {
		d.Reasons = append(d.Reasons, fmt.Sprintf("provider weekly cap %d reached", p.cfg.WeeklyCap))
	}
	if c.recentRepeats >= 2 {
		d.Reasons = append(d.Reasons, fmt.Sprintf("%s fired twice within %s, both unresolved", a.Type, p.cfg.RepeatWindow))
	}
	d.RiskScore = p.risk(c)

	if len(d.Reasons) > 0 {
		if !a.Tier.BypassesFatigue() {
			d.Suppressed = true
			return d, nil
		}
		d.Bypassed = true
	}

	rec := HistoryRecord{
		AlertID:    a.ID,
		EpisodeID:  a.EpisodeID,
		ProviderID: a.ProviderID,
		Type:       a.Type,
		Tier:       a.Tier,
		At:         now,
		Bypassed:   d.Bypassed,
	}
	h.records = append(h.records, rec)
	d.Record = &rec
	return d, nil
}

// RiskScore reports a provider's fatigue risk for an episode and alert type
// without admitting anything.
func (p *Preventer) RiskScore(providerID, episodeID string, typ Type, now time.Time) float64 {
	h := p.tracker.history(providerID)
	h.mu.Lock()
	defer h.mu.Unlock()
	return p.risk(h.count(Alert{EpisodeID: episodeID, Type: typ}, now, p.cfg))
}

// risk blends 24-hour volume (40%), same-type volume (40%) and the 7-day
// volume trend (20%). It is reported only and never drives suppression.
func (p *Preventer) risk(c windowCounts) float64 {
	ratio := func(n, limit int) float64 {
		if limit <= 0 {
			return 0
		}
		return math.Min(float64(n)/float64(limit), 1)
	}
	return 0.4*ratio(c.providerDay, p.cfg.DailyCap) +
		0.4*ratio(c.sameTypeDay, p.cfg.SameTypeLimit) +
		0.2*volumeTrend(c.providerDay, c.providerWeek)
}

// volumeTrend compares the last 24 hours against the daily average of the
// six days before them: 0 at or below that pace, 1 at double it or more.
func volumeTrend(day, week int) float64 {
	if day == 0 {
		return 0
	}
	prior := float64(week-day) / 6
	if prior == 0 {
		return 1
	}
	return math.Max(0, math.Min(float64(day)/prior-1, 1))
}

type windowCounts struct {
	providerDay        int
	providerWeek       int
	sameTypeDay        int
	sameTypeUnresolved int
	recentRepeats      int
}

func (h *providerHistory) count(a Alert, now time.Time, cfg FatigueConfig) windowCounts {
	var c windowCounts
	for _, r := range h.records {
		age := now.Sub(r.At)
		if age < 0 {
			continue
		}
		if age <= 7*24*time.Hour {
			c.providerWeek++
		}
		if age <= 24*time.Hour {
			c.providerDay++
		}
		if age > cfg.SameTypeWindow || r.EpisodeID != a.EpisodeID || r.Type != a.Type {
			continue
		}
		c.sameTypeDay++
		if !r.Resolved {
			c.sameTypeUnresolved++
			if age <= cfg.RepeatWindow {
				c.recentRepeats++
			}
		}
	}
	return c
}

func (h *providerHistory) prune(cutoff time.Time) {
	kept := h.records[:0]
	for _, r := range h.records {
		if !r.At.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	h.records = kept
}
