// Package admin composes the operational snapshot served to administrators.
// It never returns content bodies, flag details or user identities.
package admin

import (
	"context"
	"time"

	"github.com/sujalbistaa/entrenous/internal/metrics"
	"github.com/sujalbistaa/entrenous/internal/models"
)

const recentBansLimit = 50

type FlagSource interface {
	CountPending(ctx context.Context) (int64, error)
	RecentFlags(ctx context.Context) ([]models.Flag, error)
}

type BanSource interface {
	ActiveCount(ctx context.Context) (int64, error)
	List(ctx context.Context, limit int) ([]models.IPBan, error)
}

type MetricsView struct {
	P50Ms         float64           `json:"p50"`
	P95Ms         float64           `json:"p95"`
	RequestsTotal uint64            `json:"requests_total"`
	Samples       int               `json:"window_samples"`
	Denials       uint64            `json:"denials"`
	StatusCounts  map[string]uint64 `json:"status_counts"`
}

// FlagSummary is flag metadata without reporter or free-text details.
type FlagSummary struct {
	ID         uint      `json:"id"`
	TargetType string    `json:"target_type"`
	TargetID   uint      `json:"target_id"`
	Reason     string    `json:"reason"`
	Status     string    `json:"status"`
	Pending    bool      `json:"pending"`
	CreatedAt  time.Time `json:"created_at"`
}

type ModerationView struct {
	PendingCount int64         `json:"pending_count"`
	LastFlags    []FlagSummary `json:"last_flags"`
}

type BanSummary struct {
	Prefix    string    `json:"ip_prefix"`
	Reason    string    `json:"reason"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BansView struct {
	ActiveCount int64        `json:"active_count"`
	Recent      []BanSummary `json:"recent"`
}

type Snapshot struct {
	Metrics     MetricsView    `json:"metrics"`
	Moderation  ModerationView `json:"moderation"`
	Bans        BansView       `json:"bans"`
	GeneratedAt time.Time      `json:"generated_at"`
}

type Aggregator struct {
	window *metrics.Window
	prom   *metrics.Metrics
	flags  FlagSource
	bans   BanSource
	now    func() time.Time
}

// NewAggregator wires the rolling window and optional Prometheus collectors
// to the moderation and ban sources.
func NewAggregator(window *metrics.Window, prom *metrics.Metrics, flags FlagSource, bans BanSource) *Aggregator {
	return &Aggregator{window: window, prom: prom, flags: flags, bans: bans, now: time.Now}
}

func (a *Aggregator) RecordOutcome(route string, d time.Duration, status int) {
	a.window.Observe(d, status)
	if a.prom != nil {
		a.prom.ObserveRequest(route, status, d)
	}
}

func (a *Aggregator) RecordDenial() {
	a.window.Deny()
	if a.prom != nil {
		a.prom.BanDenialsTotal.Inc()
	}
}

func (a *Aggregator) RecordRateLimited() {
	if a.prom != nil {
		a.prom.RateLimitedTotal.Inc()
	}
}

func (a *Aggregator) Snapshot(ctx context.Context) (*Snapshot, error) {
	ws := a.window.Snapshot()
	snap := &Snapshot{
		Metrics: MetricsView{
			P50Ms:         ws.P50Ms,
			P95Ms:         ws.P95Ms,
			RequestsTotal: ws.RequestsTotal,
			Samples:       ws.Samples,
			Denials:       ws.Denials,
			StatusCounts:  ws.StatusCounts,
		},
		GeneratedAt: a.now().UTC(),
	}

	pending, err := a.flags.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	flags, err := a.flags.RecentFlags(ctx)
	if err != nil {
		return nil, err
	}
	snap.Moderation = ModerationView{PendingCount: pending, LastFlags: make([]FlagSummary, 0, len(flags))}
	for _, f := range flags {
		snap.Moderation.LastFlags = append(snap.Moderation.LastFlags, FlagSummary{
			ID:         f.ID,
			TargetType: f.TargetType,
			TargetID:   f.TargetID,
			Reason:     f.Reason,
			Status:     f.Status,
			Pending:    f.Status == models.FlagPending,
			CreatedAt:  f.CreatedAt,
		})
	}

	active, err := a.bans.ActiveCount(ctx)
	if err != nil {
		return nil, err
	}
	bans, err := a.bans.List(ctx, recentBansLimit)
	if err != nil {
		return nil, err
	}
	snap.Bans = BansView{ActiveCount: active, Recent: make([]BanSummary, 0, len(bans))}
	for _, b := range bans {
		snap.Bans.Recent = append(snap.Bans.Recent, BanSummary{
			Prefix:    b.Prefix,
			Reason:    b.Reason,
			Active:    b.Active,
			CreatedAt: b.CreatedAt,
			UpdatedAt: b.UpdatedAt,
		})
	}
	return snap, nil
}
