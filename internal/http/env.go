package http

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/sujalbistaa/entrenous/internal/admin"
	"github.com/sujalbistaa/entrenous/internal/audit"
	"github.com/sujalbistaa/entrenous/internal/auth"
	"github.com/sujalbistaa/entrenous/internal/banguard"
	"github.com/sujalbistaa/entrenous/internal/config"
	"github.com/sujalbistaa/entrenous/internal/content"
	"github.com/sujalbistaa/entrenous/internal/dm"
	"github.com/sujalbistaa/entrenous/internal/feed"
	"github.com/sujalbistaa/entrenous/internal/keylock"
	"github.com/sujalbistaa/entrenous/internal/metrics"
	"github.com/sujalbistaa/entrenous/internal/moderation"
	"github.com/sujalbistaa/entrenous/internal/store"
	"github.com/sujalbistaa/entrenous/internal/ws"
)

// NewEnv builds every service on top of gdb. The admin hub runs until ctx is
// done, and the ban table is loaded before returning.
func NewEnv(ctx context.Context, cfg *config.Config, gdb *gorm.DB) (*Env, error) {
	box, err := cfg.ContentBox()
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	st := store.New(gdb, box)
	locks := keylock.New()

	prom := metrics.New()
	prom.Registry().MustRegister(collectors.NewDBStatsCollector(sqlDB, "entrenous"))

	hub := ws.NewHub()
	go hub.Run(ctx)
	sink := EventSink{Hub: hub, Metrics: prom}

	pipeline := moderation.NewPipeline(st, locks, cfg.Moderation, sink)
	guard := banguard.New(st, cfg.Bans)
	if err := guard.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load IP bans: %w", err)
	}

	return &Env{
		Auth:       auth.NewService(st, cfg),
		Feed:       feed.NewEngine(st, cfg.Ranking),
		Content:    content.NewService(st, pipeline, locks, cfg.MaxBodyLength),
		Moderation: pipeline,
		DM:         dm.NewManager(st, locks, cfg.MaxBodyLength),
		Bans:       guard,
		Audit:      audit.NewRecorder(st, guard, cfg.IPLookupPepper),
		Admin:      admin.NewAggregator(metrics.NewWindow(cfg.MetricsWindow), prom, pipeline, guard),
		Metrics:    prom,
		Hub:        hub,
		Events:     sink,
	}, nil
}
