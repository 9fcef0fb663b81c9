// Package banguard decides at the request boundary whether a caller's address
// falls inside an active IP ban.
package banguard

import (
	"context"
	"errors"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sujalbistaa/entrenous/internal/apperr"
	"github.com/sujalbistaa/entrenous/internal/config"
	"github.com/sujalbistaa/entrenous/internal/logger"
	"github.com/sujalbistaa/entrenous/internal/models"
	"github.com/sujalbistaa/entrenous/internal/store"
)

const maxReasonLength = 200

// Store is the slice of the persistence layer the guard needs.
type Store interface {
	ActiveBans(ctx context.Context) ([]models.IPBan, error)
	UpsertBan(ctx context.Context, prefix, reason string) (*models.IPBan, error)
	DeactivateBan(ctx context.Context, prefix string) (*models.IPBan, error)
	RecentBans(ctx context.Context, limit int) ([]models.IPBan, error)
	CountActiveBans(ctx context.Context) (int64, error)
	BanRevision(ctx context.Context) (int64, error)
}

// Decision is the outcome of a check. Reason and Prefix are for logs only.
type Decision struct {
	Allowed bool
	Reason  string
	Prefix  string
}

type entry struct {
	prefix netip.Prefix
	reason string
}

// table is immutable once published. Entries are ordered longest prefix first.
// A revision of -1 marks a locally patched table that must be reloaded.
type table struct {
	entries  []entry
	revision int64
	loadedAt time.Time
}

type Guard struct {
	store Store
	cfg   config.Bans
	now   func() time.Time

	mu    sync.Mutex // serialises table writers
	table atomic.Pointer[table]
	group singleflight.Group
}

func New(s Store, cfg config.Bans) *Guard {
	return &Guard{store: s, cfg: cfg, now: time.Now}
}

// Load replaces the active table with the store's current state.
func (g *Guard) Load(ctx context.Context) error {
	_, err, _ := g.group.Do("reload", func() (any, error) {
		g.mu.Lock()
		defer g.mu.Unlock()
		return nil, g.loadLocked(ctx)
	})
	return err
}

func (g *Guard) loadLocked(ctx context.Context) error {
	// Read the revision first: a write racing the load leaves it stale and
	// forces another load.
	rev, err := g.store.BanRevision(ctx)
	if err != nil {
		return err
	}
	bans, err := g.store.ActiveBans(ctx)
	if err != nil {
		return err
	}
	entries := make([]entry, 0, len(bans))
	for _, b := range bans {
		p, err := netip.ParsePrefix(b.Prefix)
		if err != nil {
			logger.Log.Warn("Skipping unparsable ban prefix", zap.String("prefix", b.Prefix))
			continue
		}
		entries = append(entries, entry{prefix: p.Masked(), reason: b.Reason})
	}
	g.publish(entries, rev)
	return nil
}

// Check tests ip against the active bans. The first containing prefix in
// longest-first order wins.
func (g *Guard) Check(ctx context.Context, ip string) Decision {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return Decision{Allowed: true}
	}
	addr = addr.Unmap().WithZone("")

	for _, e := range g.current(ctx).entries {
		if e.prefix.Contains(addr) {
			return Decision{Allowed: false, Reason: e.reason, Prefix: e.prefix.String()}
		}
	}
	return Decision{Allowed: true}
}

// current returns the table, reloading it first when the store's ban revision
// moved or the table is older than the refresh interval. Failing to read the
// revision or to reload keeps serving the previous table.
func (g *Guard) current(ctx context.Context) *table {
	t := g.table.Load()
	if t != nil && (g.cfg.RefreshInterval <= 0 || g.now().Sub(t.loadedAt) < g.cfg.RefreshInterval) {
		rev, err := g.store.BanRevision(ctx)
		if err != nil {
			logger.Log.Warn("Failed to read ban revision", zap.Error(err))
			return t
		}
		if rev == t.revision {
			return t
		}
	}
	if err := g.Load(ctx); err != nil {
		logger.Log.Error("Failed to reload ban table", zap.Error(err))
		if t == nil {
			return &table{}
		}
		return t
	}
	return g.table.Load()
}

// Ban activates a ban on ipOrCIDR. A bare address is widened to the configured
// prefix length. Re-banning an existing prefix reactivates it with the new reason.
func (g *Guard) Ban(ctx context.Context, ipOrCIDR, reason string) (*models.IPBan, error) {
	p, err := g.Normalize(ipOrCIDR)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxReasonLength {
		return nil, apperr.Validation("reason", "reason is too long")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ban, err := g.store.UpsertBan(ctx, p.String(), reason)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	logger.Log.Info("IP prefix banned", zap.String("prefix", ban.Prefix))

	if err := g.loadLocked(ctx); err != nil {
		logger.Log.Warn("Failed to reload ban table after write", zap.Error(err))
		entries := g.withoutPrefix(p)
		entries = append(entries, entry{prefix: p, reason: reason})
		g.publishPatch(entries)
	}
	return ban, nil
}

// Lift deactivates the ban on ipOrCIDR. The row is kept for audit.
func (g *Guard) Lift(ctx context.Context, ipOrCIDR string) (*models.IPBan, error) {
	p, err := g.Normalize(ipOrCIDR)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ban, err := g.store.DeactivateBan(ctx, p.String())
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("ban")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	logger.Log.Info("IP ban lifted", zap.String("prefix", ban.Prefix))

	if err := g.loadLocked(ctx); err != nil {
		logger.Log.Warn("Failed to reload ban table after write", zap.Error(err))
		g.publishPatch(g.withoutPrefix(p))
	}
	return ban, nil
}

// List returns bans of any state, most recently changed first.
func (g *Guard) List(ctx context.Context, limit int) ([]models.IPBan, error) {
	bans, err := g.store.RecentBans(ctx, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return bans, nil
}

func (g *Guard) ActiveCount(ctx context.Context) (int64, error) {
	n, err := g.store.CountActiveBans(ctx)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	return n, nil
}

// Normalize parses an address or CIDR into its canonical masked prefix.
func (g *Guard) Normalize(ipOrCIDR string) (netip.Prefix, error) {
	s := strings.TrimSpace(ipOrCIDR)
	if s == "" {
		return netip.Prefix{}, apperr.Validation("ip", "ip is required")
	}

	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, apperr.Validation("ip", "invalid CIDR")
		}
		if p.Addr().Is4In6() && p.Bits() >= 96 {
			p = netip.PrefixFrom(p.Addr().Unmap(), p.Bits()-96)
		}
		return p.Masked(), nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, apperr.Validation("ip", "invalid IP address")
	}
	addr = addr.Unmap().WithZone("")
	bits := g.cfg.IPv6PrefixLen
	if addr.Is4() {
		bits = g.cfg.IPv4PrefixLen
	}
	p, err := addr.Prefix(bits)
	if err != nil {
		return netip.Prefix{}, apperr.Validation("ip", "invalid prefix length")
	}
	return p, nil
}

func (g *Guard) withoutPrefix(p netip.Prefix) []entry {
	var entries []entry
	if t := g.table.Load(); t != nil {
		entries = make([]entry, 0, len(t.entries)+1)
		for _, e := range t.entries {
			if e.prefix != p {
				entries = append(entries, e)
			}
		}
	}
	return entries
}

func (g *Guard) publish(entries []entry, rev int64) {
	sortEntries(entries)
	g.table.Store(&table{entries: entries, revision: rev, loadedAt: g.now()})
}

// publishPatch swaps in local edits when the store could not be re-read. The
// next check retries the reload.
func (g *Guard) publishPatch(entries []entry) {
	loadedAt := g.now()
	if t := g.table.Load(); t != nil {
		loadedAt = t.loadedAt
	}
	sortEntries(entries)
	g.table.Store(&table{entries: entries, revision: -1, loadedAt: loadedAt})
}

func sortEntries(entries []entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].prefix.Bits() > entries[j].prefix.Bits()
	})
}
