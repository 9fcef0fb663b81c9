// Package moderation records flags, hides content that crosses the flag
// threshold and applies admin review decisions.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sujalbistaa/entrenous/internal/apperr"
	"github.com/sujalbistaa/entrenous/internal/config"
	"github.com/sujalbistaa/entrenous/internal/keylock"
	"github.com/sujalbistaa/entrenous/internal/logger"
	"github.com/sujalbistaa/entrenous/internal/models"
	"github.com/sujalbistaa/entrenous/internal/store"
)

const (
	maxReasonLength  = 64
	maxDetailsLength = 500

	// ReasonKeywordHit is the reason recorded on flags raised by the keyword screen.
	ReasonKeywordHit = "keyword_hit"
)

// Event types published to the Notifier.
const (
	EventFlag     = "flag"
	EventAutoHide = "auto_hide"
	EventReview   = "review"
)

// Review decisions.
const (
	DecisionDismiss = "dismiss"
	DecisionRemove  = "remove"
	DecisionRestore = "restore"
)

// Notifier receives metadata-only moderation events.
type Notifier interface {
	Publish(eventType string, data any)
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, any) {}

// FlagInput is a user's report against a post or reply.
type FlagInput struct {
	TargetType string
	TargetID   uint
	Reason     string
	Details    string
}

// Result describes the outcome of recording a flag. Created is false when the
// reporter had already flagged the target.
type Result struct {
	Flag       *models.Flag
	Created    bool
	AutoHidden bool
	FlagsCount int
	Hidden     bool
}

type ReviewResult struct {
	Decision     string
	TargetType   string
	TargetID     uint
	FlagsClosed  int64
	FlagsCount   int
	TargetHidden bool
}

type Pipeline struct {
	store    *store.Store
	locks    *keylock.Map
	cfg      config.Moderation
	keywords []string
	notifier Notifier
	now      func() time.Time
}

func NewPipeline(s *store.Store, locks *keylock.Map, cfg config.Moderation, n Notifier) *Pipeline {
	if n == nil {
		n = nopNotifier{}
	}
	if locks == nil {
		locks = keylock.New()
	}
	keywords := make([]string, 0, len(cfg.Keywords))
	for _, kw := range cfg.Keywords {
		if norm := normalize(kw); norm != "" {
			keywords = append(keywords, " "+norm+" ")
		}
	}
	return &Pipeline{
		store:    s,
		locks:    locks,
		cfg:      cfg,
		keywords: keywords,
		notifier: n,
		now:      time.Now,
	}
}

// TargetKey is the lock key shared by every writer of a target's flag state.
func TargetKey(targetType string, id uint) string {
	return fmt.Sprintf("%s:%d", targetType, id)
}

// SubmitFlag records reporter's flag on a target. The flag row, the counter
// increment and any auto-hide commit together or not at all.
func (p *Pipeline) SubmitFlag(ctx context.Context, reporter uint, in FlagInput) (*Result, error) {
	flag, err := p.validate(reporter, in)
	if err != nil {
		return nil, err
	}

	unlock := p.locks.Lock(TargetKey(flag.TargetType, flag.TargetID))
	defer unlock()

	var res *Result
	err = p.store.Tx(ctx, func(tx *store.Store) error {
		var err error
		res, err = p.record(ctx, tx, flag)
		return err
	})
	if errors.Is(err, store.ErrDuplicate) {
		// another process won the insert
		existing, ferr := p.store.FlagByReporter(ctx, reporter, flag.TargetType, flag.TargetID)
		if ferr != nil {
			return nil, apperr.Internal(ferr)
		}
		return &Result{Flag: existing}, nil
	}
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			return nil, err
		}
		return nil, apperr.Internal(err)
	}

	p.Notify(res)
	return res, nil
}

// Screen raises a system flag when body contains a configured keyword. It
// runs inside the caller's transaction so new content is never visible
// without its screening flag.
func (p *Pipeline) Screen(ctx context.Context, tx *store.Store, targetType string, targetID uint, body string) (*Result, error) {
	if !p.matchesKeyword(body) {
		return nil, nil
	}
	return p.record(ctx, tx, &models.Flag{
		TargetType: targetType,
		TargetID:   targetID,
		ReporterID: models.SystemReporterID,
		Reason:     ReasonKeywordHit,
		Status:     models.FlagPending,
	})
}

// Notify publishes events for a committed result.
func (p *Pipeline) Notify(res *Result) {
	if res == nil || !res.Created {
		return
	}
	f := res.Flag
	logger.Log.Info("Flag recorded",
		zap.Uint("flag_id", f.ID),
		logger.WithTarget(f.TargetType, f.TargetID),
		zap.String("reason", f.Reason),
		zap.Int("flags_count", res.FlagsCount),
	)
	p.notifier.Publish(EventFlag, map[string]any{
		"flag_id":     f.ID,
		"target_type": f.TargetType,
		"target_id":   f.TargetID,
		"reason":      f.Reason,
		"flags_count": res.FlagsCount,
	})
	if res.AutoHidden {
		logger.Log.Warn("Content auto-hidden", logger.WithTarget(f.TargetType, f.TargetID))
		p.notifier.Publish(EventAutoHide, map[string]any{
			"target_type": f.TargetType,
			"target_id":   f.TargetID,
			"flags_count": res.FlagsCount,
		})
	}
}

// record is the atomic read-modify-write on one target. Callers hold the
// target's lock or own a target nobody else can see yet.
func (p *Pipeline) record(ctx context.Context, tx *store.Store, flag *models.Flag) (*Result, error) {
	existing, err := tx.FlagByReporter(ctx, flag.ReporterID, flag.TargetType, flag.TargetID)
	switch {
	case err == nil:
		target, err := tx.Target(ctx, flag.TargetType, flag.TargetID)
		if err != nil {
			return nil, targetError(flag.TargetType, err)
		}
		return &Result{Flag: existing, FlagsCount: target.FlagsCount, Hidden: target.Hidden}, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	if _, err := tx.Target(ctx, flag.TargetType, flag.TargetID); err != nil {
		return nil, targetError(flag.TargetType, err)
	}
	if err := tx.CreateFlag(ctx, flag); err != nil {
		return nil, err
	}
	if err := tx.IncrementFlags(ctx, flag.TargetType, flag.TargetID); err != nil {
		return nil, err
	}

	target, err := tx.Target(ctx, flag.TargetType, flag.TargetID)
	if err != nil {
		return nil, err
	}
	res := &Result{Flag: flag, Created: true, FlagsCount: target.FlagsCount, Hidden: target.Hidden}
	if target.FlagsCount >= p.cfg.AutoHideThreshold && !target.Hidden {
		if err := tx.SetHidden(ctx, flag.TargetType, flag.TargetID, true); err != nil {
			return nil, err
		}
		res.Hidden = true
		res.AutoHidden = true
	}
	return res, nil
}

// Review closes every pending flag on the reviewed flag's target and applies
// the decision to the target.
func (p *Pipeline) Review(ctx context.Context, flagID uint, decision string) (*ReviewResult, error) {
	decision = strings.ToLower(strings.TrimSpace(decision))
	switch decision {
	case DecisionDismiss, DecisionRemove, DecisionRestore:
	default:
		return nil, apperr.Validation("decision", "decision must be dismiss, remove or restore")
	}

	flag, err := p.store.FlagByID(ctx, flagID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("flag")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	unlock := p.locks.Lock(TargetKey(flag.TargetType, flag.TargetID))
	defer unlock()

	res := &ReviewResult{Decision: decision, TargetType: flag.TargetType, TargetID: flag.TargetID}
	err = p.store.Tx(ctx, func(tx *store.Store) error {
		closed, err := tx.MarkTargetFlagsReviewed(ctx, flag.TargetType, flag.TargetID, p.now().UTC())
		if err != nil {
			return err
		}
		res.FlagsClosed = closed

		switch decision {
		case DecisionRemove:
			err = tx.SetHidden(ctx, flag.TargetType, flag.TargetID, true)
		case DecisionRestore:
			err = tx.ResetFlags(ctx, flag.TargetType, flag.TargetID)
		}
		if err != nil {
			return targetError(flag.TargetType, err)
		}

		target, err := tx.Target(ctx, flag.TargetType, flag.TargetID)
		if err != nil {
			return targetError(flag.TargetType, err)
		}
		res.FlagsCount = target.FlagsCount
		res.TargetHidden = target.Hidden
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			return nil, err
		}
		return nil, apperr.Internal(err)
	}

	logger.Log.Info("Flags reviewed",
		zap.String("decision", decision),
		logger.WithTarget(res.TargetType, res.TargetID),
		zap.Int64("closed", res.FlagsClosed),
	)
	p.notifier.Publish(EventReview, map[string]any{
		"decision":      decision,
		"target_type":   res.TargetType,
		"target_id":     res.TargetID,
		"flags_closed":  res.FlagsClosed,
		"flags_count":   res.FlagsCount,
		"target_hidden": res.TargetHidden,
	})
	return res, nil
}

// ListPending returns unreviewed flags, most recent first.
func (p *Pipeline) ListPending(ctx context.Context) ([]models.Flag, error) {
	flags, err := p.store.PendingFlags(ctx, p.cfg.PendingLimit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return flags, nil
}

// RecentFlags returns flags of any status, most recent first.
func (p *Pipeline) RecentFlags(ctx context.Context) ([]models.Flag, error) {
	flags, err := p.store.RecentFlags(ctx, p.cfg.LastFlagsLimit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return flags, nil
}

func (p *Pipeline) CountPending(ctx context.Context) (int64, error) {
	n, err := p.store.CountPendingFlags(ctx)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	return n, nil
}

// TargetInfo returns a post's or reply's moderation state, hidden or not.
func (p *Pipeline) TargetInfo(ctx context.Context, targetType string, id uint) (*store.Target, error) {
	if err := validateTargetType(targetType); err != nil {
		return nil, err
	}
	t, err := p.store.Target(ctx, targetType, id)
	if err != nil {
		return nil, targetError(targetType, err)
	}
	return t, nil
}

func (p *Pipeline) validate(reporter uint, in FlagInput) (*models.Flag, error) {
	targetType := strings.ToLower(strings.TrimSpace(in.TargetType))
	if err := validateTargetType(targetType); err != nil {
		return nil, err
	}
	if in.TargetID == 0 {
		return nil, apperr.Validation("target_id", "target_id is required")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, apperr.Validation("reason", "reason is required")
	}
	if utf8.RuneCountInString(reason) > maxReasonLength {
		return nil, apperr.Validation("reason", "reason is too long")
	}
	details := strings.TrimSpace(in.Details)
	if utf8.RuneCountInString(details) > maxDetailsLength {
		return nil, apperr.Validation("details", "details are too long")
	}
	if reporter == models.SystemReporterID {
		return nil, apperr.Unauthorized("missing caller identity")
	}
	return &models.Flag{
		TargetType: targetType,
		TargetID:   in.TargetID,
		ReporterID: reporter,
		Reason:     reason,
		Details:    details,
		Status:     models.FlagPending,
	}, nil
}

func (p *Pipeline) matchesKeyword(body string) bool {
	if len(p.keywords) == 0 {
		return false
	}
	padded := " " + normalize(body) + " "
	for _, kw := range p.keywords {
		if strings.Contains(padded, kw) {
			return true
		}
	}
	return false
}

// normalize lowercases s and collapses every run of non-alphanumerics into a
// single space, so keywords only match whole words.
func normalize(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	return strings.Join(fields, " ")
}

func validateTargetType(targetType string) error {
	switch targetType {
	case models.TargetPost, models.TargetReply:
		return nil
	default:
		return apperr.Validation("target_type", "target_type must be post or reply")
	}
}

func targetError(targetType string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(targetType)
	}
	return err
}
