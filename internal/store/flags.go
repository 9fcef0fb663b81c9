package store

import (
	"context"
	"time"

	"github.com/sujalbistaa/entrenous/internal/models"
)

func (s *Store) CreateFlag(ctx context.Context, f *models.Flag) error {
	return s.retry(ctx, "create_flag", func() error {
		return s.q(ctx).Create(f).Error
	})
}

func (s *Store) FlagByID(ctx context.Context, id uint) (*models.Flag, error) {
	var f models.Flag
	err := s.retry(ctx, "flag_by_id", func() error {
		return s.q(ctx).First(&f, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// FlagByReporter finds the single flag a reporter may hold on a target.
func (s *Store) FlagByReporter(ctx context.Context, reporterID uint, targetType string, targetID uint) (*models.Flag, error) {
	var f models.Flag
	err := s.retry(ctx, "flag_by_reporter", func() error {
		return s.q(ctx).
			Where("reporter_id = ? AND target_type = ? AND target_id = ?", reporterID, targetType, targetID).
			First(&f).Error
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// PendingFlags lists unreviewed flags, newest first.
func (s *Store) PendingFlags(ctx context.Context, limit int) ([]models.Flag, error) {
	var flags []models.Flag
	err := s.retry(ctx, "pending_flags", func() error {
		return s.q(ctx).
			Where("status = ?", models.FlagPending).
			Order("created_at DESC").Order("id DESC").
			Limit(limit).
			Find(&flags).Error
	})
	return flags, err
}

// RecentFlags lists flags of any status, newest first.
func (s *Store) RecentFlags(ctx context.Context, limit int) ([]models.Flag, error) {
	var flags []models.Flag
	err := s.retry(ctx, "recent_flags", func() error {
		return s.q(ctx).
			Order("created_at DESC").Order("id DESC").
			Limit(limit).
			Find(&flags).Error
	})
	return flags, err
}

func (s *Store) CountPendingFlags(ctx context.Context) (int64, error) {
	var n int64
	err := s.retry(ctx, "count_pending_flags", func() error {
		return s.q(ctx).Model(&models.Flag{}).Where("status = ?", models.FlagPending).Count(&n).Error
	})
	return n, err
}

// MarkTargetFlagsReviewed closes every pending flag on a target and returns
// how many were closed.
func (s *Store) MarkTargetFlagsReviewed(ctx context.Context, targetType string, targetID uint, at time.Time) (int64, error) {
	var n int64
	err := s.retry(ctx, "mark_target_flags_reviewed", func() error {
		res := s.q(ctx).Model(&models.Flag{}).
			Where("target_type = ? AND target_id = ? AND status = ?", targetType, targetID, models.FlagPending).
			Updates(map[string]any{"status": models.FlagReviewed, "reviewed_at": at})
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}
