package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sujalbistaa/entrenous/internal/models"
)

const banRevisionID = 1

func (s *Store) ActiveBans(ctx context.Context) ([]models.IPBan, error) {
	var bans []models.IPBan
	err := s.retry(ctx, "active_bans", func() error {
		return s.q(ctx).Where("active = ?", true).Order("id ASC").Find(&bans).Error
	})
	return bans, err
}

func (s *Store) BanByPrefix(ctx context.Context, prefix string) (*models.IPBan, error) {
	var b models.IPBan
	err := s.retry(ctx, "ban_by_prefix", func() error {
		return s.q(ctx).Where("prefix = ?", prefix).First(&b).Error
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpsertBan activates a ban on prefix, creating it if needed.
func (s *Store) UpsertBan(ctx context.Context, prefix, reason string) (*models.IPBan, error) {
	var out *models.IPBan
	err := s.Tx(ctx, func(tx *Store) error {
		b, err := tx.BanByPrefix(ctx, prefix)
		switch {
		case errors.Is(err, ErrNotFound):
			b = &models.IPBan{Prefix: prefix, Reason: reason, Active: true}
			if err := tx.q(ctx).Create(b).Error; err != nil {
				return translate(err)
			}
		case err != nil:
			return err
		default:
			b.Reason = reason
			b.Active = true
			if err := tx.q(ctx).Save(b).Error; err != nil {
				return translate(err)
			}
		}
		out = b
		return tx.bumpBanRevision(ctx)
	})
	return out, err
}

// DeactivateBan keeps the row for audit but stops it from matching.
func (s *Store) DeactivateBan(ctx context.Context, prefix string) (*models.IPBan, error) {
	var out *models.IPBan
	err := s.Tx(ctx, func(tx *Store) error {
		b, err := tx.BanByPrefix(ctx, prefix)
		if err != nil {
			return err
		}
		b.Active = false
		if err := tx.q(ctx).Save(b).Error; err != nil {
			return translate(err)
		}
		out = b
		return tx.bumpBanRevision(ctx)
	})
	return out, err
}

// RecentBans lists bans of any state, most recently changed first.
func (s *Store) RecentBans(ctx context.Context, limit int) ([]models.IPBan, error) {
	var bans []models.IPBan
	err := s.retry(ctx, "recent_bans", func() error {
		return s.q(ctx).Order("updated_at DESC").Order("id DESC").Limit(limit).Find(&bans).Error
	})
	return bans, err
}

func (s *Store) CountActiveBans(ctx context.Context) (int64, error) {
	var n int64
	err := s.retry(ctx, "count_active_bans", func() error {
		return s.q(ctx).Model(&models.IPBan{}).Where("active = ?", true).Count(&n).Error
	})
	return n, err
}

// BanRevision returns the counter bumped by every ban write. Zero means no
// ban has ever been written.
func (s *Store) BanRevision(ctx context.Context) (int64, error) {
	var rev models.BanRevision
	err := s.retry(ctx, "ban_revision", func() error {
		return s.q(ctx).Where("id = ?", banRevisionID).Take(&rev).Error
	})
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	return rev.Revision, err
}

func (s *Store) bumpBanRevision(ctx context.Context) error {
	err := s.q(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{"revision": gorm.Expr("ban_revisions.revision + 1")}),
	}).Create(&models.BanRevision{ID: banRevisionID, Revision: 1}).Error
	return translate(err)
}
