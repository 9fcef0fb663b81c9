package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sujalbistaa/entrenous/internal/models"
)

// Target is the moderation-relevant state shared by posts and replies.
type Target struct {
	Type          string
	ID            uint
	PostID        uint
	AuthorID      uint
	FlagsCount    int
	KindnessVotes int
	Hidden        bool
	CreatedAt     time.Time
}

func (s *Store) CreatePost(ctx context.Context, p *models.Post) error {
	sealed, err := s.seal(p.Body)
	if err != nil {
		return err
	}
	p.BodySealed = sealed
	return s.retry(ctx, "create_post", func() error {
		return s.q(ctx).Create(p).Error
	})
}

func (s *Store) PostByID(ctx context.Context, id uint) (*models.Post, error) {
	var p models.Post
	err := s.retry(ctx, "post_by_id", func() error {
		return s.q(ctx).First(&p, id).Error
	})
	if err != nil {
		return nil, err
	}
	if p.Body, err = s.open(models.TargetPost, p.ID, p.BodySealed); err != nil {
		return nil, err
	}
	return &p, nil
}

// RecentVisiblePosts returns up to limit non-hidden posts, newest first.
func (s *Store) RecentVisiblePosts(ctx context.Context, limit int) ([]models.Post, error) {
	var posts []models.Post
	err := s.retry(ctx, "recent_visible_posts", func() error {
		return s.q(ctx).
			Where("hidden = ?", false).
			Order("created_at DESC").Order("id DESC").
			Limit(limit).
			Find(&posts).Error
	})
	if err != nil {
		return nil, err
	}
	for i := range posts {
		if posts[i].Body, err = s.open(models.TargetPost, posts[i].ID, posts[i].BodySealed); err != nil {
			return nil, err
		}
	}
	return posts, nil
}

func (s *Store) CreateReply(ctx context.Context, r *models.Reply) error {
	sealed, err := s.seal(r.Body)
	if err != nil {
		return err
	}
	r.BodySealed = sealed
	return s.retry(ctx, "create_reply", func() error {
		return s.q(ctx).Create(r).Error
	})
}

func (s *Store) ReplyByID(ctx context.Context, id uint) (*models.Reply, error) {
	var r models.Reply
	err := s.retry(ctx, "reply_by_id", func() error {
		return s.q(ctx).First(&r, id).Error
	})
	if err != nil {
		return nil, err
	}
	if r.Body, err = s.open(models.TargetReply, r.ID, r.BodySealed); err != nil {
		return nil, err
	}
	return &r, nil
}

// VisibleReplies returns non-hidden replies of a post, oldest first.
func (s *Store) VisibleReplies(ctx context.Context, postID uint, limit int) ([]models.Reply, error) {
	var replies []models.Reply
	err := s.retry(ctx, "visible_replies", func() error {
		return s.q(ctx).
			Where("post_id = ? AND hidden = ?", postID, false).
			Order("created_at ASC").Order("id ASC").
			Limit(limit).
			Find(&replies).Error
	})
	if err != nil {
		return nil, err
	}
	for i := range replies {
		if replies[i].Body, err = s.open(models.TargetReply, replies[i].ID, replies[i].BodySealed); err != nil {
			return nil, err
		}
	}
	return replies, nil
}

// Target loads a post or reply by type and id.
func (s *Store) Target(ctx context.Context, targetType string, id uint) (*Target, error) {
	switch targetType {
	case models.TargetPost:
		p, err := s.PostByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return &Target{
			Type:          models.TargetPost,
			ID:            p.ID,
			PostID:        p.ID,
			AuthorID:      p.AuthorID,
			FlagsCount:    p.FlagsCount,
			KindnessVotes: p.KindnessVotes,
			Hidden:        p.Hidden,
			CreatedAt:     p.CreatedAt,
		}, nil
	case models.TargetReply:
		r, err := s.ReplyByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return &Target{
			Type:          models.TargetReply,
			ID:            r.ID,
			PostID:        r.PostID,
			AuthorID:      r.AuthorID,
			FlagsCount:    r.FlagsCount,
			KindnessVotes: r.KindnessVotes,
			Hidden:        r.Hidden,
			CreatedAt:     r.CreatedAt,
		}, nil
	default:
		_, err := modelFor(targetType)
		return nil, err
	}
}

// IncrementFlags adds one to the target's flag counter in place.
func (s *Store) IncrementFlags(ctx context.Context, targetType string, id uint) error {
	return s.updateTarget(ctx, "increment_flags", targetType, id, map[string]any{
		"flags_count": gorm.Expr("flags_count + ?", 1),
	})
}

func (s *Store) SetHidden(ctx context.Context, targetType string, id uint, hidden bool) error {
	return s.updateTarget(ctx, "set_hidden", targetType, id, map[string]any{
		"hidden": hidden,
	})
}

// ResetFlags zeroes the counter and unhides the target.
func (s *Store) ResetFlags(ctx context.Context, targetType string, id uint) error {
	return s.updateTarget(ctx, "reset_flags", targetType, id, map[string]any{
		"flags_count": 0,
		"hidden":      false,
	})
}

func (s *Store) IncrementKindness(ctx context.Context, targetType string, id uint) error {
	return s.updateTarget(ctx, "increment_kindness", targetType, id, map[string]any{
		"kindness_votes": gorm.Expr("kindness_votes + ?", 1),
	})
}

func (s *Store) updateTarget(ctx context.Context, op, targetType string, id uint, cols map[string]any) error {
	model, err := modelFor(targetType)
	if err != nil {
		return err
	}
	return s.retry(ctx, op, func() error {
		res := s.q(ctx).Model(model).Where("id = ?", id).UpdateColumns(cols)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Store) CreateVote(ctx context.Context, v *models.KindnessVote) error {
	return s.retry(ctx, "create_vote", func() error {
		return s.q(ctx).Create(v).Error
	})
}

// HasVoted reports whether voterID already voted on the target.
func (s *Store) HasVoted(ctx context.Context, voterID uint, targetType string, targetID uint) (bool, error) {
	var n int64
	err := s.retry(ctx, "has_voted", func() error {
		return s.q(ctx).Model(&models.KindnessVote{}).
			Where("voter_id = ? AND target_type = ? AND target_id = ?", voterID, targetType, targetID).
			Count(&n).Error
	})
	return n > 0, err
}
