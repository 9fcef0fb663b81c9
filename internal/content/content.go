// Package content handles post and reply creation and kindness votes.
package content

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sujalbistaa/entrenous/internal/apperr"
	"github.com/sujalbistaa/entrenous/internal/keylock"
	"github.com/sujalbistaa/entrenous/internal/logger"
	"github.com/sujalbistaa/entrenous/internal/models"
	"github.com/sujalbistaa/entrenous/internal/moderation"
	"github.com/sujalbistaa/entrenous/internal/store"
)

type Service struct {
	store         *store.Store
	pipeline      *moderation.Pipeline
	locks         *keylock.Map
	maxBodyLength int
}

func NewService(s *store.Store, p *moderation.Pipeline, locks *keylock.Map, maxBodyLength int) *Service {
	if locks == nil {
		locks = keylock.New()
	}
	return &Service{store: s, pipeline: p, locks: locks, maxBodyLength: maxBodyLength}
}

// ValidateBody trims body and enforces 1..max runes.
func ValidateBody(body string, max int) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", apperr.Validation("body", "body is required")
	}
	if utf8.RuneCountInString(body) > max {
		return "", apperr.Validation("body", "body is too long")
	}
	return body, nil
}

// CreatePost stores a new post and screens it in the same transaction.
func (s *Service) CreatePost(ctx context.Context, author uint, body string) (*models.Post, error) {
	body, err := ValidateBody(body, s.maxBodyLength)
	if err != nil {
		return nil, err
	}

	post := &models.Post{AuthorID: author, Body: body}
	var screened *moderation.Result
	err = s.store.Tx(ctx, func(tx *store.Store) error {
		if err := tx.CreatePost(ctx, post); err != nil {
			return err
		}
		var err error
		screened, err = s.screen(ctx, tx, models.TargetPost, post.ID, body)
		return err
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if screened != nil {
		post.FlagsCount = screened.FlagsCount
		post.Hidden = screened.Hidden
		s.pipeline.Notify(screened)
	}

	logger.Log.Info("Post created", zap.Uint("post_id", post.ID))
	return post, nil
}

// CreateReply adds a reply to a visible post.
func (s *Service) CreateReply(ctx context.Context, author, postID uint, body string) (*models.Reply, error) {
	body, err := ValidateBody(body, s.maxBodyLength)
	if err != nil {
		return nil, err
	}

	reply := &models.Reply{PostID: postID, AuthorID: author, Body: body}
	var screened *moderation.Result
	err = s.store.Tx(ctx, func(tx *store.Store) error {
		post, err := tx.PostByID(ctx, postID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && post.Hidden) {
			return apperr.NotFound("post")
		}
		if err != nil {
			return err
		}
		if err := tx.CreateReply(ctx, reply); err != nil {
			return err
		}
		screened, err = s.screen(ctx, tx, models.TargetReply, reply.ID, body)
		return err
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			return nil, err
		}
		return nil, apperr.Internal(err)
	}
	if screened != nil {
		reply.FlagsCount = screened.FlagsCount
		reply.Hidden = screened.Hidden
		s.pipeline.Notify(screened)
	}

	logger.Log.Info("Reply created", zap.Uint("reply_id", reply.ID), zap.Uint("post_id", postID))
	return reply, nil
}

func (s *Service) screen(ctx context.Context, tx *store.Store, targetType string, id uint, body string) (*moderation.Result, error) {
	if s.pipeline == nil {
		return nil, nil
	}
	return s.pipeline.Screen(ctx, tx, targetType, id, body)
}

// Vote records voter's kindness vote on a visible post or reply. Repeat votes
// are no-ops. It returns the target's vote total.
func (s *Service) Vote(ctx context.Context, voter uint, targetType string, targetID uint) (int, error) {
	switch targetType {
	case models.TargetPost, models.TargetReply:
	default:
		return 0, apperr.Validation("target_type", "target_type must be post or reply")
	}

	unlock := s.locks.Lock("vote:" + moderation.TargetKey(targetType, targetID))
	defer unlock()

	var total int
	err := s.store.Tx(ctx, func(tx *store.Store) error {
		target, err := tx.Target(ctx, targetType, targetID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && target.Hidden) {
			return apperr.NotFound(targetType)
		}
		if err != nil {
			return err
		}
		if target.AuthorID == voter {
			return apperr.InvalidOperation("cannot vote on your own content")
		}

		voted, err := tx.HasVoted(ctx, voter, targetType, targetID)
		if err != nil {
			return err
		}
		if voted {
			total = target.KindnessVotes
			return nil
		}
		if err := tx.CreateVote(ctx, &models.KindnessVote{VoterID: voter, TargetType: targetType, TargetID: targetID}); err != nil {
			return err
		}
		if err := tx.IncrementKindness(ctx, targetType, targetID); err != nil {
			return err
		}
		total = target.KindnessVotes + 1
		return nil
	})
	if errors.Is(err, store.ErrDuplicate) {
		t, terr := s.store.Target(ctx, targetType, targetID)
		if terr != nil {
			return 0, apperr.Internal(terr)
		}
		return t.KindnessVotes, nil
	}
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			return 0, err
		}
		return 0, apperr.Internal(err)
	}
	return total, nil
}
