// Package feed ranks visible posts by recency, moderation pressure and kindness.
package feed

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/sujalbistaa/entrenous/internal/apperr"
	"github.com/sujalbistaa/entrenous/internal/config"
	"github.com/sujalbistaa/entrenous/internal/models"
	"github.com/sujalbistaa/entrenous/internal/store"
)

type Store interface {
	RecentVisiblePosts(ctx context.Context, limit int) ([]models.Post, error)
	PostByID(ctx context.Context, id uint) (*models.Post, error)
	VisibleReplies(ctx context.Context, postID uint, limit int) ([]models.Reply, error)
}

// Item is a ranked post as seen by one viewer.
type Item struct {
	Post  models.Post
	Score float64
	Mine  bool
}

type ReplyItem struct {
	Reply models.Reply
	Mine  bool
}

// Weights wraps the ranking coefficients.
type Weights config.Ranking

// Score combines a hyperbolic recency decay, a linear flag penalty and a
// saturating kindness bonus capped at KindnessCap.
func (w Weights) Score(age time.Duration, flags, votes int) float64 {
	if age < 0 {
		age = 0
	}
	recency := w.RecencyWeight / (1 + age.Seconds()/w.HalfLife.Seconds())
	penalty := w.FlagPenalty * float64(flags)
	bonus := w.KindnessCap * (1 - math.Exp(-float64(votes)/w.KindnessScale))
	return recency - penalty + bonus
}

type Engine struct {
	store   Store
	weights Weights
	now     func() time.Time
}

func NewEngine(s Store, cfg config.Ranking) *Engine {
	return &Engine{store: s, weights: Weights(cfg), now: time.Now}
}

// GetFeed scores the newest visible posts and orders them by score, then
// created_at descending, then id descending.
func (e *Engine) GetFeed(ctx context.Context, viewer uint) ([]Item, error) {
	posts, err := e.store.RecentVisiblePosts(ctx, e.weights.CandidateLimit)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	now := e.now()
	items := make([]Item, 0, len(posts))
	for _, p := range posts {
		if p.Hidden {
			continue
		}
		items = append(items, Item{
			Post:  p,
			Score: e.weights.Score(now.Sub(p.CreatedAt), p.FlagsCount, p.KindnessVotes),
			Mine:  viewer != 0 && p.AuthorID == viewer,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Post.CreatedAt.Equal(b.Post.CreatedAt) {
			return a.Post.CreatedAt.After(b.Post.CreatedAt)
		}
		return a.Post.ID > b.Post.ID
	})
	return items, nil
}

// GetReplies lists a visible post's visible replies, oldest first.
func (e *Engine) GetReplies(ctx context.Context, viewer, postID uint) ([]ReplyItem, error) {
	post, err := e.store.PostByID(ctx, postID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("post")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if post.Hidden {
		return nil, apperr.NotFound("post")
	}

	replies, err := e.store.VisibleReplies(ctx, postID, e.weights.ReplyLimit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	items := make([]ReplyItem, 0, len(replies))
	for _, r := range replies {
		if r.Hidden {
			continue
		}
		items = append(items, ReplyItem{Reply: r, Mine: viewer != 0 && r.AuthorID == viewer})
	}
	return items, nil
}
