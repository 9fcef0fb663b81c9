package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"

	"github.com/sujalbistaa/entrenous/internal/apperr"
	"github.com/sujalbistaa/entrenous/internal/models"
)

const seedPassword = "password123"

var (
	seedUsers   int
	seedPosts   int
	seedReplies int
	seedVotes   int
)

type seedStats struct {
	Users   int
	Posts   int
	Replies int
	Votes   int
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill a development database with fake users and content",
	Long:  "Every seeded account uses the password " + seedPassword + ".",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := seedDemo(cmd.Context(), a, seedUsers, seedPosts, seedReplies, seedVotes)
		if err != nil {
			return err
		}
		printSuccess("Seeded %d users, %d posts, %d replies, %d votes", stats.Users, stats.Posts, stats.Replies, stats.Votes)
		return nil
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedUsers, "users", 20, "Number of accounts")
	seedCmd.Flags().IntVar(&seedPosts, "posts", 50, "Number of posts")
	seedCmd.Flags().IntVar(&seedReplies, "replies", 100, "Number of replies")
	seedCmd.Flags().IntVar(&seedVotes, "votes", 150, "Number of kindness votes to attempt")
}

// seedDemo writes through the same services the API uses, so keyword
// screening and vote rules apply to seeded content too.
func seedDemo(ctx context.Context, a *app, users, posts, replies, votes int) (seedStats, error) {
	var stats seedStats
	if users < 2 {
		return stats, fmt.Errorf("need at least 2 users, got %d", users)
	}
	_ = gofakeit.Seed(time.Now().UnixNano())

	userIDs := make([]uint, 0, users)
	for len(userIDs) < users {
		u, err := a.auth.Register(ctx, gofakeit.Email(), seedPassword)
		if apperr.KindOf(err) == apperr.KindConflict {
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("failed to seed user: %w", err)
		}
		userIDs = append(userIDs, u.ID)
	}
	stats.Users = len(userIDs)

	var targets []target
	postIDs := make([]uint, 0, posts)
	for range posts {
		p, err := a.content.CreatePost(ctx, pick(userIDs), gofakeit.HipsterSentence())
		if err != nil {
			return stats, fmt.Errorf("failed to seed post: %w", err)
		}
		postIDs = append(postIDs, p.ID)
		targets = append(targets, target{models.TargetPost, p.ID})
		stats.Posts++
	}

	if len(postIDs) > 0 {
		for range replies {
			r, err := a.content.CreateReply(ctx, pick(userIDs), pick(postIDs), gofakeit.HipsterSentence())
			if apperr.KindOf(err) == apperr.KindNotFound {
				// The post was hidden by the keyword screen.
				continue
			}
			if err != nil {
				return stats, fmt.Errorf("failed to seed reply: %w", err)
			}
			targets = append(targets, target{models.TargetReply, r.ID})
			stats.Replies++
		}
	}

	if len(targets) > 0 {
		for range votes {
			t := pick(targets)
			before, err := a.store.Target(ctx, t.kind, t.id)
			if err != nil {
				return stats, err
			}
			after, err := a.content.Vote(ctx, pick(userIDs), t.kind, t.id)
			switch apperr.KindOf(err) {
			case apperr.KindInvalidOperation, apperr.KindNotFound:
				continue
			}
			if err != nil {
				return stats, fmt.Errorf("failed to seed vote: %w", err)
			}
			if after > before.KindnessVotes {
				stats.Votes++
			}
		}
	}
	return stats, nil
}

type target struct {
	kind string
	id   uint
}

func pick[T any](xs []T) T {
	return xs[rand.IntN(len(xs))]
}
