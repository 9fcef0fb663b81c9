package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujalbistaa/entrenous/internal/apperr"
	"github.com/sujalbistaa/entrenous/internal/config"
	"github.com/sujalbistaa/entrenous/internal/models"
	"github.com/sujalbistaa/entrenous/internal/store"
	"github.com/sujalbistaa/entrenous/internal/testutil"
)

func weights() Weights {
	return Weights(config.Default().Ranking)
}

func TestScoreDecreasesWithFlags(t *testing.T) {
	w := weights()
	for flags := 0; flags < 20; flags++ {
		assert.Greater(t, w.Score(time.Hour, flags, 3), w.Score(time.Hour, flags+1, 3))
	}
	assert.Greater(t, w.Score(time.Minute, 0, 0), w.Score(time.Minute, 5, 0))
}

func TestScoreDecreasesWithAge(t *testing.T) {
	w := weights()
	prev := w.Score(0, 1, 1)
	for _, age := range []time.Duration{time.Second, time.Minute, time.Hour, 24 * time.Hour, 30 * 24 * time.Hour} {
		s := w.Score(age, 1, 1)
		assert.Less(t, s, prev, age.String())
		prev = s
	}
}

func TestKindnessBonusIsBoundedAndIncreasing(t *testing.T) {
	w := weights()
	base := w.Score(time.Hour, 0, 0)
	prev := base
	for votes := 1; votes <= 50; votes++ {
		s := w.Score(time.Hour, 0, votes)
		assert.Greater(t, s, prev)
		assert.Less(t, s-base, w.KindnessCap+1e-9)
		prev = s
	}
}

func newEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	s := store.New(testutil.NewDB(t), testutil.NewBox(t))
	return NewEngine(s, config.Default().Ranking), s
}

func TestFeedExcludesHiddenPosts(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()

	visible := &models.Post{AuthorID: 1, Body: "visible"}
	hidden := &models.Post{AuthorID: 1, Body: "hidden"}
	require.NoError(t, s.CreatePost(ctx, visible))
	require.NoError(t, s.CreatePost(ctx, hidden))
	require.NoError(t, s.SetHidden(ctx, models.TargetPost, hidden.ID, true))

	items, err := e.GetFeed(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, visible.ID, items[0].Post.ID)
	assert.True(t, items[0].Mine)

	items, err = e.GetFeed(ctx, 2)
	require.NoError(t, err)
	assert.False(t, items[0].Mine)
}

func TestFeedOrdering(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	old := &models.Post{AuthorID: 1, Body: "old", CreatedAt: now.Add(-48 * time.Hour)}
	fresh := &models.Post{AuthorID: 1, Body: "fresh", CreatedAt: now.Add(-time.Minute)}
	flagged := &models.Post{AuthorID: 1, Body: "flagged", CreatedAt: now.Add(-time.Minute), FlagsCount: 7}
	tieA := &models.Post{AuthorID: 1, Body: "tie a", CreatedAt: now.Add(-10 * time.Hour)}
	tieB := &models.Post{AuthorID: 1, Body: "tie b", CreatedAt: now.Add(-10 * time.Hour)}
	for _, p := range []*models.Post{old, fresh, flagged, tieA, tieB} {
		require.NoError(t, s.CreatePost(ctx, p))
	}

	items, err := e.GetFeed(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 5)

	var order []string
	for _, it := range items {
		order = append(order, it.Post.Body)
	}
	assert.Equal(t, []string{"fresh", "tie b", "tie a", "old", "flagged"}, order)
	for i := 1; i < len(items); i++ {
		assert.GreaterOrEqual(t, items[i-1].Score, items[i].Score)
	}
}

func TestGetReplies(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()

	post := &models.Post{AuthorID: 1, Body: "post"}
	require.NoError(t, s.CreatePost(ctx, post))
	first := &models.Reply{PostID: post.ID, AuthorID: 2, Body: "first"}
	second := &models.Reply{PostID: post.ID, AuthorID: 3, Body: "second"}
	gone := &models.Reply{PostID: post.ID, AuthorID: 3, Body: "gone"}
	for _, r := range []*models.Reply{first, second, gone} {
		require.NoError(t, s.CreateReply(ctx, r))
	}
	require.NoError(t, s.SetHidden(ctx, models.TargetReply, gone.ID, true))

	items, err := e.GetReplies(ctx, 2, post.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "first", items[0].Reply.Body)
	assert.True(t, items[0].Mine)
	assert.Equal(t, "second", items[1].Reply.Body)

	_, err = e.GetReplies(ctx, 2, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, s.SetHidden(ctx, models.TargetPost, post.ID, true))
	_, err = e.GetReplies(ctx, 2, post.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
