package moderation

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujalbistaa/entrenous/internal/apperr"
	"github.com/sujalbistaa/entrenous/internal/config"
	"github.com/sujalbistaa/entrenous/internal/models"
	"github.com/sujalbistaa/entrenous/internal/store"
	"github.com/sujalbistaa/entrenous/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Publish(eventType string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *recorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	p     *Pipeline
	s     *store.Store
	rec   *recorder
	post  *models.Post
	reply *models.Reply
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s := store.New(testutil.NewDB(t), testutil.NewBox(t))
	rec := &recorder{}
	p := NewPipeline(s, nil, config.Default().Moderation, rec)

	ctx := context.Background()
	post := &models.Post{AuthorID: 1, Body: "hello"}
	require.NoError(t, s.CreatePost(ctx, post))
	reply := &models.Reply{PostID: post.ID, AuthorID: 2, Body: "hi"}
	require.NoError(t, s.CreateReply(ctx, reply))
	return &fixture{p: p, s: s, rec: rec, post: post, reply: reply}
}

func flagPost(id uint) FlagInput {
	return FlagInput{TargetType: models.TargetPost, TargetID: id, Reason: "spam"}
}

func TestSubmitFlagIsIdempotentPerReporter(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.p.SubmitFlag(ctx, 10, flagPost(f.post.ID))
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, 1, first.FlagsCount)

	second, err := f.p.SubmitFlag(ctx, 10, flagPost(f.post.ID))
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Flag.ID, second.Flag.ID)

	target, err := f.s.Target(ctx, models.TargetPost, f.post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, target.FlagsCount)
	assert.Equal(t, 1, f.rec.count(EventFlag))
}

func TestAutoHideAtThreshold(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for reporter := uint(10); reporter < 14; reporter++ {
		res, err := f.p.SubmitFlag(ctx, reporter, flagPost(f.post.ID))
		require.NoError(t, err)
		assert.False(t, res.Hidden)
	}

	res, err := f.p.SubmitFlag(ctx, 14, flagPost(f.post.ID))
	require.NoError(t, err)
	assert.Equal(t, 5, res.FlagsCount)
	assert.True(t, res.Hidden)
	assert.True(t, res.AutoHidden)
	assert.Equal(t, 1, f.rec.count(EventAutoHide))

	target, err := f.s.Target(ctx, models.TargetPost, f.post.ID)
	require.NoError(t, err)
	assert.True(t, target.Hidden)

	res, err = f.p.SubmitFlag(ctx, 15, flagPost(f.post.ID))
	require.NoError(t, err)
	assert.False(t, res.AutoHidden, "already hidden")
	assert.Equal(t, 6, res.FlagsCount)
}

func TestConcurrentReportersLoseNoIncrements(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	const reporters = 12
	var wg sync.WaitGroup
	errs := make(chan error, reporters*2)
	for i := 0; i < reporters; i++ {
		for dup := 0; dup < 2; dup++ {
			wg.Add(1)
			go func(reporter uint) {
				defer wg.Done()
				_, err := f.p.SubmitFlag(ctx, reporter, flagPost(f.post.ID))
				errs <- err
			}(uint(100 + i))
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	target, err := f.s.Target(ctx, models.TargetPost, f.post.ID)
	require.NoError(t, err)
	assert.Equal(t, reporters, target.FlagsCount)
	assert.True(t, target.Hidden)

	n, err := f.p.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(reporters), n)
}

func TestSubmitFlagErrors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.p.SubmitFlag(ctx, 10, flagPost(9999))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.p.SubmitFlag(ctx, 10, FlagInput{TargetType: "dm", TargetID: 1, Reason: "x"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.p.SubmitFlag(ctx, 10, FlagInput{TargetType: models.TargetPost, TargetID: f.post.ID, Reason: "  "})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	n, err := f.p.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFlagReply(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res, err := f.p.SubmitFlag(ctx, 10, FlagInput{TargetType: "REPLY", TargetID: f.reply.ID, Reason: "rude", Details: "see thread"})
	require.NoError(t, err)
	assert.Equal(t, models.TargetReply, res.Flag.TargetType)
	assert.Equal(t, "see thread", res.Flag.Details)

	info, err := f.p.TargetInfo(ctx, models.TargetReply, f.reply.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, info.FlagsCount)
}

func TestReviewDecisions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var flagID uint
	for reporter := uint(10); reporter < 15; reporter++ {
		res, err := f.p.SubmitFlag(ctx, reporter, flagPost(f.post.ID))
		require.NoError(t, err)
		flagID = res.Flag.ID
	}

	res, err := f.p.Review(ctx, flagID, "restore")
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.FlagsClosed)
	assert.Equal(t, 0, res.FlagsCount)
	assert.False(t, res.TargetHidden)

	pending, err := f.p.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	recent, err := f.p.RecentFlags(ctx)
	require.NoError(t, err)
	assert.Len(t, recent, 5, "reviewed flags stay in history")
	for _, fl := range recent {
		assert.Equal(t, models.FlagReviewed, fl.Status)
		assert.NotNil(t, fl.ReviewedAt)
	}

	res, err = f.p.Review(ctx, flagID, "remove")
	require.NoError(t, err)
	assert.True(t, res.TargetHidden)

	res, err = f.p.Review(ctx, flagID, "dismiss")
	require.NoError(t, err)
	assert.True(t, res.TargetHidden, "dismiss leaves the target alone")

	_, err = f.p.Review(ctx, flagID, "ban")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.p.Review(ctx, 9999, "dismiss")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 3, f.rec.count(EventReview))
}

func TestListPendingMostRecentFirst(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.p.SubmitFlag(ctx, 10, flagPost(f.post.ID))
	require.NoError(t, err)
	_, err = f.p.SubmitFlag(ctx, 10, FlagInput{TargetType: models.TargetReply, TargetID: f.reply.ID, Reason: "rude"})
	require.NoError(t, err)

	pending, err := f.p.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, models.TargetReply, pending[0].TargetType)
}

func TestScreenRaisesSystemFlag(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var res *Result
	err := f.s.Tx(ctx, func(tx *store.Store) error {
		var err error
		res, err = f.p.Screen(ctx, tx, models.TargetPost, f.post.ID, "I HATE mondays")
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, models.SystemReporterID, res.Flag.ReporterID)
	assert.Equal(t, ReasonKeywordHit, res.Flag.Reason)
	assert.Equal(t, 1, res.FlagsCount)

	err = f.s.Tx(ctx, func(tx *store.Store) error {
		res, err = f.p.Screen(ctx, tx, models.TargetReply, f.reply.ID, "whatever works")
		return err
	})
	require.NoError(t, err)
	assert.Nil(t, res, "keywords match whole words only")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "self harm", normalize("Self-Harm"))
	assert.Equal(t, "a b c", normalize("  a,b...c "))
	assert.Equal(t, "", normalize("!!!"))
}
