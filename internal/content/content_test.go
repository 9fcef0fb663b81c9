package content

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujalbistaa/entrenous/internal/apperr"
	"github.com/sujalbistaa/entrenous/internal/config"
	"github.com/sujalbistaa/entrenous/internal/keylock"
	"github.com/sujalbistaa/entrenous/internal/models"
	"github.com/sujalbistaa/entrenous/internal/moderation"
	"github.com/sujalbistaa/entrenous/internal/store"
	"github.com/sujalbistaa/entrenous/internal/testutil"
)

func newService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	cfg := config.Default()
	s := store.New(testutil.NewDB(t), testutil.NewBox(t))
	locks := keylock.New()
	p := moderation.NewPipeline(s, locks, cfg.Moderation, nil)
	return NewService(s, p, locks, cfg.MaxBodyLength), s
}

func TestValidateBody(t *testing.T) {
	body, err := ValidateBody("  hello  ", 10)
	require.NoError(t, err)
	assert.Equal(t, "hello", body)

	_, err = ValidateBody(" \n\t ", 10)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = ValidateBody(strings.Repeat("é", 11), 10)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = ValidateBody(strings.Repeat("é", 10), 10)
	assert.NoError(t, err)
}

func TestCreatePostAndReply(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, 1, " hello ")
	require.NoError(t, err)
	assert.Equal(t, "hello", post.Body)
	assert.False(t, post.Hidden)

	reply, err := svc.CreateReply(ctx, 2, post.ID, "hi there")
	require.NoError(t, err)
	assert.Equal(t, post.ID, reply.PostID)

	_, err = svc.CreateReply(ctx, 2, 999, "hi")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, s.SetHidden(ctx, models.TargetPost, post.ID, true))
	_, err = svc.CreateReply(ctx, 2, post.ID, "hi")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestKeywordScreenFlagsNewContent(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, 1, "so much hate here")
	require.NoError(t, err)
	assert.Equal(t, 1, post.FlagsCount)

	flag, err := s.FlagByReporter(ctx, models.SystemReporterID, models.TargetPost, post.ID)
	require.NoError(t, err)
	assert.Equal(t, moderation.ReasonKeywordHit, flag.Reason)
}

func TestVote(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, 1, "be kind")
	require.NoError(t, err)

	total, err := svc.Vote(ctx, 2, models.TargetPost, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	total, err = svc.Vote(ctx, 2, models.TargetPost, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, total, "repeat votes are no-ops")

	total, err = svc.Vote(ctx, 3, models.TargetPost, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	_, err = svc.Vote(ctx, 1, models.TargetPost, post.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidOperation)

	_, err = svc.Vote(ctx, 2, models.TargetPost, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, s.SetHidden(ctx, models.TargetPost, post.ID, true))
	_, err = svc.Vote(ctx, 4, models.TargetPost, post.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
