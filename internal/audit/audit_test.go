package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujalbistaa/entrenous/internal/apperr"
	"github.com/sujalbistaa/entrenous/internal/banguard"
	"github.com/sujalbistaa/entrenous/internal/config"
	"github.com/sujalbistaa/entrenous/internal/models"
	"github.com/sujalbistaa/entrenous/internal/store"
	"github.com/sujalbistaa/entrenous/internal/testutil"
)

func setup(t *testing.T) (*Recorder, *store.Store) {
	t.Helper()
	s := store.New(testutil.NewDB(t), testutil.NewBox(t))
	return NewRecorder(s, banguard.New(s, config.Default().Bans), "pepper"), s
}

func TestRecordAndFindByPrefix(t *testing.T) {
	r, s := setup(t)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, 1, models.ActionRegister, "10.0.0.5"))
	require.NoError(t, r.Record(ctx, 1, models.ActionPost, "10.0.0.77"))
	require.NoError(t, r.Record(ctx, 2, models.ActionLogin, "10.0.1.5"))

	events, err := r.ByAddress(ctx, "10.0.0.0/24")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.ActionPost, events[0].Action)
	assert.Equal(t, "10.0.0.77", events[0].IP)
	assert.Equal(t, "10.0.0.5", events[1].IP)

	var stored []string
	require.NoError(t, s.DB().Raw("SELECT ip_sealed FROM session_events").Scan(&stored).Error)
	require.Len(t, stored, 3)
	for _, v := range stored {
		assert.NotContains(t, v, "10.0.")
	}
}

func TestLookupIsKeyed(t *testing.T) {
	r, s := setup(t)

	a, err := r.Lookup("10.0.0.5")
	require.NoError(t, err)
	b, err := r.Lookup("10.0.0.200")
	require.NoError(t, err)
	assert.Equal(t, a, b, "same /24")
	assert.Len(t, a, 64)

	other := NewRecorder(s, banguard.New(s, config.Default().Bans), "another pepper")
	c, err := other.Lookup("10.0.0.5")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestRecordRejectsBadAddress(t *testing.T) {
	r, _ := setup(t)
	err := r.Record(context.Background(), 1, models.ActionLogin, "not-an-ip")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
