package seal

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBox(t *testing.T, fill byte) *Box {
	t.Helper()
	b, err := New(bytes.Repeat([]byte{fill}, KeySize))
	require.NoError(t, err)
	return b
}

func TestSealOpen(t *testing.T) {
	b := newBox(t, 1)

	sealed, err := b.Seal("meet me at the café")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "café")

	plain, err := b.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "meet me at the café", plain)

	again, err := b.Seal("meet me at the café")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce is fresh per call")
}

func TestOpenRejectsTamperingAndWrongKey(t *testing.T) {
	b := newBox(t, 1)
	sealed, err := b.Seal("hello")
	require.NoError(t, err)

	_, err = newBox(t, 2).Open(sealed)
	assert.ErrorIs(t, err, ErrCorrupt)

	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff
	_, err = b.Open(base64.StdEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrCorrupt)

	for _, in := range []string{"", "not base64!", base64.StdEncoding.EncodeToString([]byte("short"))} {
		_, err = b.Open(in)
		assert.ErrorIs(t, err, ErrCorrupt, in)
	}
}

func TestKeyValidation(t *testing.T) {
	_, err := New([]byte("short"))
	assert.ErrorIs(t, err, ErrKeySize)

	_, err = FromBase64("%%%")
	assert.Error(t, err)

	b, err := FromBase64(base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", KeySize))))
	require.NoError(t, err)
	assert.NotNil(t, b)
}
