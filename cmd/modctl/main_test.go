package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujalbistaa/entrenous/internal/banguard"
	"github.com/sujalbistaa/entrenous/internal/config"
	"github.com/sujalbistaa/entrenous/internal/db"
	"github.com/sujalbistaa/entrenous/internal/seal"
	"github.com/sujalbistaa/entrenous/internal/store"
	"github.com/sujalbistaa/entrenous/internal/testutil"
)

var testContentKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, seal.KeySize))

func TestSettingsShareServerConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite://from-env.db")
	t.Setenv("BAN_IPV4_PREFIX", "16")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("RANK_HALF_LIFE", "2h")

	v := newSettings()
	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "sqlite://from-env.db", cfg.DatabaseURL)
	assert.Equal(t, 16, cfg.Bans.IPv4PrefixLen)
	assert.Equal(t, config.Default().Bans.IPv6PrefixLen, cfg.Bans.IPv6PrefixLen)
	assert.Equal(t, "s3cret", cfg.EmailLookupPepper)
	assert.Equal(t, "2h0m0s", cfg.Ranking.HalfLife.String(), "keys the old hand-picked subset missed")
	assert.Equal(t, "warn", v.GetString(config.KeyLogLevel))

	t.Setenv("PENDING_LIMIT", "many")
	_, err = config.FromViper(newSettings())
	assert.ErrorContains(t, err, "PENDING_LIMIT")
}

func TestNewAppNeedsContentKey(t *testing.T) {
	cfg := config.Default()
	_, err := newApp(cfg, testutil.NewDB(t))
	assert.ErrorContains(t, err, "CONTENT_ENC_KEY")
}

func TestSeedDemo(t *testing.T) {
	cfg := config.Default()
	cfg.JWTSecret = "seed"
	cfg.EmailLookupPepper = "seed"
	cfg.Moderation.Keywords = nil
	cfg.ContentKey = testContentKey
	a, err := newApp(cfg, testutil.NewDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	stats, err := seedDemo(ctx, a, 3, 4, 6, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Users)
	assert.Equal(t, 4, stats.Posts)
	assert.Equal(t, 6, stats.Replies)
	assert.LessOrEqual(t, stats.Votes, 10)

	posts, err := a.store.RecentVisiblePosts(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, posts, 4)

	_, err = seedDemo(ctx, a, 1, 1, 1, 1)
	assert.Error(t, err)
}

func TestBanCommandsAgainstSQLite(t *testing.T) {
	dir := t.TempDir()
	// two handles share the file below
	dbURL := "sqlite://" + filepath.Join(dir, "modctl.db") + "?_pragma=busy_timeout(5000)"
	t.Setenv("LOG_FILE", filepath.Join(dir, "modctl.log"))
	t.Setenv("CONTENT_ENC_KEY", testContentKey)

	run := func(args ...string) error {
		rootCmd.SetArgs(append([]string{"--database-url", dbURL}, args...))
		return rootCmd.ExecuteContext(context.Background())
	}

	require.NoError(t, run("ban", "add", "10.1.2.3", "--reason", "scraping"))
	require.NoError(t, run("ban", "list"))

	gdb, err := db.Init(dbURL)
	require.NoError(t, err)
	box, err := seal.FromBase64(testContentKey)
	require.NoError(t, err)
	st := store.New(gdb, box)
	ctx := context.Background()
	ban, err := st.BanByPrefix(ctx, "10.1.2.0/24")
	require.NoError(t, err)
	assert.True(t, ban.Active)
	assert.Equal(t, "scraping", ban.Reason)

	// a guard that loaded before the CLI lift still sees the change at once
	server := banguard.New(st, config.Default().Bans)
	require.NoError(t, server.Load(ctx))
	assert.False(t, server.Check(ctx, "10.1.2.3").Allowed)
	require.NoError(t, run("ban", "lift", "10.1.2.0/24"))
	assert.True(t, server.Check(ctx, "10.1.2.3").Allowed)
	require.NoError(t, run("ban", "add", "10.1.2.3", "--reason", "again"))
	assert.False(t, server.Check(ctx, "10.1.2.3").Allowed)

	require.NoError(t, run("audit", "10.1.2.3"))
	assert.Error(t, run("audit", "not-an-ip"))
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	require.NoError(t, run("ban", "lift", "10.1.2.0/24"))
	assert.Error(t, run("ban", "lift", "10.9.9.0/24"))
	assert.Error(t, run("ban", "add", "not-an-ip"))
	require.NoError(t, run("flags", "pending"))
}
