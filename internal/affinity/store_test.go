package affinity

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CountersFloorAndIdempotence(t *testing.T) {
	cnt := newCounters("x")
	s := NewMemoryStore(cnt)
	ctx := context.Background()

	got, err := s.Remove(ctx, "alice", KindLike, "x")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, got)
	assert.Zero(t, cnt.get("x", "reviewCount"), "removing a non-member changes nothing")

	got, err = s.Add(ctx, "alice", KindLike, "x")
	require.NoError(t, err)
	assert.Equal(t, OutcomeChanged, got)
	got, err = s.Add(ctx, "alice", KindLike, "x")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, got)
	assert.Equal(t, 1, cnt.get("x", "reviewCount"))

	ids, err := s.Members(ctx, "alice", KindLike)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, ids)
}

func TestMemoryStore_RemoveDanglingMembership(t *testing.T) {
	cnt := newCounters("x")
	s := NewMemoryStore(cnt)
	ctx := context.Background()

	got, err := s.Add(ctx, "alice", KindFavorite, "x")
	require.NoError(t, err)
	require.Equal(t, OutcomeChanged, got)

	cnt.drop("x")

	got, err = s.Add(ctx, "alice", KindLike, "x")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefused, got, "adding a deleted establishment is refused")

	got, err = s.Remove(ctx, "alice", KindFavorite, "x")
	require.NoError(t, err)
	assert.Equal(t, OutcomeChanged, got)

	ids, err := s.Members(ctx, "alice", KindFavorite)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMemoryGuard(t *testing.T) {
	g := NewMemoryGuard()
	ctx := context.Background()

	ok, err := g.Acquire(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Acquire(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, g.Release(ctx, "k"))
	ok, err = g.Acquire(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisGuard_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}
	t.Cleanup(func() { _ = client.Close() })

	key := toggleKey("test-user", KindLike, "test-est")
	client.Del(ctx, key)

	a := NewRedisGuard(client, 2*time.Second)
	b := NewRedisGuard(client, 2*time.Second)

	ok, err := a.Acquire(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "held by another replica")

	require.NoError(t, b.Release(ctx, key), "non-holder release is a no-op")
	ok, err = b.Acquire(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx, key))
	ok, err = b.Acquire(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Release(ctx, key))
}

func TestPostgresStore_Integration(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("test database unreachable: %v", err)
	}
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS establishments (
			id TEXT PRIMARY KEY,
			city TEXT NOT NULL,
			review_count INTEGER NOT NULL DEFAULT 0,
			favorites_count INTEGER NOT NULL DEFAULT 0
		);
		INSERT INTO establishments (id, city, review_count) VALUES ('aff-x', 'porto', 0)
		ON CONFLICT (id) DO UPDATE SET review_count = 0;
	`)
	require.NoError(t, err)

	s := NewPostgresStore(pool)
	require.NoError(t, s.EnsureSchema(ctx))
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `
			DELETE FROM user_affinities WHERE user_id = 'aff-user';
			DELETE FROM establishments WHERE id = 'aff-x';
		`)
	})

	got, err := s.Add(ctx, "aff-user", KindLike, "aff-x")
	require.NoError(t, err)
	assert.Equal(t, OutcomeChanged, got)
	got, err = s.Add(ctx, "aff-user", KindLike, "aff-x")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, got)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT review_count FROM establishments WHERE id = 'aff-x'`).Scan(&count))
	assert.Equal(t, 1, count)

	got, err = s.Add(ctx, "aff-user", KindLike, "aff-missing")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefused, got)

	got, err = s.Remove(ctx, "aff-user", KindLike, "aff-missing")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, got, "removing an unknown id is not refused")

	ids, err := s.Members(ctx, "aff-user", KindLike)
	require.NoError(t, err)
	assert.Equal(t, []string{"aff-x"}, ids)

	got, err = s.Remove(ctx, "aff-user", KindLike, "aff-x")
	require.NoError(t, err)
	assert.Equal(t, OutcomeChanged, got)
	require.NoError(t, pool.QueryRow(ctx, `SELECT review_count FROM establishments WHERE id = 'aff-x'`).Scan(&count))
	assert.Zero(t, count)
}
