package relation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/schemadmin/model"
)

func sampleResolution() Resolution {
	return Resolution{
		Options:  []model.RelationOption{{ID: 1.0, Display: "Admin"}},
		Source:   SourceProbe,
		Endpoint: "accounts/roles/",
	}
}

func TestMemoryOptionCache_GetSet(t *testing.T) {
	c := NewMemoryOptionCache(time.Minute, 10)
	ctx := context.Background()

	_, ok := c.Get(ctx, "model:accounts.role")
	assert.False(t, ok)

	c.Set(ctx, "model:accounts.role", sampleResolution())
	got, ok := c.Get(ctx, "model:accounts.role")
	require.True(t, ok)
	assert.Equal(t, "accounts/roles/", got.Endpoint)
}

func TestMemoryOptionCache_expiry(t *testing.T) {
	c := NewMemoryOptionCache(time.Minute, 10)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "k", sampleResolution())
	now = now.Add(2 * time.Minute)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok, "entry should have expired")
}

func TestMemoryOptionCache_capacity(t *testing.T) {
	c := NewMemoryOptionCache(time.Minute, 2)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "a", sampleResolution())
	now = now.Add(time.Second)
	c.Set(ctx, "b", sampleResolution())
	now = now.Add(time.Second)
	c.Set(ctx, "c", sampleResolution())

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemoryOptionCache_InvalidateAndPurge(t *testing.T) {
	c := NewMemoryOptionCache(time.Minute, 10)
	ctx := context.Background()
	c.Set(ctx, "lookup:gender", sampleResolution())
	c.Set(ctx, "lookup:status", sampleResolution())
	c.Set(ctx, "model:tag", sampleResolution())

	c.Invalidate("lookup:")
	assert.Equal(t, 1, c.Len())

	c.Purge(ctx)
	assert.Equal(t, 0, c.Len())
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	return mr, client
}

func TestRedisOptionCache_roundTrip(t *testing.T) {
	_, client := newTestRedis(t)
	c := NewRedisOptionCache(client, time.Minute, nil)
	ctx := context.Background()

	_, ok := c.Get(ctx, "model:accounts.role")
	assert.False(t, ok)

	c.Set(ctx, "model:accounts.role", sampleResolution())
	got, ok := c.Get(ctx, "model:accounts.role")
	require.True(t, ok)
	assert.Equal(t, SourceProbe, got.Source)
	require.Len(t, got.Options, 1)
	assert.Equal(t, 1.0, got.Options[0].ID)
	assert.Equal(t, "Admin", got.Options[0].Display)
}

func TestRedisOptionCache_TTL(t *testing.T) {
	mr, client := newTestRedis(t)
	c := NewRedisOptionCache(client, time.Second, nil)
	ctx := context.Background()

	c.Set(ctx, "k", sampleResolution())
	mr.FastForward(2 * time.Second)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok, "entry should have expired")
}

func TestRedisOptionCache_Purge(t *testing.T) {
	mr, client := newTestRedis(t)
	c := NewRedisOptionCache(client, time.Minute, nil)
	ctx := context.Background()

	c.Set(ctx, "a", sampleResolution())
	c.Set(ctx, "b", sampleResolution())
	require.NoError(t, mr.Set("unrelated", "keep"))

	c.Purge(ctx)

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	assert.True(t, mr.Exists("unrelated"), "keys outside the prefix must survive")
}

func TestRedisOptionCache_unavailableIsMiss(t *testing.T) {
	mr, client := newTestRedis(t)
	c := NewRedisOptionCache(client, time.Minute, nil)
	mr.Close()

	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}
