package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JMURv/session-core/internal/cache"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c := NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestCache_GetToStruct(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	type payload struct {
		Name string `json:"name"`
	}

	dest := payload{}
	assert.ErrorIs(t, c.GetToStruct(ctx, "missing", &dest), cache.ErrNotFoundInCache)

	c.Set(ctx, time.Minute, "k", []byte(`{"name":"n"}`))
	require.NoError(t, c.GetToStruct(ctx, "k", &dest))
	assert.Equal(t, "n", dest.Name)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, c.GetToStruct(ctx, "k", &dest), cache.ErrNotFoundInCache)

	c.Set(ctx, time.Minute, "k", []byte(`{"name":"n"}`))
	c.Delete(ctx, "k")
	assert.ErrorIs(t, c.GetToStruct(ctx, "k", &dest), cache.ErrNotFoundInCache)
}

func TestCache_SetAtGeneration(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	gen, err := c.Generation(ctx, "acc:gen")
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)

	ok, err := c.SetAtGeneration(ctx, time.Minute, "acc", "acc:gen", gen, []byte(`{"v":1}`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.TTL("acc") > 0)

	require.NoError(t, c.Invalidate(ctx, "acc", "acc:gen"))
	assert.False(t, mr.Exists("acc"))
	assert.True(t, mr.TTL("acc:gen") > 0)

	ok, err = c.SetAtGeneration(ctx, time.Minute, "acc", "acc:gen", gen, []byte(`{"v":1}`))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("acc"))

	gen, err = c.Generation(ctx, "acc:gen")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	ok, err = c.SetAtGeneration(ctx, time.Minute, "acc", "acc:gen", gen, []byte(`{"v":2}`))
	require.NoError(t, err)
	assert.True(t, ok)

	val, err := mr.Get("acc")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, val)
}

func TestCache_SetNX(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	ok, err := c.SetNX(ctx, time.Minute, "once", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, time.Minute, "once", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_Take(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	for i := int64(1); i <= 3; i++ {
		n, ok, err := c.Take(ctx, "rl", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, i, n)
	}

	_, ok, err := c.Take(ctx, "rl", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	val, err := mr.Get("rl")
	require.NoError(t, err)
	assert.Equal(t, "3", val)
	assert.True(t, mr.TTL("rl") > 0)

	mr.FastForward(time.Minute)
	n, ok, err := c.Take(ctx, "rl", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), n)
}

func TestCache_TakeConcurrent(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	var (
		wg      sync.WaitGroup
		allowed atomic.Int64
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := c.Take(ctx, "rl", 10, time.Minute); err == nil && ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), allowed.Load())
}

func TestCache_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	for i := 0; i < 2; i++ {
		ok, err := c.Acquire(ctx, "conn", 2, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := c.Acquire(ctx, "conn", 2, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Release(ctx, "conn"))
	ok, err = c.Acquire(ctx, "conn", 2, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Release(ctx, "conn"))
	}
	assert.False(t, mr.Exists("conn"))
}
