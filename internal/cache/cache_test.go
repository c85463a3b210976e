package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache() (*Cache, *clock.Mock) {
	mock := clock.NewMock()
	return New(Options{Clock: mock}), mock
}

func TestFetch_WithinTTLCallsFetcherOnce(t *testing.T) {
	c, mock := newTestCache()
	ctx := context.Background()

	var calls int
	fetch := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	v, hit, err := Fetch(ctx, c, "k", 15*time.Second, fetch)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, v)

	mock.Add(14 * time.Second)
	v, hit, err = Fetch(ctx, c, "k", 15*time.Second, fetch)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, calls)
}

func TestFetch_AfterTTLRefetches(t *testing.T) {
	c, mock := newTestCache()
	ctx := context.Background()

	var calls int
	fetch := func(context.Context) (int, error) {
		calls++
		return calls * 10, nil
	}

	_, _, err := Fetch(ctx, c, "k", 15*time.Second, fetch)
	require.NoError(t, err)

	mock.Add(15 * time.Second)
	v, hit, err := Fetch(ctx, c, "k", 15*time.Second, fetch)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 20, v)
	assert.Equal(t, 2, calls)
}

func TestFetch_ErrorNotStored(t *testing.T) {
	c, mock := newTestCache()
	ctx := context.Background()
	boom := errors.New("boom")

	_, _, err := Fetch(ctx, c, "k", time.Second, func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	// Prior entry survives a failed refresh.
	c.Set("k", "old", time.Minute)
	mock.Add(2 * time.Second)
	_, _, err = Fetch(ctx, c, "k", time.Second, func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)

	v, ok := c.Get("k", time.Minute)
	assert.True(t, ok)
	assert.Equal(t, "old", v)
}

func TestFetch_ConcurrentMissesShareFetch(t *testing.T) {
	c := New(Options{})
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := Fetch(ctx, c, "k", time.Minute, fetch)
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(2))
	for _, v := range results {
		assert.Equal(t, 7, v)
	}
}

func TestGet_PerCallTTL(t *testing.T) {
	c, mock := newTestCache()
	c.Set("meta", "uri-json", 15*time.Minute)

	mock.Add(time.Minute)
	_, ok := c.Get("meta", 15*time.Second)
	assert.False(t, ok, "stale under a short ttl")

	v, ok := c.Get("meta", 15*time.Minute)
	assert.True(t, ok)
	assert.Equal(t, "uri-json", v)
}

func TestSet_Overwrites(t *testing.T) {
	c, mock := newTestCache()
	c.Set("k", 1, time.Minute)
	mock.Add(30 * time.Second)
	c.Set("k", 2, time.Minute)
	mock.Add(45 * time.Second)

	v, ok := c.Get("k", time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestKey(t *testing.T) {
	a, err := Key("https://a", "getBalance", []any{"addr", map[string]any{"commitment": "confirmed", "encoding": "base64"}})
	require.NoError(t, err)
	b, err := Key("https://a", "getBalance", []any{"addr", map[string]any{"encoding": "base64", "commitment": "confirmed"}})
	require.NoError(t, err)
	assert.Equal(t, a, b, "map ordering must not change the key")

	other, err := Key("https://b", "getBalance", []any{"addr", map[string]any{"commitment": "confirmed", "encoding": "base64"}})
	require.NoError(t, err)
	assert.NotEqual(t, a, other, "url is part of the key")

	method, err := Key("https://a", "getSlot", []any{"addr", map[string]any{"commitment": "confirmed", "encoding": "base64"}})
	require.NoError(t, err)
	assert.NotEqual(t, a, method)

	empty, err := Key("https://a", "getSlot", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"url":"https://a","method":"getSlot","args":[]}`, empty)

	_, err = Key("https://a", "getSlot", []any{make(chan int)})
	assert.Error(t, err)
}

func TestClear(t *testing.T) {
	c, _ := newTestCache()
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Delete("a")
	assert.Equal(t, 1, c.Len())
	c.Clear()
	assert.Equal(t, 0, c.Len())
}
