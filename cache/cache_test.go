package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-content/invalidation"
	"github.com/saiset-co/sai-content/logger"
	"github.com/saiset-co/sai-content/storage"
	"github.com/saiset-co/sai-content/types"
)

const testNamespace = "content_cache:"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type faultyStore struct {
	types.KVStore
	readErr  error
	writeErr error
}

func (f *faultyStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	if f.readErr != nil {
		return nil, false, f.readErr
	}
	return f.KVStore.Read(ctx, key)
}

func (f *faultyStore) Write(ctx context.Context, key string, value []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	return f.KVStore.Write(ctx, key, value)
}

type fakeSession struct {
	mu        sync.Mutex
	listeners []types.SessionListener
}

func (f *fakeSession) Current() (types.Identity, bool) {
	return types.Identity{}, false
}

func (f *fakeSession) Subscribe(listener types.SessionListener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, listener)
	index := len(f.listeners) - 1
	return func() {
		f.mu.Lock()
		f.listeners[index] = nil
		f.mu.Unlock()
	}
}

func (f *fakeSession) emit(event types.SessionEvent) {
	f.mu.Lock()
	listeners := append([]types.SessionListener(nil), f.listeners...)
	f.mu.Unlock()
	for _, listener := range listeners {
		if listener != nil {
			listener(context.Background(), event)
		}
	}
}

func newTestCache(t *testing.T, store types.KVStore, clk *clock, opts ...Option) *Cache {
	t.Helper()
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	c := New(store, invalidation.DefaultRegistry(), logger.NewNop(), nil, testNamespace, opts...)
	require.NoError(t, c.Start())
	t.Cleanup(func() { _ = c.Stop() })
	return c
}

func countingFetch[T any](value T, calls *int32) func(context.Context) (T, error) {
	return func(context.Context) (T, error) {
		atomic.AddInt32(calls, 1)
		return value, nil
	}
}

func TestGetOrFetch_FreshEntrySkipsFetch(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := newTestCache(t, storage.NewMemoryStore(logger.NewNop()), clk)

	var calls int32
	first, err := GetOrFetch(ctx, c, "lessons_all", c.TTL(Long), countingFetch([]string{"a", "b"}, &calls))
	require.NoError(t, err)
	c.Wait()

	clk.Advance(c.TTL(Long) - time.Second)

	second, err := GetOrFetch(ctx, c, "lessons_all", c.TTL(Long), countingFetch([]string{"other"}, &calls))
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, first, second)
}

func TestGetOrFetch_ExpiredEntryFetchesOnceAndOverwrites(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	store := storage.NewMemoryStore(logger.NewNop())
	c := newTestCache(t, store, clk)

	var calls int32
	_, err := GetOrFetch(ctx, c, "podcasts_all", c.TTL(Short), countingFetch([]string{"old"}, &calls))
	require.NoError(t, err)
	c.Wait()

	clk.Advance(c.TTL(Short) + time.Millisecond)

	value, err := GetOrFetch(ctx, c, "podcasts_all", c.TTL(Short), countingFetch([]string{"new"}, &calls))
	require.NoError(t, err)
	c.Wait()
	assert.Equal(t, []string{"new"}, value)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	value, err = GetOrFetch(ctx, c, "podcasts_all", c.TTL(Short), countingFetch([]string{"newer"}, &calls))
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, value)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetOrFetch_AgeEqualToTTLIsFresh(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := newTestCache(t, storage.NewMemoryStore(logger.NewNop()), clk)

	var calls int32
	_, err := GetOrFetch(ctx, c, "flyers_all", time.Minute, countingFetch(1, &calls))
	require.NoError(t, err)
	c.Wait()

	clk.Advance(time.Minute)

	_, err = GetOrFetch(ctx, c, "flyers_all", time.Minute, countingFetch(2, &calls))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrFetch_StalePublishedNewsIsRefetched(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	store := storage.NewMemoryStore(logger.NewNop())
	c := newTestCache(t, store, clk)

	seeded, err := NewCodec(0).Encode([]byte(`["A","B"]`), clk.Now().Add(-11*time.Minute), c.TTL(Medium))
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, testNamespace+"news_published", seeded))

	var calls int32
	value, err := GetOrFetch(ctx, c, "news_published", c.TTL(Medium), countingFetch([]string{"C"}, &calls))
	require.NoError(t, err)

	assert.Equal(t, []string{"C"}, value)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrFetch_FetchErrorPropagatesAndStaleEntryStaysDeleted(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	store := storage.NewMemoryStore(logger.NewNop())
	c := newTestCache(t, store, clk)

	seeded, err := NewCodec(0).Encode([]byte(`["A"]`), clk.Now().Add(-time.Hour), time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, testNamespace+"news_published", seeded))

	fetchErr := errors.New("remote unavailable")
	_, err = GetOrFetch(ctx, c, "news_published", time.Minute, func(context.Context) ([]string, error) {
		return nil, fetchErr
	})
	assert.Same(t, fetchErr, err)

	c.Wait()
	_, found, err := store.Read(ctx, testNamespace+"news_published")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetOrFetch_NoNegativeCaching(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, storage.NewMemoryStore(logger.NewNop()), newClock())

	var calls int32
	failing := func(context.Context) ([]string, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("boom")
	}

	_, err := GetOrFetch(ctx, c, "videos_all", time.Minute, failing)
	require.Error(t, err)
	_, err = GetOrFetch(ctx, c, "videos_all", time.Minute, failing)
	require.Error(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetOrFetch_NullResultIsNotCached(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(logger.NewNop())
	c := newTestCache(t, store, newClock())

	var calls int32
	value, err := GetOrFetch(ctx, c, "weekly_schedule", time.Minute, countingFetch[map[string]string](nil, &calls))
	require.NoError(t, err)
	assert.Nil(t, value)
	c.Wait()

	_, found, err := store.Read(ctx, testNamespace+"weekly_schedule")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = GetOrFetch(ctx, c, "weekly_schedule", time.Minute, countingFetch[map[string]string](nil, &calls))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetOrFetch_EmptyListIsCached(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, storage.NewMemoryStore(logger.NewNop()), newClock())

	var calls int32
	_, err := GetOrFetch(ctx, c, "alerts_active", time.Minute, countingFetch([]string{}, &calls))
	require.NoError(t, err)
	c.Wait()

	value, err := GetOrFetch(ctx, c, "alerts_active", time.Minute, countingFetch([]string{"x"}, &calls))
	require.NoError(t, err)
	assert.Empty(t, value)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrFetch_CorruptEntryIsAMiss(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(logger.NewNop())
	c := newTestCache(t, store, newClock())

	require.NoError(t, store.Write(ctx, testNamespace+"lessons_all", []byte("{not json")))

	var calls int32
	value, err := GetOrFetch(ctx, c, "lessons_all", time.Minute, countingFetch([]string{"fresh"}, &calls))
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, value)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrFetch_PayloadOfWrongShapeIsAMiss(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	store := storage.NewMemoryStore(logger.NewNop())
	c := newTestCache(t, store, clk)

	seeded, err := NewCodec(0).Encode([]byte(`{"unexpected":true}`), clk.Now(), time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, testNamespace+"lessons_all", seeded))

	var calls int32
	value, err := GetOrFetch(ctx, c, "lessons_all", time.Hour, countingFetch([]string{"fresh"}, &calls))
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, value)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrFetch_ReadErrorIsAMiss(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{KVStore: storage.NewMemoryStore(logger.NewNop()), readErr: errors.New("disk gone")}
	c := newTestCache(t, store, newClock())

	var calls int32
	value, err := GetOrFetch(ctx, c, "lessons_all", time.Minute, countingFetch(42, &calls))
	require.NoError(t, err)
	assert.Equal(t, 42, value)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrFetch_WriteFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{KVStore: storage.NewMemoryStore(logger.NewNop()), writeErr: errors.New("disk full")}
	c := newTestCache(t, store, newClock())

	var calls int32
	value, err := GetOrFetch(ctx, c, "lessons_all", time.Minute, countingFetch("ok", &calls))
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	c.Wait()

	_, err = GetOrFetch(ctx, c, "lessons_all", time.Minute, countingFetch("ok", &calls))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetOrFetch_RejectsBadArguments(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, storage.NewMemoryStore(logger.NewNop()), newClock())

	_, err := GetOrFetch(ctx, c, "", time.Minute, countingFetch(1, new(int32)))
	assert.ErrorIs(t, err, types.ErrCacheKeyEmpty)

	_, err = GetOrFetch[int](ctx, c, "key", time.Minute, nil)
	assert.ErrorIs(t, err, types.ErrCacheFetchIsNil)
}

func TestGetOrFetch_CompressedRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(logger.NewNop())
	c := newTestCache(t, store, newClock(), WithCompressionThreshold(16))

	long := strings.Repeat("lesson ", 200)

	var calls int32
	_, err := GetOrFetch(ctx, c, "lesson_item_L1", time.Minute, countingFetch(long, &calls))
	require.NoError(t, err)
	c.Wait()

	raw, found, err := store.Read(ctx, testNamespace+"lesson_item_L1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Less(t, len(raw), len(long))

	value, err := GetOrFetch(ctx, c, "lesson_item_L1", time.Minute, countingFetch("other", &calls))
	require.NoError(t, err)
	assert.Equal(t, long, value)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrFetch_ConcurrentMissesFetchIndependently(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, storage.NewMemoryStore(logger.NewNop()), newClock())

	var calls int32
	release := make(chan struct{})
	fetch := func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = GetOrFetch(ctx, c, "videos_all", time.Minute, fetch)
		}()
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
}

func TestGetOrFetch_CollapseSharesOneFetch(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, storage.NewMemoryStore(logger.NewNop()), newClock(), WithCollapse(true))

	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(context.Context) (int, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		<-release
		return 7, nil
	}

	results := make(chan int, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		value, _ := GetOrFetch(ctx, c, "videos_all", time.Minute, fetch)
		results <- value
	}()

	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		value, _ := GetOrFetch(ctx, c, "videos_all", time.Minute, fetch)
		results <- value
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for value := range results {
		assert.Equal(t, 7, value)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestInvalidate_ForcesMissForEveryAffectedKey(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, storage.NewMemoryStore(logger.NewNop()), newClock())

	keys := invalidation.DefaultRegistry().KeysAffectedBy(invalidation.EntityLesson, "L1")
	require.NotEmpty(t, keys)

	var calls int32
	for _, key := range keys {
		_, err := GetOrFetch(ctx, c, key, c.TTL(VeryLong), countingFetch("v", &calls))
		require.NoError(t, err)
	}
	c.Wait()

	require.NoError(t, c.Invalidate(ctx, invalidation.EntityLesson, "L1", nil))

	for _, key := range keys {
		_, err := GetOrFetch(ctx, c, key, c.TTL(VeryLong), countingFetch("v", &calls))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2*len(keys)), atomic.LoadInt32(&calls))
}

func TestInvalidate_SweepsCategoryKeysWhenFieldUnknown(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(logger.NewNop())
	c := newTestCache(t, store, newClock())

	var calls int32
	for _, key := range []string{"lessons_by_category_prayer", "lessons_by_category_torah", "videos_all"} {
		_, err := GetOrFetch(ctx, c, key, time.Hour, countingFetch("v", &calls))
		require.NoError(t, err)
	}
	c.Wait()

	require.NoError(t, c.Invalidate(ctx, invalidation.EntityLesson, "L1", nil))

	keys, err := store.ListKeysWithPrefix(ctx, testNamespace)
	require.NoError(t, err)
	assert.Equal(t, []string{testNamespace + "videos_all"}, keys)
}

func TestInvalidate_UnknownEntityType(t *testing.T) {
	c := newTestCache(t, storage.NewMemoryStore(logger.NewNop()), newClock())

	err := c.Invalidate(context.Background(), "sermon", "S1", nil)
	assert.ErrorIs(t, err, types.ErrEntityTypeUnknown)
}

func TestClear_RemovesOnlyNamespacedKeys(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(logger.NewNop())
	c := newTestCache(t, store, newClock())

	require.NoError(t, store.Write(ctx, "credentials:token", []byte("secret")))

	var calls int32
	for _, key := range []string{"lessons_all", "news_published"} {
		_, err := GetOrFetch(ctx, c, key, time.Hour, countingFetch("v", &calls))
		require.NoError(t, err)
	}
	c.Wait()

	removed, err := c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, found, err := store.Read(ctx, "credentials:token")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestSweep_RemovesExpiredAndCorrupt(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	store := storage.NewMemoryStore(logger.NewNop())
	c := newTestCache(t, store, clk)

	var calls int32
	_, err := GetOrFetch(ctx, c, "alerts_active", time.Minute, countingFetch("short", &calls))
	require.NoError(t, err)
	_, err = GetOrFetch(ctx, c, "weekly_schedule", time.Hour, countingFetch("long", &calls))
	require.NoError(t, err)
	c.Wait()
	require.NoError(t, store.Write(ctx, testNamespace+"broken", []byte("garbage")))

	clk.Advance(2 * time.Minute)

	removed, err := c.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	keys, err := store.ListKeysWithPrefix(ctx, testNamespace)
	require.NoError(t, err)
	assert.Equal(t, []string{testNamespace + "weekly_schedule"}, keys)
}

func TestSubscribeTo_ClearsOnSessionChange(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(logger.NewNop())
	c := newTestCache(t, store, newClock())

	session := &fakeSession{}
	c.SubscribeTo(session)

	var calls int32
	_, err := GetOrFetch(ctx, c, "news_published", time.Hour, countingFetch("v", &calls))
	require.NoError(t, err)
	c.Wait()

	session.emit(types.SessionEvent{Type: types.SessionSignedIn, Identity: types.Identity{UserID: "u1"}})

	_, err = GetOrFetch(ctx, c, "news_published", time.Hour, countingFetch("v", &calls))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCache_Lifecycle(t *testing.T) {
	c := New(storage.NewMemoryStore(logger.NewNop()), nil, logger.NewNop(), nil, testNamespace)

	require.NoError(t, c.Start())
	assert.True(t, c.IsRunning())
	assert.ErrorIs(t, c.Start(), types.ErrServerAlreadyRunning)

	require.NoError(t, c.Stop())
	assert.False(t, c.IsRunning())
	assert.ErrorIs(t, c.Stop(), types.ErrServerNotRunning)
}
