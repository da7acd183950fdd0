// Package cache implements the cache-aside accessor over a persistent
// key-value store.
package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/saiset-co/sai-content/invalidation"
	"github.com/saiset-co/sai-content/types"
	"github.com/saiset-co/sai-content/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const (
	defaultWriteTimeout = 5 * time.Second
	nullPayload         = "null"
)

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func WithTTLs(ttls TTLs) Option {
	return func(c *Cache) {
		c.ttls = ttls
	}
}

func WithCollapse(enabled bool) Option {
	return func(c *Cache) {
		c.collapse = enabled
	}
}

func WithCompressionThreshold(threshold int) Option {
	return func(c *Cache) {
		c.codec = NewCodec(threshold)
	}
}

func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Cache) {
		if timeout > 0 {
			c.writeTimeout = timeout
		}
	}
}

// Cache is the injectable cache service. Every key it touches is stored
// under its namespace prefix.
type Cache struct {
	store        types.KVStore
	registry     *invalidation.Registry
	logger       types.Logger
	metrics      types.MetricsManager
	namespace    string
	codec        *Codec
	ttls         TTLs
	collapse     bool
	writeTimeout time.Duration
	now          func() time.Time

	group   singleflight.Group
	writes  pendingWrites
	state   atomic.Value
	mu      sync.Mutex
	unsubFn []func()
}

func New(store types.KVStore, registry *invalidation.Registry, logger types.Logger, metrics types.MetricsManager, namespace string, opts ...Option) *Cache {
	c := &Cache{
		store:        store,
		registry:     registry,
		logger:       logger,
		metrics:      metrics,
		namespace:    namespace,
		codec:        NewCodec(0),
		ttls:         DefaultTTLs(),
		writeTimeout: defaultWriteTimeout,
		now:          time.Now,
	}

	if c.registry == nil {
		c.registry = invalidation.DefaultRegistry()
	}

	for _, opt := range opts {
		opt(c)
	}

	c.writes.cond = sync.NewCond(&c.writes.mu)
	c.state.Store(StateStopped)

	return c
}

// NewFromConfig applies the cache section of the service configuration.
func NewFromConfig(store types.KVStore, registry *invalidation.Registry, logger types.Logger, metrics types.MetricsManager, config types.ConfigManager, opts ...Option) *Cache {
	serviceConfig := config.GetConfig()
	cacheConfig := serviceConfig.Cache

	base := []Option{
		WithTTLs(TTLsFromConfig(cacheConfig.TTL)),
		WithCollapse(cacheConfig.CollapseInFlight),
		WithCompressionThreshold(cacheConfig.CompressionThreshold),
		WithWriteTimeout(cacheConfig.WriteTimeout),
	}

	return New(store, registry, logger, metrics, serviceConfig.Storage.Namespace, append(base, opts...)...)
}

func (c *Cache) TTL(class TTLClass) time.Duration {
	return c.ttls.Duration(class)
}

func (c *Cache) Now() time.Time {
	return c.now()
}

// GetOrFetch returns the cached value under key while it is fresh. Otherwise
// it calls fetch, schedules a write-back of a non-null result and returns it.
// Errors from fetch are returned unchanged; storage failures never are.
func GetOrFetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if key == "" {
		return zero, types.ErrCacheKeyEmpty
	}
	if fetch == nil {
		return zero, types.ErrCacheFetchIsNil
	}

	if value, hit := lookup[T](ctx, c, key); hit {
		c.recordRequest("hit")
		return value, nil
	}

	c.recordRequest("miss")

	if !c.collapse {
		return fetchAndStore(ctx, c, key, ttl, fetch)
	}

	// Callers sharing a flight receive the same value.
	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		return fetchAndStore(ctx, c, key, ttl, fetch)
	})
	if err != nil {
		return zero, err
	}

	value, _ := result.(T)
	return value, nil
}

func lookup[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T

	raw, found, err := c.store.Read(ctx, c.storeKey(key))
	if err != nil {
		c.logger.Warn("Cache read failed, treating as miss", zap.String("key", key), zap.Error(err))
		c.recordRequest("read_error")
		return zero, false
	}
	if !found {
		return zero, false
	}

	entry, err := c.codec.Decode(raw)
	if err != nil {
		c.evict(ctx, key, "corrupt", err)
		return zero, false
	}

	if !entry.Fresh(c.now()) {
		c.evict(ctx, key, "stale", nil)
		return zero, false
	}

	var value T
	if err := utils.Unmarshal(entry.Payload, &value); err != nil {
		c.evict(ctx, key, "corrupt", err)
		return zero, false
	}

	return value, true
}

func fetchAndStore[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	value, err := fetch(ctx)
	c.observeFetch(start, err)
	if err != nil {
		return value, err
	}

	payload, err := utils.Marshal(value)
	if err != nil {
		c.logger.Warn("Cache payload not serializable, skipping write", zap.String("key", key), zap.Error(err))
		c.recordWriteError()
		return value, nil
	}

	if string(payload) == nullPayload {
		return value, nil
	}

	data, err := c.codec.Encode(payload, c.now(), ttl)
	if err != nil {
		c.logger.Warn("Cache entry encoding failed, skipping write", zap.String("key", key), zap.Error(err))
		c.recordWriteError()
		return value, nil
	}

	c.writeBehind(key, data)

	return value, nil
}

// writeBehind stores data detached from the caller's context so that a
// returning request does not cancel the write.
func (c *Cache) writeBehind(key string, data []byte) {
	c.writes.add()

	go func() {
		defer c.writes.done()

		ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
		defer cancel()

		if err := c.store.Write(ctx, c.storeKey(key), data); err != nil {
			c.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
			c.recordWriteError()
		}
	}()
}

// Wait blocks until every scheduled write-back has finished. It may be called
// while other requests keep scheduling writes.
func (c *Cache) Wait() {
	c.writes.wait()
}

// pendingWrites counts in-flight write-backs. Unlike sync.WaitGroup, a wait
// may overlap an add that starts from zero.
type pendingWrites struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

func (p *pendingWrites) add() {
	p.mu.Lock()
	p.count++
	p.mu.Unlock()
}

func (p *pendingWrites) done() {
	p.mu.Lock()
	p.count--
	if p.count == 0 {
		p.cond.Broadcast()
	}
	p.mu.Unlock()
}

func (p *pendingWrites) wait() {
	p.mu.Lock()
	for p.count > 0 {
		p.cond.Wait()
	}
	p.mu.Unlock()
}

func (c *Cache) evict(ctx context.Context, key, reason string, cause error) {
	fields := []zap.Field{zap.String("key", key), zap.String("reason", reason)}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	c.logger.Debug("Evicting cache entry", fields...)

	if err := c.store.Delete(ctx, c.storeKey(key)); err != nil {
		c.logger.Warn("Cache delete failed", zap.String("key", key), zap.Error(err))
	}

	c.counter("cache_evictions_total", map[string]string{"reason": reason})
}

// Invalidate drops every key a mutation of the entity can affect. Keys whose
// template parameter is not given in fields are swept by prefix.
func (c *Cache) Invalidate(ctx context.Context, entityType, entityID string, fields map[string]string) error {
	affected, err := c.registry.Resolve(entityType, entityID, fields)
	if err != nil {
		return err
	}

	var errs []error

	if err := c.InvalidateKeys(ctx, affected.Keys...); err != nil {
		errs = append(errs, err)
	}

	for _, prefix := range affected.Prefixes {
		if _, err := c.deletePrefix(ctx, c.storeKey(prefix)); err != nil {
			errs = append(errs, err)
		}
	}

	c.logger.Debug("Invalidated entity",
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID),
		zap.Strings("keys", affected.Keys),
		zap.Strings("prefixes", affected.Prefixes),
	)

	return errors.Join(errs...)
}

func (c *Cache) InvalidateKeys(ctx context.Context, keys ...string) error {
	var errs []error

	for _, key := range keys {
		if err := c.store.Delete(ctx, c.storeKey(key)); err != nil {
			errs = append(errs, types.WrapError(err, "invalidate "+key))
			continue
		}
		c.counter("cache_invalidated_keys_total", nil)
	}

	return errors.Join(errs...)
}

// Clear deletes every key under the cache namespace and returns how many
// were removed.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	removed, err := c.deletePrefix(ctx, c.namespace)
	c.counter("cache_clears_total", nil)

	c.logger.Info("Cache cleared", zap.Int("keys", removed), zap.Error(err))
	return removed, err
}

// Sweep deletes expired and corrupt entries without touching fresh ones.
func (c *Cache) Sweep(ctx context.Context) (int, error) {
	keys, err := c.store.ListKeysWithPrefix(ctx, c.namespace)
	if err != nil {
		return 0, err
	}

	now := c.now()
	removed := 0
	var errs []error

	for _, storeKey := range keys {
		raw, found, err := c.store.Read(ctx, storeKey)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !found {
			continue
		}

		reason := ""
		entry, err := c.codec.Decode(raw)
		switch {
		case err != nil:
			reason = "corrupt"
		case !entry.Fresh(now):
			reason = "stale"
		default:
			continue
		}

		if err := c.store.Delete(ctx, storeKey); err != nil {
			errs = append(errs, err)
			continue
		}

		removed++
		c.counter("cache_evictions_total", map[string]string{"reason": reason})
	}

	return removed, errors.Join(errs...)
}

func (c *Cache) deletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := c.store.ListKeysWithPrefix(ctx, prefix)
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, storeKey := range keys {
		if err := c.store.Delete(ctx, storeKey); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}

// SubscribeTo clears the whole cache on every sign-in and sign-out.
func (c *Cache) SubscribeTo(provider types.SessionProvider) {
	unsubscribe := provider.Subscribe(func(ctx context.Context, event types.SessionEvent) {
		c.logger.Info("Session changed, clearing cache",
			zap.String("event", string(event.Type)),
			zap.String("user_id", event.Identity.UserID),
		)

		if _, err := c.Clear(ctx); err != nil {
			c.logger.Warn("Cache clear after session change failed", zap.Error(err))
		}
	})

	c.mu.Lock()
	c.unsubFn = append(c.unsubFn, unsubscribe)
	c.mu.Unlock()
}

func (c *Cache) Start() error {
	if !c.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if !c.store.IsRunning() {
		if err := c.store.Start(); err != nil {
			c.setState(StateStopped)
			return types.WrapError(err, "failed to start cache store")
		}
	}

	c.setState(StateRunning)
	c.logger.Info("Cache started", zap.String("namespace", c.namespace), zap.Bool("collapse_in_flight", c.collapse))

	return nil
}

// Stop detaches session listeners and drains pending writes. The store is
// owned by the caller and is left running.
func (c *Cache) Stop() error {
	if !c.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	c.mu.Lock()
	for _, unsubscribe := range c.unsubFn {
		unsubscribe()
	}
	c.unsubFn = nil
	c.mu.Unlock()

	c.Wait()

	c.setState(StateStopped)
	c.logger.Info("Cache stopped")

	return nil
}

func (c *Cache) IsRunning() bool {
	return c.getState() == StateRunning
}

func (c *Cache) storeKey(key string) string {
	return c.namespace + key
}

func (c *Cache) recordRequest(result string) {
	c.counter("cache_requests_total", map[string]string{"result": result})
}

func (c *Cache) recordWriteError() {
	c.counter("cache_write_errors_total", nil)
}

func (c *Cache) observeFetch(start time.Time, err error) {
	if c.metrics == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
	}

	c.metrics.Counter("cache_fetches_total", map[string]string{"result": result}).Inc()
	c.metrics.Histogram("cache_fetch_duration_seconds",
		[]float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		nil,
	).ObserveDuration(start)
}

func (c *Cache) counter(name string, labels map[string]string) {
	if c.metrics == nil {
		return
	}
	c.metrics.Counter(name, labels).Inc()
}

func (c *Cache) getState() State {
	return c.state.Load().(State)
}

func (c *Cache) setState(newState State) {
	c.state.Store(newState)
}

func (c *Cache) transitionState(from, to State) bool {
	return c.state.CompareAndSwap(from, to)
}
