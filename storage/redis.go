package storage

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-content/types"
	"github.com/saiset-co/sai-content/utils"
)

type RedisConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Password     string `json:"password"`
	DB           int    `json:"db"`
	PoolSize     int    `json:"pool_size"`
	DialTimeout  string `json:"dial_timeout"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	ScanCount    int64  `json:"scan_count"`
}

// RedisStore backs the cache with a redis instance. Keys never expire on the
// redis side; freshness is decided by the cache entry itself.
type RedisStore struct {
	lifecycle
	client *redis.Client
	logger types.Logger
	config *RedisConfig
}

func NewRedisStore(logger types.Logger, config *types.StorageConfig) (*RedisStore, error) {
	redisConfig := &RedisConfig{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
		ScanCount:    100,
	}

	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, redisConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis storage config")
		}
	}

	options := &redis.Options{
		Addr:     redisConfig.Host + ":" + strconv.Itoa(redisConfig.Port),
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
		PoolSize: redisConfig.PoolSize,
	}

	var err error
	if options.DialTimeout, err = parseDuration(redisConfig.DialTimeout); err != nil {
		return nil, err
	}
	if options.ReadTimeout, err = parseDuration(redisConfig.ReadTimeout); err != nil {
		return nil, err
	}
	if options.WriteTimeout, err = parseDuration(redisConfig.WriteTimeout); err != nil {
		return nil, err
	}

	return newRedisStoreWithClient(logger, redisConfig, redis.NewClient(options)), nil
}

func newRedisStoreWithClient(logger types.Logger, config *RedisConfig, client *redis.Client) *RedisStore {
	store := &RedisStore{
		client: client,
		logger: logger,
		config: config,
	}

	store.init()
	return store
}

func (r *RedisStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, types.Errorf(types.ErrStorageRead, "key %s: %v", key, err)
	}

	return value, true, nil
}

func (r *RedisStore) Write(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return types.ErrStorageKeyEmpty
	}

	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return types.Errorf(types.ErrStorageWrite, "key %s: %v", key, err)
	}

	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return types.Errorf(types.ErrStorageDelete, "key %s: %v", key, err)
	}

	return nil
}

func (r *RedisStore) ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(prefix) + "*"
	keys := make([]string, 0)

	iter := r.client.Scan(ctx, 0, pattern, r.config.ScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return nil, types.Errorf(types.ErrStorageRead, "prefix %s: %v", prefix, err)
	}

	sort.Strings(keys)
	return keys, nil
}

func (r *RedisStore) Start() error {
	if !r.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		r.setState(StateStopped)
		return types.WrapError(err, "failed to connect to redis")
	}

	r.setState(StateRunning)
	r.logger.Info("Redis storage started",
		zap.String("host", r.config.Host),
		zap.Int("port", r.config.Port),
		zap.Int("db", r.config.DB))
	return nil
}

func (r *RedisStore) Stop() error {
	if !r.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer r.setState(StateStopped)

	if err := r.client.Close(); err != nil {
		return types.WrapError(err, "failed to close redis client")
	}

	r.logger.Info("Redis storage stopped")
	return nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, ch := range s {
		switch ch {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(ch)
	}

	return b.String()
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, types.Errorf(types.ErrInvalidParameter, "duration %q: %v", value, err)
	}

	return d, nil
}
