package storage

import (
	"context"
	"encoding/base64"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-content/types"
	"github.com/saiset-co/sai-content/utils"
)

type CloverConfig struct {
	Path       string `json:"path"`
	Collection string `json:"collection"`
}

// CloverStore persists entries as documents {key, value, updated_at} in an
// embedded clover database directory. Values are base64 encoded because
// compressed payloads are not valid UTF-8.
type CloverStore struct {
	lifecycle
	db     *clover.DB
	logger types.Logger
	config *CloverConfig
	mu     sync.Mutex
}

func NewCloverStore(logger types.Logger, config *types.StorageConfig) (*CloverStore, error) {
	cloverConfig := &CloverConfig{
		Path:       "data/cache",
		Collection: "kv_entries",
	}

	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, cloverConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal clover storage config")
		}
	}

	db, err := clover.Open(cloverConfig.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open clover storage")
	}

	exists, err := db.HasCollection(cloverConfig.Collection)
	if err != nil {
		_ = db.Close()
		return nil, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		if err := db.CreateCollection(cloverConfig.Collection); err != nil {
			_ = db.Close()
			return nil, types.WrapError(err, "failed to create collection")
		}
	}

	store := &CloverStore{
		db:     db,
		logger: logger,
		config: cloverConfig,
	}

	store.init()
	return store, nil
}

func (c *CloverStore) Read(_ context.Context, key string) ([]byte, bool, error) {
	docs, err := c.byKey(key).Limit(1).FindAll()
	if err != nil {
		return nil, false, types.Errorf(types.ErrStorageRead, "key %s: %v", key, err)
	}

	if len(docs) == 0 {
		return nil, false, nil
	}

	encoded, ok := docs[0].Get("value").(string)
	if !ok {
		return nil, false, types.Errorf(types.ErrStorageRead, "key %s: value is not a string", key)
	}

	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false, types.Errorf(types.ErrStorageRead, "key %s: %v", key, err)
	}

	return value, true, nil
}

func (c *CloverStore) Write(_ context.Context, key string, value []byte) error {
	if key == "" {
		return types.ErrStorageKeyEmpty
	}

	fields := map[string]interface{}{
		"value":      base64.StdEncoding.EncodeToString(value),
		"updated_at": time.Now().UnixMilli(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	count, err := c.byKey(key).Count()
	if err != nil {
		return types.Errorf(types.ErrStorageWrite, "key %s: %v", key, err)
	}

	if count > 0 {
		if err := c.byKey(key).Update(fields); err != nil {
			return types.Errorf(types.ErrStorageWrite, "key %s: %v", key, err)
		}
		return nil
	}

	doc := clover.NewDocument()
	doc.Set("key", key)
	for field, v := range fields {
		doc.Set(field, v)
	}

	if err := c.db.Insert(c.config.Collection, doc); err != nil {
		return types.Errorf(types.ErrStorageWrite, "key %s: %v", key, err)
	}

	return nil
}

func (c *CloverStore) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.byKey(key).Delete(); err != nil {
		return types.Errorf(types.ErrStorageDelete, "key %s: %v", key, err)
	}

	return nil
}

func (c *CloverStore) ListKeysWithPrefix(_ context.Context, prefix string) ([]string, error) {
	query := c.db.Query(c.config.Collection)
	if prefix != "" {
		query = query.Where(clover.Field("key").Like("^" + regexp.QuoteMeta(prefix)))
	}

	docs, err := query.FindAll()
	if err != nil {
		return nil, types.Errorf(types.ErrStorageRead, "prefix %s: %v", prefix, err)
	}

	keys := make([]string, 0, len(docs))
	for _, doc := range docs {
		if key, ok := doc.Get("key").(string); ok {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)
	return keys, nil
}

func (c *CloverStore) Start() error {
	if !c.transitionState(StateStopped, StateRunning) {
		return types.ErrServerAlreadyRunning
	}

	c.logger.Info("Clover storage started", zap.String("path", c.config.Path))
	return nil
}

func (c *CloverStore) Stop() error {
	if !c.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer c.setState(StateStopped)

	if err := c.db.Close(); err != nil {
		return types.WrapError(err, "failed to close clover storage")
	}

	c.logger.Info("Clover storage stopped")
	return nil
}

func (c *CloverStore) byKey(key string) *clover.Query {
	return c.db.Query(c.config.Collection).Where(clover.Field("key").Eq(key))
}
