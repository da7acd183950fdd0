package storage

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-content/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

var customStoreCreators = make(map[string]types.KVStoreCreator)

func RegisterStore(storeType string, creator types.KVStoreCreator) {
	customStoreCreators[storeType] = creator
}

func NewManager(config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (types.KVStore, error) {
	storageConfig := config.GetConfig().Storage

	var impl types.KVStore
	var err error

	switch storageConfig.Type {
	case "clover":
		impl, err = NewCloverStore(logger, storageConfig)
	case "sqlite":
		impl, err = NewSQLiteStore(logger, storageConfig)
	case "redis":
		impl, err = NewRedisStore(logger, storageConfig)
	case "memory":
		impl = NewMemoryStore(logger)
	default:
		if creator, exists := customStoreCreators[storageConfig.Type]; exists {
			impl, err = creator(storageConfig.Config)
		} else {
			return nil, types.Errorf(types.ErrStorageTypeUnknown, "type: %s", storageConfig.Type)
		}
	}

	if err != nil {
		return nil, err
	}

	return newInstrumentedStore(logger, metrics, impl), nil
}

type instrumentedStore struct {
	impl    types.KVStore
	logger  types.Logger
	metrics types.MetricsManager
}

func newInstrumentedStore(logger types.Logger, metrics types.MetricsManager, impl types.KVStore) types.KVStore {
	return &instrumentedStore{
		impl:    impl,
		logger:  logger,
		metrics: metrics,
	}
}

func (s *instrumentedStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, found, err := s.impl.Read(ctx, key)

	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case found:
		result = "hit"
	}

	s.recordMetric("read", result, start)
	return value, found, err
}

func (s *instrumentedStore) Write(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := s.impl.Write(ctx, key, value)
	s.recordMetric("write", resultOf(err), start)
	return err
}

func (s *instrumentedStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.impl.Delete(ctx, key)
	s.recordMetric("delete", resultOf(err), start)
	return err
}

func (s *instrumentedStore) ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := s.impl.ListKeysWithPrefix(ctx, prefix)
	s.recordMetric("list", resultOf(err), start)
	return keys, err
}

func (s *instrumentedStore) Start() error {
	if err := s.impl.Start(); err != nil {
		s.logger.Error("Failed to start storage", zap.Error(err))
		return err
	}
	return nil
}

func (s *instrumentedStore) Stop() error {
	return s.impl.Stop()
}

func (s *instrumentedStore) IsRunning() bool {
	return s.impl.IsRunning()
}

func (s *instrumentedStore) recordMetric(operation, result string, start time.Time) {
	if s.metrics == nil {
		return
	}

	s.metrics.Counter("storage_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	}).Inc()

	s.metrics.Histogram("storage_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	).ObserveDuration(start)
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

type lifecycle struct {
	state atomic.Value
}

func (l *lifecycle) init() {
	l.state.Store(StateStopped)
}

func (l *lifecycle) getState() State {
	return l.state.Load().(State)
}

func (l *lifecycle) setState(newState State) {
	l.state.Store(newState)
}

func (l *lifecycle) transitionState(from, to State) bool {
	return l.state.CompareAndSwap(from, to)
}

func (l *lifecycle) IsRunning() bool {
	return l.getState() == StateRunning
}
