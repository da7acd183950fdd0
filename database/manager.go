package database

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

const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

var customStoreCreators = make(map[string]types.DocumentStoreCreator)

func RegisterDocumentStore(storeType string, creator types.DocumentStoreCreator) {
	customStoreCreators[storeType] = creator
}

func NewManager(config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (types.DocumentStore, error) {
	remoteConfig := config.GetConfig().Remote

	var impl types.DocumentStore
	var err error

	switch remoteConfig.Type {
	case "http":
		impl, err = NewHTTPStore(logger, remoteConfig)
	case "clover":
		impl, err = NewCloverStore(logger, remoteConfig)
	case "memory":
		impl = NewMemoryStore(logger)
	default:
		if creator, exists := customStoreCreators[remoteConfig.Type]; exists {
			impl, err = creator(remoteConfig.Config)
		} else {
			return nil, types.Errorf(types.ErrDatabaseTypeUnknown, "type: %s", remoteConfig.Type)
		}
	}

	if err != nil {
		return nil, err
	}

	return newInstrumentedStore(logger, metrics, impl), nil
}

type instrumentedStore struct {
	impl    types.DocumentStore
	logger  types.Logger
	metrics types.MetricsManager
}

func newInstrumentedStore(logger types.Logger, metrics types.MetricsManager, impl types.DocumentStore) types.DocumentStore {
	return &instrumentedStore{
		impl:    impl,
		logger:  logger,
		metrics: metrics,
	}
}

func (s *instrumentedStore) Query(ctx context.Context, request types.QueryRequest) ([]types.Document, error) {
	start := time.Now()
	docs, err := s.impl.Query(ctx, request)
	s.record("query", request.Collection, err, start)
	return docs, err
}

func (s *instrumentedStore) GetByID(ctx context.Context, collection, id string) (types.Document, bool, error) {
	start := time.Now()
	doc, found, err := s.impl.GetByID(ctx, collection, id)
	s.record("get", collection, err, start)
	return doc, found, err
}

func (s *instrumentedStore) Create(ctx context.Context, collection string, fields types.Document) (string, error) {
	start := time.Now()
	id, err := s.impl.Create(ctx, collection, fields)
	s.record("create", collection, err, start)
	return id, err
}

func (s *instrumentedStore) Update(ctx context.Context, collection, id string, fields types.Document) error {
	start := time.Now()
	err := s.impl.Update(ctx, collection, id, fields)
	s.record("update", collection, err, start)
	return err
}

func (s *instrumentedStore) Delete(ctx context.Context, collection, id string) error {
	start := time.Now()
	err := s.impl.Delete(ctx, collection, id)
	s.record("delete", collection, err, start)
	return err
}

func (s *instrumentedStore) Start() error {
	if err := s.impl.Start(); err != nil {
		s.logger.Error("Failed to start remote document store", zap.Error(err))
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

func (s *instrumentedStore) record(operation, collection string, err error, start time.Time) {
	if err != nil {
		s.logger.Debug("Remote operation failed",
			zap.String("operation", operation),
			zap.String("collection", collection),
			zap.Error(err))
	}

	if s.metrics == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
	}

	s.metrics.Counter("remote_operations_total", map[string]string{
		"operation":  operation,
		"collection": collection,
		"result":     result,
	}).Inc()

	s.metrics.Histogram("remote_operation_duration_seconds",
		[]float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		map[string]string{"operation": operation},
	).ObserveDuration(start)
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
