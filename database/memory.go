package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-content/types"
)

// MemoryStore is an in-process document store used for tests and offline
// runs. Documents are copied on the way in and out.
type MemoryStore struct {
	lifecycle
	collections map[string]map[string]types.Document
	mutex       sync.RWMutex
	logger      types.Logger
	now         func() time.Time
}

func NewMemoryStore(logger types.Logger) *MemoryStore {
	store := &MemoryStore{
		collections: make(map[string]map[string]types.Document),
		logger:      logger,
		now:         time.Now,
	}

	store.init()
	return store
}

func (m *MemoryStore) Start() error {
	if !m.transitionState(StateStopped, StateRunning) {
		return types.ErrServerAlreadyRunning
	}

	m.logger.Info("Memory document store started")
	return nil
}

func (m *MemoryStore) Stop() error {
	if !m.transitionState(StateRunning, StateStopped) {
		return types.ErrServerNotRunning
	}

	m.logger.Info("Memory document store stopped")
	return nil
}

func (m *MemoryStore) Query(_ context.Context, request types.QueryRequest) ([]types.Document, error) {
	if err := validateRequest(request); err != nil {
		return nil, err
	}

	m.mutex.RLock()
	collection := m.collections[request.Collection]
	docs := make([]types.Document, 0, len(collection))
	for _, doc := range collection {
		if matchesFilters(doc, request.Filters) {
			docs = append(docs, copyDocument(doc))
		}
	}
	m.mutex.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		left, _ := docs[i][FieldID].(string)
		right, _ := docs[j][FieldID].(string)
		return left < right
	})

	if request.OrderBy != "" {
		sortDocuments(docs, request.OrderBy, request.Direction)
	}

	if request.Limit > 0 && request.Limit < len(docs) {
		docs = docs[:request.Limit]
	}

	return docs, nil
}

func (m *MemoryStore) GetByID(_ context.Context, collection, id string) (types.Document, bool, error) {
	if collection == "" {
		return nil, false, types.ErrDatabaseCollectionEmpty
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	doc, exists := m.collections[collection][id]
	if !exists {
		return nil, false, nil
	}

	return copyDocument(doc), true, nil
}

// Create stores fields under a new id, or under fields["id"] when given.
func (m *MemoryStore) Create(_ context.Context, collection string, fields types.Document) (string, error) {
	if collection == "" {
		return "", types.ErrDatabaseCollectionEmpty
	}

	doc := copyDocument(fields)

	id, _ := doc[FieldID].(string)
	if id == "" {
		id = uuid.New().String()
	}

	now := m.now().UnixMilli()
	doc[FieldID] = id
	if _, exists := doc[FieldCreatedAt]; !exists {
		doc[FieldCreatedAt] = now
	}
	doc[FieldUpdatedAt] = now

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.collections[collection]; !exists {
		m.collections[collection] = make(map[string]types.Document)
	}
	m.collections[collection][id] = doc

	return id, nil
}

// Update merges fields into an existing document.
func (m *MemoryStore) Update(_ context.Context, collection, id string, fields types.Document) error {
	if id == "" {
		return types.ErrDocumentIDEmpty
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	doc, exists := m.collections[collection][id]
	if !exists {
		return types.Errorf(types.ErrDocumentNotFound, "%s/%s", collection, id)
	}

	for key, value := range fields {
		if key == FieldID {
			continue
		}
		doc[key] = value
	}
	doc[FieldUpdatedAt] = m.now().UnixMilli()

	return nil
}

func (m *MemoryStore) Delete(_ context.Context, collection, id string) error {
	if id == "" {
		return types.ErrDocumentIDEmpty
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.collections[collection][id]; !exists {
		return types.Errorf(types.ErrDocumentNotFound, "%s/%s", collection, id)
	}

	delete(m.collections[collection], id)
	m.logger.Debug("Document deleted", zap.String("collection", collection), zap.String("id", id))

	return nil
}
