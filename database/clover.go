package database

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-content/types"
	"github.com/saiset-co/sai-content/utils"
)

type CloverConfig struct {
	Path string `json:"path"`
}

// CloverStore serves the remote contract from an embedded clover database,
// for development against a local copy of the admin content.
type CloverStore struct {
	lifecycle
	db     *clover.DB
	logger types.Logger
	config *CloverConfig
	mu     sync.Mutex
	now    func() time.Time
}

func NewCloverStore(logger types.Logger, config *types.RemoteConfig) (*CloverStore, error) {
	cloverConfig := &CloverConfig{Path: "data/remote"}

	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, cloverConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal clover remote config")
		}
	}

	db, err := clover.Open(cloverConfig.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open clover remote store")
	}

	store := &CloverStore{
		db:     db,
		logger: logger,
		config: cloverConfig,
		now:    time.Now,
	}

	store.init()
	return store, nil
}

func (c *CloverStore) Start() error {
	if !c.transitionState(StateStopped, StateRunning) {
		return types.ErrServerAlreadyRunning
	}

	c.logger.Info("Clover document store started", zap.String("path", c.config.Path))
	return nil
}

func (c *CloverStore) Stop() error {
	if !c.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}
	defer c.setState(StateStopped)

	if err := c.db.Close(); err != nil {
		return types.WrapError(err, "failed to close clover remote store")
	}

	c.logger.Info("Clover document store stopped")
	return nil
}

func (c *CloverStore) Query(_ context.Context, request types.QueryRequest) ([]types.Document, error) {
	if err := validateRequest(request); err != nil {
		return nil, err
	}

	exists, err := c.db.HasCollection(request.Collection)
	if err != nil {
		return nil, types.Errorf(types.ErrDatabaseRequestFailed, "%v", err)
	}
	if !exists {
		return []types.Document{}, nil
	}

	query := c.db.Query(request.Collection)

	if criteria := buildCriteria(request.Filters); criteria != nil {
		query = query.Where(criteria)
	}

	if request.OrderBy != "" {
		direction := 1
		if request.Direction == types.SortDesc {
			direction = -1
		}
		query = query.Sort(clover.SortOption{Field: request.OrderBy, Direction: direction})
	}

	if request.Limit > 0 {
		query = query.Limit(request.Limit)
	}

	found, err := query.FindAll()
	if err != nil {
		return nil, types.Errorf(types.ErrDatabaseRequestFailed, "%v", err)
	}

	docs := make([]types.Document, 0, len(found))
	for _, doc := range found {
		converted, err := toDocument(doc)
		if err != nil {
			c.logger.Warn("Skipping unreadable document", zap.String("collection", request.Collection), zap.Error(err))
			continue
		}
		docs = append(docs, converted)
	}

	return docs, nil
}

func (c *CloverStore) GetByID(_ context.Context, collection, id string) (types.Document, bool, error) {
	if collection == "" {
		return nil, false, types.ErrDatabaseCollectionEmpty
	}

	exists, err := c.db.HasCollection(collection)
	if err != nil {
		return nil, false, types.Errorf(types.ErrDatabaseRequestFailed, "%v", err)
	}
	if !exists {
		return nil, false, nil
	}

	found, err := c.byID(collection, id).Limit(1).FindAll()
	if err != nil {
		return nil, false, types.Errorf(types.ErrDatabaseRequestFailed, "%v", err)
	}
	if len(found) == 0 {
		return nil, false, nil
	}

	doc, err := toDocument(found[0])
	if err != nil {
		return nil, false, types.Errorf(types.ErrDatabaseResponseInvalid, "%v", err)
	}

	return doc, true, nil
}

func (c *CloverStore) Create(_ context.Context, collection string, fields types.Document) (string, error) {
	if collection == "" {
		return "", types.ErrDatabaseCollectionEmpty
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureCollection(collection); err != nil {
		return "", err
	}

	id, _ := fields[FieldID].(string)
	if id == "" {
		id = uuid.New().String()
	}

	now := c.now().UnixMilli()

	doc := clover.NewDocument()
	for key, value := range fields {
		doc.Set(key, value)
	}
	doc.Set(FieldID, id)
	if !doc.Has(FieldCreatedAt) {
		doc.Set(FieldCreatedAt, now)
	}
	doc.Set(FieldUpdatedAt, now)

	if err := c.db.Insert(collection, doc); err != nil {
		return "", types.Errorf(types.ErrDatabaseRequestFailed, "%v", err)
	}

	return id, nil
}

func (c *CloverStore) Update(_ context.Context, collection, id string, fields types.Document) error {
	if id == "" {
		return types.ErrDocumentIDEmpty
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireDocument(collection, id); err != nil {
		return err
	}

	update := make(map[string]interface{}, len(fields)+1)
	for key, value := range fields {
		if key == FieldID {
			continue
		}
		update[key] = value
	}
	update[FieldUpdatedAt] = c.now().UnixMilli()

	if err := c.byID(collection, id).Update(update); err != nil {
		return types.Errorf(types.ErrDatabaseRequestFailed, "%v", err)
	}

	return nil
}

func (c *CloverStore) Delete(_ context.Context, collection, id string) error {
	if id == "" {
		return types.ErrDocumentIDEmpty
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireDocument(collection, id); err != nil {
		return err
	}

	if err := c.byID(collection, id).Delete(); err != nil {
		return types.Errorf(types.ErrDatabaseRequestFailed, "%v", err)
	}

	return nil
}

func (c *CloverStore) byID(collection, id string) *clover.Query {
	return c.db.Query(collection).Where(clover.Field(FieldID).Eq(id))
}

func (c *CloverStore) requireDocument(collection, id string) error {
	exists, err := c.db.HasCollection(collection)
	if err != nil {
		return types.Errorf(types.ErrDatabaseRequestFailed, "%v", err)
	}

	count := 0
	if exists {
		count, err = c.byID(collection, id).Count()
		if err != nil {
			return types.Errorf(types.ErrDatabaseRequestFailed, "%v", err)
		}
	}

	if count == 0 {
		return types.Errorf(types.ErrDocumentNotFound, "%s/%s", collection, id)
	}

	return nil
}

func (c *CloverStore) ensureCollection(collection string) error {
	exists, err := c.db.HasCollection(collection)
	if err != nil {
		return types.Errorf(types.ErrDatabaseRequestFailed, "%v", err)
	}

	if !exists {
		if err := c.db.CreateCollection(collection); err != nil {
			return types.Errorf(types.ErrDatabaseRequestFailed, "%v", err)
		}
	}

	return nil
}

func buildCriteria(filters []types.Filter) *clover.Criteria {
	var criteria *clover.Criteria

	for _, filter := range filters {
		field := clover.Field(filter.Field)

		var next *clover.Criteria
		switch filter.Op {
		case types.OpEq:
			next = field.Eq(filter.Value)
		case types.OpNe:
			next = field.Exists().And(field.Neq(filter.Value))
		case types.OpGt:
			next = field.Gt(filter.Value)
		case types.OpGte:
			next = field.GtEq(filter.Value)
		case types.OpLt:
			next = field.Lt(filter.Value)
		case types.OpLte:
			next = field.LtEq(filter.Value)
		case types.OpIn:
			next = field.In(toSlice(filter.Value)...)
		}

		if criteria == nil {
			criteria = next
		} else {
			criteria = criteria.And(next)
		}
	}

	return criteria
}

func toDocument(doc *clover.Document) (types.Document, error) {
	fields := make(map[string]interface{})
	if err := doc.Unmarshal(&fields); err != nil {
		return nil, err
	}

	delete(fields, "_id")
	return fields, nil
}
