package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-content/logger"
	"github.com/saiset-co/sai-content/types"
)

func runDocumentStoreContract(t *testing.T, store types.DocumentStore) {
	t.Helper()
	ctx := context.Background()

	docs, err := store.Query(ctx, types.QueryRequest{Collection: "news"})
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, found, err := store.GetByID(ctx, "news", "missing")
	require.NoError(t, err)
	assert.False(t, found)

	first, err := store.Create(ctx, "news", types.Document{"title": "First", "published": true, "rank": 1})
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := store.Create(ctx, "news", types.Document{"id": "fixed-id", "title": "Second", "published": false, "rank": 3})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", second)

	_, err = store.Create(ctx, "news", types.Document{"title": "Third", "published": true, "rank": 2})
	require.NoError(t, err)

	doc, found, err := store.GetByID(ctx, "news", first)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "First", doc["title"])
	assert.Equal(t, first, doc[FieldID])
	assert.Contains(t, doc, FieldCreatedAt)

	published, err := store.Query(ctx, types.QueryRequest{
		Collection: "news",
		Filters:    []types.Filter{{Field: "published", Op: types.OpEq, Value: true}},
		OrderBy:    "rank",
		Direction:  types.SortDesc,
	})
	require.NoError(t, err)
	require.Len(t, published, 2)
	assert.Equal(t, "Third", published[0]["title"])
	assert.Equal(t, "First", published[1]["title"])

	limited, err := store.Query(ctx, types.QueryRequest{
		Collection: "news",
		Filters:    []types.Filter{{Field: "rank", Op: types.OpGte, Value: 2}},
		OrderBy:    "rank",
		Direction:  types.SortAsc,
		Limit:      1,
	})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "Third", limited[0]["title"])

	in, err := store.Query(ctx, types.QueryRequest{
		Collection: "news",
		Filters:    []types.Filter{{Field: "title", Op: types.OpIn, Value: []interface{}{"First", "Second"}}},
	})
	require.NoError(t, err)
	assert.Len(t, in, 2)

	require.NoError(t, store.Update(ctx, "news", second, types.Document{"published": true}))
	doc, _, err = store.GetByID(ctx, "news", second)
	require.NoError(t, err)
	assert.Equal(t, true, doc["published"])
	assert.Equal(t, "Second", doc["title"])

	require.NoError(t, store.Delete(ctx, "news", first))
	_, found, err = store.GetByID(ctx, "news", first)
	require.NoError(t, err)
	assert.False(t, found)

	assert.ErrorIs(t, store.Delete(ctx, "news", first), types.ErrDocumentNotFound)
	assert.ErrorIs(t, store.Update(ctx, "news", "nope", types.Document{"a": 1}), types.ErrDocumentNotFound)

	_, err = store.Query(ctx, types.QueryRequest{
		Collection: "news",
		Filters:    []types.Filter{{Field: "title", Op: "like", Value: "x"}},
	})
	assert.ErrorIs(t, err, types.ErrFilterOperatorNotAllowed)

	_, err = store.Query(ctx, types.QueryRequest{})
	assert.ErrorIs(t, err, types.ErrDatabaseCollectionEmpty)
}

func TestMemoryStore_Contract(t *testing.T) {
	store := NewMemoryStore(logger.NewNop())
	require.NoError(t, store.Start())
	defer store.Stop()

	runDocumentStoreContract(t, store)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(logger.NewNop())

	fields := types.Document{"title": "original"}
	id, err := store.Create(ctx, "flyers", fields)
	require.NoError(t, err)
	assert.NotContains(t, fields, FieldID)

	doc, _, err := store.GetByID(ctx, "flyers", id)
	require.NoError(t, err)
	doc["title"] = "changed"

	doc, _, err = store.GetByID(ctx, "flyers", id)
	require.NoError(t, err)
	assert.Equal(t, "original", doc["title"])
}

func TestCloverStore_Contract(t *testing.T) {
	store, err := NewCloverStore(logger.NewNop(), &types.RemoteConfig{
		Type:   "clover",
		Config: map[string]interface{}{"path": t.TempDir()},
	})
	require.NoError(t, err)
	require.NoError(t, store.Start())
	defer store.Stop()

	runDocumentStoreContract(t, store)
}

func TestMatchesFilter_MissingFieldNeverMatches(t *testing.T) {
	doc := types.Document{"a": 1}

	assert.False(t, matchesFilter(doc, types.Filter{Field: "b", Op: types.OpNe, Value: 1}))
	assert.True(t, matchesFilter(doc, types.Filter{Field: "a", Op: types.OpEq, Value: float64(1)}))
	assert.True(t, matchesFilter(doc, types.Filter{Field: "a", Op: types.OpIn, Value: []int{3, 1}}))
	assert.False(t, matchesFilter(doc, types.Filter{Field: "a", Op: types.OpLt, Value: "text"}))
}

func TestSortDocuments_MissingFieldLast(t *testing.T) {
	docs := []types.Document{{"id": "a"}, {"id": "b", "order": 1}, {"id": "c", "order": 5}}

	sortDocuments(docs, "order", types.SortDesc)

	assert.Equal(t, "c", docs[0]["id"])
	assert.Equal(t, "b", docs[1]["id"])
	assert.Equal(t, "a", docs[2]["id"])
}

func TestNewManager_UnknownType(t *testing.T) {
	_, err := NewManager(staticConfig(&types.RemoteConfig{Type: "firestore"}), logger.NewNop(), nil)
	assert.ErrorIs(t, err, types.ErrDatabaseTypeUnknown)
}

func TestNewManager_Memory(t *testing.T) {
	store, err := NewManager(staticConfig(&types.RemoteConfig{Type: "memory"}), logger.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Start())
	assert.True(t, store.IsRunning())
	require.NoError(t, store.Stop())
}

type fakeConfig struct {
	config *types.ServiceConfig
}

func staticConfig(remote *types.RemoteConfig) types.ConfigManager {
	return &fakeConfig{config: &types.ServiceConfig{Remote: remote}}
}

func (f *fakeConfig) Load() error                                  { return nil }
func (f *fakeConfig) GetConfig() *types.ServiceConfig              { return f.config }
func (f *fakeConfig) GetValue(string, interface{}) interface{}     { return nil }
func (f *fakeConfig) GetAs(string, interface{}) error              { return nil }
