// Package repository exposes every content collection through the
// cache-aside accessor. Reads merge or prune remote results before they are
// cached; admin mutations invalidate the affected keys before returning.
package repository

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-content/cache"
	"github.com/saiset-co/sai-content/content"
	"github.com/saiset-co/sai-content/session"
	"github.com/saiset-co/sai-content/types"
)

const (
	defaultDailyWindow = 24 * time.Hour
	defaultAlertWindow = 72 * time.Hour
)

type Repository struct {
	cache       *cache.Cache
	remote      types.DocumentStore
	session     types.SessionProvider
	decoder     *content.Decoder
	catalog     *content.Catalog
	logger      types.Logger
	dailyWindow time.Duration
	alertWindow time.Duration
}

func New(c *cache.Cache, remote types.DocumentStore, session types.SessionProvider, decoder *content.Decoder, catalog *content.Catalog, logger types.Logger, config *types.ContentConfig) *Repository {
	r := &Repository{
		cache:       c,
		remote:      remote,
		session:     session,
		decoder:     decoder,
		catalog:     catalog,
		logger:      logger,
		dailyWindow: defaultDailyWindow,
		alertWindow: defaultAlertWindow,
	}

	if catalog == nil {
		r.catalog = &content.Catalog{}
	}

	if config != nil {
		if config.DailyWindow > 0 {
			r.dailyWindow = config.DailyWindow
		}
		if config.AlertWindow > 0 {
			r.alertWindow = config.AlertWindow
		}
	}

	return r
}

func newestFirst(collection string) types.QueryRequest {
	return types.QueryRequest{
		Collection: collection,
		OrderBy:    "created_at",
		Direction:  types.SortDesc,
	}
}

func listRemote[T any, PT content.Record[T]](ctx context.Context, r *Repository, request types.QueryRequest) ([]T, error) {
	docs, err := r.remote.Query(ctx, request)
	if err != nil {
		return nil, err
	}
	return content.DecodeDocuments[T, PT](r.decoder, docs), nil
}

// listMerged reconciles the bundled items with the remote collection.
func listMerged[T any, PT content.Record[T]](ctx context.Context, r *Repository, static []T, request types.QueryRequest) ([]T, error) {
	remote, err := listRemote[T, PT](ctx, r, request)
	if err != nil {
		return nil, err
	}
	return content.Merge[T, PT](static, remote), nil
}

// listEphemeral drops items older than window before they reach the cache.
func listEphemeral[T any, PT content.Record[T]](ctx context.Context, r *Repository, request types.QueryRequest, window time.Duration) ([]T, error) {
	remote, err := listRemote[T, PT](ctx, r, request)
	if err != nil {
		return nil, err
	}
	return content.Prune[T, PT](remote, r.cache.Now(), window), nil
}

func getOne[T any, PT content.Record[T]](ctx context.Context, r *Repository, id string) (T, bool, error) {
	var value T

	doc, found, err := r.remote.GetByID(ctx, PT(&value).Collection(), id)
	if err != nil || !found {
		return value, false, err
	}

	if _, exists := doc[content.FieldID]; !exists {
		doc[content.FieldID] = id
	}

	value, err = content.DecodeDocument[T, PT](r.decoder, doc)
	if err != nil {
		return value, false, err
	}

	return value, true, nil
}

// getRequired is getOne with absence reported as ErrDocumentNotFound.
func getRequired[T any, PT content.Record[T]](ctx context.Context, r *Repository, id string) (T, error) {
	value, found, err := getOne[T, PT](ctx, r, id)
	if err != nil {
		return value, err
	}
	if !found {
		return value, types.Errorf(types.ErrDocumentNotFound, "%s/%s", PT(&value).Collection(), id)
	}
	return value, nil
}

func (r *Repository) requirePrivileged() (types.Identity, error) {
	identity, err := session.RequirePrivileged(r.session)
	if err != nil {
		r.logger.Warn("Rejected privileged operation", zap.String("user_id", identity.UserID), zap.Error(err))
	}
	return identity, err
}
