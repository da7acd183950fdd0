package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-content/content"
	"github.com/saiset-co/sai-content/invalidation"
	"github.com/saiset-co/sai-content/types"
)

// Save creates the entity when it has no id and updates it otherwise. The
// affected cache keys are invalidated before Save returns, for both the old
// and the new field values.
func Save[T any, PT content.Record[T]](ctx context.Context, r *Repository, entity *T) (string, error) {
	identity, err := r.requirePrivileged()
	if err != nil {
		return "", err
	}

	record := PT(entity)

	if err := r.decoder.Validate(entity); err != nil {
		return "", err
	}

	fields, err := content.EncodeDocument[T, PT](entity)
	if err != nil {
		return "", err
	}

	collection := record.Collection()
	id := record.DocumentID()
	var previous map[string]string

	if id == "" {
		if record.Meta().CreatedAt == nil {
			now := r.cache.Now()
			record.Meta().CreatedAt = &now
			fields["created_at"] = now.UnixMilli()
		}

		id, err = r.remote.Create(ctx, collection, fields)
		if err != nil {
			return "", err
		}
		record.SetDocumentID(id)
	} else {
		previous, err = r.previousFields(ctx, record, id)
		if err != nil {
			return "", err
		}

		if err := r.remote.Update(ctx, collection, id, fields); err != nil {
			return "", err
		}
	}

	r.logger.Info("Content saved",
		zap.String("collection", collection),
		zap.String("id", id),
		zap.String("user_id", identity.UserID))

	return id, r.invalidate(ctx, record.EntityType(), id, previous, record.InvalidationFields())
}

// Remove deletes the entity and invalidates the keys its last stored state
// was visible under.
func Remove[T any, PT content.Record[T]](ctx context.Context, r *Repository, id string) error {
	identity, err := r.requirePrivileged()
	if err != nil {
		return err
	}
	if id == "" {
		return types.ErrDocumentIDEmpty
	}

	var zero T
	record := PT(&zero)
	collection := record.Collection()

	previous, err := r.previousFields(ctx, record, id)
	if err != nil {
		return err
	}

	if err := r.remote.Delete(ctx, collection, id); err != nil {
		return err
	}

	r.logger.Info("Content removed",
		zap.String("collection", collection),
		zap.String("id", id),
		zap.String("user_id", identity.UserID))

	return r.invalidate(ctx, record.EntityType(), id, nil, previous)
}

// previousFields reads the invalidation fields of the stored document. A
// missing document yields nil, which makes invalidation sweep by prefix.
func (r *Repository) previousFields(ctx context.Context, record invalidationSource, id string) (map[string]string, error) {
	names := record.InvalidationFields()
	if len(names) == 0 {
		return nil, nil
	}

	doc, found, err := r.remote.GetByID(ctx, record.Collection(), id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	previous := make(map[string]string, len(names))
	for name := range names {
		if value, ok := doc[name].(string); ok {
			previous[name] = value
		}
	}

	return previous, nil
}

type invalidationSource interface {
	Collection() string
	InvalidationFields() map[string]string
}

func (r *Repository) invalidate(ctx context.Context, entityType, id string, previous, current map[string]string) error {
	// A write-back still in flight would restore a view after it was evicted.
	r.cache.Wait()

	var errs []error

	if err := r.cache.Invalidate(ctx, entityType, id, current); err != nil {
		errs = append(errs, err)
	}

	if previous != nil && !sameFields(previous, current) {
		if err := r.cache.Invalidate(ctx, entityType, id, previous); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		r.logger.Error("Invalidation after mutation failed",
			zap.String("entity_type", entityType),
			zap.String("id", id),
			zap.Error(err))
		return types.WrapError(err, "content saved but cache invalidation failed")
	}

	return nil
}

func sameFields(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for key, value := range a {
		if b[key] != value {
			return false
		}
	}
	return true
}

// PruneRemoteDailyContent deletes remote daily videos and alerts that have
// aged out of their window, then invalidates both collections. Reads never
// depend on it; it only keeps the remote collections small.
func (r *Repository) PruneRemoteDailyContent(ctx context.Context) (int, error) {
	now := r.cache.Now()

	removed := 0
	var errs []error

	for _, target := range []struct {
		collection string
		entityType string
		window     time.Duration
	}{
		{content.CollectionDailyVideos, invalidation.EntityDailyVideo, r.dailyWindow},
		{content.CollectionAlerts, invalidation.EntityAlert, r.alertWindow},
	} {
		cutoff := now.Add(-target.window).UnixMilli()

		docs, err := r.remote.Query(ctx, types.QueryRequest{
			Collection: target.collection,
			Filters:    []types.Filter{{Field: "created_at", Op: types.OpLte, Value: cutoff}},
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}

		deleted := 0
		for _, doc := range docs {
			id, _ := doc[content.FieldID].(string)
			if id == "" {
				continue
			}
			if err := r.remote.Delete(ctx, target.collection, id); err != nil && !errors.Is(err, types.ErrDocumentNotFound) {
				errs = append(errs, err)
				continue
			}
			deleted++
		}

		if deleted > 0 {
			if err := r.cache.Invalidate(ctx, target.entityType, "", nil); err != nil {
				errs = append(errs, err)
			}
		}

		r.logger.Info("Pruned remote collection",
			zap.String("collection", target.collection),
			zap.Int("deleted", deleted))

		removed += deleted
	}

	return removed, errors.Join(errs...)
}
