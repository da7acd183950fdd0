package repository

import (
	"context"
	"sort"

	"github.com/saiset-co/sai-content/cache"
	"github.com/saiset-co/sai-content/content"
	"github.com/saiset-co/sai-content/invalidation"
	"github.com/saiset-co/sai-content/types"
)

func (r *Repository) Lessons(ctx context.Context) ([]content.Lesson, error) {
	return cache.GetOrFetch(ctx, r.cache, invalidation.KeyLessonsAll, r.cache.TTL(cache.Long),
		func(ctx context.Context) ([]content.Lesson, error) {
			return listMerged[content.Lesson](ctx, r, r.catalog.Lessons, newestFirst(content.CollectionLessons))
		})
}

func (r *Repository) LessonsByCategory(ctx context.Context, category string) ([]content.Lesson, error) {
	if category == "" {
		return nil, types.Errorf(types.ErrInvalidParameter, "category is empty")
	}

	key := invalidation.Expand(invalidation.KeyLessonsByCategory, category)
	return cache.GetOrFetch(ctx, r.cache, key, r.cache.TTL(cache.Long),
		func(ctx context.Context) ([]content.Lesson, error) {
			request := newestFirst(content.CollectionLessons)
			request.Filters = []types.Filter{{Field: "category", Op: types.OpEq, Value: category}}
			return listMerged[content.Lesson](ctx, r, r.catalog.LessonsInCategory(category), request)
		})
}

// Lesson falls back to the bundled catalog when the remote store has no
// document with that id.
func (r *Repository) Lesson(ctx context.Context, id string) (content.Lesson, error) {
	key := invalidation.Expand(invalidation.KeyLesson, id)
	return cache.GetOrFetch(ctx, r.cache, key, r.cache.TTL(cache.Long),
		func(ctx context.Context) (content.Lesson, error) {
			lesson, found, err := getOne[content.Lesson](ctx, r, id)
			if err != nil || found {
				return lesson, err
			}
			if static, ok := r.catalog.Lesson(id); ok {
				return static, nil
			}
			return lesson, types.Errorf(types.ErrDocumentNotFound, "%s/%s", content.CollectionLessons, id)
		})
}

func (r *Repository) Videos(ctx context.Context) ([]content.Video, error) {
	return cache.GetOrFetch(ctx, r.cache, invalidation.KeyVideosAll, r.cache.TTL(cache.Long),
		func(ctx context.Context) ([]content.Video, error) {
			return listMerged[content.Video](ctx, r, r.catalog.Videos, newestFirst(content.CollectionVideos))
		})
}

func (r *Repository) Video(ctx context.Context, id string) (content.Video, error) {
	key := invalidation.Expand(invalidation.KeyVideo, id)
	return cache.GetOrFetch(ctx, r.cache, key, r.cache.TTL(cache.Long),
		func(ctx context.Context) (content.Video, error) {
			video, found, err := getOne[content.Video](ctx, r, id)
			if err != nil || found {
				return video, err
			}
			if static, ok := r.catalog.Video(id); ok {
				return static, nil
			}
			return video, types.Errorf(types.ErrDocumentNotFound, "%s/%s", content.CollectionVideos, id)
		})
}

func (r *Repository) PublishedNews(ctx context.Context) ([]content.News, error) {
	return cache.GetOrFetch(ctx, r.cache, invalidation.KeyNewsPublished, r.cache.TTL(cache.Medium),
		func(ctx context.Context) ([]content.News, error) {
			request := newestFirst(content.CollectionNews)
			request.Filters = []types.Filter{{Field: "published", Op: types.OpEq, Value: true}}
			return listRemote[content.News](ctx, r, request)
		})
}

// AllNews includes drafts and is only available to privileged users.
func (r *Repository) AllNews(ctx context.Context) ([]content.News, error) {
	if _, err := r.requirePrivileged(); err != nil {
		return nil, err
	}

	return cache.GetOrFetch(ctx, r.cache, invalidation.KeyNewsAll, r.cache.TTL(cache.Medium),
		func(ctx context.Context) ([]content.News, error) {
			return listRemote[content.News](ctx, r, newestFirst(content.CollectionNews))
		})
}

func (r *Repository) News(ctx context.Context, id string) (content.News, error) {
	key := invalidation.Expand(invalidation.KeyNews, id)
	return cache.GetOrFetch(ctx, r.cache, key, r.cache.TTL(cache.Medium),
		func(ctx context.Context) (content.News, error) {
			return getRequired[content.News](ctx, r, id)
		})
}

func (r *Repository) Podcasts(ctx context.Context) ([]content.Podcast, error) {
	return cache.GetOrFetch(ctx, r.cache, invalidation.KeyPodcastsAll, r.cache.TTL(cache.Long),
		func(ctx context.Context) ([]content.Podcast, error) {
			request := types.QueryRequest{
				Collection: content.CollectionPodcasts,
				OrderBy:    "episode",
				Direction:  types.SortDesc,
			}
			return listRemote[content.Podcast](ctx, r, request)
		})
}

func (r *Repository) Podcast(ctx context.Context, id string) (content.Podcast, error) {
	key := invalidation.Expand(invalidation.KeyPodcast, id)
	return cache.GetOrFetch(ctx, r.cache, key, r.cache.TTL(cache.Long),
		func(ctx context.Context) (content.Podcast, error) {
			return getRequired[content.Podcast](ctx, r, id)
		})
}

func (r *Repository) Flyers(ctx context.Context) ([]content.Flyer, error) {
	return cache.GetOrFetch(ctx, r.cache, invalidation.KeyFlyersAll, r.cache.TTL(cache.Medium),
		func(ctx context.Context) ([]content.Flyer, error) {
			return listRemote[content.Flyer](ctx, r, newestFirst(content.CollectionFlyers))
		})
}

func (r *Repository) Flyer(ctx context.Context, id string) (content.Flyer, error) {
	key := invalidation.Expand(invalidation.KeyFlyer, id)
	return cache.GetOrFetch(ctx, r.cache, key, r.cache.TTL(cache.Medium),
		func(ctx context.Context) (content.Flyer, error) {
			return getRequired[content.Flyer](ctx, r, id)
		})
}

func (r *Repository) ActiveAlerts(ctx context.Context) ([]content.Alert, error) {
	return cache.GetOrFetch(ctx, r.cache, invalidation.KeyAlertsActive, r.cache.TTL(cache.Short),
		func(ctx context.Context) ([]content.Alert, error) {
			return listEphemeral[content.Alert](ctx, r, newestFirst(content.CollectionAlerts), r.alertWindow)
		})
}

func (r *Repository) DailyVideos(ctx context.Context) ([]content.DailyVideo, error) {
	return cache.GetOrFetch(ctx, r.cache, invalidation.KeyDailyVideos, r.cache.TTL(cache.Short),
		func(ctx context.Context) ([]content.DailyVideo, error) {
			return listEphemeral[content.DailyVideo](ctx, r, newestFirst(content.CollectionDailyVideos), r.dailyWindow)
		})
}

var weekdays = map[string]int{
	"sunday": 0, "monday": 1, "tuesday": 2, "wednesday": 3,
	"thursday": 4, "friday": 5, "saturday": 6,
}

// WeeklySchedule is ordered by weekday, then by time of day.
func (r *Repository) WeeklySchedule(ctx context.Context) ([]content.ScheduleEntry, error) {
	return cache.GetOrFetch(ctx, r.cache, invalidation.KeyWeeklySchedule, r.cache.TTL(cache.VeryLong),
		func(ctx context.Context) ([]content.ScheduleEntry, error) {
			entries, err := listRemote[content.ScheduleEntry](ctx, r, types.QueryRequest{Collection: content.CollectionSchedule})
			if err != nil {
				return nil, err
			}

			sort.SliceStable(entries, func(i, j int) bool {
				if entries[i].Day != entries[j].Day {
					return weekdays[entries[i].Day] < weekdays[entries[j].Day]
				}
				return entries[i].Time < entries[j].Time
			})

			return entries, nil
		})
}
