package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-content/cache"
	"github.com/saiset-co/sai-content/content"
	"github.com/saiset-co/sai-content/database"
	"github.com/saiset-co/sai-content/invalidation"
	"github.com/saiset-co/sai-content/logger"
	"github.com/saiset-co/sai-content/session"
	"github.com/saiset-co/sai-content/storage"
	"github.com/saiset-co/sai-content/types"
)

type countingRemote struct {
	types.DocumentStore
	queries int32
	gets    int32
	failErr error
}

func (c *countingRemote) Query(ctx context.Context, request types.QueryRequest) ([]types.Document, error) {
	atomic.AddInt32(&c.queries, 1)
	if c.failErr != nil {
		return nil, c.failErr
	}
	return c.DocumentStore.Query(ctx, request)
}

func (c *countingRemote) GetByID(ctx context.Context, collection, id string) (types.Document, bool, error) {
	atomic.AddInt32(&c.gets, 1)
	if c.failErr != nil {
		return nil, false, c.failErr
	}
	return c.DocumentStore.GetByID(ctx, collection, id)
}

type fixture struct {
	repo     *Repository
	cache    *cache.Cache
	remote   *countingRemote
	backing  *database.MemoryStore
	sessions *session.Manager
	catalog  *content.Catalog
	now      time.Time
}

// slowStore delays writes so that write-backs are still in flight when the
// caller moves on.
type slowStore struct {
	types.KVStore
	delay time.Duration
}

func (s *slowStore) Write(ctx context.Context, key string, data []byte) error {
	time.Sleep(s.delay)
	return s.KVStore.Write(ctx, key, data)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, storage.NewMemoryStore(logger.NewNop()))
}

func newFixtureWithStore(t *testing.T, store types.KVStore) *fixture {
	t.Helper()

	log := logger.NewNop()
	now := time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC)

	c := cache.New(store, invalidation.DefaultRegistry(), log, nil, "content_cache:",
		cache.WithClock(func() time.Time { return now }))
	require.NoError(t, c.Start())
	t.Cleanup(func() { _ = c.Stop() })

	sessions := session.NewManager(log)
	c.SubscribeTo(sessions)

	decoder := content.NewDecoder(log)
	catalog, err := content.LoadCatalog(decoder)
	require.NoError(t, err)

	backing := database.NewMemoryStore(log)
	remote := &countingRemote{DocumentStore: backing}

	repo := New(c, remote, sessions, decoder, catalog, log, &types.ContentConfig{
		DailyWindow: 24 * time.Hour,
		AlertWindow: 72 * time.Hour,
	})

	return &fixture{
		repo:     repo,
		cache:    c,
		remote:   remote,
		backing:  backing,
		sessions: sessions,
		catalog:  catalog,
		now:      now,
	}
}

func (f *fixture) seed(t *testing.T, collection string, doc types.Document) string {
	t.Helper()
	id, err := f.backing.Create(context.Background(), collection, doc)
	require.NoError(t, err)
	return id
}

func (f *fixture) signInAdmin(t *testing.T) {
	t.Helper()
	require.NoError(t, f.sessions.SignIn(context.Background(), types.Identity{UserID: "admin", Privileged: true}))
}

func (f *fixture) queries() int32 {
	return atomic.LoadInt32(&f.remote.queries)
}

func lessonTitles(lessons []content.Lesson) []string {
	titles := make([]string, 0, len(lessons))
	for _, lesson := range lessons {
		titles = append(titles, lesson.Title)
	}
	return titles
}

func TestLessons_MergesCatalogWithRemote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.seed(t, content.CollectionLessons, types.Document{
		"title": "Preparing for Shabbat (updated)", "category": "shabbat", "video_id": "yt-Shb01aXk",
	})
	f.seed(t, content.CollectionLessons, types.Document{
		"title": "Pinned lesson", "category": "prayer", "video_id": "yt-new", "order": 10,
	})

	lessons, err := f.repo.Lessons(ctx)
	require.NoError(t, err)

	require.Len(t, lessons, len(f.catalog.Lessons)+1)
	assert.Equal(t, "Pinned lesson", lessons[0].Title)
	assert.Equal(t, content.OriginRemote, lessons[0].Origin)
	assert.Equal(t, "Preparing for Shabbat (updated)", lessons[1].Title)
	assert.Equal(t, content.OriginRemote, lessons[1].Origin)
	assert.Equal(t, content.OriginStatic, lessons[2].Origin)
}

func TestLessons_ServedFromCacheUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signInAdmin(t)

	_, err := f.repo.Lessons(ctx)
	require.NoError(t, err)
	f.cache.Wait()

	_, err = f.repo.Lessons(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.queries())

	id, err := Save[content.Lesson](ctx, f.repo, &content.Lesson{Title: "New lesson", Category: "prayer", VideoID: "yt-added"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	lessons, err := f.repo.Lessons(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.queries())
	assert.Contains(t, lessonTitles(lessons), "New lesson")
}

func TestSave_WaitsForPendingWriteBack(t *testing.T) {
	ctx := context.Background()
	f := newFixtureWithStore(t, &slowStore{KVStore: storage.NewMemoryStore(logger.NewNop()), delay: 50 * time.Millisecond})
	f.signInAdmin(t)

	_, err := f.repo.Lessons(ctx)
	require.NoError(t, err)

	_, err = Save[content.Lesson](ctx, f.repo, &content.Lesson{Title: "Raced lesson", Category: "prayer", VideoID: "yt-race"})
	require.NoError(t, err)

	lessons, err := f.repo.Lessons(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.queries())
	assert.Contains(t, lessonTitles(lessons), "Raced lesson")
}

func TestRemove_WaitsForPendingWriteBack(t *testing.T) {
	ctx := context.Background()
	f := newFixtureWithStore(t, &slowStore{KVStore: storage.NewMemoryStore(logger.NewNop()), delay: 50 * time.Millisecond})
	f.signInAdmin(t)

	id := f.seed(t, content.CollectionFlyers, types.Document{"title": "Chanukah", "image_url": "https://example.org/chanukah.png"})

	flyers, err := f.repo.Flyers(ctx)
	require.NoError(t, err)
	require.Len(t, flyers, 1)

	require.NoError(t, Remove[content.Flyer](ctx, f.repo, id))

	flyers, err = f.repo.Flyers(ctx)
	require.NoError(t, err)
	assert.Empty(t, flyers)
}

func TestSave_RequiresPrivilegedSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	lesson := &content.Lesson{Title: "x", Category: "prayer"}

	_, err := Save[content.Lesson](ctx, f.repo, lesson)
	assert.ErrorIs(t, err, types.ErrNotSignedIn)

	require.NoError(t, f.sessions.SignIn(ctx, types.Identity{UserID: "reader"}))
	_, err = Save[content.Lesson](ctx, f.repo, lesson)
	assert.ErrorIs(t, err, types.ErrPermissionDenied)

	assert.ErrorIs(t, Remove[content.Lesson](ctx, f.repo, "L1"), types.ErrPermissionDenied)
}

func TestSave_RejectsInvalidEntity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signInAdmin(t)

	_, err := Save[content.Lesson](ctx, f.repo, &content.Lesson{Category: "prayer"})
	assert.ErrorIs(t, err, types.ErrDocumentInvalid)
}

func TestSave_CategoryChangeInvalidatesBothCategories(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.signInAdmin(t)
	id := f.seed(t, content.CollectionLessons, types.Document{"title": "Moving", "category": "prayer", "video_id": "yt-move"})

	prayer, err := f.repo.LessonsByCategory(ctx, "prayer")
	require.NoError(t, err)
	require.Contains(t, lessonTitles(prayer), "Moving")
	_, err = f.repo.LessonsByCategory(ctx, "holidays")
	require.NoError(t, err)
	f.cache.Wait()

	lesson, err := f.repo.Lesson(ctx, id)
	require.NoError(t, err)
	f.cache.Wait()
	lesson.Category = "holidays"
	_, err = Save[content.Lesson](ctx, f.repo, &lesson)
	require.NoError(t, err)

	before := f.queries()
	prayer, err = f.repo.LessonsByCategory(ctx, "prayer")
	require.NoError(t, err)
	holidays, err := f.repo.LessonsByCategory(ctx, "holidays")
	require.NoError(t, err)

	assert.Equal(t, before+2, f.queries())
	assert.NotContains(t, lessonTitles(prayer), "Moving")
	assert.Contains(t, lessonTitles(holidays), "Moving")

	updated, err := f.repo.Lesson(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "holidays", updated.Category)
}

func TestRemove_InvalidatesAndDeletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signInAdmin(t)

	id := f.seed(t, content.CollectionFlyers, types.Document{"title": "Purim party", "image_url": "https://example.org/purim.png"})

	flyers, err := f.repo.Flyers(ctx)
	require.NoError(t, err)
	require.Len(t, flyers, 1)
	f.cache.Wait()

	require.NoError(t, Remove[content.Flyer](ctx, f.repo, id))

	flyers, err = f.repo.Flyers(ctx)
	require.NoError(t, err)
	assert.Empty(t, flyers)

	_, err = f.repo.Flyer(ctx, id)
	assert.ErrorIs(t, err, types.ErrDocumentNotFound)
}

func TestLesson_FallsBackToCatalog(t *testing.T) {
	f := newFixture(t)

	lesson, err := f.repo.Lesson(context.Background(), "static-lesson-prayer-1")
	require.NoError(t, err)
	assert.Equal(t, content.OriginStatic, lesson.Origin)

	_, err = f.repo.Lesson(context.Background(), "nowhere")
	assert.ErrorIs(t, err, types.ErrDocumentNotFound)
}

func TestPublishedNews_ExcludesDrafts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.seed(t, content.CollectionNews, types.Document{"title": "Out", "body": "b", "published": true})
	f.seed(t, content.CollectionNews, types.Document{"title": "Draft", "body": "b", "published": false})

	news, err := f.repo.PublishedNews(ctx)
	require.NoError(t, err)
	require.Len(t, news, 1)
	assert.Equal(t, "Out", news[0].Title)

	_, err = f.repo.AllNews(ctx)
	assert.ErrorIs(t, err, types.ErrNotSignedIn)

	f.signInAdmin(t)
	all, err := f.repo.AllNews(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDailyVideos_PrunesAgedOutItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.seed(t, content.CollectionDailyVideos, types.Document{
		"title": "Today", "video_id": "yt-today", "created_at": f.now.Add(-2 * time.Hour).UnixMilli(),
	})
	f.seed(t, content.CollectionDailyVideos, types.Document{
		"title": "Yesterday", "video_id": "yt-yesterday", "created_at": f.now.Add(-25 * time.Hour).UnixMilli(),
	})

	videos, err := f.repo.DailyVideos(ctx)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "Today", videos[0].Title)
}

func TestActiveAlerts_UseAlertWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.seed(t, content.CollectionAlerts, types.Document{
		"title": "Road closure", "message": "m", "severity": "warning", "created_at": f.now.Add(-48 * time.Hour).UnixMilli(),
	})
	f.seed(t, content.CollectionAlerts, types.Document{
		"title": "Old", "message": "m", "created_at": f.now.Add(-100 * time.Hour).UnixMilli(),
	})

	alerts, err := f.repo.ActiveAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Road closure", alerts[0].Title)
}

func TestFetchErrorPropagates(t *testing.T) {
	f := newFixture(t)
	remoteErr := errors.New("remote down")
	f.remote.failErr = remoteErr

	_, err := f.repo.Podcasts(context.Background())
	assert.ErrorIs(t, err, remoteErr)

	f.remote.failErr = nil
	_, err = f.repo.Podcasts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.queries())
}

func TestWeeklySchedule_OrderedByDayAndTime(t *testing.T) {
	f := newFixture(t)

	f.seed(t, content.CollectionSchedule, types.Document{"day": "monday", "time": "19:00", "title": "Evening class"})
	f.seed(t, content.CollectionSchedule, types.Document{"day": "sunday", "time": "09:30", "title": "Breakfast"})
	f.seed(t, content.CollectionSchedule, types.Document{"day": "monday", "time": "07:00", "title": "Morning prayer"})
	f.seed(t, content.CollectionSchedule, types.Document{"day": "someday", "time": "07:00", "title": "Invalid"})

	entries, err := f.repo.WeeklySchedule(context.Background())
	require.NoError(t, err)

	titles := make([]string, 0, len(entries))
	for _, entry := range entries {
		titles = append(titles, entry.Title)
	}
	assert.Equal(t, []string{"Breakfast", "Morning prayer", "Evening class"}, titles)
}

func TestPruneRemoteDailyContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.seed(t, content.CollectionDailyVideos, types.Document{
		"title": "Fresh", "video_id": "a", "created_at": f.now.Add(-time.Hour).UnixMilli(),
	})
	f.seed(t, content.CollectionDailyVideos, types.Document{
		"title": "Stale", "video_id": "b", "created_at": f.now.Add(-30 * time.Hour).UnixMilli(),
	})
	f.seed(t, content.CollectionAlerts, types.Document{
		"title": "Stale alert", "message": "m", "created_at": f.now.Add(-80 * time.Hour).UnixMilli(),
	})

	_, err := f.repo.DailyVideos(ctx)
	require.NoError(t, err)
	f.cache.Wait()

	removed, err := f.repo.PruneRemoteDailyContent(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	before := f.queries()
	videos, err := f.repo.DailyVideos(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, f.queries())
	assert.Len(t, videos, 1)

	docs, err := f.backing.Query(ctx, types.QueryRequest{Collection: content.CollectionAlerts})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSignOut_ClearsCachedViews(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signInAdmin(t)

	_, err := f.repo.Videos(ctx)
	require.NoError(t, err)
	f.cache.Wait()

	f.sessions.SignOut(ctx)

	_, err = f.repo.Videos(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.queries())
}
