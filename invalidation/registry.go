// Package invalidation maps entity types to the cache keys a mutation of
// that entity makes stale.
package invalidation

import (
	"sort"
	"strings"

	"github.com/saiset-co/sai-content/types"
)

const (
	EntityLesson     = "lesson"
	EntityVideo      = "video"
	EntityNews       = "news"
	EntityPodcast    = "podcast"
	EntityFlyer      = "flyer"
	EntityAlert      = "alert"
	EntityDailyVideo = "dailyVideo"
	EntitySchedule   = "schedule"
)

// Key templates. A template holds at most one {param}; {id} binds to the
// entity id, any other name binds to the entity field of that name.
const (
	KeyLessonsAll        = "lessons_all"
	KeyLessonsByCategory = "lessons_by_category_{category}"
	KeyLesson            = "lesson_item_{id}"
	KeyVideosAll         = "videos_all"
	KeyVideo             = "video_item_{id}"
	KeyNewsPublished     = "news_published"
	KeyNewsAll           = "news_all"
	KeyNews              = "news_item_{id}"
	KeyPodcastsAll       = "podcasts_all"
	KeyPodcast           = "podcast_item_{id}"
	KeyFlyersAll         = "flyers_all"
	KeyFlyer             = "flyer_item_{id}"
	KeyAlertsActive      = "alerts_active"
	KeyDailyVideos       = "daily_videos"
	KeyWeeklySchedule    = "weekly_schedule"
)

const idParam = "id"

type Template struct {
	Pattern string
	prefix  string
	param   string
	suffix  string
}

func ParseTemplate(pattern string) (Template, error) {
	open := strings.IndexByte(pattern, '{')
	if open < 0 {
		if strings.IndexByte(pattern, '}') >= 0 {
			return Template{}, types.Errorf(types.ErrInvalidParameter, "template %q: unbalanced brace", pattern)
		}
		return Template{Pattern: pattern, prefix: pattern}, nil
	}

	closing := strings.IndexByte(pattern[open:], '}')
	if closing < 0 {
		return Template{}, types.Errorf(types.ErrInvalidParameter, "template %q: unbalanced brace", pattern)
	}
	closing += open

	param := pattern[open+1 : closing]
	suffix := pattern[closing+1:]

	if param == "" || strings.ContainsAny(suffix, "{}") {
		return Template{}, types.Errorf(types.ErrInvalidParameter, "template %q: one named parameter allowed", pattern)
	}

	return Template{
		Pattern: pattern,
		prefix:  pattern[:open],
		param:   param,
		suffix:  suffix,
	}, nil
}

func (t Template) Param() string {
	return t.param
}

func (t Template) Expand(value string) string {
	if t.param == "" {
		return t.Pattern
	}
	return t.prefix + value + t.suffix
}

// Expand fills the single parameter of pattern. It panics on a malformed
// pattern, so use it only with the Key constants.
func Expand(pattern, value string) string {
	t, err := ParseTemplate(pattern)
	if err != nil {
		panic(err)
	}
	return t.Expand(value)
}

// Affected is what one mutation invalidates: exact keys, plus key prefixes
// for templates whose parameter value was not known.
type Affected struct {
	Keys     []string
	Prefixes []string
}

type Registry struct {
	entities map[string][]Template
}

func NewRegistry(table map[string][]string) (*Registry, error) {
	registry := &Registry{entities: make(map[string][]Template, len(table))}

	for entityType, patterns := range table {
		templates := make([]Template, 0, len(patterns))
		for _, pattern := range patterns {
			t, err := ParseTemplate(pattern)
			if err != nil {
				return nil, err
			}
			templates = append(templates, t)
		}
		registry.entities[entityType] = templates
	}

	return registry, nil
}

func DefaultTable() map[string][]string {
	return map[string][]string{
		EntityLesson:     {KeyLessonsAll, KeyLessonsByCategory, KeyLesson},
		EntityVideo:      {KeyVideosAll, KeyVideo},
		EntityNews:       {KeyNewsPublished, KeyNewsAll, KeyNews},
		EntityPodcast:    {KeyPodcastsAll, KeyPodcast},
		EntityFlyer:      {KeyFlyersAll, KeyFlyer},
		EntityAlert:      {KeyAlertsActive},
		EntityDailyVideo: {KeyDailyVideos},
		EntitySchedule:   {KeyWeeklySchedule},
	}
}

func DefaultRegistry() *Registry {
	registry, err := NewRegistry(DefaultTable())
	if err != nil {
		panic(err)
	}
	return registry
}

func (r *Registry) EntityTypes() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Resolve(entityType, entityID string, fields map[string]string) (Affected, error) {
	templates, exists := r.entities[entityType]
	if !exists {
		return Affected{}, types.Errorf(types.ErrEntityTypeUnknown, "entity type: %s", entityType)
	}

	var affected Affected
	for _, t := range templates {
		if t.param == "" {
			affected.Keys = append(affected.Keys, t.Pattern)
			continue
		}

		value := fields[t.param]
		if t.param == idParam {
			value = entityID
		}

		if value == "" {
			affected.Prefixes = append(affected.Prefixes, t.prefix)
			continue
		}

		affected.Keys = append(affected.Keys, t.Expand(value))
	}

	return affected, nil
}

// KeysAffectedBy returns the exact keys a mutation of the entity invalidates.
// Unknown entity types affect nothing.
func (r *Registry) KeysAffectedBy(entityType, entityID string) []string {
	affected, err := r.Resolve(entityType, entityID, nil)
	if err != nil {
		return nil
	}
	return affected.Keys
}
