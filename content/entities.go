package content

import "github.com/saiset-co/sai-content/invalidation"

// Remote collection names.
const (
	CollectionLessons     = "lessons"
	CollectionVideos      = "videos"
	CollectionNews        = "news"
	CollectionPodcasts    = "podcasts"
	CollectionFlyers      = "flyers"
	CollectionAlerts      = "alerts"
	CollectionDailyVideos = "daily_videos"
	CollectionSchedule    = "weekly_schedule"
)

// Record is implemented by pointers to every typed entity. It ties an entity
// to its remote collection and its invalidation entry.
type Record[T any] interface {
	Entity[T]
	EntityType() string
	Collection() string
	DocumentID() string
	SetDocumentID(id string)
	// InvalidationFields are the entity fields key templates are
	// parameterised by.
	InvalidationFields() map[string]string
	Normalize()
}

type Lesson struct {
	Item            `yaml:",inline"`
	ID              string `json:"id,omitempty" yaml:"id,omitempty"`
	Title           string `json:"title" yaml:"title" validate:"required"`
	Description     string `json:"description,omitempty" yaml:"description,omitempty"`
	Category        string `json:"category" yaml:"category" validate:"required"`
	Speaker         string `json:"speaker,omitempty" yaml:"speaker,omitempty"`
	VideoID         string `json:"video_id,omitempty" yaml:"video_id,omitempty"`
	ThumbnailURL    string `json:"thumbnail_url,omitempty" yaml:"thumbnail_url,omitempty" validate:"omitempty,url"`
	DurationSeconds int    `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty" validate:"min=0"`
}

func (l *Lesson) EntityType() string      { return invalidation.EntityLesson }
func (l *Lesson) Collection() string      { return CollectionLessons }
func (l *Lesson) DocumentID() string      { return l.ID }
func (l *Lesson) SetDocumentID(id string) { l.ID = id }

func (l *Lesson) InvalidationFields() map[string]string {
	return map[string]string{"category": l.Category}
}

// Normalize keys a lesson by its video so a remote copy of a bundled lesson
// replaces it.
func (l *Lesson) Normalize() {
	if l.NaturalKey == "" {
		l.NaturalKey = l.VideoID
	}
	if l.FallbackKey == "" {
		l.FallbackKey = l.ID
	}
}

type Video struct {
	Item         `yaml:",inline"`
	ID           string `json:"id,omitempty" yaml:"id,omitempty"`
	Title        string `json:"title" yaml:"title" validate:"required"`
	VideoID      string `json:"video_id" yaml:"video_id" validate:"required"`
	Category     string `json:"category,omitempty" yaml:"category,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty" yaml:"thumbnail_url,omitempty" validate:"omitempty,url"`
}

func (v *Video) EntityType() string                    { return invalidation.EntityVideo }
func (v *Video) Collection() string                    { return CollectionVideos }
func (v *Video) DocumentID() string                    { return v.ID }
func (v *Video) SetDocumentID(id string)               { v.ID = id }
func (v *Video) InvalidationFields() map[string]string { return nil }

func (v *Video) Normalize() {
	if v.NaturalKey == "" {
		v.NaturalKey = v.VideoID
	}
	if v.FallbackKey == "" {
		v.FallbackKey = v.ID
	}
}

type News struct {
	Item      `yaml:",inline"`
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	Title     string `json:"title" yaml:"title" validate:"required"`
	Body      string `json:"body" yaml:"body" validate:"required"`
	ImageURL  string `json:"image_url,omitempty" yaml:"image_url,omitempty" validate:"omitempty,url"`
	Published bool   `json:"published" yaml:"published"`
}

func (n *News) EntityType() string                    { return invalidation.EntityNews }
func (n *News) Collection() string                    { return CollectionNews }
func (n *News) DocumentID() string                    { return n.ID }
func (n *News) SetDocumentID(id string)               { n.ID = id }
func (n *News) InvalidationFields() map[string]string { return nil }
func (n *News) Normalize()                            { keyByID(&n.Item, n.ID) }

type Podcast struct {
	Item        `yaml:",inline"`
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Title       string `json:"title" yaml:"title" validate:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	AudioURL    string `json:"audio_url" yaml:"audio_url" validate:"required,url"`
	Episode     int    `json:"episode,omitempty" yaml:"episode,omitempty" validate:"min=0"`
}

func (p *Podcast) EntityType() string                    { return invalidation.EntityPodcast }
func (p *Podcast) Collection() string                    { return CollectionPodcasts }
func (p *Podcast) DocumentID() string                    { return p.ID }
func (p *Podcast) SetDocumentID(id string)               { p.ID = id }
func (p *Podcast) InvalidationFields() map[string]string { return nil }
func (p *Podcast) Normalize()                            { keyByID(&p.Item, p.ID) }

type Flyer struct {
	Item      `yaml:",inline"`
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	Title     string `json:"title" yaml:"title" validate:"required"`
	ImageURL  string `json:"image_url" yaml:"image_url" validate:"required,url"`
	EventDate string `json:"event_date,omitempty" yaml:"event_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

func (f *Flyer) EntityType() string                    { return invalidation.EntityFlyer }
func (f *Flyer) Collection() string                    { return CollectionFlyers }
func (f *Flyer) DocumentID() string                    { return f.ID }
func (f *Flyer) SetDocumentID(id string)               { f.ID = id }
func (f *Flyer) InvalidationFields() map[string]string { return nil }
func (f *Flyer) Normalize()                            { keyByID(&f.Item, f.ID) }

type Alert struct {
	Item     `yaml:",inline"`
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
	Title    string `json:"title" yaml:"title" validate:"required"`
	Message  string `json:"message" yaml:"message" validate:"required"`
	Severity string `json:"severity" yaml:"severity" validate:"omitempty,oneof=info warning urgent"`
}

func (a *Alert) EntityType() string                    { return invalidation.EntityAlert }
func (a *Alert) Collection() string                    { return CollectionAlerts }
func (a *Alert) DocumentID() string                    { return a.ID }
func (a *Alert) SetDocumentID(id string)               { a.ID = id }
func (a *Alert) InvalidationFields() map[string]string { return nil }
func (a *Alert) Normalize()                            { keyByID(&a.Item, a.ID) }

type DailyVideo struct {
	Item    `yaml:",inline"`
	ID      string `json:"id,omitempty" yaml:"id,omitempty"`
	Title   string `json:"title" yaml:"title" validate:"required"`
	VideoID string `json:"video_id" yaml:"video_id" validate:"required"`
}

func (d *DailyVideo) EntityType() string                    { return invalidation.EntityDailyVideo }
func (d *DailyVideo) Collection() string                    { return CollectionDailyVideos }
func (d *DailyVideo) DocumentID() string                    { return d.ID }
func (d *DailyVideo) SetDocumentID(id string)               { d.ID = id }
func (d *DailyVideo) InvalidationFields() map[string]string { return nil }

func (d *DailyVideo) Normalize() {
	if d.NaturalKey == "" {
		d.NaturalKey = d.VideoID
	}
	if d.FallbackKey == "" {
		d.FallbackKey = d.ID
	}
}

type ScheduleEntry struct {
	Item     `yaml:",inline"`
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
	Day      string `json:"day" yaml:"day" validate:"required,oneof=sunday monday tuesday wednesday thursday friday saturday"`
	Time     string `json:"time" yaml:"time" validate:"required,datetime=15:04"`
	Title    string `json:"title" yaml:"title" validate:"required"`
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
}

func (s *ScheduleEntry) EntityType() string                    { return invalidation.EntitySchedule }
func (s *ScheduleEntry) Collection() string                    { return CollectionSchedule }
func (s *ScheduleEntry) DocumentID() string                    { return s.ID }
func (s *ScheduleEntry) SetDocumentID(id string)               { s.ID = id }
func (s *ScheduleEntry) InvalidationFields() map[string]string { return nil }
func (s *ScheduleEntry) Normalize()                            { keyByID(&s.Item, s.ID) }

func keyByID(item *Item, id string) {
	if item.NaturalKey == "" {
		item.NaturalKey = id
	}
}
