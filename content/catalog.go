package content

import (
	"embed"

	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-content/types"
)

//go:embed catalog/*.yaml
var bundled embed.FS

// Catalog is the content shipped with the build so that collections are
// never empty before the remote store answers.
type Catalog struct {
	Lessons []Lesson `yaml:"lessons"`
	Videos  []Video  `yaml:"videos"`
}

// LoadCatalog parses and validates the bundled catalog.
func LoadCatalog(d *Decoder) (*Catalog, error) {
	catalog := &Catalog{}

	if err := loadCatalogFile(d, "catalog/lessons.yaml", catalog); err != nil {
		return nil, err
	}
	if err := loadCatalogFile(d, "catalog/videos.yaml", catalog); err != nil {
		return nil, err
	}

	return catalog, nil
}

func loadCatalogFile(d *Decoder, name string, catalog *Catalog) error {
	data, err := bundled.ReadFile(name)
	if err != nil {
		return types.WrapError(err, "failed to read "+name)
	}

	var partial Catalog
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return types.WrapError(err, "failed to parse "+name)
	}

	for i := range partial.Lessons {
		if err := prepareStatic[Lesson](d, &partial.Lessons[i]); err != nil {
			return types.WrapError(err, name)
		}
	}
	for i := range partial.Videos {
		if err := prepareStatic[Video](d, &partial.Videos[i]); err != nil {
			return types.WrapError(err, name)
		}
	}

	catalog.Lessons = append(catalog.Lessons, partial.Lessons...)
	catalog.Videos = append(catalog.Videos, partial.Videos...)

	return nil
}

func prepareStatic[T any, PT Record[T]](d *Decoder, value PT) error {
	if err := d.Validate(value); err != nil {
		return err
	}

	value.Meta().Origin = OriginStatic
	value.Normalize()

	return nil
}

// Lesson looks a bundled lesson up by id or video id.
func (c *Catalog) Lesson(id string) (Lesson, bool) {
	for _, lesson := range c.Lessons {
		if lesson.ID == id || (lesson.VideoID != "" && lesson.VideoID == id) {
			return lesson, true
		}
	}
	return Lesson{}, false
}

func (c *Catalog) LessonsInCategory(category string) []Lesson {
	lessons := make([]Lesson, 0)
	for _, lesson := range c.Lessons {
		if lesson.Category == category {
			lessons = append(lessons, lesson)
		}
	}
	return lessons
}

func (c *Catalog) Video(id string) (Video, bool) {
	for _, video := range c.Videos {
		if video.ID == id || video.VideoID == id {
			return video, true
		}
	}
	return Video{}, false
}
