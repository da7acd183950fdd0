// Package content holds the content model shared by every collection and the
// two pure transforms applied to it: reconciliation of static and remote
// items, and pruning of time-boxed items.
package content

import "time"

type Origin string

const (
	OriginStatic Origin = "static"
	OriginRemote Origin = "remote"
)

// Item is the metadata every piece of content carries, whichever collection
// it belongs to.
type Item struct {
	NaturalKey  string     `json:"natural_key,omitempty" yaml:"natural_key,omitempty"`
	FallbackKey string     `json:"fallback_key,omitempty" yaml:"fallback_key,omitempty"`
	Origin      Origin     `json:"origin,omitempty" yaml:"origin,omitempty"`
	Order       *int       `json:"order,omitempty" yaml:"order,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

func (i *Item) Meta() *Item {
	return i
}

// Key is the identity used for deduplication: NaturalKey, else FallbackKey.
func (i *Item) Key() string {
	if i.NaturalKey != "" {
		return i.NaturalKey
	}
	return i.FallbackKey
}

// Entity is satisfied by a pointer to any struct embedding Item.
type Entity[T any] interface {
	*T
	Meta() *Item
}

func IntPtr(v int) *int {
	return &v
}

func TimePtr(t time.Time) *time.Time {
	return &t
}
