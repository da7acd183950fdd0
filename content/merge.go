package content

import (
	"fmt"
	"sort"
)

// Merge reconciles bundled and remote items into one deduplicated view.
//
// Items are keyed by Key(); remote items overwrite static ones with the same
// key in place. The result keeps insertion order except that remote items
// with an explicit Order move to the front, highest Order first. Neither
// input is modified.
func Merge[T any, PT Entity[T]](static, remote []T) []T {
	index := make(map[string]int, len(static)+len(remote))
	merged := make([]T, 0, len(static)+len(remote))

	insert := func(item T, origin Origin, position int) {
		PT(&item).Meta().Origin = origin

		key := PT(&item).Meta().Key()
		if key == "" {
			key = placeholderKey(origin, position)
		}

		if at, exists := index[key]; exists {
			merged[at] = item
			return
		}

		index[key] = len(merged)
		merged = append(merged, item)
	}

	for i, item := range static {
		insert(item, OriginStatic, i)
	}
	for i, item := range remote {
		insert(item, OriginRemote, i)
	}

	sort.SliceStable(merged, func(a, b int) bool {
		left := PT(&merged[a]).Meta()
		right := PT(&merged[b]).Meta()

		switch {
		case ranked(left) && ranked(right):
			return *left.Order > *right.Order
		case ranked(left):
			return true
		default:
			return false
		}
	})

	return merged
}

// MergeItems is Merge over bare items.
func MergeItems(static, remote []Item) []Item {
	return Merge[Item](static, remote)
}

// ranked reports whether the item carries an admin curation rank. Only
// remote items can be ranked.
func ranked(item *Item) bool {
	return item.Origin == OriginRemote && item.Order != nil
}

// placeholderKey identifies an item without any key. The NUL prefix keeps it
// from colliding with real keys.
func placeholderKey(origin Origin, position int) string {
	return fmt.Sprintf("\x00%s#%d", origin, position)
}
