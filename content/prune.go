package content

import "time"

// Prune keeps the items created less than window before now. Items without
// a creation time are dropped.
func Prune[T any, PT Entity[T]](items []T, now time.Time, window time.Duration) []T {
	kept := make([]T, 0, len(items))

	for i := range items {
		createdAt := PT(&items[i]).Meta().CreatedAt
		if createdAt == nil {
			continue
		}

		if now.Sub(*createdAt) < window {
			kept = append(kept, items[i])
		}
	}

	return kept
}

// PruneExpired is Prune over bare items.
func PruneExpired(items []Item, now time.Time, window time.Duration) []Item {
	return Prune[Item](items, now, window)
}
