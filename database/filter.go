package database

import (
	"reflect"
	"sort"
	"strings"

	"github.com/saiset-co/sai-content/types"
)

func validateRequest(request types.QueryRequest) error {
	if request.Collection == "" {
		return types.ErrDatabaseCollectionEmpty
	}

	for _, filter := range request.Filters {
		switch filter.Op {
		case types.OpEq, types.OpNe, types.OpGt, types.OpGte, types.OpLt, types.OpLte, types.OpIn:
		default:
			return types.Errorf(types.ErrFilterOperatorNotAllowed, "operator %q on field %s", filter.Op, filter.Field)
		}
	}

	return nil
}

func matchesFilters(doc types.Document, filters []types.Filter) bool {
	for _, filter := range filters {
		if !matchesFilter(doc, filter) {
			return false
		}
	}
	return true
}

// matchesFilter follows document-database semantics: a document lacking the
// field never matches, not even "!=".
func matchesFilter(doc types.Document, filter types.Filter) bool {
	value, exists := doc[filter.Field]
	if !exists {
		return false
	}

	switch filter.Op {
	case types.OpEq:
		return equalValues(value, filter.Value)
	case types.OpNe:
		return !equalValues(value, filter.Value)
	case types.OpIn:
		for _, candidate := range toSlice(filter.Value) {
			if equalValues(value, candidate) {
				return true
			}
		}
		return false
	}

	cmp, ok := compareValues(value, filter.Value)
	if !ok {
		return false
	}

	switch filter.Op {
	case types.OpGt:
		return cmp > 0
	case types.OpGte:
		return cmp >= 0
	case types.OpLt:
		return cmp < 0
	case types.OpLte:
		return cmp <= 0
	default:
		return false
	}
}

// sortDocuments orders by field; documents without the field go last.
func sortDocuments(docs []types.Document, field string, direction types.SortDirection) {
	sort.SliceStable(docs, func(i, j int) bool {
		left, leftOK := docs[i][field]
		right, rightOK := docs[j][field]

		if !leftOK || !rightOK {
			return leftOK && !rightOK
		}

		cmp, ok := compareValues(left, right)
		if !ok {
			return false
		}

		if direction == types.SortDesc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func equalValues(a, b interface{}) bool {
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(a, b)
}

func compareValues(a, b interface{}) (int, bool) {
	if left, ok := toFloat(a); ok {
		right, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case left < right:
			return -1, true
		case left > right:
			return 1, true
		default:
			return 0, true
		}
	}

	if left, ok := a.(string); ok {
		right, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(left, right), true
	}

	if left, ok := a.(bool); ok {
		right, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if left == right {
			return 0, true
		}
		if right {
			return -1, true
		}
		return 1, true
	}

	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

func toSlice(v interface{}) []interface{} {
	if values, ok := v.([]interface{}); ok {
		return values
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []interface{}{v}
	}

	values := make([]interface{}, rv.Len())
	for i := range values {
		values[i] = rv.Index(i).Interface()
	}
	return values
}

func copyDocument(doc types.Document) types.Document {
	out := make(types.Document, len(doc))
	for key, value := range doc {
		out[key] = value
	}
	return out
}
