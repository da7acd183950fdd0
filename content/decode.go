package content

import (
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-content/types"
	"github.com/saiset-co/sai-content/utils"
)

const FieldID = "id"

// metaFields never travel to the remote store; they are derived on decode.
var metaFields = []string{"natural_key", "fallback_key", "origin"}

// Decoder turns untyped remote documents into validated entities.
type Decoder struct {
	logger    types.Logger
	validator *validator.Validate
}

func NewDecoder(logger types.Logger) *Decoder {
	return &Decoder{
		logger:    logger,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (d *Decoder) Validate(value interface{}) error {
	if err := d.validator.Struct(value); err != nil {
		return types.WrapError(types.ErrDocumentInvalid, err.Error())
	}
	return nil
}

// DecodeDocument converts one remote document. Timestamps may arrive as
// RFC3339 strings, epoch milliseconds or {seconds, nanoseconds} maps.
func DecodeDocument[T any, PT Record[T]](d *Decoder, doc types.Document) (T, error) {
	var value T

	if doc == nil {
		return value, types.Errorf(types.ErrDocumentInvalid, "nil document")
	}

	normalized := make(map[string]interface{}, len(doc))
	for field, raw := range doc {
		if isTimestampField(field) {
			normalized[field] = normalizeTimestamp(raw)
			continue
		}
		normalized[field] = raw
	}

	if err := utils.Convert(normalized, &value); err != nil {
		return value, types.Errorf(types.ErrDocumentInvalid, "%v", err)
	}

	if err := d.Validate(&value); err != nil {
		return value, err
	}

	record := PT(&value)
	record.Meta().Origin = OriginRemote
	record.Normalize()

	return value, nil
}

// DecodeDocuments skips and logs documents that fail validation.
func DecodeDocuments[T any, PT Record[T]](d *Decoder, docs []types.Document) []T {
	values := make([]T, 0, len(docs))

	for _, doc := range docs {
		value, err := DecodeDocument[T, PT](d, doc)
		if err != nil {
			id, _ := doc[FieldID].(string)
			d.logger.Warn("Skipping invalid remote document",
				zap.String("collection", PT(&value).Collection()),
				zap.String("id", id),
				zap.Error(err),
			)
			continue
		}
		values = append(values, value)
	}

	return values
}

// EncodeDocument is the inverse of DecodeDocument: it yields the fields to
// store remotely, without the id and the derived metadata. Creation time is
// stored as epoch milliseconds.
func EncodeDocument[T any, PT Record[T]](value *T) (types.Document, error) {
	var fields map[string]interface{}
	if err := utils.Convert(value, &fields); err != nil {
		return nil, types.WrapError(err, "failed to encode document")
	}

	delete(fields, FieldID)
	for _, field := range metaFields {
		delete(fields, field)
	}

	if createdAt := PT(value).Meta().CreatedAt; createdAt != nil {
		fields["created_at"] = createdAt.UnixMilli()
	}

	return fields, nil
}

func isTimestampField(field string) bool {
	return strings.HasSuffix(field, "_at")
}

func normalizeTimestamp(raw interface{}) interface{} {
	switch v := raw.(type) {
	case float64:
		return millisToRFC3339(v)
	case int64:
		return millisToRFC3339(float64(v))
	case int:
		return millisToRFC3339(float64(v))
	case map[string]interface{}:
		seconds, ok := number(v["seconds"])
		if !ok {
			seconds, ok = number(v["_seconds"])
		}
		if !ok {
			return raw
		}
		nanos, _ := number(v["nanoseconds"])
		if nanos == 0 {
			nanos, _ = number(v["_nanoseconds"])
		}
		return time.Unix(int64(seconds), int64(nanos)).UTC().Format(time.RFC3339Nano)
	default:
		return raw
	}
}

func millisToRFC3339(ms float64) string {
	whole := math.Trunc(ms)
	return time.UnixMilli(int64(whole)).UTC().Format(time.RFC3339Nano)
}

func number(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
