package types

import "context"

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

type Document map[string]interface{}

// DocumentStore is the remote, admin-editable document service. Results are
// treated as opaque records; decoding happens in the content package.
type DocumentStore interface {
	LifecycleManager
	Query(ctx context.Context, request QueryRequest) ([]Document, error)
	GetByID(ctx context.Context, collection, id string) (Document, bool, error)
	Create(ctx context.Context, collection string, fields Document) (string, error)
	Update(ctx context.Context, collection, id string, fields Document) error
	Delete(ctx context.Context, collection, id string) error
}

type DocumentStoreCreator func(config interface{}) (DocumentStore, error)

type Filter struct {
	Field string      `json:"field"`
	Op    string      `json:"op"`
	Value interface{} `json:"value"`
}

type QueryRequest struct {
	Collection string        `json:"collection"`
	Filters    []Filter      `json:"filters,omitempty"`
	OrderBy    string        `json:"order_by,omitempty"`
	Direction  SortDirection `json:"direction,omitempty"`
	Limit      int           `json:"limit,omitempty"`
}

const (
	OpEq  = "=="
	OpNe  = "!="
	OpGt  = ">"
	OpGte = ">="
	OpLt  = "<"
	OpLte = "<="
	OpIn  = "in"
)
