package types

import "context"

// KVStore is a durable byte store keyed by string. A missing key is reported
// through the boolean result of Read, never as an error.
type KVStore interface {
	LifecycleManager
	Read(ctx context.Context, key string) ([]byte, bool, error)
	Write(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

type KVStoreCreator func(config interface{}) (KVStore, error)
