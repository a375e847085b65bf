package store

import "context"

// KeyValue is the subset of Dir, Bolt and Memory that KVBackend needs.
type KeyValue interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// KVBackend keeps the vault envelope under a single key of a KeyValue.
type KVBackend struct {
	KV  KeyValue
	Key string
}

const DefaultEnvelopeKey = "secure-vault.envelope"

func NewKVBackend(kv KeyValue) *KVBackend {
	return &KVBackend{KV: kv, Key: DefaultEnvelopeKey}
}

func (b *KVBackend) Save(ctx context.Context, envelope []byte) error {
	return b.KV.Put(ctx, b.Key, envelope)
}

func (b *KVBackend) Load(ctx context.Context) ([]byte, error) {
	return b.KV.Get(ctx, b.Key)
}
