// Package store is the key-value persistence behind records, auto-sequence
// progress, column preferences and the enrichment failure list.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// KV is a string-keyed blob store. Get omits keys that have never been set.
type KV interface {
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)
	Set(ctx context.Context, values map[string][]byte) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// GetJSON loads key and decodes it into dst. It reports false when the key
// is absent, leaving dst untouched.
func GetJSON(ctx context.Context, kv KV, key string, dst any) (bool, error) {
	vals, err := kv.Get(ctx, key)
	if err != nil {
		return false, eris.Wrapf(err, "store: get %s", key)
	}
	raw, ok := vals[key]
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, eris.Wrapf(err, "store: decode %s", key)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, kv KV, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "store: encode %s", key)
	}
	return kv.Set(ctx, map[string][]byte{key: raw})
}
