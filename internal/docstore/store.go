// Package docstore is the key-value document persistence behind identities,
// anomaly baselines and engagement logs.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Load for keys that were never saved.
var ErrNotFound = errors.New("document not found")

// Store loads and overwrites opaque documents by key. Save replaces the whole
// document; there is no cross-key transaction.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, doc []byte) error
}

// Checker is implemented by stores backed by a remote service.
type Checker interface {
	Ping(ctx context.Context) error
}

// LoadJSON decodes the document at key into v. It reports false, with no
// error, when the key is absent.
func LoadJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	data, err := s.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func SaveJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Save(ctx, key, data)
}
