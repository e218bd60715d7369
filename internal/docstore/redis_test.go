package docstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis answers with pre-built command results, like a tiny in-memory server.
type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]string
	failSet error
	ttls    map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet != nil {
		return redis.NewStatusResult("", f.failSet)
	}
	f.values[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Ping(_ context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func TestRedis(t *testing.T) {
	runStoreContract(t, NewRedis(newFakeRedis()))
}

func TestRedis_PrefixesKeysWithoutExpiry(t *testing.T) {
	fake := newFakeRedis()
	require.NoError(t, NewRedis(fake).Save(context.Background(), "identities", []byte("{}")))

	assert.Contains(t, fake.values, "trace:identities")
	assert.Equal(t, time.Duration(0), fake.ttls["trace:identities"])
}

func TestRedis_Errors(t *testing.T) {
	fake := newFakeRedis()
	fake.failSet = errors.New("READONLY")

	err := NewRedis(fake).Save(context.Background(), "k", []byte("v"))
	assert.ErrorContains(t, err, "READONLY")
	assert.NoError(t, NewRedis(fake).Ping(context.Background()))
}
