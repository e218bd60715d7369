package identity

import (
	"context"
	"sync"
)

// LinearIndex scans every embedding. Exact, and fast enough for the few
// thousand identities a single deployment enrolls.
type LinearIndex struct {
	mu         sync.RWMutex
	embeddings map[string][]float64
}

func NewLinearIndex() *LinearIndex {
	return &LinearIndex{embeddings: make(map[string][]float64)}
}

func (l *LinearIndex) Nearest(_ context.Context, embedding []float64) (Match, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, ok := rerank(embedding, l.embeddings)
	return m, ok, nil
}

func (l *LinearIndex) Upsert(_ context.Context, id string, embedding []float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.embeddings[id] = embedding
	return nil
}

func (l *LinearIndex) Reset(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.embeddings = make(map[string][]float64)
	return nil
}
