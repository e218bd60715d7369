package identity

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/docstore"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
)

// DocumentKey is where the identity table is persisted.
const DocumentKey = "identities"

type document struct {
	Encodings map[string][]float64 `json:"encodings"`
	Quality   map[string]float64   `json:"quality"`
}

// Registry owns the authoritative id → embedding table plus the quality score
// recorded when each embedding was enrolled. Searches go through the Index,
// which is kept in step on every Upsert.
type Registry struct {
	store  docstore.Store
	index  Index
	logger *slog.Logger

	mu         sync.RWMutex
	embeddings map[string][]float64
	quality    map[string]float64
	// unindexed holds ids whose last index write failed; Save retries them.
	unindexed map[string]struct{}

	// saveMu orders saves so a later save never writes an older snapshot.
	saveMu sync.Mutex
}

func NewRegistry(store docstore.Store, index Index, logger *slog.Logger) *Registry {
	return &Registry{
		store:      store,
		index:      index,
		logger:     logger.With("component", "identity_registry"),
		embeddings: make(map[string][]float64),
		quality:    make(map[string]float64),
		unindexed:  make(map[string]struct{}),
	}
}

// Load replaces the in-memory table with the persisted one and re-seeds the index.
func (r *Registry) Load(ctx context.Context) error {
	var doc document
	found, err := docstore.LoadJSON(ctx, r.store, DocumentKey, &doc)
	if err != nil {
		return domain.ErrPersistenceFailure.WithError(fmt.Errorf("load identities: %w", err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.embeddings = make(map[string][]float64, len(doc.Encodings))
	r.quality = make(map[string]float64, len(doc.Quality))
	r.unindexed = make(map[string]struct{})
	for id, emb := range doc.Encodings {
		r.embeddings[id] = emb
	}
	for id, q := range doc.Quality {
		if _, ok := r.embeddings[id]; ok {
			r.quality[id] = q
		}
	}

	if err := r.index.Reset(ctx); err != nil {
		return fmt.Errorf("reset index: %w", err)
	}
	ids := make([]string, 0, len(r.embeddings))
	for id := range r.embeddings {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if err := r.index.Upsert(ctx, id, r.embeddings[id]); err != nil {
			return fmt.Errorf("index %s: %w", id, err)
		}
	}

	r.logger.Info("identities loaded", "found", found, "count", len(r.embeddings))
	return nil
}

// Nearest returns the closest enrolled identity. ok is false when nothing
// comparable is enrolled.
func (r *Registry) Nearest(ctx context.Context, embedding []float64) (Match, bool, error) {
	return r.index.Nearest(ctx, embedding)
}

// Upsert inserts or overwrites id. The in-memory table is updated even when
// the index write fails; the error is still returned so callers can log it,
// and the next Save writes id to the index again.
func (r *Registry) Upsert(ctx context.Context, id string, embedding []float64, quality float64) error {
	emb := slices.Clone(embedding)

	r.mu.Lock()
	r.embeddings[id] = emb
	r.quality[id] = quality
	r.mu.Unlock()

	err := r.index.Upsert(ctx, id, emb)

	r.mu.Lock()
	if err != nil {
		r.unindexed[id] = struct{}{}
	} else {
		delete(r.unindexed, id)
	}
	r.mu.Unlock()

	if err != nil {
		return domain.ErrPersistenceFailure.WithError(err)
	}
	return nil
}

// reindex retries index writes that failed in Upsert.
func (r *Registry) reindex(ctx context.Context) {
	r.mu.RLock()
	pending := make(map[string][]float64, len(r.unindexed))
	for id := range r.unindexed {
		if emb, ok := r.embeddings[id]; ok {
			pending[id] = emb
		}
	}
	r.mu.RUnlock()

	for id, emb := range pending {
		if err := r.index.Upsert(ctx, id, emb); err != nil {
			r.logger.Warn("index retry failed", "identity_id", id, "error", err)
			continue
		}
		r.mu.Lock()
		delete(r.unindexed, id)
		r.mu.Unlock()
	}
}

func (r *Registry) Get(id string) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	emb, ok := r.embeddings[id]
	if !ok {
		return domain.Identity{}, false
	}
	return domain.Identity{
		ID:           id,
		Embedding:    slices.Clone(emb),
		QualityScore: r.quality[id],
	}, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.embeddings)
}

// Snapshot copies the id → embedding table.
func (r *Registry) Snapshot() map[string][]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]float64, len(r.embeddings))
	for id, emb := range r.embeddings {
		out[id] = slices.Clone(emb)
	}
	return out
}

// Save writes the whole table, first re-indexing any id whose index write
// failed.
func (r *Registry) Save(ctx context.Context) error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.reindex(ctx)

	r.mu.RLock()
	doc := document{
		Encodings: make(map[string][]float64, len(r.embeddings)),
		Quality:   make(map[string]float64, len(r.quality)),
	}
	for id, emb := range r.embeddings {
		doc.Encodings[id] = emb
	}
	for id, q := range r.quality {
		doc.Quality[id] = q
	}
	r.mu.RUnlock()

	if err := docstore.SaveJSON(ctx, r.store, DocumentKey, doc); err != nil {
		return domain.ErrPersistenceFailure.WithError(err)
	}
	return nil
}

// Reset removes every identity and persists the empty table.
func (r *Registry) Reset(ctx context.Context) (int, error) {
	r.mu.Lock()
	removed := len(r.embeddings)
	r.embeddings = make(map[string][]float64)
	r.quality = make(map[string]float64)
	r.unindexed = make(map[string]struct{})
	r.mu.Unlock()

	if err := r.index.Reset(ctx); err != nil {
		return removed, domain.ErrPersistenceFailure.WithError(err)
	}
	if err := r.Save(ctx); err != nil {
		return removed, err
	}

	r.logger.Warn("identities wiped", "removed", removed)
	return removed, nil
}
