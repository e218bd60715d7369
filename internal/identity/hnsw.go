package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/hnsw"
)

const (
	// HNSWMaxNeighbors is the M parameter of the graph.
	HNSWMaxNeighbors = 16
	// hnswCandidates are fetched from the graph and re-ranked exactly.
	hnswCandidates = 8
)

// HNSWIndex finds candidates in an in-memory HNSW graph (float32, Euclidean)
// and re-ranks them with the exact float64 distance.
type HNSWIndex struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[string]
	embeddings map[string][]float64
	dims       int
}

func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		graph:      newGraph(),
		embeddings: make(map[string][]float64),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors)
	g.Distance = hnsw.EuclideanDistance
	return g
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func (h *HNSWIndex) Nearest(_ context.Context, embedding []float64) (Match, bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.embeddings) == 0 || len(embedding) != h.dims {
		return Match{}, false, nil
	}

	k := min(hnswCandidates, len(h.embeddings))
	nodes := h.graph.Search(toFloat32(embedding), k)

	candidates := make(map[string][]float64, len(nodes))
	for _, n := range nodes {
		if emb, ok := h.embeddings[n.Key]; ok {
			candidates[n.Key] = emb
		}
	}

	m, ok := rerank(embedding, candidates)
	return m, ok, nil
}

func (h *HNSWIndex) Upsert(_ context.Context, id string, embedding []float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.embeddings) > 0 && len(embedding) != h.dims {
		return fmt.Errorf("embedding has %d dimensions, index holds %d", len(embedding), h.dims)
	}

	_, exists := h.embeddings[id]
	h.embeddings[id] = embedding
	h.dims = len(embedding)

	if !exists {
		h.graph.Add(hnsw.MakeNode(id, toFloat32(embedding)))
		return nil
	}

	// Replacing a node in place is not supported by the graph; re-enrollment
	// is rare, so rebuild.
	g := newGraph()
	for key, emb := range h.embeddings {
		g.Add(hnsw.MakeNode(key, toFloat32(emb)))
	}
	h.graph = g
	return nil
}

func (h *HNSWIndex) Reset(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = newGraph()
	h.embeddings = make(map[string][]float64)
	h.dims = 0
	return nil
}
