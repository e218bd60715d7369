// Package identity holds enrolled identities and answers nearest-neighbour
// queries over their embeddings.
package identity

import (
	"context"
	"math"
)

// Match is the closest enrolled identity to a probe embedding.
type Match struct {
	ID       string
	Distance float64
}

// Index answers nearest-neighbour queries. Implementations return the exact
// Euclidean distance of the winner, and among equidistant identities the
// lexicographically smallest id.
type Index interface {
	// Nearest reports false when the index holds no comparable embedding.
	Nearest(ctx context.Context, embedding []float64) (Match, bool, error)
	Upsert(ctx context.Context, id string, embedding []float64) error
	Reset(ctx context.Context) error
}

// Distance is the Euclidean distance between a and b, or +Inf when their
// dimensions differ.
func Distance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// better reports whether candidate (id, d) beats the current best.
func better(id string, d float64, best Match, found bool) bool {
	if math.IsInf(d, 1) || math.IsNaN(d) {
		return false
	}
	if !found || d < best.Distance {
		return true
	}
	return d == best.Distance && id < best.ID
}

// rerank picks the exact winner among candidate embeddings.
func rerank(query []float64, candidates map[string][]float64) (Match, bool) {
	var best Match
	found := false
	for id, emb := range candidates {
		d := Distance(query, emb)
		if better(id, d, best, found) {
			best, found = Match{ID: id, Distance: d}, true
		}
	}
	return best, found
}
