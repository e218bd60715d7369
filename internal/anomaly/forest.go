// Package anomaly keeps a short per-identity baseline of facial geometry and
// flags samples an isolation forest fitted on that baseline considers outliers.
package anomaly

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

const eulerGamma = 0.5772156649

// Labels returned by Predict.
const (
	Inlier  = 1
	Outlier = -1
)

// Options configure Fit. The zero value is not usable; start from DefaultOptions.
type Options struct {
	Trees         int
	MaxSamples    int
	Contamination float64
	Seed          uint64
}

func DefaultOptions() Options {
	return Options{
		Trees:         100,
		MaxSamples:    256,
		Contamination: 0.1,
		Seed:          42,
	}
}

type node struct {
	feature     int
	threshold   float64
	left, right *node
	size        int
}

func (n *node) leaf() bool { return n.left == nil }

// Forest is an isolation forest. Scores follow the usual convention: the
// lower the score, the more abnormal the sample.
type Forest struct {
	trees  []*node
	psi    int
	dims   int
	offset float64
}

// Fit grows the forest on X and sets the decision offset so that a
// Contamination share of the training samples falls below it. The same X and
// Options always produce the same forest.
func Fit(X [][]float64, opts Options) (*Forest, error) {
	if len(X) == 0 {
		return nil, errors.New("fit on empty sample set")
	}
	dims := len(X[0])
	for i, row := range X {
		if len(row) != dims {
			return nil, fmt.Errorf("sample %d has %d features, want %d", i, len(row), dims)
		}
	}
	if opts.Trees <= 0 {
		return nil, fmt.Errorf("trees must be positive, got %d", opts.Trees)
	}
	if opts.Contamination <= 0 || opts.Contamination > 0.5 {
		return nil, fmt.Errorf("contamination must be in (0, 0.5], got %v", opts.Contamination)
	}

	psi := len(X)
	if opts.MaxSamples > 0 && opts.MaxSamples < psi {
		psi = opts.MaxSamples
	}
	limit := int(math.Ceil(math.Log2(math.Max(float64(psi), 2))))

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	f := &Forest{trees: make([]*node, opts.Trees), psi: psi, dims: dims}

	all := make([]int, len(X))
	for i := range all {
		all[i] = i
	}
	for t := range f.trees {
		idx := slices.Clone(all)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		f.trees[t] = grow(X, idx[:psi], 0, limit, rng)
	}

	scores := f.ScoreSamples(X)
	f.offset = percentile(scores, 100*opts.Contamination)
	return f, nil
}

func grow(X [][]float64, idx []int, depth, limit int, rng *rand.Rand) *node {
	if depth >= limit || len(idx) <= 1 {
		return &node{size: len(idx)}
	}

	// Try features in random order; a feature constant within the node cannot
	// split it.
	for _, feature := range rng.Perm(len(X[0])) {
		lo, hi := X[idx[0]][feature], X[idx[0]][feature]
		for _, i := range idx[1:] {
			v := X[i][feature]
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if hi <= lo {
			continue
		}

		threshold := lo + rng.Float64()*(hi-lo)
		if threshold >= hi {
			threshold = lo
		}

		var left, right []int
		for _, i := range idx {
			if X[i][feature] <= threshold {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		}
		return &node{
			feature:   feature,
			threshold: threshold,
			left:      grow(X, left, depth+1, limit, rng),
			right:     grow(X, right, depth+1, limit, rng),
			size:      len(idx),
		}
	}

	return &node{size: len(idx)}
}

// averagePathLength is c(n), the mean depth of an unsuccessful search in a
// binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

func pathLength(n *node, x []float64) float64 {
	depth := 0
	for !n.leaf() {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.size)
}

// Score is the opposite of the anomaly score of x, in [-1, 0).
func (f *Forest) Score(x []float64) float64 {
	if len(x) != f.dims {
		return math.NaN()
	}
	var total float64
	for _, t := range f.trees {
		total += pathLength(t, x)
	}
	mean := total / float64(len(f.trees))
	return -math.Pow(2, -mean/averagePathLength(f.psi))
}

func (f *Forest) ScoreSamples(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = f.Score(x)
	}
	return out
}

// Predict returns Outlier when x scores below the fitted offset.
func (f *Forest) Predict(x []float64) int {
	if f.Score(x) < f.offset {
		return Outlier
	}
	return Inlier
}

func (f *Forest) Offset() float64 { return f.offset }

// percentile interpolates linearly between closest ranks.
func percentile(values []float64, p float64) float64 {
	s := slices.Clone(values)
	slices.Sort(s)
	if len(s) == 1 {
		return s[0]
	}
	pos := p / 100 * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := min(lo+1, len(s)-1)
	return s[lo] + (pos-float64(lo))*(s[hi]-s[lo])
}
