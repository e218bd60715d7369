package engagement

import (
	"slices"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/provider"
)

// Features flattens every landmark point into x, y pairs, groups in name
// order. Coordinates are rescaled to the landmarks' bounding box so the
// vector does not depend on where the face sits in the frame or its size.
func Features(landmarks provider.Landmarks) []float64 {
	groups := make([]string, 0, len(landmarks))
	for name := range landmarks {
		groups = append(groups, name)
	}
	slices.Sort(groups)

	first := true
	var minX, minY, maxX, maxY float64
	for _, name := range groups {
		for _, p := range landmarks[name] {
			if first {
				minX, maxX, minY, maxY = p.X, p.X, p.Y, p.Y
				first = false
				continue
			}
			minX, maxX = min(minX, p.X), max(maxX, p.X)
			minY, maxY = min(minY, p.Y), max(maxY, p.Y)
		}
	}

	scale := func(v, lo, hi float64) float64 {
		if hi <= lo {
			return 0
		}
		return (v - lo) / (hi - lo)
	}

	var out []float64
	for _, name := range groups {
		for _, p := range landmarks[name] {
			out = append(out, scale(p.X, minX, maxX), scale(p.Y, minY, maxY))
		}
	}
	return out
}
