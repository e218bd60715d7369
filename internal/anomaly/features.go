package anomaly

import (
	"math"
	"slices"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/provider"
)

// Features turns landmarks into pairwise point distances within each group.
// Groups are visited in name order so a fixed landmark schema always yields
// the same layout.
func Features(landmarks provider.Landmarks) []float64 {
	groups := make([]string, 0, len(landmarks))
	for name := range landmarks {
		groups = append(groups, name)
	}
	slices.Sort(groups)

	var out []float64
	for _, name := range groups {
		points := landmarks[name]
		for i := 0; i < len(points)-1; i++ {
			for j := i + 1; j < len(points); j++ {
				out = append(out, math.Hypot(points[i].X-points[j].X, points[i].Y-points[j].Y))
			}
		}
	}
	return out
}
