package anomaly

import (
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// cluster returns n vectors close to center with deterministic jitter.
func cluster(n int, center ...float64) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		v := make([]float64, len(center))
		for j, c := range center {
			v[j] = c + 0.01*float64((i*7+j*3)%5-2)
		}
		out[i] = v
	}
	return out
}

func TestAveragePathLength(t *testing.T) {
	Convey("Given the average unsuccessful search depth", t, func() {
		So(averagePathLength(0), ShouldEqual, 0)
		So(averagePathLength(1), ShouldEqual, 0)
		So(averagePathLength(2), ShouldEqual, 1)

		Convey("It should follow 2H(n-1) - 2(n-1)/n beyond two points", func() {
			want := 2*(math.Log(9)+eulerGamma) - 2*9.0/10.0
			So(averagePathLength(10), ShouldAlmostEqual, want, 1e-12)
		})
	})
}

func TestPercentile(t *testing.T) {
	Convey("Given unsorted values", t, func() {
		values := []float64{4, 1, 3, 2, 5}

		So(percentile(values, 0), ShouldEqual, 1)
		So(percentile(values, 100), ShouldEqual, 5)
		So(percentile(values, 50), ShouldEqual, 3)
		So(percentile(values, 10), ShouldAlmostEqual, 1.4, 1e-12)
		So(values[0], ShouldEqual, 4)
	})
}

func TestFit(t *testing.T) {
	Convey("Given a tight cluster with one distant sample", t, func() {
		X := append(cluster(9, 1, 1, 1), []float64{10, 10, 10})
		forest, err := Fit(X, DefaultOptions())
		So(err, ShouldBeNil)

		Convey("The distant sample scores lowest and is an outlier", func() {
			scores := forest.ScoreSamples(X)
			for i := 0; i < 9; i++ {
				So(scores[9], ShouldBeLessThan, scores[i])
			}
			So(forest.Predict(X[9]), ShouldEqual, Outlier)
		})

		Convey("Cluster members are inliers", func() {
			So(forest.Predict([]float64{1, 1, 1}), ShouldEqual, Inlier)
		})

		Convey("Scores stay in [-1, 0)", func() {
			for _, s := range forest.ScoreSamples(X) {
				So(s, ShouldBeGreaterThanOrEqualTo, -1)
				So(s, ShouldBeLessThan, 0)
			}
		})

		Convey("Refitting the same window yields the same forest", func() {
			again, err := Fit(X, DefaultOptions())
			So(err, ShouldBeNil)
			So(again.Offset(), ShouldEqual, forest.Offset())
			So(again.Score(X[3]), ShouldEqual, forest.Score(X[3]))
		})
	})

	Convey("Given identical samples", t, func() {
		X := [][]float64{{2, 2}, {2, 2}, {2, 2}, {2, 2}, {2, 2}}
		forest, err := Fit(X, DefaultOptions())
		So(err, ShouldBeNil)

		Convey("No split is possible and nothing is an outlier", func() {
			So(forest.Score(X[0]), ShouldAlmostEqual, -0.5, 1e-12)
			So(forest.Predict(X[0]), ShouldEqual, Inlier)
		})
	})

	Convey("Given invalid input", t, func() {
		_, err := Fit(nil, DefaultOptions())
		So(err, ShouldNotBeNil)

		_, err = Fit([][]float64{{1, 2}, {1}}, DefaultOptions())
		So(err, ShouldNotBeNil)

		opts := DefaultOptions()
		opts.Contamination = 0.7
		_, err = Fit([][]float64{{1}, {2}}, opts)
		So(err, ShouldNotBeNil)
	})

	Convey("Given a probe with the wrong dimension", t, func() {
		forest, err := Fit(cluster(5, 0, 0), DefaultOptions())
		So(err, ShouldBeNil)
		So(math.IsNaN(forest.Score([]float64{1})), ShouldBeTrue)
	})
}
