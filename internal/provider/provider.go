// Package provider defines the face capabilities the recognition core consumes:
// detection, embedding extraction and landmark extraction.
package provider

import (
	"context"
	"image"
)

// Detector finds face regions in an encoded image.
type Detector interface {
	// DetectFaces returns zero or more faces. An image without faces is not an error.
	DetectFaces(ctx context.Context, image []byte) ([]DetectedFace, error)
}

// Embedder extracts a fixed-length embedding for one detected face.
type Embedder interface {
	Embed(ctx context.Context, image []byte, face DetectedFace) ([]float64, error)
}

// LandmarkExtractor locates named groups of facial points.
type LandmarkExtractor interface {
	// Landmarks returns an empty map when no face is found.
	Landmarks(ctx context.Context, image []byte) (Landmarks, error)
}

// FaceProvider is the full capability set used by the service layer.
type FaceProvider interface {
	Detector
	Embedder
	LandmarkExtractor
}

// DetectedFace is a face found in an image. Providers that compute the
// embedding during detection fill Embedding so Embed can skip a round trip.
type DetectedFace struct {
	Region     Region    `json:"region"`
	Confidence float64   `json:"confidence"`
	Embedding  []float64 `json:"-"`
}

// Region is a face bounding box in pixel coordinates.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

func (r Region) Area() int {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// Largest returns the index of the face with the biggest region, or -1.
// Ties keep the earlier face.
func Largest(faces []DetectedFace) int {
	best := -1
	for i, f := range faces {
		if best < 0 || f.Region.Area() > faces[best].Region.Area() {
			best = i
		}
	}
	return best
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Landmarks maps a group name (e.g. "left_eye", "nose_bridge") to its ordered points.
type Landmarks map[string][]Point

// Empty reports whether no group carries any point.
func (l Landmarks) Empty() bool {
	for _, pts := range l {
		if len(pts) > 0 {
			return false
		}
	}
	return true
}
