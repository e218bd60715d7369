package deepface

// RepresentRequest for POST /represent
type RepresentRequest struct {
	Img              string `json:"img"`      // base64 encoded image
	Model            string `json:"model"`    // "Dlib", "Facenet512", etc
	Detector         string `json:"detector"` // "retinaface", "mtcnn", etc
	EnforceDetection bool   `json:"enforce_detection"`
}

// RepresentResponse from POST /represent
type RepresentResponse struct {
	Results []RepresentResult `json:"results"`
}

type RepresentResult struct {
	Embedding  []float64  `json:"embedding"`
	FacialArea FacialArea `json:"facial_area"`
	Confidence float64    `json:"face_confidence"`
}

type FacialArea struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// LandmarksRequest for POST /landmarks
type LandmarksRequest struct {
	Img      string `json:"img"`
	Detector string `json:"detector"`
}

// LandmarksResponse from POST /landmarks. Points are [x, y] pairs in pixels,
// grouped as chin, left_eye, nose_bridge, top_lip and so on.
type LandmarksResponse struct {
	Results []LandmarksResult `json:"results"`
}

type LandmarksResult struct {
	FacialArea FacialArea              `json:"facial_area"`
	Landmarks  map[string][][2]float64 `json:"landmarks"`
}
