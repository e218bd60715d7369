package domain

import "time"

// Identity is one enrolled subject and its reference embedding.
type Identity struct {
	ID           string    `json:"id"`
	Embedding    []float64 `json:"-"`
	QualityScore float64   `json:"quality_score"`
}

// QualityReport describes how usable a detected face region is for enrollment.
type QualityReport struct {
	Sharpness      float64 `json:"sharpness"`
	Brightness     float64 `json:"brightness"`
	FaceSizePct    float64 `json:"face_size_pct"`
	SharpnessGood  bool    `json:"sharpness_good"`
	BrightnessGood bool    `json:"brightness_good"`
	FaceSizeGood   bool    `json:"face_size_good"`
	Score          float64 `json:"score"`
	AllGood        bool    `json:"all_good"`
}

// Verification is the outcome of a 1:N lookup checked against a claimed identity.
type Verification struct {
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
	MatchedID  *string `json:"face_id"`
	LatencyMs  int64   `json:"latency_ms"`
}

type RegistrationStatus string

const (
	RegistrationNew       RegistrationStatus = "new"
	RegistrationUpdated   RegistrationStatus = "updated"
	RegistrationDuplicate RegistrationStatus = "duplicate"
)

// Registration is the outcome of an enrollment attempt.
type Registration struct {
	Status     RegistrationStatus `json:"status"`
	IdentityID string             `json:"user_id"`
	Message    string             `json:"message"`
	Quality    QualityReport      `json:"quality"`
}

// FrameMatch is emitted once per face found in a streamed frame.
type FrameMatch struct {
	Matched    bool    `json:"match"`
	Confidence float64 `json:"confidence"`
	IdentityID *string `json:"identity_id,omitempty"`
}

// AnomalyResult reports whether a sample deviates from the identity's recent baseline.
type AnomalyResult struct {
	IsAnomaly  bool    `json:"is_anomaly"`
	Confidence float64 `json:"confidence"`
	Reason     *string `json:"reason"`
	WindowSize int     `json:"window_size"`
}

// EngagementRecord is one timestamped prediction in an identity/session log.
type EngagementRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Engagement float64   `json:"engagement"`
	Attention  float64   `json:"attention"`
	Features   []float64 `json:"features,omitempty"`
}

// EngagementFeedback carries corrected labels for a whole session.
type EngagementFeedback struct {
	Engagement float64 `json:"engagement"`
	Attention  float64 `json:"attention"`
}
