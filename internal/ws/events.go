package ws

import "time"

type EventType string

const (
	// Sent on the video stream, one per detected face.
	EventFaceDetected EventType = "face_detected"
	EventError        EventType = "error"

	// Fanned out to /ws/sessions/:session_id subscribers.
	EventFrameMatched EventType = "frame.matched"
	EventCheckin      EventType = "attendance.checkin"
)

type Event struct {
	SessionID string      `json:"-"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// FaceDetected is the payload of EventFaceDetected.
type FaceDetected struct {
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
	Location   string  `json:"location"`
	IdentityID *string `json:"identity_id,omitempty"`
}

// ErrorData is the payload of EventError. Code mirrors the HTTP status the
// same failure would produce on the REST API.
type ErrorData struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// StreamMetadata must be the first message on a video stream.
type StreamMetadata struct {
	StreamID  string `json:"stream_id"`
	Location  string `json:"location"`
	SessionID string `json:"session_id"`
}

func (m StreamMetadata) valid() bool {
	return m.StreamID != "" && m.Location != "" && m.SessionID != ""
}
