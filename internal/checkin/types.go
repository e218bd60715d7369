// Package checkin forwards stream matches to the attendance backend.
package checkin

import (
	"time"

	"github.com/google/uuid"
)

// EventType is sent in the X-Trace-Event header.
const EventType = "attendance.auto_checkin"

// Checkin is the body posted to the attendance backend.
type Checkin struct {
	StudentID  string    `json:"studentId"`
	SessionID  string    `json:"sessionId"`
	Location   string    `json:"location"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

type job struct {
	ID          uuid.UUID
	Checkin     Checkin
	Attempts    int
	NextRetryAt time.Time
	LastError   string
}
