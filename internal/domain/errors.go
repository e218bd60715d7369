package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure categories surfaced to callers.
// The mapping from kind to transport status lives at the API boundary.
type ErrorKind string

const (
	KindInvalidImage       ErrorKind = "invalid_image"
	KindNoFaceDetected     ErrorKind = "no_face_detected"
	KindNoLandmarks        ErrorKind = "no_landmarks_detected"
	KindValidation         ErrorKind = "validation"
	KindIdentityConflict   ErrorKind = "identity_conflict"
	KindNotFound           ErrorKind = "not_found"
	KindPersistenceFailure ErrorKind = "persistence_failure"
	KindRateLimited        ErrorKind = "rate_limited"
	KindUnauthorized       ErrorKind = "unauthorized"
	KindForbidden          ErrorKind = "forbidden"
	KindInternal           ErrorKind = "internal"
)

type AppError struct {
	Kind    ErrorKind `json:"-"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError of the same kind, so wrapped copies produced by
// WithError still satisfy errors.Is against the predefined sentinels.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// KindOf reports the kind of err, or KindInternal for anything unmapped.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Kind:    KindInternal,
		Code:    "INTERNAL_ERROR",
		Message: "An unexpected error occurred",
	}

	ErrInvalidImage = &AppError{
		Kind:    KindInvalidImage,
		Code:    "INVALID_IMAGE",
		Message: "Invalid image format or corrupted file",
	}

	ErrNoFaceDetected = &AppError{
		Kind:    KindNoFaceDetected,
		Code:    "NO_FACE_DETECTED",
		Message: "No face detected in the image",
	}

	ErrNoLandmarksDetected = &AppError{
		Kind:    KindNoLandmarks,
		Code:    "NO_LANDMARKS_DETECTED",
		Message: "No face landmarks detected in the image",
	}

	ErrValidationFailed = &AppError{
		Kind:    KindValidation,
		Code:    "VALIDATION_FAILED",
		Message: "Request validation failed",
	}

	ErrIdentityConflict = &AppError{
		Kind:    KindIdentityConflict,
		Code:    "IDENTITY_CONFLICT",
		Message: "Identity already enrolled with a different face",
	}

	ErrIdentityNotFound = &AppError{
		Kind:    KindNotFound,
		Code:    "IDENTITY_NOT_FOUND",
		Message: "Identity not found",
	}

	ErrPersistenceFailure = &AppError{
		Kind:    KindPersistenceFailure,
		Code:    "PERSISTENCE_FAILURE",
		Message: "Failed to persist state",
	}

	ErrUnauthorized = &AppError{
		Kind:    KindUnauthorized,
		Code:    "UNAUTHORIZED",
		Message: "Missing or invalid bearer token",
	}

	ErrForbidden = &AppError{
		Kind:    KindForbidden,
		Code:    "FORBIDDEN",
		Message: "Insufficient privileges",
	}

	ErrRateLimitExceeded = &AppError{
		Kind:    KindRateLimited,
		Code:    "RATE_LIMIT_EXCEEDED",
		Message: "Rate limit exceeded, please try again later",
	}
)
