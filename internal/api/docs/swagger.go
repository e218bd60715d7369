package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// FaceRequest is the JSON body accepted by the image endpoints. Multipart
// uploads send the same fields plus an "image" file part instead of face_data.
type FaceRequest struct {
	FaceData  string `json:"face_data" example:"data:image/jpeg;base64,/9j/4AAQSkZJRg..."`
	UserID    string `json:"user_id" example:"student-42"`
	SessionID string `json:"session_id,omitempty" example:"lecture-2026-03-01"`
}

type VerifyFaceResponse struct {
	Match      bool    `json:"match" example:"true"`
	Confidence float64 `json:"confidence" example:"0.71"`
	FaceID     string  `json:"face_id" example:"student-42"`
	LatencyMs  int64   `json:"latency_ms" example:"38"`
}

type QualityReport struct {
	Sharpness      float64 `json:"sharpness" example:"412.5"`
	Brightness     float64 `json:"brightness" example:"121.3"`
	FaceSizePct    float64 `json:"face_size_pct" example:"18.2"`
	SharpnessGood  bool    `json:"sharpness_good" example:"true"`
	BrightnessGood bool    `json:"brightness_good" example:"true"`
	FaceSizeGood   bool    `json:"face_size_good" example:"true"`
	Score          float64 `json:"score" example:"92.4"`
	AllGood        bool    `json:"all_good" example:"true"`
}

type RegisterFaceResponse struct {
	FaceID  string        `json:"face_id" example:"student-42"`
	Status  string        `json:"status" example:"new"`
	Message string        `json:"message" example:"New face registered successfully"`
	Quality QualityReport `json:"quality"`
}

type EngagementResponse struct {
	Engagement float64 `json:"engagement" example:"0.82"`
	Attention  float64 `json:"attention" example:"0.64"`
	Timestamp  string  `json:"timestamp" example:"2026-03-01T10:00:00Z"`
}

type EngagementHistoryResponse struct {
	UserID    string               `json:"user_id" example:"student-42"`
	SessionID string               `json:"session_id" example:"lecture-2026-03-01"`
	Records   []EngagementResponse `json:"records"`
}

type FeedbackRequest struct {
	UserID     string  `json:"user_id" example:"student-42"`
	SessionID  string  `json:"session_id" example:"lecture-2026-03-01"`
	Engagement float64 `json:"engagement" example:"1"`
	Attention  float64 `json:"attention" example:"0.5"`
}

type FeedbackResponse struct {
	Updated int `json:"updated" example:"12"`
}

type AnomalyResponse struct {
	IsAnomaly  bool    `json:"is_anomaly" example:"false"`
	Confidence float64 `json:"confidence" example:"0.47"`
	Reason     *string `json:"reason" example:"Unusual facial features detected"`
	WindowSize int     `json:"window_size" example:"10"`
}

type ResetResponse struct {
	Removed int `json:"removed" example:"128"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

type HealthResponse struct {
	Status  string            `json:"status" example:"ready"`
	Version string            `json:"version,omitempty" example:"0.1.0"`
	Checks  map[string]string `json:"checks,omitempty"`
}

var (
	errInternal     = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")
	errValidation  = response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed"}, "400", "Bad Request")
	errImage       = response.New(ErrorResponse{Code: "INVALID_IMAGE", Message: "Image could not be decoded"}, "400", "Bad Request")
	errNoFace      = response.New(ErrorResponse{Code: "NO_FACE_DETECTED", Message: "No face detected in image"}, "422", "Unprocessable Entity")
	errNoLandmarks = response.New(ErrorResponse{Code: "NO_LANDMARKS_DETECTED", Message: "No face landmarks detected"}, "422", "Unprocessable Entity")
	errUnauthorized = response.New(ErrorResponse{Code: "UNAUTHORIZED", Message: "Missing or invalid bearer token"}, "401", "Unauthorized")
	errRateLimited = response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Rate limit exceeded"}, "429", "Too Many Requests")
)

var imageConsumes = []mime.MIME{mime.JSON, mime.MIME("multipart/form-data")}

func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "TRACE ML API",
		Version:     "v1.0.0",
		Description: "Face verification and enrollment, per-identity anomaly baselines and engagement tracking for classroom attendance",
		Host:        "localhost:3000",
		Path:        "/api/v1",
	})

	endpoints := []*endpoint.EndPoint{
		endpoint.New(
			endpoint.POST,
			"/face/verify",
			endpoint.WithTags("Face"),
			endpoint.WithSummary("Verify a face against a claimed identity"),
			endpoint.WithDescription("Finds the nearest enrolled identity. match is true only when it is the claimed user_id and within the distance threshold."),
			endpoint.WithConsume(imageConsumes),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(FaceRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(VerifyFaceResponse{}, "200", "Verification completed"),
			}),
			endpoint.WithErrors([]response.Response{errValidation, errImage, errNoFace, errUnauthorized, errRateLimited, errInternal}),
		),

		endpoint.New(
			endpoint.POST,
			"/face/register",
			endpoint.WithTags("Face"),
			endpoint.WithSummary("Enroll or refresh an identity"),
			endpoint.WithDescription("Registers a new identity, replaces the stored face when the new capture has higher quality, or reports a duplicate. A user_id held by a different face is overwritten. An empty user_id gets a generated id."),
			endpoint.WithConsume(imageConsumes),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(FaceRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(RegisterFaceResponse{}, "201", "New identity registered"),
				response.New(RegisterFaceResponse{Status: "updated"}, "200", "Existing identity updated or duplicate"),
			}),
			endpoint.WithErrors([]response.Response{
				errValidation, errImage, errNoFace,
				errUnauthorized, errRateLimited, errInternal,
			}),
		),

		endpoint.New(
			endpoint.POST,
			"/engagement/predict",
			endpoint.WithTags("Engagement"),
			endpoint.WithSummary("Predict engagement and attention"),
			endpoint.WithDescription("Scores the face and appends the prediction to the user's session history."),
			endpoint.WithConsume(imageConsumes),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(FaceRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EngagementResponse{}, "200", "Prediction recorded"),
			}),
			endpoint.WithErrors([]response.Response{errValidation, errImage, errNoLandmarks, errUnauthorized, errRateLimited, errInternal}),
		),

		endpoint.New(
			endpoint.GET,
			"/engagement/history/{user_id}/{session_id}",
			endpoint.WithTags("Engagement"),
			endpoint.WithSummary("List a session's predictions"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("user_id", parameter.Path, parameter.WithDescription("Identity id")),
				parameter.StrParam("session_id", parameter.Path, parameter.WithDescription("Session id")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EngagementHistoryResponse{}, "200", "History in insertion order"),
			}),
			endpoint.WithErrors([]response.Response{errValidation, errUnauthorized, errInternal}),
		),

		endpoint.New(
			endpoint.POST,
			"/engagement/feedback",
			endpoint.WithTags("Engagement"),
			endpoint.WithSummary("Relabel a session and retrain the model"),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(FeedbackRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(FeedbackResponse{}, "200", "Number of records used for training"),
			}),
			endpoint.WithErrors([]response.Response{errValidation, errUnauthorized, errInternal}),
		),

		endpoint.New(
			endpoint.POST,
			"/anomaly/detect",
			endpoint.WithTags("Anomaly"),
			endpoint.WithSummary("Check a face against the user's recent baseline"),
			endpoint.WithDescription("Appends the sample to the user's rolling window and scores it with an isolation forest once enough samples exist."),
			endpoint.WithConsume(imageConsumes),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(FaceRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(AnomalyResponse{}, "200", "Anomaly verdict"),
			}),
			endpoint.WithErrors([]response.Response{errValidation, errImage, errNoLandmarks, errUnauthorized, errRateLimited, errInternal}),
		),

		endpoint.New(
			endpoint.DELETE,
			"/admin/identities",
			endpoint.WithTags("Admin"),
			endpoint.WithSummary("Wipe every enrolled identity"),
			endpoint.WithDescription("Requires an admin token when bearer auth is enabled."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ResetResponse{}, "200", "Identities removed"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "PERSISTENCE_FAILURE", Message: "Failed to persist state"}, "500", "Internal Server Error"),
			}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
