package rekognition

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/audit"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/provider"
)

type mockDetectFacesAPI struct {
	detectFacesFunc func(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
}

func (m *mockDetectFacesAPI) DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error) {
	if m.detectFacesFunc != nil {
		return m.detectFacesFunc(ctx, params, optFns...)
	}
	return &rekognition.DetectFacesOutput{}, nil
}

type recordingAudit struct {
	events []audit.Event
}

func (r *recordingAudit) Log(_ context.Context, e audit.Event) error {
	r.events = append(r.events, e)
	return nil
}

func ptr[T any](v T) *T {
	return &v
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func newTestProvider(api DetectFacesAPI, opts ...ProviderOption) *Provider {
	return newProvider(&Client{rekognition: api, config: DefaultConfig()}, opts...)
}

func face(left, top, width, height, confidence float32, landmarks ...types.Landmark) types.FaceDetail {
	return types.FaceDetail{
		BoundingBox: &types.BoundingBox{
			Left:   ptr(left),
			Top:    ptr(top),
			Width:  ptr(width),
			Height: ptr(height),
		},
		Confidence: ptr(confidence),
		Landmarks:  landmarks,
	}
}

func landmark(kind string, x, y float32) types.Landmark {
	return types.Landmark{Type: types.LandmarkType(kind), X: ptr(x), Y: ptr(y)}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, float32(90), cfg.MinConfidence)
}

func TestDetectFaces_Success(t *testing.T) {
	rec := &recordingAudit{}
	api := &mockDetectFacesAPI{
		detectFacesFunc: func(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error) {
			assert.Equal(t, []types.Attribute{types.AttributeDefault}, params.Attributes)
			return &rekognition.DetectFacesOutput{
				FaceDetails: []types.FaceDetail{
					face(0.1, 0.2, 0.5, 0.4, 99.5),
					face(0.7, 0.7, 0.1, 0.1, 50),
				},
			}, nil
		},
	}

	faces, err := newTestProvider(api, WithAuditLogger(rec)).DetectFaces(context.Background(), pngImage(t, 200, 100))

	require.NoError(t, err)
	require.Len(t, faces, 1, "low confidence detections are dropped")
	assert.Equal(t, provider.Region{X: 20, Y: 20, Width: 100, Height: 40}, faces[0].Region)
	assert.InDelta(t, 0.995, faces[0].Confidence, 1e-6)

	require.Len(t, rec.events, 1)
	assert.True(t, rec.events[0].Success)
	assert.Equal(t, "rekognition", rec.events[0].Provider)
}

func TestDetectFaces_NoFaceIsEmpty(t *testing.T) {
	api := &mockDetectFacesAPI{
		detectFacesFunc: func(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error) {
			return nil, &smithy.GenericAPIError{Code: errCodeInvalidParameter, Message: "no face"}
		},
	}

	faces, err := newTestProvider(api).DetectFaces(context.Background(), pngImage(t, 10, 10))
	require.NoError(t, err)
	assert.Empty(t, faces)
}

func TestDetectFaces_Errors(t *testing.T) {
	tests := []struct {
		name    string
		apiErr  error
		image   []byte
		wantErr error
	}{
		{"access denied", &smithy.GenericAPIError{Code: errCodeAccessDenied}, nil, ErrInvalidCredentials},
		{"bad format", &smithy.GenericAPIError{Code: errCodeInvalidFormat, Message: "nope"}, nil, ErrInvalidImage},
		{"empty image", nil, []byte{}, ErrInvalidImage},
		{"not an image", nil, []byte("garbage"), ErrInvalidImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockDetectFacesAPI{
				detectFacesFunc: func(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error) {
					return nil, tt.apiErr
				},
			}
			img := tt.image
			if img == nil {
				img = pngImage(t, 10, 10)
			}

			_, err := newTestProvider(api).DetectFaces(context.Background(), img)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLandmarks_GroupsLargestFace(t *testing.T) {
	api := &mockDetectFacesAPI{
		detectFacesFunc: func(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error) {
			assert.Equal(t, []types.Attribute{types.AttributeAll}, params.Attributes)
			return &rekognition.DetectFacesOutput{
				FaceDetails: []types.FaceDetail{
					face(0, 0, 0.1, 0.1, 99, landmark("nose", 0.05, 0.05)),
					face(0.2, 0.2, 0.6, 0.6, 99,
						landmark("eyeLeft", 0.3, 0.4),
						landmark("leftPupil", 0.31, 0.4),
						landmark("nose", 0.5, 0.5),
						landmark("chinBottom", 0.5, 0.8),
						landmark("somethingNew", 0.1, 0.1),
					),
				},
			}, nil
		},
	}

	lm, err := newTestProvider(api).Landmarks(context.Background(), pngImage(t, 100, 200))
	require.NoError(t, err)

	require.Len(t, lm["left_eye"], 2)
	assert.InDelta(t, 30.0, lm["left_eye"][0].X, 1e-4)
	assert.InDelta(t, 80.0, lm["left_eye"][0].Y, 1e-4)
	assert.InDelta(t, 50.0, lm["nose"][0].X, 1e-4)
	assert.InDelta(t, 160.0, lm["jawline"][0].Y, 1e-4)
	assert.Len(t, lm, 3, "unknown landmark types are ignored")
}

func TestLandmarks_NoFaces(t *testing.T) {
	lm, err := newTestProvider(&mockDetectFacesAPI{}).Landmarks(context.Background(), pngImage(t, 10, 10))
	require.NoError(t, err)
	assert.True(t, lm.Empty())
}

func TestToRegion_ClipsToFrame(t *testing.T) {
	b := &types.BoundingBox{Left: ptr(float32(-0.25)), Top: ptr(float32(0.5)), Width: ptr(float32(0.5)), Height: ptr(float32(0.8))}
	r := toRegion(b, image.Pt(100, 100))
	assert.Equal(t, provider.Region{X: 0, Y: 50, Width: 25, Height: 50}, r)
}
