package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/checkin"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/metrics"
)

type FrameProcessor interface {
	ProcessFrame(ctx context.Context, imageBytes []byte) ([]domain.FrameMatch, error)
}

type CheckinQueue interface {
	Enqueue(c checkin.Checkin) bool
}

// conn is the subset of *websocket.Conn the stream loop needs.
type conn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v interface{}) error
	Close() error
}

type StreamConfig struct {
	FrameTimeout time.Duration
}

func DefaultStreamConfig() StreamConfig {
	return StreamConfig{FrameTimeout: 10 * time.Second}
}

// StreamHandler runs the /ws/video-stream protocol: one JSON metadata
// message, then binary frames, each answered with one face_detected event
// per face.
type StreamHandler struct {
	frames   FrameProcessor
	checkins CheckinQueue
	hub      *Hub
	metrics  *metrics.Metrics
	status   func(error) int
	cfg      StreamConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewStreamHandler builds a stream handler. checkins may be nil when the
// attendance backend is not configured. status maps a failure to the code
// reported in error events.
func NewStreamHandler(
	frames FrameProcessor,
	checkins CheckinQueue,
	hub *Hub,
	m *metrics.Metrics,
	status func(error) int,
	cfg StreamConfig,
	logger *slog.Logger,
) *StreamHandler {
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = DefaultStreamConfig().FrameTimeout
	}
	if status == nil {
		status = func(error) int { return http.StatusInternalServerError }
	}
	return &StreamHandler{
		frames:   frames,
		checkins: checkins,
		hub:      hub,
		metrics:  m,
		status:   status,
		cfg:      cfg,
		logger:   logger.With("component", "video_stream"),
		now:      time.Now,
	}
}

func (h *StreamHandler) Handler() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		h.serve(c)
	})
}

func (h *StreamHandler) serve(c conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer func() { _ = c.Close() }()

	h.metrics.AddWSClients(1)
	defer h.metrics.AddWSClients(-1)

	_, raw, err := c.ReadMessage()
	if err != nil {
		return
	}

	var meta StreamMetadata
	if err := json.Unmarshal(raw, &meta); err != nil || !meta.valid() {
		h.writeError(c, "Missing stream metadata", http.StatusBadRequest)
		return
	}

	log := h.logger.With("stream_id", meta.StreamID, "session_id", meta.SessionID)
	log.Info("stream opened", "location", meta.Location)
	defer log.Info("stream closed")

	for {
		mt, frame, err := c.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage {
			h.writeError(c, "expected a binary frame", http.StatusBadRequest)
			continue
		}

		if !h.handleFrame(ctx, c, meta, frame, log) {
			return
		}
	}
}

// handleFrame reports whether the stream should stay open.
func (h *StreamHandler) handleFrame(ctx context.Context, c conn, meta StreamMetadata, frame []byte, log *slog.Logger) bool {
	fctx, cancel := context.WithTimeout(ctx, h.cfg.FrameTimeout)
	defer cancel()

	matches, err := h.frames.ProcessFrame(fctx, frame)
	if err != nil {
		code := h.status(err)
		msg := "Internal server error"
		var appErr *domain.AppError
		if errors.As(err, &appErr) && code < http.StatusInternalServerError {
			msg = appErr.Message
		}
		if code >= http.StatusInternalServerError {
			log.Error("frame processing failed", "error", err)
		}
		if !h.writeError(c, msg, code) {
			return false
		}
		return code < http.StatusInternalServerError
	}

	for _, m := range matches {
		ev := Event{
			Type: EventFaceDetected,
			Data: FaceDetected{
				Match:      m.Matched,
				Confidence: m.Confidence,
				Location:   meta.Location,
				IdentityID: m.IdentityID,
			},
			Timestamp: h.now().UTC(),
		}
		if err := c.WriteJSON(ev); err != nil {
			return false
		}

		if m.Matched && m.IdentityID != nil {
			h.onMatch(meta, m, log)
		}
	}
	return true
}

func (h *StreamHandler) onMatch(meta StreamMetadata, m domain.FrameMatch, log *slog.Logger) {
	ci := checkin.Checkin{
		StudentID:  *m.IdentityID,
		SessionID:  meta.SessionID,
		Location:   meta.Location,
		Confidence: m.Confidence,
		Timestamp:  h.now().UTC(),
	}

	h.hub.BroadcastToSession(meta.SessionID, EventFrameMatched, fiber.Map{
		"stream_id":   meta.StreamID,
		"location":    meta.Location,
		"identity_id": ci.StudentID,
		"confidence":  ci.Confidence,
	})

	if h.checkins == nil {
		return
	}
	if h.checkins.Enqueue(ci) {
		log.Debug("check-in queued", "identity_id", ci.StudentID)
		h.hub.BroadcastToSession(meta.SessionID, EventCheckin, ci)
	}
}

func (h *StreamHandler) writeError(c conn, msg string, code int) bool {
	err := c.WriteJSON(Event{
		Type:      EventError,
		Data:      ErrorData{Message: msg, Code: code},
		Timestamp: h.now().UTC(),
	})
	return err == nil
}

// Subscribe streams the hub's events for the :session_id route parameter.
func (h *Hub) Subscribe() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		sessionID := c.Params("session_id")
		if sessionID == "" {
			_ = c.Close()
			return
		}

		client := &Client{
			hub:       h,
			conn:      c,
			sessionID: sessionID,
			send:      make(chan []byte, 256),
		}

		select {
		case h.register <- client:
		case <-h.done:
			_ = c.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}

func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}
