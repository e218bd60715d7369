package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/checkin"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/metrics"
)

type message struct {
	kind int
	data []byte
}

type fakeConn struct {
	mu      sync.Mutex
	inbound []message
	written []map[string]interface{}
	closed  bool
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inbound) == 0 {
		return 0, nil, io.EOF
	}
	m := f.inbound[0]
	f.inbound = f.inbound[1:]
	return m.kind, m.data, nil
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	f.mu.Lock()
	f.written = append(f.written, out)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) data(i int) map[string]interface{} {
	return f.written[i]["data"].(map[string]interface{})
}

type frameFunc func(ctx context.Context, img []byte) ([]domain.FrameMatch, error)

func (fn frameFunc) ProcessFrame(ctx context.Context, img []byte) ([]domain.FrameMatch, error) {
	return fn(ctx, img)
}

type recordingQueue struct {
	mu     sync.Mutex
	queued []checkin.Checkin
	accept bool
}

func (q *recordingQueue) Enqueue(c checkin.Checkin) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queued = append(q.queued, c)
	return q.accept
}

func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindInvalidImage:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func metadata(t *testing.T, meta StreamMetadata) message {
	raw, err := json.Marshal(meta)
	require.NoError(t, err)
	return message{kind: websocket.TextMessage, data: raw}
}

func frame() message {
	return message{kind: websocket.BinaryMessage, data: []byte{0x89, 'P', 'N', 'G'}}
}

func newStreamHandler(fn frameFunc, q CheckinQueue, hub *Hub) *StreamHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewStreamHandler(fn, q, hub, metrics.New(), statusFor, DefaultStreamConfig(), logger)
	h.now = func() time.Time { return time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC) }
	return h
}

var validMeta = StreamMetadata{StreamID: "cam-1", Location: "room-101", SessionID: "sess-1"}

func TestStream_MissingMetadata(t *testing.T) {
	h := newStreamHandler(func(context.Context, []byte) ([]domain.FrameMatch, error) {
		t.Fatal("no frame should be processed")
		return nil, nil
	}, nil, NewHub())

	c := &fakeConn{inbound: []message{
		metadata(t, StreamMetadata{StreamID: "cam-1", SessionID: "sess-1"}),
		frame(),
	}}
	h.serve(c)

	require.Len(t, c.written, 1)
	assert.Equal(t, string(EventError), c.written[0]["type"])
	assert.Equal(t, "Missing stream metadata", c.data(0)["message"])
	assert.Equal(t, float64(http.StatusBadRequest), c.data(0)["code"])
	assert.True(t, c.closed)
}

func TestStream_MatchEmitsEventCheckinAndBroadcast(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	sub := &Client{hub: hub, sessionID: "sess-1", send: make(chan []byte, 10)}
	hub.register <- sub
	time.Sleep(50 * time.Millisecond)

	alice := "alice"
	q := &recordingQueue{accept: true}
	h := newStreamHandler(func(context.Context, []byte) ([]domain.FrameMatch, error) {
		return []domain.FrameMatch{
			{Matched: true, Confidence: 0.8, IdentityID: &alice},
			{Matched: false, Confidence: 0.1},
		}, nil
	}, q, hub)

	c := &fakeConn{inbound: []message{metadata(t, validMeta), frame()}}
	h.serve(c)

	require.Len(t, c.written, 2)
	assert.Equal(t, string(EventFaceDetected), c.written[0]["type"])
	assert.Equal(t, true, c.data(0)["match"])
	assert.Equal(t, 0.8, c.data(0)["confidence"])
	assert.Equal(t, "room-101", c.data(0)["location"])
	assert.Equal(t, "alice", c.data(0)["identity_id"])
	assert.Equal(t, false, c.data(1)["match"])
	assert.NotContains(t, c.data(1), "identity_id")

	require.Len(t, q.queued, 1)
	assert.Equal(t, checkin.Checkin{
		StudentID:  "alice",
		SessionID:  "sess-1",
		Location:   "room-101",
		Confidence: 0.8,
		Timestamp:  time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}, q.queued[0])

	var types []EventType
	for len(types) < 2 {
		select {
		case msg := <-sub.send:
			var ev Event
			require.NoError(t, json.Unmarshal(msg, &ev))
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("expected two session events, got %v", types)
		}
	}
	assert.Equal(t, []EventType{EventFrameMatched, EventCheckin}, types)
}

func TestStream_NoCheckinsWhenDisabled(t *testing.T) {
	alice := "alice"
	h := newStreamHandler(func(context.Context, []byte) ([]domain.FrameMatch, error) {
		return []domain.FrameMatch{{Matched: true, Confidence: 0.9, IdentityID: &alice}}, nil
	}, nil, NewHub())

	c := &fakeConn{inbound: []message{metadata(t, validMeta), frame()}}
	h.serve(c)

	require.Len(t, c.written, 1)
	assert.Equal(t, true, c.data(0)["match"])
}

func TestStream_ClientErrorKeepsStreamOpen(t *testing.T) {
	calls := 0
	h := newStreamHandler(func(context.Context, []byte) ([]domain.FrameMatch, error) {
		calls++
		if calls == 1 {
			return nil, domain.ErrInvalidImage
		}
		return nil, nil
	}, nil, NewHub())

	c := &fakeConn{inbound: []message{
		metadata(t, validMeta),
		frame(),
		{kind: websocket.TextMessage, data: []byte("hello")},
		frame(),
	}}
	h.serve(c)

	assert.Equal(t, 2, calls)
	require.Len(t, c.written, 2)
	assert.Equal(t, domain.ErrInvalidImage.Message, c.data(0)["message"])
	assert.Equal(t, float64(http.StatusBadRequest), c.data(0)["code"])
	assert.Equal(t, "expected a binary frame", c.data(1)["message"])
}

func TestStream_InternalErrorClosesStream(t *testing.T) {
	calls := 0
	h := newStreamHandler(func(context.Context, []byte) ([]domain.FrameMatch, error) {
		calls++
		return nil, io.ErrUnexpectedEOF
	}, nil, NewHub())

	c := &fakeConn{inbound: []message{metadata(t, validMeta), frame(), frame()}}
	h.serve(c)

	assert.Equal(t, 1, calls)
	require.Len(t, c.written, 1)
	assert.Equal(t, "Internal server error", c.data(0)["message"])
	assert.Equal(t, float64(http.StatusInternalServerError), c.data(0)["code"])
	assert.True(t, c.closed)
}
