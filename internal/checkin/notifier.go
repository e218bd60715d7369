package checkin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/audit"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/metrics"
)

const checkinPath = "/api/v1/attendance/auto-checkin"

type Config struct {
	BackendURL    string
	Secret        string
	Timeout       time.Duration
	QueueSize     int
	MaxAttempts   int
	BaseDelay     time.Duration
	RetryInterval time.Duration
	// Cooldown suppresses repeated check-ins of one student in one session.
	Cooldown time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:       10 * time.Second,
		QueueSize:     256,
		MaxAttempts:   5,
		BaseDelay:     time.Second,
		RetryInterval: time.Second,
		Cooldown:      time.Minute,
	}
}

// Notifier queues check-ins and delivers them from Run. Enqueue never blocks
// the caller.
type Notifier struct {
	cfg     Config
	client  *http.Client
	metrics *metrics.Metrics
	audit   audit.Logger
	logger  *slog.Logger

	queue  chan job
	stopCh chan struct{}
	now    func() time.Time

	mu     sync.Mutex
	recent map[string]time.Time

	// retries is owned by the Run goroutine.
	retries []job
}

func NewNotifier(cfg Config, m *metrics.Metrics, auditLogger audit.Logger, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		metrics: m,
		audit:   auditLogger,
		logger:  logger.With("component", "checkin"),
		queue:   make(chan job, cfg.QueueSize),
		stopCh:  make(chan struct{}),
		now:     time.Now,
		recent:  make(map[string]time.Time),
	}
}

// Enqueue schedules c for delivery. It reports false when c falls inside the
// cooldown of an earlier check-in or the queue is full.
func (n *Notifier) Enqueue(c Checkin) bool {
	key := c.StudentID + "\x00" + c.SessionID
	now := n.now()

	n.mu.Lock()
	if last, ok := n.recent[key]; ok && now.Sub(last) < n.cfg.Cooldown {
		n.mu.Unlock()
		return false
	}
	for k, t := range n.recent {
		if now.Sub(t) >= n.cfg.Cooldown {
			delete(n.recent, k)
		}
	}
	n.recent[key] = now
	n.mu.Unlock()

	if c.Timestamp.IsZero() {
		c.Timestamp = now.UTC()
	}

	select {
	case n.queue <- job{ID: uuid.New(), Checkin: c}:
		n.metrics.SetCheckinQueue(len(n.queue))
		return true
	default:
		n.metrics.RecordCheckin("dropped")
		n.logger.Warn("check-in queue full, dropping", "student_id", c.StudentID, "session_id", c.SessionID)
		return false
	}
}

// Send performs one delivery attempt.
func (n *Notifier) Send(ctx context.Context, c Checkin) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal check-in: %w", err)
	}

	url := strings.TrimRight(n.cfg.BackendURL, "/") + checkinPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Trace-Event", EventType)
	req.Header.Set("User-Agent", "TraceML-Checkin/1.0")
	if n.cfg.Secret != "" {
		req.Header.Set("X-Trace-Signature", Sign(n.cfg.Secret, payload))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post check-in: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
