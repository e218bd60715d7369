package checkin

import (
	"context"
	"fmt"
	"time"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/audit"
)

// Run delivers queued check-ins until ctx is done or Stop is called. Failed
// deliveries are retried with exponential backoff up to MaxAttempts.
func (n *Notifier) Run(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.RetryInterval)
	defer ticker.Stop()

	n.logger.Info("check-in worker started", "backend_url", n.cfg.BackendURL)

	for {
		select {
		case <-ctx.Done():
			n.logger.Info("check-in worker stopped", "pending", len(n.queue)+len(n.retries))
			return
		case <-n.stopCh:
			n.logger.Info("check-in worker stopped", "pending", len(n.queue)+len(n.retries))
			return
		case j := <-n.queue:
			n.process(ctx, j)
		case <-ticker.C:
			n.processRetries(ctx)
		}
		n.metrics.SetCheckinQueue(len(n.queue) + len(n.retries))
	}
}

func (n *Notifier) Stop() {
	close(n.stopCh)
}

func (n *Notifier) processRetries(ctx context.Context) {
	if len(n.retries) == 0 {
		return
	}

	now := n.now()
	var due []job
	pending := n.retries[:0]
	for _, j := range n.retries {
		if !j.NextRetryAt.After(now) {
			due = append(due, j)
		} else {
			pending = append(pending, j)
		}
	}
	n.retries = pending

	for _, j := range due {
		n.process(ctx, j)
	}
}

func (n *Notifier) process(ctx context.Context, j job) {
	if err := n.Send(ctx, j.Checkin); err != nil {
		n.scheduleRetry(j, err.Error())
		return
	}
	n.markComplete(ctx, j)
}

func (n *Notifier) scheduleRetry(j job, errorMsg string) {
	j.Attempts++
	j.LastError = errorMsg

	if j.Attempts >= n.cfg.MaxAttempts {
		n.markFailed(j)
		return
	}

	delay := n.cfg.BaseDelay * time.Duration(1<<(j.Attempts-1))
	j.NextRetryAt = n.now().Add(delay)
	n.retries = append(n.retries, j)
	n.metrics.RecordCheckin("retried")

	n.logger.Info("check-in scheduled for retry",
		"job_id", j.ID,
		"attempts", j.Attempts,
		"next_retry", j.NextRetryAt,
		"error", errorMsg,
	)
}

func (n *Notifier) markComplete(ctx context.Context, j job) {
	n.metrics.RecordCheckin("delivered")
	n.logger.Info("check-in delivered",
		"job_id", j.ID,
		"student_id", j.Checkin.StudentID,
		"session_id", j.Checkin.SessionID,
	)

	if err := n.audit.Log(ctx, audit.Event{
		EventType:  audit.EventCheckinDelivered,
		IdentityID: j.Checkin.StudentID,
		SessionID:  j.Checkin.SessionID,
		Success:    true,
		Metadata: map[string]string{
			"location":   j.Checkin.Location,
			"confidence": fmt.Sprintf("%.4f", j.Checkin.Confidence),
			"attempts":   fmt.Sprintf("%d", j.Attempts+1),
		},
	}); err != nil {
		n.logger.Warn("audit log failed", "error", err)
	}
}

func (n *Notifier) markFailed(j job) {
	n.metrics.RecordCheckin("failed")
	n.logger.Warn("check-in failed",
		"job_id", j.ID,
		"student_id", j.Checkin.StudentID,
		"attempts", j.Attempts,
		"error", j.LastError,
	)
}
