package worker

// notification_worker.go
// Processes notification jobs from QueueNotifications.
// Every notification is logged; high-priority ones (stock depleted, expiry,
// cancellations) are additionally emailed to the operations inbox.

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/infra"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// NotificationWorker delivers notification jobs from QueueNotifications.
type NotificationWorker struct {
	mailer   *infra.Mailer
	rdb      *redis.Client
	opsEmail string
}

func NewNotificationWorker(mailer *infra.Mailer, rdb *redis.Client, opsEmail string) *NotificationWorker {
	return &NotificationWorker{mailer: mailer, rdb: rdb, opsEmail: opsEmail}
}

// Process logs the notification and, for high priority, emails operations
// with retry. Jobs that exhaust their retries land in the DLQ.
func (w *NotificationWorker) Process(ctx context.Context, raw json.RawMessage) {
	var payload NotificationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("notification_worker: invalid payload")
		return
	}

	entry := log.Info()
	if payload.Priority == "high" {
		entry = log.Warn()
	}
	entry.
		Str("kind", payload.Kind).
		Str("title", payload.Title).
		Fields(map[string]interface{}{"metadata": payload.Metadata}).
		Msg(payload.Message)

	if payload.Priority != "high" || w.mailer == nil || w.opsEmail == "" {
		return
	}

	body := payload.Message
	for k, v := range payload.Metadata {
		body += fmt.Sprintf("\n%s: %s", k, v)
	}
	err := withRetry(ctx, 3, func(attempt int) error {
		if err := w.mailer.Send(w.opsEmail, "[PANN] "+payload.Title, body, ""); err != nil {
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("kind", payload.Kind).
				Msg("notification_worker: email attempt failed, retrying")
			return err
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("kind", payload.Kind).Msg("notification_worker: email failed after all retries")
		SendToDLQ(ctx, w.rdb, QueueNotifications, "notification", raw,
			fmt.Sprintf("email delivery failed: %v", err), 3)
	}
}

// withRetry calls fn up to maxAttempts times with exponential backoff.
// Backoff schedule: attempt 1 = immediate, 2 = 1s, 3 = 2s.
// Returns nil if any attempt succeeds; last error otherwise.
func withRetry(ctx context.Context, maxAttempts int, fn func(attempt int) error) error {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			// 1s, 2s … (exponential backoff)
			wait := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := fn(i); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
