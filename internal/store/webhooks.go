package store

import (
	"context"
	"time"

	"github.com/vaultpay/backend/internal/models"
)

func (s *Store) RecordWebhookEvent(ctx context.Context, e *models.WebhookEvent) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO webhook_events (id, provider, order_id, event_type, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Provider, e.OrderID, e.EventType, []byte(e.Payload), e.ReceivedAt)
	return translate(err, "record webhook event")
}

// FinishWebhookEvent stamps the processing outcome. processingErr is empty on success.
func (s *Store) FinishWebhookEvent(ctx context.Context, id string, processedAt time.Time, processingErr string) error {
	var errText *string
	if processingErr != "" {
		errText = &processingErr
	}
	_, err := s.q.ExecContext(ctx, `
		UPDATE webhook_events SET processed_at = $2, processing_error = $3
		WHERE id = $1`, id, processedAt, errText)
	return translate(err, "finish webhook event")
}
