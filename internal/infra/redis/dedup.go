package redis

import (
	"context"
	"time"

	"quiz-payment-relay/internal/usecase"
)

var _ usecase.DeliveryDeduper = (*DeliveryDeduper)(nil)

// DeliveryDeduper marks gateway transaction ids with a SETNX-style flag so
// retried webhook deliveries can be short-circuited cheaply. The marker is
// advisory; the database-level guards stay authoritative.
type DeliveryDeduper struct {
	client RedisClient
	ttl    time.Duration
}

func NewDeliveryDeduper(client RedisClient, ttl time.Duration) *DeliveryDeduper {
	return &DeliveryDeduper{client: client, ttl: ttl}
}

func (d *DeliveryDeduper) FirstDelivery(ctx context.Context, transactionID string) (bool, error) {
	return d.client.SetNX(ctx, deliveryKey(transactionID), 1, d.ttl)
}

// Release drops the marker after a delivery that must stay retryable, so
// the gateway's next attempt is not short-circuited.
func (d *DeliveryDeduper) Release(ctx context.Context, transactionID string) error {
	return d.client.Del(ctx, deliveryKey(transactionID))
}

func deliveryKey(transactionID string) string { return "webhook:delivered:" + transactionID }
