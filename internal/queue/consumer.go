package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/clinicore/backoffice/internal/domain"
	"github.com/clinicore/backoffice/internal/observability"
)

// TriggerDispatcher accepts a notification record for immediate dispatch.
type TriggerDispatcher interface {
	CreateAndSend(ctx context.Context, n *domain.NotificationRecord) (*domain.NotificationRecord, error)
}

var _ Consumer = (*TriggerConsumer)(nil)

// TriggerConsumer drains notifications.trigger and feeds each trigger into
// the dispatch core. It owns the delivery lifecycle: malformed or invalid
// triggers are dropped (requeueing them would loop forever), transient
// dispatch failures are requeued, and everything else is acked.
type TriggerConsumer struct {
	client     *RabbitMQ
	dispatcher TriggerDispatcher
	prefetch   int
	logger     *zap.Logger
	metrics    *observability.Metrics
}

func NewTriggerConsumer(client *RabbitMQ, dispatcher TriggerDispatcher, prefetch int, logger *zap.Logger) (*TriggerConsumer, error) {
	if client == nil {
		return nil, fmt.Errorf("rabbitmq client is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("trigger dispatcher is required")
	}
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TriggerConsumer{
		client:     client,
		dispatcher: dispatcher,
		prefetch:   prefetch,
		logger:     logger,
	}, nil
}

func (c *TriggerConsumer) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

// Run consumes until ctx is done, reconnecting with backoff when the
// channel or connection drops.
func (c *TriggerConsumer) Run(ctx context.Context) error {
	backoff := reconnectBackoff
	for {
		err := c.consumeOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = reconnectBackoff
			continue
		}

		c.logger.Warn("trigger consumer interrupted", zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *TriggerConsumer) consumeOnce(ctx context.Context) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		NotificationTriggerQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", NotificationTriggerQueue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			if err := c.handleDelivery(ctx, d); err != nil {
				return err
			}
		}
	}
}

// handleDelivery settles exactly one delivery. The returned error is
// reserved for broker acknowledgement failures; trigger-level problems
// are settled in place.
func (c *TriggerConsumer) handleDelivery(ctx context.Context, d amqp.Delivery) error {
	var msg NotificationTrigger
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Warn("dropping trigger: invalid JSON",
			zap.Error(err),
			zap.String("routingKey", d.RoutingKey),
		)
		if rejectErr := d.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject invalid message: %w", rejectErr)
		}
		return nil
	}

	if err := msg.Validate(); err != nil {
		c.logger.Warn("dropping trigger: validation failed",
			zap.Error(err),
			zap.String("triggerId", msg.TriggerID),
			zap.String("eventType", msg.EventType),
		)
		if rejectErr := d.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject invalid payload: %w", rejectErr)
		}
		return nil
	}

	c.metrics.IncConsumerInFlight()
	defer c.metrics.DecConsumerInFlight()

	_, err := c.dispatcher.CreateAndSend(ctx, msg.ToRecord())
	switch {
	case errors.Is(err, domain.ErrValidation):
		// The payload passed transport validation but the core rejected
		// it; a redelivery cannot change that outcome.
		c.logger.Warn("dropping trigger rejected by dispatch core",
			zap.String("triggerId", msg.TriggerID),
			zap.Error(err),
		)
	case err != nil:
		c.logger.Error("dispatch failed, requeueing trigger",
			zap.String("triggerId", msg.TriggerID),
			zap.Error(err),
		)
		if nackErr := d.Nack(false, true); nackErr != nil {
			return fmt.Errorf("dispatch failed and nack failed: %w", nackErr)
		}
		return nil
	}

	if err := d.Ack(false); err != nil {
		return fmt.Errorf("failed to ack delivery: %w", err)
	}

	return nil
}

func (c *TriggerConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
