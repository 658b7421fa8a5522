package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/InviteGate/internal/app/model"
	apprepository "github.com/sifan077/InviteGate/internal/app/repository"
	"go.uber.org/zap"
)

const (
	auditFetchBatch = 10
	auditFetchWait  = 5 * time.Second
)

// AuditConsumer drains the audit stream into the audit_events table.
type AuditConsumer struct {
	js     nats.JetStreamContext
	logger *zap.Logger
	repo   apprepository.AuditEventRepository
}

// NewAuditConsumer creates a new audit event consumer
func NewAuditConsumer(js nats.JetStreamContext, logger *zap.Logger, repo apprepository.AuditEventRepository) *AuditConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditConsumer{js: js, logger: logger, repo: repo}
}

// Start ensures the stream and durable consumer exist, then consumes until ctx is done.
func (c *AuditConsumer) Start(ctx context.Context) error {
	if _, err := c.js.StreamInfo(model.AuditStreamName); err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:       model.AuditStreamName,
			Subjects:   []string{model.AuditStreamSubject},
			MaxBytes:   model.AuditStreamMaxBytes,
			Duplicates: 2 * time.Minute,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	if _, err := c.js.ConsumerInfo(model.AuditStreamName, model.AuditConsumerName); err != nil {
		_, err = c.js.AddConsumer(model.AuditStreamName, &nats.ConsumerConfig{
			Durable:   model.AuditConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.AuditStreamSubject, model.AuditConsumerName, nats.Bind(model.AuditStreamName, model.AuditConsumerName))
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(ctx, sub)
	return nil
}

func (c *AuditConsumer) consume(ctx context.Context, sub *nats.Subscription) {
	defer func() {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			c.logger.Warn("failed to unsubscribe audit consumer", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("audit consumer stopped")
			return
		default:
		}

		msgs, err := sub.Fetch(auditFetchBatch, nats.MaxWait(auditFetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				c.logger.Warn("audit consumer subscription closed", zap.Error(err))
				return
			}
			c.logger.Error("failed to fetch audit events", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			c.handle(ctx, msg)
		}
	}
}

func (c *AuditConsumer) handle(ctx context.Context, msg *nats.Msg) {
	var event model.AuditEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		c.logger.Error("failed to unmarshal audit event", zap.Error(err))
		// Malformed payloads are terminated, not redelivered.
		_ = msg.Term()
		return
	}

	if err := c.repo.Create(ctx, &event); err != nil {
		c.logger.Error("failed to store audit event",
			zap.String("id", event.ID),
			zap.String("kind", event.Kind),
			zap.Error(err))
		_ = msg.Nak()
		return
	}

	c.logger.Debug("audit event stored",
		zap.String("id", event.ID),
		zap.String("kind", event.Kind),
		zap.String("subject", event.Subject),
		zap.String("outcome", event.Outcome),
	)

	_ = msg.Ack()
}
