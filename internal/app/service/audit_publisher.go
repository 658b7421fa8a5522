package service

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sifan077/InviteGate/internal/app/model"
	"go.uber.org/zap"
)

// AuditPublisher publishes audit events to NATS JetStream. A nil publisher
// drops events, which is how the service runs without NATS.
type AuditPublisher struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewAuditPublisher creates a new audit event publisher
func NewAuditPublisher(js nats.JetStreamContext, logger *zap.Logger) *AuditPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditPublisher{js: js, logger: logger}
}

// Publish stamps the event and publishes it. Failures are logged, not returned.
func (p *AuditPublisher) Publish(kind, subject, actor string, err error, detail string) {
	if p == nil || p.js == nil {
		return
	}

	event := model.AuditEvent{
		ID:        uuid.New().String(),
		Kind:      kind,
		Subject:   subject,
		Actor:     actor,
		Outcome:   Outcome(err),
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}

	data, marshalErr := json.Marshal(event)
	if marshalErr != nil {
		p.logger.Error("failed to marshal audit event", zap.Error(marshalErr))
		return
	}

	if _, pubErr := p.js.Publish(model.AuditStreamSubject, data, nats.MsgId(event.ID)); pubErr != nil {
		p.logger.Warn("failed to publish audit event",
			zap.String("kind", kind),
			zap.String("subject", subject),
			zap.Error(pubErr),
		)
	}
}
