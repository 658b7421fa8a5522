package service

import (
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// FilterSyncSubject carries newly created custom URLs between instances.
const FilterSyncSubject = "invitegate.mappings.created"

// FilterBus is the part of *nats.Conn the filter sync needs.
type FilterBus interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// FilterSync keeps the custom URL filters of several instances in step over
// core NATS. A nil FilterSync does nothing.
type FilterSync struct {
	bus    FilterBus
	logger *zap.Logger
	sub    *nats.Subscription
}

// NewFilterSync creates a sync over bus. A nil bus yields a nil FilterSync.
func NewFilterSync(bus FilterBus, logger *zap.Logger) *FilterSync {
	if bus == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilterSync{bus: bus, logger: logger}
}

// Announce tells the other instances about a created custom URL.
func (s *FilterSync) Announce(customURL string) {
	if s == nil {
		return
	}
	if err := s.bus.Publish(FilterSyncSubject, []byte(customURL)); err != nil {
		s.logger.Warn("failed to announce custom url",
			zap.String("custom_url", customURL),
			zap.Error(err),
		)
	}
}

// Start delivers every announced custom URL to learn.
func (s *FilterSync) Start(learn func(customURL string)) error {
	if s == nil {
		return nil
	}
	sub, err := s.bus.Subscribe(FilterSyncSubject, func(msg *nats.Msg) {
		customURL := string(msg.Data)
		if !ValidCustomURL(customURL) {
			s.logger.Warn("ignoring malformed custom url announcement", zap.String("custom_url", customURL))
			return
		}
		learn(customURL)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", FilterSyncSubject, err)
	}
	s.sub = sub
	return nil
}

// Stop unsubscribes.
func (s *FilterSync) Stop() {
	if s == nil || s.sub == nil {
		return
	}
	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		s.logger.Warn("failed to unsubscribe filter sync", zap.Error(err))
	}
}
