package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/mythicmate/internal/domain"
	"github.com/spec-kit/mythicmate/internal/observability"
	"github.com/spec-kit/mythicmate/internal/platform"
)

// messenger sends private notices and falls back to a public, self-expiring
// mention when the recipient refuses direct messages.
type messenger struct {
	notifier    platform.Notifier
	fallbackTTL time.Duration
	logger      *zap.Logger
	metrics     *observability.Metrics
}

func (m messenger) private(ctx context.Context, channelID string, id domain.Identity, text string) {
	err := m.notifier.NotifyPrivate(ctx, id, text)
	m.metrics.RecordDelivery("private", err == nil)
	if err == nil {
		return
	}
	if !errors.Is(err, platform.ErrDeliveryFailure) {
		m.logger.Warn("private notice failed", zap.String("user_id", string(id)), zap.Error(err))
		return
	}
	fallback := platform.Mention(id) + " (Could not send DM: " + text + ")"
	err = m.notifier.NotifyPublic(ctx, channelID, fallback, m.fallbackTTL)
	m.metrics.RecordDelivery("fallback", err == nil)
	if err != nil {
		m.logger.Warn("fallback notice failed",
			zap.String("user_id", string(id)),
			zap.String("channel_id", channelID),
			zap.Error(err))
	}
}

func (m messenger) public(ctx context.Context, channelID, text string, ttl time.Duration) {
	err := m.notifier.NotifyPublic(ctx, channelID, text, ttl)
	m.metrics.RecordDelivery("public", err == nil)
	if err != nil {
		m.logger.Warn("public notice failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}
