package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/mythicmate/internal/events"
	"github.com/spec-kit/mythicmate/internal/observability"
)

// NotificationService records group lifecycle events in the structured log
// and the event counters.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventGroupCreated, n.handleGroupCreated)
	n.dispatcher.Subscribe(events.EventMemberPlaced, n.handleMemberPlaced)
	n.dispatcher.Subscribe(events.EventMemberPromoted, n.handleMemberPromoted)
	n.dispatcher.Subscribe(events.EventGroupCompleted, n.handleTransition)
	n.dispatcher.Subscribe(events.EventGroupReopened, n.handleTransition)
	n.dispatcher.Subscribe(events.EventGroupClosed, n.handleGroupClosed)
}

func (n *NotificationService) handleGroupCreated(_ context.Context, event events.Event) error {
	n.metrics.RecordEvent(string(event.Type))
	payload, _ := event.Payload.(events.GroupCreatedPayload)
	n.logger.Info("GroupCreated",
		append(eventFields(event),
			zap.String("activity", payload.Activity),
			zap.String("difficulty", payload.Difficulty),
			zap.String("role", string(payload.Role)),
			zap.Bool("scheduled", payload.ScheduledAt != nil))...)
	return nil
}

func (n *NotificationService) handleMemberPlaced(_ context.Context, event events.Event) error {
	n.metrics.RecordEvent(string(event.Type))
	payload, _ := event.Payload.(events.MemberPlacedPayload)
	n.logger.Info("MemberPlaced",
		append(eventFields(event),
			zap.String("role", string(payload.Role)),
			zap.String("placement", string(payload.Placement)))...)
	return nil
}

func (n *NotificationService) handleMemberPromoted(_ context.Context, event events.Event) error {
	n.metrics.RecordEvent(string(event.Type))
	payload, _ := event.Payload.(events.MemberPromotedPayload)
	n.logger.Info("MemberPromoted",
		append(eventFields(event), zap.String("role", string(payload.Role)))...)
	return nil
}

func (n *NotificationService) handleTransition(_ context.Context, event events.Event) error {
	n.metrics.RecordEvent(string(event.Type))
	n.logger.Info("GroupTransition", append(eventFields(event), zap.String("event_type", string(event.Type)))...)
	return nil
}

func (n *NotificationService) handleGroupClosed(_ context.Context, event events.Event) error {
	n.metrics.RecordEvent(string(event.Type))
	payload, _ := event.Payload.(events.GroupClosedPayload)
	n.logger.Info("GroupClosed",
		append(eventFields(event),
			zap.String("reason", payload.Reason),
			zap.Int("members", len(payload.Snapshot.Members())))...)
	return nil
}

func eventFields(event events.Event) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("group_id", event.GroupID),
		zap.String("message_id", string(event.MessageID)),
		zap.String("user_id", string(event.Actor)),
	}
}
