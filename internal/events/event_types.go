package events

import (
	"time"

	"github.com/spec-kit/mythicmate/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventGroupCreated   EventType = "group_created"
	EventMemberPlaced   EventType = "member_placed"
	EventMemberPromoted EventType = "member_promoted"
	EventGroupCompleted EventType = "group_completed"
	EventGroupReopened  EventType = "group_reopened"
	EventGroupClosed    EventType = "group_closed"
)

// Close reasons carried by GroupClosedPayload.
const (
	CloseReasonAcknowledged = "acknowledged"
	CloseReasonTeardown     = "teardown"
	CloseReasonExpired      = "expired"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string           `json:"id"`
	Type      EventType        `json:"type"`
	GroupID   string           `json:"group_id"`
	MessageID domain.MessageID `json:"message_id"`
	Actor     domain.Identity  `json:"actor,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   interface{}      `json:"payload"`
}

// GroupCreatedPayload payload.
type GroupCreatedPayload struct {
	ServerID    string      `json:"server_id"`
	Activity    string      `json:"activity"`
	Difficulty  string      `json:"difficulty"`
	Role        domain.Role `json:"role"`
	ScheduledAt *time.Time  `json:"scheduled_at,omitempty"`
}

// MemberPlacedPayload payload.
type MemberPlacedPayload struct {
	Role      domain.Role      `json:"role"`
	Placement domain.Placement `json:"placement"`
}

// MemberPromotedPayload payload.
type MemberPromotedPayload struct {
	Role     domain.Role     `json:"role"`
	Promoted domain.Identity `json:"promoted"`
}

// GroupClosedPayload payload. Snapshot is the final roster.
type GroupClosedPayload struct {
	Reason   string          `json:"reason"`
	Snapshot domain.Snapshot `json:"snapshot"`
}
