package dto

import (
	"time"

	"github.com/spec-kit/mythicmate/internal/domain"
)

// StartGroupRequest payload.
type StartGroupRequest struct {
	ServerID   string `json:"server_id"`
	ServerName string `json:"server_name"`
	ChannelID  string `json:"channel_id"`
	Creator    string `json:"creator"`
	Activity   string `json:"activity"`
	Difficulty string `json:"difficulty"`
	Role       string `json:"role"`
	Schedule   string `json:"schedule"`
}

// ReactionRequest injects a reaction event for a group.
type ReactionRequest struct {
	UserID string `json:"user_id"`
	Signal string `json:"signal"`
	Added  bool   `json:"added"`
}

// RoleRoster lists the occupants of one role.
type RoleRoster struct {
	Capacity int      `json:"capacity"`
	Primary  []string `json:"primary"`
	Backup   []string `json:"backup"`
}

// GroupResponse describes a live group.
type GroupResponse struct {
	ID            string                `json:"id"`
	MessageID     string                `json:"message_id"`
	ChannelID     string                `json:"channel_id"`
	ServerID      string                `json:"server_id"`
	Activity      string                `json:"activity"`
	Difficulty    string                `json:"difficulty"`
	Status        domain.GroupStatus    `json:"status"`
	CreatedBy     string                `json:"created_by"`
	CreatedAt     time.Time             `json:"created_at"`
	ScheduledAt   *time.Time            `json:"scheduled_at,omitempty"`
	ReminderFired bool                  `json:"reminder_fired"`
	Roles         map[string]RoleRoster `json:"roles"`
}

// NewGroupResponse converts a snapshot.
func NewGroupResponse(snap domain.Snapshot) GroupResponse {
	roles := make(map[string]RoleRoster, len(domain.Roles))
	for _, role := range domain.Roles {
		roles[string(role)] = RoleRoster{
			Capacity: snap.Capacities[role],
			Primary:  identities(snap.Primary[role]),
			Backup:   identities(snap.Backup[role]),
		}
	}
	return GroupResponse{
		ID:            snap.ID,
		MessageID:     string(snap.MessageID),
		ChannelID:     snap.ChannelID,
		ServerID:      snap.ServerID,
		Activity:      snap.Activity,
		Difficulty:    snap.Difficulty,
		Status:        snap.Status,
		CreatedBy:     string(snap.CreatedBy),
		CreatedAt:     snap.CreatedAt,
		ScheduledAt:   snap.ScheduledAt,
		ReminderFired: snap.ReminderFired,
		Roles:         roles,
	}
}

func identities(ids []domain.Identity) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}
