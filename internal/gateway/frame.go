// Package gateway bridges the coordinator to a chat adapter process over a
// websocket. The adapter owns the platform connection; the bridge turns
// platform calls into command frames and adapter frames into reaction events.
package gateway

import (
	"github.com/spec-kit/mythicmate/internal/render"
)

// FrameType tags every frame on the wire.
type FrameType string

const (
	FrameReaction   FrameType = "reaction"
	FrameStartGroup FrameType = "start_group"
	FrameAck        FrameType = "ack"
	FrameCommand    FrameType = "command"
	FrameResult     FrameType = "result"
)

// Command ops sent to the adapter.
const (
	OpPost           = "post"
	OpEdit           = "edit"
	OpRetract        = "retract"
	OpDM             = "dm"
	OpNotice         = "notice"
	OpAddReaction    = "add_reaction"
	OpRemoveReaction = "remove_reaction"
)

// Ack codes reported by the adapter.
const (
	CodeNotFound  = "not_found"
	CodeForbidden = "forbidden"
)

// Frame is the single JSON envelope exchanged with the adapter. Which fields
// are set depends on Type and Op.
type Frame struct {
	Type      FrameType `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	Op        string    `json:"op,omitempty"`

	ServerID   string `json:"server_id,omitempty"`
	ServerName string `json:"server_name,omitempty"`
	ChannelID  string `json:"channel_id,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	Signal     string `json:"signal,omitempty"`
	Added      bool   `json:"added,omitempty"`

	Activity   string `json:"activity,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Role       string `json:"role,omitempty"`
	Schedule   string `json:"schedule,omitempty"`

	Text       string        `json:"text,omitempty"`
	TTLSeconds int           `json:"ttl_seconds,omitempty"`
	Embed      *render.Embed `json:"embed,omitempty"`

	OK    bool   `json:"ok,omitempty"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// Conn is the subset of a websocket connection the bridge uses.
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}
