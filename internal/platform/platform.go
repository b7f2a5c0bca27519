// Package platform declares the chat-platform collaborators the coordinator
// talks to. Implementations live elsewhere (see internal/gateway).
package platform

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/mythicmate/internal/domain"
)

var (
	// ErrDeliveryFailure is returned when a private notification could not
	// reach its recipient (e.g. direct messages are blocked).
	ErrDeliveryFailure = errors.New("delivery failure")
	// ErrRenderTargetLost is returned when the group's message is gone and
	// could not be recreated.
	ErrRenderTargetLost = errors.New("render target lost")
	// ErrOffline is returned when no platform connection is available.
	ErrOffline = errors.New("platform offline")
)

// Target addresses a rendered group message.
type Target struct {
	ChannelID string           `json:"channel_id"`
	MessageID domain.MessageID `json:"message_id"`
}

// Renderer draws group snapshots.
type Renderer interface {
	// Render draws snap at target. An empty target.MessageID posts a new
	// message. When the existing message can no longer be edited the
	// implementation recreates it and returns the new target.
	Render(ctx context.Context, target Target, snap domain.Snapshot) (Target, error)
	// Retract removes the group's public representation.
	Retract(ctx context.Context, target Target) error
}

// Notifier sends text to users and channels.
type Notifier interface {
	NotifyPrivate(ctx context.Context, id domain.Identity, text string) error
	NotifyPublic(ctx context.Context, channelID, text string, ttl time.Duration) error
}

// Reactions manages the signal affordances on a group message.
type Reactions interface {
	// AddSignal attaches signal to the message on behalf of the bot.
	AddSignal(ctx context.Context, target Target, signal domain.Signal) error
	// RemoveSignal withdraws id's signal. An empty id withdraws the bot's own.
	RemoveSignal(ctx context.Context, target Target, signal domain.Signal, id domain.Identity) error
}

// Platform bundles every collaborator.
type Platform interface {
	Renderer
	Notifier
	Reactions
}

// Mention formats id so the platform highlights the user.
func Mention(id domain.Identity) string {
	return "<@" + string(id) + ">"
}
