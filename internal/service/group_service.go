package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/mythicmate/internal/activity"
	"github.com/spec-kit/mythicmate/internal/domain"
	"github.com/spec-kit/mythicmate/internal/events"
	"github.com/spec-kit/mythicmate/internal/group"
	"github.com/spec-kit/mythicmate/internal/platform"
	apperrors "github.com/spec-kit/mythicmate/pkg/util/errorutil"
)

// ScheduleLayout is the accepted format of a scheduled start, in UTC.
const ScheduleLayout = "2006-01-02 15:04"

// StartGroupInput carries a group start request.
type StartGroupInput struct {
	ServerID   string
	ServerName string
	ChannelID  string
	Creator    domain.Identity
	Activity   string
	Difficulty string
	Role       string
	Schedule   string
}

// GroupConfig tunes group creation and expiry.
type GroupConfig struct {
	Capacities domain.Capacities
	MaxBackups int
	MaxAge     time.Duration
}

// GroupDependencies bundles collaborators.
type GroupDependencies struct {
	Registry   *group.Registry
	Platform   platform.Platform
	Catalog    *activity.Catalog
	Router     *ReactionRouter
	Reminders  *ReminderScheduler
	Dispatcher events.Dispatcher
	Clock      Clock
	Logger     *zap.Logger
}

// GroupService starts, lists and tears down groups.
type GroupService struct {
	cfg        GroupConfig
	registry   *group.Registry
	platform   platform.Platform
	catalog    *activity.Catalog
	router     *ReactionRouter
	reminders  *ReminderScheduler
	dispatcher events.Dispatcher
	clock      Clock
	logger     *zap.Logger
}

// NewGroupService creates the service.
func NewGroupService(cfg GroupConfig, deps GroupDependencies) *GroupService {
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Catalog == nil {
		deps.Catalog = activity.NewCatalog(nil)
	}
	return &GroupService{
		cfg:        cfg,
		registry:   deps.Registry,
		platform:   deps.Platform,
		catalog:    deps.Catalog,
		router:     deps.Router,
		reminders:  deps.Reminders,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
}

// StartGroup validates in, posts the group message, registers the group
// under it and attaches the selection signals.
func (g *GroupService) StartGroup(ctx context.Context, in StartGroupInput) (domain.Snapshot, error) {
	if in.Creator == "" || strings.TrimSpace(in.ChannelID) == "" {
		return domain.Snapshot{}, apperrors.NewValidationError("creator and channel are required", nil)
	}
	name, ok := g.catalog.Lookup(in.Activity)
	if !ok {
		return domain.Snapshot{}, apperrors.NewValidationError(
			"Sorry, I couldn't recognize the dungeon name '"+in.Activity+"'. Please try again with a valid name or abbreviation.",
			map[string]any{"activity": in.Activity})
	}
	role, ok := domain.ParseRole(in.Role)
	if !ok {
		return domain.Snapshot{}, apperrors.NewValidationError(
			"Invalid role '"+in.Role+"'. Please choose Tank, Healer or DPS.",
			map[string]any{"role": in.Role})
	}
	scheduledAt, err := g.parseSchedule(in.Schedule)
	if err != nil {
		return domain.Snapshot{}, err
	}

	state, err := group.Start(group.Options{
		ServerID:    in.ServerID,
		ServerName:  in.ServerName,
		ChannelID:   in.ChannelID,
		Activity:    name,
		Difficulty:  strings.TrimSpace(in.Difficulty),
		ScheduledAt: scheduledAt,
		Capacities:  g.cfg.Capacities,
		MaxBackups:  g.cfg.MaxBackups,
		CreatedAt:   g.clock.Now(),
	}, role, in.Creator)
	if err != nil {
		return domain.Snapshot{}, apperrors.MapError(err)
	}

	target, err := g.platform.Render(ctx, platform.Target{ChannelID: in.ChannelID}, state.Snapshot())
	if err != nil {
		return domain.Snapshot{}, apperrors.MapError(err)
	}
	if target.MessageID == "" {
		return domain.Snapshot{}, apperrors.MapError(platform.ErrRenderTargetLost)
	}

	entry, err := g.registry.Create(target.MessageID, state)
	if err != nil {
		if rerr := g.platform.Retract(ctx, target); rerr != nil {
			g.logger.Warn("retract orphaned group message failed", zap.Error(rerr))
		}
		return domain.Snapshot{}, apperrors.MapError(err)
	}

	err = entry.Do(ctx, func(s *group.State) {
		for _, signal := range domain.SelectionSignals {
			if err := g.platform.AddSignal(ctx, target, signal); err != nil {
				g.logger.Warn("add selection signal failed",
					zap.String("message_id", string(target.MessageID)),
					zap.String("signal", string(signal)),
					zap.Error(err))
			}
		}
	})
	if err != nil {
		g.logger.Warn("attach selection signals", zap.String("message_id", string(target.MessageID)), zap.Error(err))
	}

	if g.reminders != nil {
		g.reminders.Schedule(entry)
	}

	snap := state.Snapshot()
	g.logger.Info("group started",
		zap.String("group_id", snap.ID),
		zap.String("message_id", string(snap.MessageID)),
		zap.String("user_id", string(in.Creator)),
		zap.String("activity", name))
	if g.router != nil {
		g.router.dispatch(ctx, snap.ID, snap.MessageID, events.EventGroupCreated, in.Creator, events.GroupCreatedPayload{
			ServerID:    snap.ServerID,
			Activity:    snap.Activity,
			Difficulty:  snap.Difficulty,
			Role:        role,
			ScheduledAt: snap.ScheduledAt,
		})
	}
	return snap, nil
}

func (g *GroupService) parseSchedule(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "now") {
		return nil, nil
	}
	at, err := time.ParseInLocation(ScheduleLayout, value, time.UTC)
	if err != nil {
		return nil, apperrors.NewValidationError(
			"Invalid date/time format. Please use 'now' or 'YYYY-MM-DD HH:MM'.",
			map[string]any{"schedule": value})
	}
	if !at.After(g.clock.Now()) {
		return nil, apperrors.NewValidationError("The scheduled time must be in the future.",
			map[string]any{"schedule": value})
	}
	return &at, nil
}

// Teardown closes a live group without recording statistics.
func (g *GroupService) Teardown(ctx context.Context, messageID domain.MessageID, reason string) error {
	entry, ok := g.registry.Get(messageID)
	if !ok {
		return apperrors.NewNotFound("group", map[string]any{"message_id": messageID})
	}

	closed := false
	err := entry.Do(ctx, func(s *group.State) {
		if !s.Close() {
			return
		}
		closed = true
		jobCtx, cancel := g.router.jobContext()
		defer cancel()
		g.router.finish(jobCtx, s, "", reason, false)
	})
	if errors.Is(err, group.ErrLaneStopped) {
		return apperrors.NewNotFound("group", map[string]any{"message_id": messageID})
	}
	if err != nil {
		return apperrors.MapError(err)
	}
	if !closed {
		return apperrors.MapError(group.ErrClosed)
	}
	return nil
}

// ExpireStale tears down groups older than the configured maximum age and
// returns how many were removed.
func (g *GroupService) ExpireStale(ctx context.Context) int {
	if g.cfg.MaxAge <= 0 {
		return 0
	}
	cutoff := g.clock.Now().Add(-g.cfg.MaxAge)
	expired := 0
	for _, entry := range g.registry.List() {
		if !entry.State.CreatedAt().Before(cutoff) {
			continue
		}
		messageID := entry.State.MessageID()
		if err := g.Teardown(ctx, messageID, events.CloseReasonExpired); err != nil {
			g.logger.Warn("expire group failed", zap.String("message_id", string(messageID)), zap.Error(err))
			continue
		}
		expired++
	}
	if expired > 0 {
		g.logger.Info("expired stale groups", zap.Int("count", expired))
	}
	return expired
}

// Get returns a snapshot of a live group.
func (g *GroupService) Get(messageID domain.MessageID) (domain.Snapshot, error) {
	entry, ok := g.registry.Get(messageID)
	if !ok {
		return domain.Snapshot{}, apperrors.NewNotFound("group", map[string]any{"message_id": messageID})
	}
	return entry.State.Snapshot(), nil
}

// List returns snapshots of every live group, oldest first.
func (g *GroupService) List() []domain.Snapshot {
	entries := g.registry.List()
	snaps := make([]domain.Snapshot, 0, len(entries))
	for _, entry := range entries {
		snaps = append(snaps, entry.State.Snapshot())
	}
	return snaps
}

// Activities lists the canonical activity names.
func (g *GroupService) Activities() []string {
	return g.catalog.Names()
}

// Drain drops every live group. Used at shutdown.
func (g *GroupService) Drain() int {
	return g.registry.Drain()
}
