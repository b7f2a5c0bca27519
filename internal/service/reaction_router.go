package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/mythicmate/internal/domain"
	"github.com/spec-kit/mythicmate/internal/events"
	"github.com/spec-kit/mythicmate/internal/group"
	"github.com/spec-kit/mythicmate/internal/observability"
	"github.com/spec-kit/mythicmate/internal/platform"
)

const (
	noticeOneRole    = "You can only select one role. Please remove your current role first."
	noticeBackup     = "You've been added to the backup list for this role."
	noticeBackupFull = "The backup list for this role is full. Please try again later."
	noticePromoted   = "%s has been promoted from backup to %s!"
	noticeFinished   = "Your %s run has been marked as finished. Thanks for playing!"
)

// ReactionEvent is one signal added to or withdrawn from a group message.
type ReactionEvent struct {
	MessageID domain.MessageID
	Identity  domain.Identity
	Signal    domain.Signal
	Added     bool
}

// RouterConfig tunes the router.
type RouterConfig struct {
	BotIdentity        domain.Identity
	PromotionNoticeTTL time.Duration
	FallbackTTL        time.Duration
	JobTimeout         time.Duration
}

// RouterDependencies bundles collaborators.
type RouterDependencies struct {
	Registry   *group.Registry
	Platform   platform.Platform
	Dispatcher events.Dispatcher
	Clock      Clock
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// ReactionRouter applies reaction events to groups. Every event runs on its
// group's lane, so the mutation, the compensations, the notices and the
// render of one event finish before the next event of that group starts.
type ReactionRouter struct {
	cfg        RouterConfig
	registry   *group.Registry
	platform   platform.Platform
	dispatcher events.Dispatcher
	clock      Clock
	logger     *zap.Logger
	msg        messenger
}

// NewReactionRouter creates the router.
func NewReactionRouter(cfg RouterConfig, deps RouterDependencies) *ReactionRouter {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ReactionRouter{
		cfg:        cfg,
		registry:   deps.Registry,
		platform:   deps.Platform,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		logger:     deps.Logger,
		msg: messenger{
			notifier:    deps.Platform,
			fallbackTTL: cfg.FallbackTTL,
			logger:      deps.Logger,
			metrics:     deps.Metrics,
		},
	}
}

// HandleEvent applies ev and waits until its whole cycle finished. Events for
// unknown groups and events from the bot itself are ignored.
func (r *ReactionRouter) HandleEvent(ctx context.Context, ev ReactionEvent) error {
	wait, err := r.submit(ctx, ev)
	if err != nil || wait == nil {
		return err
	}
	if err := wait(ctx); err != nil && !errors.Is(err, group.ErrLaneStopped) {
		return err
	}
	return nil
}

// Enqueue queues ev behind earlier events of the same group without waiting.
// Callers that enqueue from a single goroutine keep their arrival order.
func (r *ReactionRouter) Enqueue(ctx context.Context, ev ReactionEvent) error {
	_, err := r.submit(ctx, ev)
	return err
}

func (r *ReactionRouter) submit(ctx context.Context, ev ReactionEvent) (func(context.Context) error, error) {
	if ev.Identity == "" || ev.Identity == r.cfg.BotIdentity {
		return nil, nil
	}
	r.msg.metrics.RecordSignal(string(ev.Signal), ev.Added)

	entry, ok := r.registry.Get(ev.MessageID)
	if !ok {
		r.logger.Debug("event for untracked message",
			zap.String("message_id", string(ev.MessageID)),
			zap.String("signal", string(ev.Signal)))
		return nil, nil
	}

	wait, err := entry.Submit(ctx, func(s *group.State) { r.apply(s, ev) })
	if errors.Is(err, group.ErrLaneStopped) {
		return nil, nil
	}
	return wait, err
}

func (r *ReactionRouter) apply(s *group.State, ev ReactionEvent) {
	ctx, cancel := r.jobContext()
	defer cancel()

	switch ev.Signal {
	case domain.SignalAcknowledge:
		if ev.Added {
			r.acknowledge(ctx, s, ev.Identity)
		}
	case domain.SignalClear:
		if ev.Added {
			r.clear(ctx, s, ev.Identity)
		}
	default:
		role, ok := ev.Signal.Role()
		if !ok {
			return
		}
		if ev.Added {
			r.selectRole(ctx, s, ev.Identity, role)
		} else {
			r.withdraw(ctx, s, ev.Identity, role)
		}
	}
}

func (r *ReactionRouter) selectRole(ctx context.Context, s *group.State, id domain.Identity, role domain.Role) {
	res, err := s.TrySelectRole(id, role)
	r.compensate(ctx, s, res.Compensations)
	switch {
	case errors.Is(err, group.ErrAlreadyAssigned):
		r.msg.private(ctx, s.ChannelID(), id, noticeOneRole)
		return
	case errors.Is(err, group.ErrBackupFull):
		r.msg.private(ctx, s.ChannelID(), id, noticeBackupFull)
		return
	case err != nil:
		return
	}

	r.publish(ctx, s, events.EventMemberPlaced, id, events.MemberPlacedPayload{Role: res.Role, Placement: res.Placement})
	if res.Placement == domain.PlacementBackup {
		r.msg.private(ctx, s.ChannelID(), id, noticeBackup)
	}
	r.render(ctx, s)
	r.afterTransition(ctx, s, id, res.Transition)
}

func (r *ReactionRouter) clear(ctx context.Context, s *group.State, id domain.Identity) {
	res, err := s.ClearRole(id)
	if err == nil {
		r.announcePromotion(ctx, s, res)
		r.render(ctx, s)
		r.afterTransition(ctx, s, id, res.Transition)
	}
	r.compensate(ctx, s, res.Compensations)
}

func (r *ReactionRouter) withdraw(ctx context.Context, s *group.State, id domain.Identity, role domain.Role) {
	res, err := s.OnExternalRemoval(id, role)
	if err != nil {
		return
	}
	r.announcePromotion(ctx, s, res)
	r.render(ctx, s)
	r.afterTransition(ctx, s, id, res.Transition)
}

func (r *ReactionRouter) acknowledge(ctx context.Context, s *group.State, id domain.Identity) {
	res, err := s.Acknowledge(id)
	if err != nil {
		r.compensate(ctx, s, res.Compensations)
		return
	}
	r.finish(ctx, s, id, events.CloseReasonAcknowledged, true)
}

// finish tears down a group that just reached Closed. It runs on the group's
// lane; removing the group stops that lane once the current job returns.
func (r *ReactionRouter) finish(ctx context.Context, s *group.State, actor domain.Identity, reason string, notify bool) {
	snap := s.Snapshot()
	r.registry.Remove(snap.MessageID)

	if err := r.platform.Retract(ctx, targetOf(snap)); err != nil {
		r.logger.Warn("retract failed", zap.String("message_id", string(snap.MessageID)), zap.Error(err))
	}
	if notify {
		text := fmt.Sprintf(noticeFinished, snap.Activity)
		for _, member := range snap.Members() {
			r.msg.private(ctx, snap.ChannelID, member.Identity, text)
		}
	}

	r.logger.Info("group closed",
		zap.String("group_id", snap.ID),
		zap.String("message_id", string(snap.MessageID)),
		zap.String("reason", reason))
	r.dispatch(ctx, snap.ID, snap.MessageID, events.EventGroupClosed, actor, events.GroupClosedPayload{Reason: reason, Snapshot: snap})
}

func (r *ReactionRouter) announcePromotion(ctx context.Context, s *group.State, res group.Result) {
	if res.Promoted == "" {
		return
	}
	text := fmt.Sprintf(noticePromoted, platform.Mention(res.Promoted), res.Role)
	r.msg.public(ctx, s.ChannelID(), text, r.cfg.PromotionNoticeTTL)
	r.publish(ctx, s, events.EventMemberPromoted, res.Promoted, events.MemberPromotedPayload{Role: res.Role, Promoted: res.Promoted})
}

func (r *ReactionRouter) afterTransition(ctx context.Context, s *group.State, actor domain.Identity, t group.Transition) {
	target := platform.Target{ChannelID: s.ChannelID(), MessageID: s.MessageID()}
	switch t {
	case group.TransitionCompleted:
		if err := r.platform.AddSignal(ctx, target, domain.SignalAcknowledge); err != nil {
			r.logger.Warn("add acknowledge signal failed", zap.String("message_id", string(target.MessageID)), zap.Error(err))
		}
		r.publish(ctx, s, events.EventGroupCompleted, actor, nil)
	case group.TransitionReopened:
		if err := r.platform.RemoveSignal(ctx, target, domain.SignalAcknowledge, ""); err != nil {
			r.logger.Warn("remove acknowledge signal failed", zap.String("message_id", string(target.MessageID)), zap.Error(err))
		}
		r.publish(ctx, s, events.EventGroupReopened, actor, nil)
	}
}

// render redraws the group. A recreated message moves the group to its new id.
func (r *ReactionRouter) render(ctx context.Context, s *group.State) {
	snap := s.Snapshot()
	current := targetOf(snap)
	next, err := r.platform.Render(ctx, current, snap)
	if err != nil {
		r.logger.Warn("render failed", zap.String("message_id", string(snap.MessageID)), zap.Error(err))
		return
	}
	if next.MessageID == "" || next.MessageID == current.MessageID {
		return
	}

	if err := r.registry.Rekey(current.MessageID, next.MessageID); err != nil {
		r.logger.Warn("rekey after render failed",
			zap.String("from", string(current.MessageID)),
			zap.String("to", string(next.MessageID)),
			zap.Error(err))
		return
	}
	r.logger.Info("group message recreated",
		zap.String("from", string(current.MessageID)),
		zap.String("to", string(next.MessageID)))
	if snap.Status == domain.GroupStatusComplete {
		if err := r.platform.AddSignal(ctx, next, domain.SignalAcknowledge); err != nil {
			r.logger.Warn("add acknowledge signal failed", zap.String("message_id", string(next.MessageID)), zap.Error(err))
		}
	}
}

func (r *ReactionRouter) compensate(ctx context.Context, s *group.State, comps []group.Compensation) {
	if len(comps) == 0 {
		return
	}
	target := platform.Target{ChannelID: s.ChannelID(), MessageID: s.MessageID()}
	for _, c := range comps {
		if c.Kind != group.CompensationRevertSignal {
			continue
		}
		if err := r.platform.RemoveSignal(ctx, target, c.Signal, c.Identity); err != nil {
			r.logger.Warn("revert signal failed",
				zap.String("message_id", string(target.MessageID)),
				zap.String("user_id", string(c.Identity)),
				zap.String("signal", string(c.Signal)),
				zap.Error(err))
		}
	}
}

func (r *ReactionRouter) publish(ctx context.Context, s *group.State, eventType events.EventType, actor domain.Identity, payload interface{}) {
	r.dispatch(ctx, s.ID(), s.MessageID(), eventType, actor, payload)
}

func (r *ReactionRouter) dispatch(ctx context.Context, groupID string, messageID domain.MessageID, eventType events.EventType, actor domain.Identity, payload interface{}) {
	if r.dispatcher == nil {
		return
	}
	_ = r.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		GroupID:   groupID,
		MessageID: messageID,
		Actor:     actor,
		Timestamp: r.clock.Now().UTC(),
		Payload:   payload,
	})
}

func (r *ReactionRouter) jobContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.cfg.JobTimeout)
}

func targetOf(snap domain.Snapshot) platform.Target {
	return platform.Target{ChannelID: snap.ChannelID, MessageID: snap.MessageID}
}
