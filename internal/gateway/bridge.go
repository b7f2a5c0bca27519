package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/mythicmate/internal/domain"
	"github.com/spec-kit/mythicmate/internal/platform"
	"github.com/spec-kit/mythicmate/internal/render"
	"github.com/spec-kit/mythicmate/internal/service"
	apperrors "github.com/spec-kit/mythicmate/pkg/util/errorutil"
)

const reactionBuffer = 256

// EventSink receives reaction events in arrival order.
type EventSink interface {
	Enqueue(ctx context.Context, ev service.ReactionEvent) error
}

// GroupStarter opens groups requested by the adapter.
type GroupStarter interface {
	StartGroup(ctx context.Context, in service.StartGroupInput) (domain.Snapshot, error)
}

// AckError is a command the adapter refused.
type AckError struct {
	Op      string
	Code    string
	Message string
}

func (e *AckError) Error() string {
	return fmt.Sprintf("adapter rejected %s: %s %s", e.Op, e.Code, e.Message)
}

func ackCode(err error) string {
	var ae *AckError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

type session struct {
	conn    Conn
	writeMu sync.Mutex
	done    chan struct{}
}

func (s *session) write(f Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(f)
}

// Bridge implements platform.Platform on top of the attached adapter. Only
// one adapter is attached at a time; a new connection replaces the old one.
type Bridge struct {
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.RWMutex
	current *session
	pending map[string]chan Frame
	events  EventSink
	groups  GroupStarter
}

var _ platform.Platform = (*Bridge)(nil)

// NewBridge creates a bridge whose calls wait up to timeout for an ack.
func NewBridge(timeout time.Duration, logger *zap.Logger) *Bridge {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		timeout: timeout,
		logger:  logger,
		pending: make(map[string]chan Frame),
	}
}

// Bind sets the consumers of inbound frames.
func (b *Bridge) Bind(events EventSink, groups GroupStarter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = events
	b.groups = groups
}

// Connected reports whether an adapter is attached.
func (b *Bridge) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current != nil
}

// Serve attaches conn and pumps its frames until it fails or ctx ends.
func (b *Bridge) Serve(ctx context.Context, conn Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := &session{conn: conn, done: make(chan struct{})}
	b.mu.Lock()
	previous := b.current
	b.current = s
	events, groups := b.events, b.groups
	b.mu.Unlock()
	if previous != nil {
		b.logger.Info("adapter replaced by a new connection")
		_ = previous.conn.Close()
	}
	b.logger.Info("adapter connected")

	reactions := make(chan service.ReactionEvent, reactionBuffer)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range reactions {
			if events == nil {
				continue
			}
			if err := events.Enqueue(ctx, ev); err != nil {
				b.logger.Warn("enqueue reaction failed", zap.String("message_id", string(ev.MessageID)), zap.Error(err))
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	err := b.readLoop(ctx, s, reactions, groups, &wg)

	b.mu.Lock()
	if b.current == s {
		b.current = nil
	}
	b.mu.Unlock()
	close(s.done)

	close(reactions)
	wg.Wait()
	b.logger.Info("adapter disconnected", zap.Error(err))
	return err
}

func (b *Bridge) readLoop(ctx context.Context, s *session, reactions chan<- service.ReactionEvent, groups GroupStarter, wg *sync.WaitGroup) error {
	for {
		var frame Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch frame.Type {
		case FrameAck:
			b.resolve(frame)
		case FrameReaction:
			ev, ok := reactionEvent(frame)
			if !ok {
				b.logger.Debug("ignoring reaction with unknown signal", zap.String("signal", frame.Signal))
				continue
			}
			select {
			case reactions <- ev:
			case <-ctx.Done():
				return nil
			}
		case FrameStartGroup:
			if groups == nil {
				_ = s.write(Frame{Type: FrameResult, RequestID: frame.RequestID, Code: "unavailable", Error: "group start not available"})
				continue
			}
			wg.Add(1)
			go func(frame Frame) {
				defer wg.Done()
				b.startGroup(ctx, s, groups, frame)
			}(frame)
		default:
			b.logger.Debug("ignoring frame", zap.String("type", string(frame.Type)))
		}
	}
}

func reactionEvent(f Frame) (service.ReactionEvent, bool) {
	signal, ok := domain.ParseSignal(f.Signal)
	if !ok {
		return service.ReactionEvent{}, false
	}
	return service.ReactionEvent{
		MessageID: domain.MessageID(f.MessageID),
		Identity:  domain.Identity(f.UserID),
		Signal:    signal,
		Added:     f.Added,
	}, true
}

func (b *Bridge) startGroup(ctx context.Context, s *session, groups GroupStarter, f Frame) {
	snap, err := groups.StartGroup(ctx, service.StartGroupInput{
		ServerID:   f.ServerID,
		ServerName: f.ServerName,
		ChannelID:  f.ChannelID,
		Creator:    domain.Identity(f.UserID),
		Activity:   f.Activity,
		Difficulty: f.Difficulty,
		Role:       f.Role,
		Schedule:   f.Schedule,
	})
	reply := Frame{Type: FrameResult, RequestID: f.RequestID, ChannelID: f.ChannelID, UserID: f.UserID}
	if err != nil {
		reply.Code, reply.Error = resultCode(err), err.Error()
	} else {
		reply.OK = true
		reply.MessageID = string(snap.MessageID)
	}
	if werr := s.write(reply); werr != nil {
		b.logger.Warn("write start result failed", zap.String("request_id", f.RequestID), zap.Error(werr))
	}
}

func (b *Bridge) resolve(f Frame) {
	b.mu.Lock()
	ch, ok := b.pending[f.RequestID]
	delete(b.pending, f.RequestID)
	b.mu.Unlock()
	if !ok {
		b.logger.Debug("ack for unknown request", zap.String("request_id", f.RequestID))
		return
	}
	ch <- f
}

// call sends cmd and waits for its ack.
func (b *Bridge) call(ctx context.Context, cmd Frame) (Frame, error) {
	b.mu.Lock()
	s := b.current
	if s == nil {
		b.mu.Unlock()
		return Frame{}, platform.ErrOffline
	}
	cmd.Type = FrameCommand
	cmd.RequestID = uuid.NewString()
	reply := make(chan Frame, 1)
	b.pending[cmd.RequestID] = reply
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, cmd.RequestID)
		b.mu.Unlock()
	}()

	if err := s.write(cmd); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", platform.ErrOffline, err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case ack := <-reply:
		if !ack.OK {
			return ack, &AckError{Op: cmd.Op, Code: ack.Code, Message: ack.Error}
		}
		return ack, nil
	case <-s.done:
		return Frame{}, platform.ErrOffline
	case <-timer.C:
		return Frame{}, fmt.Errorf("%s: %w", cmd.Op, context.DeadlineExceeded)
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Render posts or edits the group message. A message the adapter can no
// longer edit is posted again and its selection signals re-attached.
func (b *Bridge) Render(ctx context.Context, target platform.Target, snap domain.Snapshot) (platform.Target, error) {
	embed := render.Build(snap)
	if target.MessageID == "" {
		return b.post(ctx, target.ChannelID, &embed)
	}

	_, err := b.call(ctx, Frame{Op: OpEdit, ChannelID: target.ChannelID, MessageID: string(target.MessageID), Embed: &embed})
	switch code := ackCode(err); {
	case err == nil:
		return target, nil
	case code == CodeNotFound || code == CodeForbidden:
		b.logger.Info("group message lost, recreating", zap.String("message_id", string(target.MessageID)), zap.String("code", code))
	default:
		return platform.Target{}, err
	}

	next, err := b.post(ctx, target.ChannelID, &embed)
	if err != nil {
		return platform.Target{}, err
	}
	for _, signal := range domain.SelectionSignals {
		if err := b.AddSignal(ctx, next, signal); err != nil {
			b.logger.Warn("re-add selection signal failed", zap.String("message_id", string(next.MessageID)), zap.Error(err))
		}
	}
	return next, nil
}

func (b *Bridge) post(ctx context.Context, channelID string, embed *render.Embed) (platform.Target, error) {
	ack, err := b.call(ctx, Frame{Op: OpPost, ChannelID: channelID, Embed: embed})
	if err != nil {
		if ackCode(err) != "" {
			return platform.Target{}, fmt.Errorf("%w: %v", platform.ErrRenderTargetLost, err)
		}
		return platform.Target{}, err
	}
	if ack.MessageID == "" {
		return platform.Target{}, platform.ErrRenderTargetLost
	}
	return platform.Target{ChannelID: channelID, MessageID: domain.MessageID(ack.MessageID)}, nil
}

// Retract deletes the group message. A message that is already gone counts
// as retracted.
func (b *Bridge) Retract(ctx context.Context, target platform.Target) error {
	_, err := b.call(ctx, Frame{Op: OpRetract, ChannelID: target.ChannelID, MessageID: string(target.MessageID)})
	if ackCode(err) == CodeNotFound {
		return nil
	}
	return err
}

func (b *Bridge) NotifyPrivate(ctx context.Context, id domain.Identity, text string) error {
	_, err := b.call(ctx, Frame{Op: OpDM, UserID: string(id), Text: text})
	if code := ackCode(err); code == CodeForbidden || code == CodeNotFound {
		return fmt.Errorf("%w: %v", platform.ErrDeliveryFailure, err)
	}
	return err
}

func (b *Bridge) NotifyPublic(ctx context.Context, channelID, text string, ttl time.Duration) error {
	_, err := b.call(ctx, Frame{Op: OpNotice, ChannelID: channelID, Text: text, TTLSeconds: int(ttl / time.Second)})
	return err
}

func (b *Bridge) AddSignal(ctx context.Context, target platform.Target, signal domain.Signal) error {
	_, err := b.call(ctx, Frame{
		Op:        OpAddReaction,
		ChannelID: target.ChannelID,
		MessageID: string(target.MessageID),
		Signal:    signal.Emoji(),
	})
	return err
}

func (b *Bridge) RemoveSignal(ctx context.Context, target platform.Target, signal domain.Signal, id domain.Identity) error {
	_, err := b.call(ctx, Frame{
		Op:        OpRemoveReaction,
		ChannelID: target.ChannelID,
		MessageID: string(target.MessageID),
		Signal:    signal.Emoji(),
		UserID:    string(id),
	})
	return err
}

func resultCode(err error) string {
	return apperrors.ToDomainError(err).Code
}
