package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/mythicmate/internal/domain"
	"github.com/spec-kit/mythicmate/internal/group"
	"github.com/spec-kit/mythicmate/internal/observability"
	"github.com/spec-kit/mythicmate/internal/platform"
)

const noticeReminder = "Reminder: Your M+ run starts in %d minutes!"

// ReminderConfig tunes reminders.
type ReminderConfig struct {
	Lead        time.Duration
	FallbackTTL time.Duration
}

// ReminderScheduler notifies the primary members of a scheduled group once,
// Lead before it starts.
type ReminderScheduler struct {
	cfg    ReminderConfig
	clock  Clock
	logger *zap.Logger
	msg    messenger
	wg     sync.WaitGroup
}

// NewReminderScheduler creates the scheduler.
func NewReminderScheduler(cfg ReminderConfig, clock Clock, notifier platform.Notifier, logger *zap.Logger, metrics *observability.Metrics) *ReminderScheduler {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderScheduler{
		cfg:    cfg,
		clock:  clock,
		logger: logger,
		msg: messenger{
			notifier:    notifier,
			fallbackTTL: cfg.FallbackTTL,
			logger:      logger,
			metrics:     metrics,
		},
	}
}

// Schedule arms the reminder of entry's group and reports whether one was
// armed. Groups without a scheduled start get none. Removing the group from
// the registry cancels the reminder.
func (r *ReminderScheduler) Schedule(entry *group.Entry) bool {
	at := entry.State.ScheduledAt()
	if at == nil {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry.SetReminder(cancel)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.run(ctx, entry, *at)
	}()
	return true
}

// Wait blocks until every armed reminder fired or was cancelled.
func (r *ReminderScheduler) Wait() {
	r.wg.Wait()
}

func (r *ReminderScheduler) run(ctx context.Context, entry *group.Entry, at time.Time) {
	if delay := at.Sub(r.clock.Now()) - r.cfg.Lead; delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-r.clock.After(delay):
		}
	}
	if ctx.Err() != nil {
		return
	}

	var (
		snap domain.Snapshot
		fire bool
	)
	err := entry.Do(ctx, func(s *group.State) {
		if s.Closed() || !s.MarkReminderFired() {
			return
		}
		snap = s.Snapshot()
		fire = true
	})
	if err != nil || !fire {
		return
	}

	r.logger.Info("sending reminder",
		zap.String("group_id", snap.ID),
		zap.String("message_id", string(snap.MessageID)),
		zap.Int("members", len(snap.Members())))

	text := fmt.Sprintf(noticeReminder, int(r.cfg.Lead.Minutes()))
	for _, member := range snap.Members() {
		if ctx.Err() != nil {
			return
		}
		r.msg.private(ctx, snap.ChannelID, member.Identity, text)
	}
}
