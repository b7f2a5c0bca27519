package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/mythicmate/internal/domain"
	"github.com/spec-kit/mythicmate/internal/events"
	"github.com/spec-kit/mythicmate/internal/group"
	"github.com/spec-kit/mythicmate/internal/platform"
)

type renderCall struct {
	target platform.Target
	snap   domain.Snapshot
}

type dmCall struct {
	id   domain.Identity
	text string
}

type noticeCall struct {
	channelID string
	text      string
	ttl       time.Duration
}

type signalCall struct {
	target platform.Target
	signal domain.Signal
	id     domain.Identity
}

// fakePlatform records every outbound call.
type fakePlatform struct {
	mu          sync.Mutex
	nextID      int
	renderDelay time.Duration
	blockedDMs  map[domain.Identity]bool
	lost        map[domain.MessageID]bool
	inRender    int
	overlap     bool

	renders  []renderCall
	retracts []platform.Target
	dms      []dmCall
	notices  []noticeCall
	added    []signalCall
	removed  []signalCall
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		blockedDMs: map[domain.Identity]bool{},
		lost:       map[domain.MessageID]bool{},
	}
}

func (p *fakePlatform) Render(_ context.Context, target platform.Target, snap domain.Snapshot) (platform.Target, error) {
	p.mu.Lock()
	p.inRender++
	if p.inRender > 1 {
		p.overlap = true
	}
	delay := p.renderDelay
	p.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inRender--
	if target.MessageID == "" || p.lost[target.MessageID] {
		delete(p.lost, target.MessageID)
		p.nextID++
		target.MessageID = domain.MessageID(fmt.Sprintf("msg-%d", p.nextID))
	}
	p.renders = append(p.renders, renderCall{target: target, snap: snap})
	return target, nil
}

func (p *fakePlatform) Retract(_ context.Context, target platform.Target) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retracts = append(p.retracts, target)
	return nil
}

func (p *fakePlatform) NotifyPrivate(_ context.Context, id domain.Identity, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.blockedDMs[id] {
		return platform.ErrDeliveryFailure
	}
	p.dms = append(p.dms, dmCall{id: id, text: text})
	return nil
}

func (p *fakePlatform) NotifyPublic(_ context.Context, channelID, text string, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, noticeCall{channelID: channelID, text: text, ttl: ttl})
	return nil
}

func (p *fakePlatform) AddSignal(_ context.Context, target platform.Target, signal domain.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added = append(p.added, signalCall{target: target, signal: signal})
	return nil
}

func (p *fakePlatform) RemoveSignal(_ context.Context, target platform.Target, signal domain.Signal, id domain.Identity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, signalCall{target: target, signal: signal, id: id})
	return nil
}

func (p *fakePlatform) renderCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.renders)
}

func (p *fakePlatform) lastRender() renderCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renders[len(p.renders)-1]
}

func (p *fakePlatform) dmsTo(id domain.Identity) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var texts []string
	for _, dm := range p.dms {
		if dm.id == id {
			texts = append(texts, dm.text)
		}
	}
	return texts
}

func (p *fakePlatform) noticeTexts() []noticeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]noticeCall(nil), p.notices...)
}

func (p *fakePlatform) removedSignals() []signalCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]signalCall(nil), p.removed...)
}

func (p *fakePlatform) addedSignals() []signalCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]signalCall(nil), p.added...)
}

type clockWaiter struct {
	at time.Time
	ch chan time.Time
}

// fakeClock only moves when Advance is called.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []clockWaiter
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, clockWaiter{at: c.now.Add(d), ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	pending := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.at.After(c.now) {
			w.ch <- c.now
			continue
		}
		pending = append(pending, w)
	}
	c.waiters = pending
}

// BlockUntil waits until n goroutines are sleeping on the clock.
func (c *fakeClock) BlockUntil(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		count := len(c.waiters)
		c.mu.Unlock()
		if count >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d clock waiters", n)
}

// eventLog captures published events.
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func subscribeAll(d events.Dispatcher) *eventLog {
	log := &eventLog{}
	for _, typ := range []events.EventType{
		events.EventGroupCreated,
		events.EventMemberPlaced,
		events.EventMemberPromoted,
		events.EventGroupCompleted,
		events.EventGroupReopened,
		events.EventGroupClosed,
	} {
		d.Subscribe(typ, func(_ context.Context, e events.Event) error {
			log.mu.Lock()
			defer log.mu.Unlock()
			log.events = append(log.events, e)
			return nil
		})
	}
	return log
}

func (l *eventLog) ofType(typ events.EventType) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

var testNow = time.Date(2024, time.March, 1, 18, 0, 0, 0, time.UTC)

// harness wires the coordinator against fakes.
type harness struct {
	registry  *group.Registry
	platform  *fakePlatform
	clock     *fakeClock
	events    *eventLog
	router    *ReactionRouter
	reminders *ReminderScheduler
	groups    *GroupService
}

func newHarness(t *testing.T, caps domain.Capacities) *harness {
	t.Helper()
	if caps == nil {
		caps = domain.DefaultCapacities()
	}
	h := &harness{
		registry: group.NewRegistry(64),
		platform: newFakePlatform(),
		clock:    newFakeClock(testNow),
	}
	dispatcher := events.NewInMemoryDispatcher(nil)
	h.events = subscribeAll(dispatcher)
	h.router = NewReactionRouter(RouterConfig{
		BotIdentity:        "bot",
		PromotionNoticeTTL: 10 * time.Second,
		FallbackTTL:        60 * time.Second,
	}, RouterDependencies{
		Registry:   h.registry,
		Platform:   h.platform,
		Dispatcher: dispatcher,
		Clock:      h.clock,
	})
	h.reminders = NewReminderScheduler(ReminderConfig{Lead: 15 * time.Minute, FallbackTTL: 60 * time.Second},
		h.clock, h.platform, nil, nil)
	h.groups = NewGroupService(GroupConfig{Capacities: caps, MaxBackups: 2, MaxAge: 6 * time.Hour}, GroupDependencies{
		Registry:   h.registry,
		Platform:   h.platform,
		Router:     h.router,
		Reminders:  h.reminders,
		Dispatcher: dispatcher,
		Clock:      h.clock,
	})
	t.Cleanup(func() {
		h.registry.Drain()
		h.reminders.Wait()
	})
	return h
}

// start opens a group led by a tank named creator.
func (h *harness) start(t *testing.T, schedule string) domain.MessageID {
	t.Helper()
	snap, err := h.groups.StartGroup(context.Background(), StartGroupInput{
		ServerID:   "guild-1",
		ServerName: "Guild",
		ChannelID:  "chan-1",
		Creator:    "creator",
		Activity:   "breaker",
		Difficulty: "+12",
		Role:       "tank",
		Schedule:   schedule,
	})
	if err != nil {
		t.Fatalf("StartGroup: %v", err)
	}
	return snap.MessageID
}

func (h *harness) react(t *testing.T, messageID domain.MessageID, id domain.Identity, signal domain.Signal, added bool) {
	t.Helper()
	err := h.router.HandleEvent(context.Background(), ReactionEvent{MessageID: messageID, Identity: id, Signal: signal, Added: added})
	if err != nil {
		t.Fatalf("HandleEvent(%s %s %v): %v", id, signal, added, err)
	}
}

func (h *harness) snapshot(t *testing.T, messageID domain.MessageID) domain.Snapshot {
	t.Helper()
	snap, err := h.groups.Get(messageID)
	if err != nil {
		t.Fatalf("Get(%s): %v", messageID, err)
	}
	return snap
}
