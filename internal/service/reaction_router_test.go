package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/mythicmate/internal/domain"
	"github.com/spec-kit/mythicmate/internal/events"
)

func fillGroup(t *testing.T, h *harness, messageID domain.MessageID) {
	t.Helper()
	h.react(t, messageID, "healer", domain.SignalSelectHealer, true)
	for i := 1; i <= 3; i++ {
		h.react(t, messageID, domain.Identity(fmt.Sprintf("dps%d", i)), domain.SignalSelectDPS, true)
	}
}

func hasRemoval(calls []signalCall, id domain.Identity, signal domain.Signal) bool {
	for _, c := range calls {
		if c.id == id && c.signal == signal {
			return true
		}
	}
	return false
}

func TestRouterPlacesMemberAndRenders(t *testing.T) {
	h := newHarness(t, nil)
	mid := h.start(t, "now")

	h.react(t, mid, "healer", domain.SignalSelectHealer, true)

	snap := h.snapshot(t, mid)
	if got := snap.Primary[domain.RoleHealer]; len(got) != 1 || got[0] != "healer" {
		t.Fatalf("healer slots = %v", got)
	}
	last := h.platform.lastRender()
	if last.target.MessageID != mid || len(last.snap.Primary[domain.RoleHealer]) != 1 {
		t.Errorf("last render = %+v, want healer on %s", last, mid)
	}
	placed := h.events.ofType(events.EventMemberPlaced)
	if len(placed) != 1 || placed[0].Actor != "healer" {
		t.Errorf("member_placed events = %+v", placed)
	}
}

func TestRouterRejectsSecondRole(t *testing.T) {
	h := newHarness(t, nil)
	mid := h.start(t, "now")
	renders := h.platform.renderCount()

	h.react(t, mid, "creator", domain.SignalSelectDPS, true)

	if !hasRemoval(h.platform.removedSignals(), "creator", domain.SignalSelectDPS) {
		t.Error("the second selection should be reverted")
	}
	if dms := h.platform.dmsTo("creator"); len(dms) != 1 || dms[0] != noticeOneRole {
		t.Errorf("creator DMs = %v", dms)
	}
	if h.platform.renderCount() != renders {
		t.Error("a rejected selection must not re-render")
	}
	if got := h.snapshot(t, mid).Primary[domain.RoleDPS]; len(got) != 0 {
		t.Errorf("dps slots = %v, want none", got)
	}
}

func TestRouterBackupQueue(t *testing.T) {
	h := newHarness(t, nil)
	mid := h.start(t, "now")

	h.react(t, mid, "b1", domain.SignalSelectTank, true)
	h.react(t, mid, "b2", domain.SignalSelectTank, true)
	h.react(t, mid, "b3", domain.SignalSelectTank, true)

	snap := h.snapshot(t, mid)
	if got := snap.Backup[domain.RoleTank]; len(got) != 2 || got[0] != "b1" || got[1] != "b2" {
		t.Fatalf("tank backups = %v, want [b1 b2]", got)
	}
	if dms := h.platform.dmsTo("b1"); len(dms) != 1 || dms[0] != noticeBackup {
		t.Errorf("b1 DMs = %v", dms)
	}
	if dms := h.platform.dmsTo("b3"); len(dms) != 1 || dms[0] != noticeBackupFull {
		t.Errorf("b3 DMs = %v", dms)
	}
	if !hasRemoval(h.platform.removedSignals(), "b3", domain.SignalSelectTank) {
		t.Error("the overflowing selection should be reverted")
	}
}

func TestRouterWithdrawPromotesBackup(t *testing.T) {
	h := newHarness(t, nil)
	mid := h.start(t, "now")
	h.react(t, mid, "b1", domain.SignalSelectTank, true)

	h.react(t, mid, "creator", domain.SignalSelectTank, false)

	snap := h.snapshot(t, mid)
	if got := snap.Primary[domain.RoleTank]; len(got) != 1 || got[0] != "b1" {
		t.Fatalf("tank slots = %v, want [b1]", got)
	}
	notices := h.platform.noticeTexts()
	if len(notices) != 1 {
		t.Fatalf("notices = %+v, want one promotion", notices)
	}
	if want := "<@b1> has been promoted from backup to Tank!"; notices[0].text != want || notices[0].ttl != 10*time.Second {
		t.Errorf("notice = %+v, want %q for 10s", notices[0], want)
	}
	if promoted := h.events.ofType(events.EventMemberPromoted); len(promoted) != 1 || promoted[0].Actor != "b1" {
		t.Errorf("member_promoted events = %+v", promoted)
	}
}

func TestRouterClearRemovesEverySignal(t *testing.T) {
	h := newHarness(t, nil)
	mid := h.start(t, "now")
	h.react(t, mid, "healer", domain.SignalSelectHealer, true)
	renders := h.platform.renderCount()

	h.react(t, mid, "healer", domain.SignalClear, true)

	if got := h.snapshot(t, mid).Primary[domain.RoleHealer]; len(got) != 0 {
		t.Fatal("healer should be gone after clear")
	}
	if h.platform.renderCount() != renders+1 {
		t.Errorf("renders = %d, want %d", h.platform.renderCount(), renders+1)
	}
	removed := h.platform.removedSignals()
	for _, signal := range domain.SelectionSignals {
		if !hasRemoval(removed, "healer", signal) {
			t.Errorf("signal %s of healer not withdrawn", signal)
		}
	}

	// Clearing without a role still withdraws the clear signal.
	h.react(t, mid, "stranger", domain.SignalClear, true)
	if !hasRemoval(h.platform.removedSignals(), "stranger", domain.SignalClear) {
		t.Error("stranger's clear signal should be withdrawn")
	}
	if h.platform.renderCount() != renders+1 {
		t.Error("clearing nothing must not re-render")
	}
}

func TestRouterCompletionAndReopen(t *testing.T) {
	h := newHarness(t, nil)
	mid := h.start(t, "now")
	fillGroup(t, h, mid)

	if status := h.snapshot(t, mid).Status; status != domain.GroupStatusComplete {
		t.Fatalf("status = %s, want COMPLETE", status)
	}
	acks := 0
	for _, c := range h.platform.addedSignals() {
		if c.signal == domain.SignalAcknowledge {
			acks++
		}
	}
	if acks != 1 {
		t.Errorf("acknowledge signal added %d times, want 1", acks)
	}
	if n := len(h.events.ofType(events.EventGroupCompleted)); n != 1 {
		t.Errorf("group_completed events = %d", n)
	}

	h.react(t, mid, "dps3", domain.SignalSelectDPS, false)

	if status := h.snapshot(t, mid).Status; status != domain.GroupStatusForming {
		t.Fatalf("status = %s, want FORMING", status)
	}
	if !hasRemoval(h.platform.removedSignals(), "", domain.SignalAcknowledge) {
		t.Error("bot acknowledge signal should be withdrawn on reopen")
	}
	if n := len(h.events.ofType(events.EventGroupReopened)); n != 1 {
		t.Errorf("group_reopened events = %d", n)
	}
}

func TestRouterAcknowledge(t *testing.T) {
	t.Run("not ready", func(t *testing.T) {
		h := newHarness(t, nil)
		mid := h.start(t, "now")
		h.react(t, mid, "creator", domain.SignalAcknowledge, true)
		if !hasRemoval(h.platform.removedSignals(), "creator", domain.SignalAcknowledge) {
			t.Error("early acknowledgement should be reverted")
		}
		if h.registry.Len() != 1 {
			t.Error("group must stay registered")
		}
	})

	t.Run("not a member", func(t *testing.T) {
		h := newHarness(t, nil)
		mid := h.start(t, "now")
		fillGroup(t, h, mid)
		h.react(t, mid, "stranger", domain.SignalAcknowledge, true)
		if !hasRemoval(h.platform.removedSignals(), "stranger", domain.SignalAcknowledge) {
			t.Error("stranger's acknowledgement should be reverted")
		}
		if h.registry.Len() != 1 {
			t.Error("group must stay registered")
		}
	})

	t.Run("member closes", func(t *testing.T) {
		h := newHarness(t, nil)
		mid := h.start(t, "now")
		fillGroup(t, h, mid)

		h.react(t, mid, "dps2", domain.SignalAcknowledge, true)

		if h.registry.Len() != 0 {
			t.Fatal("closed group should leave the registry")
		}
		if len(h.platform.retracts) != 1 || h.platform.retracts[0].MessageID != mid {
			t.Errorf("retracts = %+v", h.platform.retracts)
		}
		want := "Your The Dawnbreaker run has been marked as finished. Thanks for playing!"
		for _, id := range []domain.Identity{"creator", "healer", "dps1", "dps2", "dps3"} {
			if dms := h.platform.dmsTo(id); len(dms) != 1 || dms[0] != want {
				t.Errorf("%s DMs = %v", id, dms)
			}
		}
		closed := h.events.ofType(events.EventGroupClosed)
		if len(closed) != 1 {
			t.Fatalf("group_closed events = %d", len(closed))
		}
		payload := closed[0].Payload.(events.GroupClosedPayload)
		if payload.Reason != events.CloseReasonAcknowledged || len(payload.Snapshot.Members()) != 5 {
			t.Errorf("closed payload = %+v", payload)
		}

		// Late events for the closed message are ignored.
		h.react(t, mid, "late", domain.SignalSelectTank, true)
	})
}

func TestRouterIgnoresBotAndUnknownMessages(t *testing.T) {
	h := newHarness(t, nil)
	mid := h.start(t, "now")
	renders := h.platform.renderCount()

	h.react(t, mid, "bot", domain.SignalSelectHealer, true)
	h.react(t, "missing", "healer", domain.SignalSelectHealer, true)

	if h.platform.renderCount() != renders {
		t.Error("ignored events must not render")
	}
	if got := h.snapshot(t, mid).Primary[domain.RoleHealer]; len(got) != 0 {
		t.Errorf("healer slots = %v", got)
	}
}

func TestRouterFollowsRecreatedMessage(t *testing.T) {
	h := newHarness(t, nil)
	mid := h.start(t, "now")
	h.platform.mu.Lock()
	h.platform.lost[mid] = true
	h.platform.mu.Unlock()

	h.react(t, mid, "healer", domain.SignalSelectHealer, true)

	next := h.platform.lastRender().target.MessageID
	if next == mid {
		t.Fatal("render should have recreated the message")
	}
	if _, ok := h.registry.Get(mid); ok {
		t.Error("old message id should no longer resolve")
	}
	if _, ok := h.registry.Get(next); !ok {
		t.Fatalf("group should be registered under %s", next)
	}

	h.react(t, next, "dps1", domain.SignalSelectDPS, true)
	if got := h.snapshot(t, next).Primary[domain.RoleDPS]; len(got) != 1 {
		t.Errorf("dps slots = %v after rekey", got)
	}
}

// TestRouterSerializesConcurrentEvents fires many selections at one group at
// once while every render is slow, and checks that renders never overlap and
// each one shows exactly one more member than the previous.
func TestRouterSerializesConcurrentEvents(t *testing.T) {
	const players = 40
	h := newHarness(t, domain.Capacities{domain.RoleTank: 1, domain.RoleHealer: 1, domain.RoleDPS: players})
	mid := h.start(t, "now")
	h.platform.mu.Lock()
	h.platform.renderDelay = 2 * time.Millisecond
	h.platform.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := h.router.HandleEvent(context.Background(), ReactionEvent{
				MessageID: mid,
				Identity:  domain.Identity(fmt.Sprintf("p%d", i)),
				Signal:    domain.SignalSelectDPS,
				Added:     true,
			})
			if err != nil {
				t.Errorf("HandleEvent: %v", err)
			}
		}(i)
	}
	wg.Wait()

	h.platform.mu.Lock()
	defer h.platform.mu.Unlock()
	if h.platform.overlap {
		t.Fatal("renders of one group overlapped")
	}
	renders := h.platform.renders[1:]
	if len(renders) != players {
		t.Fatalf("renders = %d, want %d", len(renders), players)
	}
	for i, r := range renders {
		if got := len(r.snap.Primary[domain.RoleDPS]); got != i+1 {
			t.Fatalf("render %d shows %d dps, want %d", i, got, i+1)
		}
	}
}
