package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/mythicmate/internal/domain"
	"github.com/spec-kit/mythicmate/internal/events"
	apperrors "github.com/spec-kit/mythicmate/pkg/util/errorutil"
)

func TestStartGroupValidation(t *testing.T) {
	base := StartGroupInput{
		ServerID:   "guild-1",
		ChannelID:  "chan-1",
		Creator:    "creator",
		Activity:   "ara",
		Difficulty: "+8",
		Role:       "DPS",
		Schedule:   "now",
	}
	tests := []struct {
		name    string
		mutate  func(*StartGroupInput)
		message string
	}{
		{
			name:    "unknown dungeon",
			mutate:  func(in *StartGroupInput) { in.Activity = "molten core" },
			message: "Sorry, I couldn't recognize the dungeon name 'molten core'. Please try again with a valid name or abbreviation.",
		},
		{
			name:    "unknown role",
			mutate:  func(in *StartGroupInput) { in.Role = "bard" },
			message: "Invalid role 'bard'. Please choose Tank, Healer or DPS.",
		},
		{
			name:    "bad schedule",
			mutate:  func(in *StartGroupInput) { in.Schedule = "tomorrow" },
			message: "Invalid date/time format. Please use 'now' or 'YYYY-MM-DD HH:MM'.",
		},
		{
			name:    "past schedule",
			mutate:  func(in *StartGroupInput) { in.Schedule = "2024-03-01 17:59" },
			message: "The scheduled time must be in the future.",
		},
		{
			name:    "missing channel",
			mutate:  func(in *StartGroupInput) { in.ChannelID = " " },
			message: "creator and channel are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			in := base
			tt.mutate(&in)
			_, err := h.groups.StartGroup(context.Background(), in)
			var de *apperrors.DomainError
			if !errors.As(err, &de) || de.Code != apperrors.CodeValidation {
				t.Fatalf("StartGroup() error = %v, want validation error", err)
			}
			if de.Message != tt.message {
				t.Errorf("message = %q, want %q", de.Message, tt.message)
			}
			if h.platform.renderCount() != 0 || h.registry.Len() != 0 {
				t.Error("rejected start must not render or register")
			}
		})
	}
}

func TestStartGroupRegistersAndAttachesSignals(t *testing.T) {
	h := newHarness(t, nil)
	mid := h.start(t, "NOW")

	snap := h.snapshot(t, mid)
	if snap.Activity != "The Dawnbreaker" || snap.Difficulty != "+12" {
		t.Errorf("snapshot = %+v", snap)
	}
	if got := snap.Primary[domain.RoleTank]; len(got) != 1 || got[0] != "creator" {
		t.Errorf("tank slots = %v", got)
	}
	if snap.ScheduledAt != nil {
		t.Error("'now' must not schedule a start")
	}

	added := h.platform.addedSignals()
	if len(added) != len(domain.SelectionSignals) {
		t.Fatalf("added signals = %+v", added)
	}
	for i, signal := range domain.SelectionSignals {
		if added[i].signal != signal || added[i].target.MessageID != mid {
			t.Errorf("signal %d = %+v, want %s on %s", i, added[i], signal, mid)
		}
	}
	if created := h.events.ofType(events.EventGroupCreated); len(created) != 1 || created[0].MessageID != mid {
		t.Errorf("group_created events = %+v", created)
	}
	if list := h.groups.List(); len(list) != 1 || list[0].MessageID != mid {
		t.Errorf("List() = %+v", list)
	}
}

func TestTeardown(t *testing.T) {
	h := newHarness(t, nil)
	mid := h.start(t, "now")
	h.react(t, mid, "healer", domain.SignalSelectHealer, true)

	if err := h.groups.Teardown(context.Background(), mid, events.CloseReasonTeardown); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	if h.registry.Len() != 0 {
		t.Error("torn down group should leave the registry")
	}
	if len(h.platform.retracts) != 1 {
		t.Errorf("retracts = %+v", h.platform.retracts)
	}
	if dms := h.platform.dmsTo("healer"); len(dms) != 0 {
		t.Errorf("teardown must not send finished notices: %v", dms)
	}
	closed := h.events.ofType(events.EventGroupClosed)
	if len(closed) != 1 || closed[0].Payload.(events.GroupClosedPayload).Reason != events.CloseReasonTeardown {
		t.Errorf("group_closed events = %+v", closed)
	}

	err := h.groups.Teardown(context.Background(), mid, events.CloseReasonTeardown)
	var de *apperrors.DomainError
	if !errors.As(err, &de) || de.Code != apperrors.CodeNotFound {
		t.Errorf("second Teardown error = %v, want NOT_FOUND", err)
	}
}

func TestExpireStale(t *testing.T) {
	h := newHarness(t, nil)
	old := h.start(t, "now")
	h.clock.Advance(7 * time.Hour)
	fresh := h.start(t, "now")

	if n := h.groups.ExpireStale(context.Background()); n != 1 {
		t.Fatalf("ExpireStale() = %d, want 1", n)
	}
	if _, ok := h.registry.Get(old); ok {
		t.Error("stale group should be gone")
	}
	if _, ok := h.registry.Get(fresh); !ok {
		t.Error("fresh group should survive")
	}
	closed := h.events.ofType(events.EventGroupClosed)
	if len(closed) != 1 || closed[0].Payload.(events.GroupClosedPayload).Reason != events.CloseReasonExpired {
		t.Errorf("group_closed events = %+v", closed)
	}
}

func TestActivitiesListsCatalog(t *testing.T) {
	h := newHarness(t, nil)
	names := h.groups.Activities()
	if len(names) != 8 {
		t.Fatalf("Activities() = %v", names)
	}
}
