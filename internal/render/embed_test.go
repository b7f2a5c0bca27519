package render

import (
	"reflect"
	"testing"
	"time"

	"github.com/spec-kit/mythicmate/internal/domain"
)

func snapshot() domain.Snapshot {
	return domain.Snapshot{
		Activity:   "The Dawnbreaker",
		Difficulty: "+12",
		CreatedBy:  "111",
		Status:     domain.GroupStatusForming,
		Capacities: domain.DefaultCapacities(),
		Primary: map[domain.Role][]domain.Identity{
			domain.RoleTank: {"111"},
			domain.RoleDPS:  {"333"},
		},
		Backup: map[domain.Role][]domain.Identity{
			domain.RoleTank: {"444", "555"},
		},
	}
}

func TestBuild(t *testing.T) {
	embed := Build(snapshot())

	if embed.Title != "Dungeon: The Dawnbreaker" {
		t.Errorf("Title = %q", embed.Title)
	}
	if embed.Description != "Difficulty: +12\nScheduled: now" {
		t.Errorf("Description = %q", embed.Description)
	}
	want := []Field{
		{Name: "🛡️ Tank", Value: "<@111>"},
		{Name: "💚 Healer", Value: "None"},
		{Name: "⚔️ DPS", Value: "<@333>\nNone\nNone"},
		{Name: "📋 Backups", Value: "**Tank**: <@444>, <@555>"},
	}
	if !reflect.DeepEqual(embed.Fields, want) {
		t.Errorf("Fields = %#v\nwant %#v", embed.Fields, want)
	}
	if embed.Footer != "Forming" {
		t.Errorf("Footer = %q", embed.Footer)
	}
}

func TestBuildScheduledAndComplete(t *testing.T) {
	snap := snapshot()
	at := time.Date(2026, 3, 4, 18, 30, 0, 0, time.UTC)
	snap.ScheduledAt = &at
	snap.Status = domain.GroupStatusComplete
	snap.Backup = nil

	embed := Build(snap)
	if embed.Description != "Difficulty: +12\nScheduled: 2026-03-04 18:30" {
		t.Errorf("Description = %q", embed.Description)
	}
	if len(embed.Fields) != 3 {
		t.Errorf("backups field should be omitted, got %d fields", len(embed.Fields))
	}
	if embed.Footer != "Ready – react ✅ when finished" {
		t.Errorf("Footer = %q", embed.Footer)
	}
}

func TestBuildIsStable(t *testing.T) {
	if !reflect.DeepEqual(Build(snapshot()), Build(snapshot())) {
		t.Error("rendering the same snapshot twice differs")
	}
}
