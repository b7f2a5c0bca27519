// Package render turns group snapshots into the embed view posted on the
// chat platform.
package render

import (
	"strings"

	"github.com/spec-kit/mythicmate/internal/domain"
	"github.com/spec-kit/mythicmate/internal/platform"
)

const scheduleLayout = "2006-01-02 15:04"

// Field is one titled block of an embed.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Embed is the platform-neutral view of a group.
type Embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Author      string  `json:"author"`
	Fields      []Field `json:"fields"`
	Footer      string  `json:"footer"`
}

var roleHeaders = map[domain.Role]string{
	domain.RoleTank:   "🛡️ Tank",
	domain.RoleHealer: "💚 Healer",
	domain.RoleDPS:    "⚔️ DPS",
}

// Build renders snap. The output depends only on the snapshot, so an
// unchanged group always renders the same embed.
func Build(snap domain.Snapshot) Embed {
	schedule := "now"
	if snap.ScheduledAt != nil {
		schedule = snap.ScheduledAt.UTC().Format(scheduleLayout)
	}

	embed := Embed{
		Title:       "Dungeon: " + snap.Activity,
		Description: "Difficulty: " + snap.Difficulty + "\nScheduled: " + schedule,
		Author:      string(snap.CreatedBy),
		Footer:      footer(snap.Status),
	}

	for _, role := range domain.Roles {
		embed.Fields = append(embed.Fields, Field{
			Name:  header(role),
			Value: slots(snap.Primary[role], snap.Capacities[role]),
		})
	}

	var backups []string
	for _, role := range domain.Roles {
		queue := snap.Backup[role]
		if len(queue) == 0 {
			continue
		}
		backups = append(backups, "**"+string(role)+"**: "+mentions(queue, ", "))
	}
	if len(backups) > 0 {
		embed.Fields = append(embed.Fields, Field{Name: "📋 Backups", Value: strings.Join(backups, "\n")})
	}
	return embed
}

func header(role domain.Role) string {
	if h, ok := roleHeaders[role]; ok {
		return h
	}
	return string(role)
}

func slots(ids []domain.Identity, capacity int) string {
	lines := make([]string, 0, capacity)
	for _, id := range ids {
		lines = append(lines, platform.Mention(id))
	}
	for len(lines) < capacity {
		lines = append(lines, "None")
	}
	if len(lines) == 0 {
		return "None"
	}
	return strings.Join(lines, "\n")
}

func mentions(ids []domain.Identity, sep string) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, platform.Mention(id))
	}
	return strings.Join(parts, sep)
}

func footer(status domain.GroupStatus) string {
	switch status {
	case domain.GroupStatusComplete:
		return "Ready – react " + domain.SignalAcknowledge.Emoji() + " when finished"
	case domain.GroupStatusClosed:
		return "Finished"
	default:
		return "Forming"
	}
}
