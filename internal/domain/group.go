package domain

import "time"

// GroupStatus is the lifecycle state of a group.
type GroupStatus string

const (
	GroupStatusForming  GroupStatus = "FORMING"
	GroupStatusComplete GroupStatus = "COMPLETE"
	GroupStatusClosed   GroupStatus = "CLOSED"
)

// Snapshot is an immutable copy of a group handed to renderers, notifiers and
// the statistics recorder.
type Snapshot struct {
	ID            string
	MessageID     MessageID
	ChannelID     string
	ServerID      string
	ServerName    string
	Activity      string
	Difficulty    string
	CreatedBy     Identity
	CreatedAt     time.Time
	ScheduledAt   *time.Time
	ReminderFired bool
	Status        GroupStatus
	Capacities    Capacities
	Primary       map[Role][]Identity
	Backup        map[Role][]Identity
}

// Members lists primary occupants in role order.
func (s Snapshot) Members() []Member {
	members := make([]Member, 0, s.Capacities.Total())
	for _, role := range Roles {
		for _, id := range s.Primary[role] {
			members = append(members, Member{Identity: id, Role: role})
		}
	}
	return members
}

// IsPrimary reports whether id holds a counted slot.
func (s Snapshot) IsPrimary(id Identity) bool {
	for _, role := range Roles {
		for _, member := range s.Primary[role] {
			if member == id {
				return true
			}
		}
	}
	return false
}

// HasBackups reports whether any backup queue is non-empty.
func (s Snapshot) HasBackups() bool {
	for _, role := range Roles {
		if len(s.Backup[role]) > 0 {
			return true
		}
	}
	return false
}

// Member pairs a primary occupant with its role.
type Member struct {
	Identity Identity
	Role     Role
}
