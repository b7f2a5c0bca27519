package domain

import "strings"

// Identity is an opaque platform user handle. Equality is identity equality.
type Identity string

// MessageID identifies the rendered group message and keys the registry.
type MessageID string

// Role enumerates party roles.
type Role string

const (
	RoleTank   Role = "Tank"
	RoleHealer Role = "Healer"
	RoleDPS    Role = "DPS"
)

// Roles lists roles in render and search order.
var Roles = []Role{RoleTank, RoleHealer, RoleDPS}

// ParseRole resolves a role name case-insensitively.
func ParseRole(value string) (Role, bool) {
	for _, role := range Roles {
		if strings.EqualFold(strings.TrimSpace(value), string(role)) {
			return role, true
		}
	}
	return "", false
}

// Capacities declares how many primary slots each role holds.
type Capacities map[Role]int

// DefaultCapacities returns the 1/1/3 party template.
func DefaultCapacities() Capacities {
	return Capacities{
		RoleTank:   1,
		RoleHealer: 1,
		RoleDPS:    3,
	}
}

// Total returns the number of primary slots across all roles.
func (c Capacities) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Placement tells whether a member holds a counted slot or waits in a backup queue.
type Placement string

const (
	PlacementPrimary Placement = "PRIMARY"
	PlacementBackup  Placement = "BACKUP"
)

// Slot is where an identity sits in a roster.
type Slot struct {
	Role      Role
	Placement Placement
}
