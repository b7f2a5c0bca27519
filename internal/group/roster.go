package group

import (
	"sort"

	"github.com/spec-kit/mythicmate/internal/domain"
)

// Roster holds primary occupants and FIFO backup queues per role.
//
// An identity appears at most once across all primary and backup slots, and
// no role ever holds more primary occupants than its capacity. Roster does no
// locking; its owner serializes access.
type Roster struct {
	capacities domain.Capacities
	maxBackups int
	primary    map[domain.Role][]domain.Identity
	backup     map[domain.Role][]domain.Identity
}

// Removal describes the outcome of removing an identity.
type Removal struct {
	Role     domain.Role
	From     domain.Placement
	Promoted domain.Identity
}

// HasPromotion reports whether a backup moved into the vacated slot.
func (r Removal) HasPromotion() bool {
	return r.Promoted != ""
}

// NewRoster builds an empty roster. maxBackups <= 0 leaves backup queues unbounded.
func NewRoster(capacities domain.Capacities, maxBackups int) *Roster {
	caps := make(domain.Capacities, len(capacities))
	for role, n := range capacities {
		caps[role] = n
	}
	return &Roster{
		capacities: caps,
		maxBackups: maxBackups,
		primary:    make(map[domain.Role][]domain.Identity, len(caps)),
		backup:     make(map[domain.Role][]domain.Identity, len(caps)),
	}
}

// AddMember places id in role's primary slots when one is free, otherwise at
// the tail of role's backup queue. It never mutates on error.
func (r *Roster) AddMember(role domain.Role, id domain.Identity) (domain.Placement, error) {
	if id == "" {
		return "", ErrInvalidIdentity
	}
	capacity, ok := r.capacities[role]
	if !ok {
		return "", ErrUnknownRole
	}
	if _, held := r.RoleOf(id); held {
		return "", ErrAlreadyAssigned
	}
	if len(r.primary[role]) < capacity {
		r.primary[role] = append(r.primary[role], id)
		return domain.PlacementPrimary, nil
	}
	if r.maxBackups > 0 && len(r.backup[role]) >= r.maxBackups {
		return "", ErrBackupFull
	}
	r.backup[role] = append(r.backup[role], id)
	return domain.PlacementBackup, nil
}

// RemoveMember removes id from wherever it sits. Vacating a primary slot
// promotes the head of that role's backup queue.
func (r *Roster) RemoveMember(id domain.Identity) (Removal, error) {
	slot, ok := r.RoleOf(id)
	if !ok {
		return Removal{}, ErrNotFound
	}
	return r.remove(id, slot), nil
}

// RemoveFromRole removes id only when it sits in role, primary or backup.
func (r *Roster) RemoveFromRole(id domain.Identity, role domain.Role) (Removal, error) {
	slot, ok := r.RoleOf(id)
	if !ok || slot.Role != role {
		return Removal{}, ErrNotFound
	}
	return r.remove(id, slot), nil
}

func (r *Roster) remove(id domain.Identity, slot domain.Slot) Removal {
	removal := Removal{Role: slot.Role, From: slot.Placement}
	if slot.Placement == domain.PlacementBackup {
		r.backup[slot.Role] = without(r.backup[slot.Role], id)
		return removal
	}

	r.primary[slot.Role] = without(r.primary[slot.Role], id)
	if queue := r.backup[slot.Role]; len(queue) > 0 {
		head := queue[0]
		r.backup[slot.Role] = append([]domain.Identity(nil), queue[1:]...)
		r.primary[slot.Role] = append(r.primary[slot.Role], head)
		removal.Promoted = head
	}
	return removal
}

// RoleOf looks up where id sits without mutating.
func (r *Roster) RoleOf(id domain.Identity) (domain.Slot, bool) {
	for _, role := range r.roles() {
		if contains(r.primary[role], id) {
			return domain.Slot{Role: role, Placement: domain.PlacementPrimary}, true
		}
	}
	for _, role := range r.roles() {
		if contains(r.backup[role], id) {
			return domain.Slot{Role: role, Placement: domain.PlacementBackup}, true
		}
	}
	return domain.Slot{}, false
}

// IsComplete reports whether every role's primary slots are at capacity.
func (r *Roster) IsComplete() bool {
	for role, capacity := range r.capacities {
		if len(r.primary[role]) != capacity {
			return false
		}
	}
	return true
}

// Primary returns a copy of role's primary occupants in join order.
func (r *Roster) Primary(role domain.Role) []domain.Identity {
	return append([]domain.Identity(nil), r.primary[role]...)
}

// Backup returns a copy of role's backup queue, head first.
func (r *Roster) Backup(role domain.Role) []domain.Identity {
	return append([]domain.Identity(nil), r.backup[role]...)
}

// Capacities returns a copy of the declared capacities.
func (r *Roster) Capacities() domain.Capacities {
	caps := make(domain.Capacities, len(r.capacities))
	for role, n := range r.capacities {
		caps[role] = n
	}
	return caps
}

// roles lists configured roles, well-known roles first so lookups are deterministic.
func (r *Roster) roles() []domain.Role {
	roles := make([]domain.Role, 0, len(r.capacities))
	for _, role := range domain.Roles {
		if _, ok := r.capacities[role]; ok {
			roles = append(roles, role)
		}
	}
	if len(roles) == len(r.capacities) {
		return roles
	}
	extra := make([]domain.Role, 0, len(r.capacities)-len(roles))
	for role := range r.capacities {
		if !containsRole(roles, role) {
			extra = append(extra, role)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(roles, extra...)
}

func contains(ids []domain.Identity, id domain.Identity) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func containsRole(roles []domain.Role, role domain.Role) bool {
	for _, candidate := range roles {
		if candidate == role {
			return true
		}
	}
	return false
}

func without(ids []domain.Identity, id domain.Identity) []domain.Identity {
	out := make([]domain.Identity, 0, len(ids))
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}
