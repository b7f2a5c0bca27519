package group

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/mythicmate/internal/domain"
)

// Transition is the status edge a mutation crossed, if any.
type Transition string

const (
	TransitionNone      Transition = ""
	TransitionCompleted Transition = "COMPLETED"
	TransitionReopened  Transition = "REOPENED"
	TransitionClosed    Transition = "CLOSED"
)

// CompensationKind names an action the caller must perform on the platform.
type CompensationKind string

// CompensationRevertSignal withdraws a reaction the user added.
const CompensationRevertSignal CompensationKind = "REVERT_SIGNAL"

// Compensation is an external side effect returned alongside a mutation
// result. State never performs platform calls itself.
type Compensation struct {
	Kind     CompensationKind
	Identity domain.Identity
	Signal   domain.Signal
}

// Result describes what a State mutation did.
type Result struct {
	Changed       bool
	Role          domain.Role
	Placement     domain.Placement
	Promoted      domain.Identity
	Transition    Transition
	Compensations []Compensation
}

// Options carries the descriptive metadata of a new group.
type Options struct {
	ServerID    string
	ServerName  string
	ChannelID   string
	Activity    string
	Difficulty  string
	ScheduledAt *time.Time
	Capacities  domain.Capacities
	MaxBackups  int
	CreatedAt   time.Time
}

// State owns one roster plus scheduling metadata for a single group.
//
// Mutations arrive one at a time through the group's Lane. The mutex exists so
// that Snapshot can be called from other goroutines (reminders, HTTP reads)
// without tearing.
type State struct {
	mu sync.RWMutex

	id            string
	messageID     domain.MessageID
	serverID      string
	serverName    string
	channelID     string
	activity      string
	difficulty    string
	createdBy     domain.Identity
	createdAt     time.Time
	scheduledAt   *time.Time
	reminderFired bool
	status        domain.GroupStatus
	roster        *Roster
}

// Start builds a group and places its creator in initialRole.
func Start(opts Options, initialRole domain.Role, creator domain.Identity) (*State, error) {
	caps := opts.Capacities
	if len(caps) == 0 {
		caps = domain.DefaultCapacities()
	}
	createdAt := opts.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var scheduledAt *time.Time
	if opts.ScheduledAt != nil {
		at := opts.ScheduledAt.UTC()
		scheduledAt = &at
	}

	s := &State{
		id:          uuid.NewString(),
		serverID:    opts.ServerID,
		serverName:  opts.ServerName,
		channelID:   opts.ChannelID,
		activity:    opts.Activity,
		difficulty:  opts.Difficulty,
		createdBy:   creator,
		createdAt:   createdAt,
		scheduledAt: scheduledAt,
		status:      domain.GroupStatusForming,
		roster:      NewRoster(caps, opts.MaxBackups),
	}
	if _, err := s.roster.AddMember(initialRole, creator); err != nil {
		return nil, err
	}
	s.status = s.derivedStatus()
	return s, nil
}

// TrySelectRole places id in role. An identity that already holds any slot
// is rejected with ErrAlreadyAssigned and a compensation reverting the signal.
func (s *State) TrySelectRole(id domain.Identity, role domain.Role) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revert := []Compensation{{Kind: CompensationRevertSignal, Identity: id, Signal: domain.SignalForRole(role)}}
	if s.status == domain.GroupStatusClosed {
		return Result{}, ErrClosed
	}
	if _, held := s.roster.RoleOf(id); held {
		return Result{Compensations: revert}, ErrAlreadyAssigned
	}
	placement, err := s.roster.AddMember(role, id)
	if err != nil {
		return Result{Compensations: revert}, err
	}
	return Result{
		Changed:    true,
		Role:       role,
		Placement:  placement,
		Transition: s.settle(),
	}, nil
}

// ClearRole removes id from whatever slot it holds. The result always asks
// for all of id's selection signals and the clear signal to be reverted, even
// when id held nothing.
func (s *State) ClearRole(id domain.Identity) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleanup := make([]Compensation, 0, len(domain.SelectionSignals))
	for _, signal := range domain.SelectionSignals {
		cleanup = append(cleanup, Compensation{Kind: CompensationRevertSignal, Identity: id, Signal: signal})
	}
	if s.status == domain.GroupStatusClosed {
		return Result{}, ErrClosed
	}
	removal, err := s.roster.RemoveMember(id)
	if err != nil {
		return Result{Compensations: cleanup}, err
	}
	return Result{
		Changed:       true,
		Role:          removal.Role,
		Placement:     removal.From,
		Promoted:      removal.Promoted,
		Transition:    s.settle(),
		Compensations: cleanup,
	}, nil
}

// OnExternalRemoval handles a selection signal withdrawn directly by the
// user. Only a slot in exactly that role is released.
func (s *State) OnExternalRemoval(id domain.Identity, role domain.Role) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.GroupStatusClosed {
		return Result{}, ErrClosed
	}
	removal, err := s.roster.RemoveFromRole(id, role)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Changed:    true,
		Role:       removal.Role,
		Placement:  removal.From,
		Promoted:   removal.Promoted,
		Transition: s.settle(),
	}, nil
}

// Acknowledge closes a complete group on behalf of a primary occupant.
// Rejections carry a compensation reverting the acknowledgement signal.
func (s *State) Acknowledge(id domain.Identity) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revert := []Compensation{{Kind: CompensationRevertSignal, Identity: id, Signal: domain.SignalAcknowledge}}
	if s.status == domain.GroupStatusClosed {
		return Result{Compensations: revert}, ErrClosed
	}
	slot, held := s.roster.RoleOf(id)
	if !held || slot.Placement != domain.PlacementPrimary {
		return Result{Compensations: revert}, ErrUnauthorized
	}
	if s.status != domain.GroupStatusComplete {
		return Result{Compensations: revert}, ErrNotReady
	}
	s.status = domain.GroupStatusClosed
	return Result{Changed: true, Role: slot.Role, Transition: TransitionClosed}, nil
}

// Close moves the group to Closed regardless of completion. It reports false
// when the group was already closed.
func (s *State) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == domain.GroupStatusClosed {
		return false
	}
	s.status = domain.GroupStatusClosed
	return true
}

// IsComplete reports whether every role is filled.
func (s *State) IsComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roster.IsComplete()
}

// Status returns the lifecycle state.
func (s *State) Status() domain.GroupStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Closed reports whether the group reached its terminal state.
func (s *State) Closed() bool {
	return s.Status() == domain.GroupStatusClosed
}

// RoleOf looks up id's slot.
func (s *State) RoleOf(id domain.Identity) (domain.Slot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roster.RoleOf(id)
}

// ScheduledAt returns the scheduled start, nil for immediate groups.
func (s *State) ScheduledAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.scheduledAt == nil {
		return nil
	}
	at := *s.scheduledAt
	return &at
}

// MarkReminderFired flips the reminder guard and reports whether this call
// was the one that flipped it.
func (s *State) MarkReminderFired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reminderFired {
		return false
	}
	s.reminderFired = true
	return true
}

// ID returns the group's stable identifier.
func (s *State) ID() string {
	return s.id
}

// ChannelID returns the channel the group was posted in.
func (s *State) ChannelID() string {
	return s.channelID
}

// CreatedAt returns when the group was started.
func (s *State) CreatedAt() time.Time {
	return s.createdAt
}

// MessageID returns the current render target key.
func (s *State) MessageID() domain.MessageID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messageID
}

// Snapshot returns an immutable copy for renderers and recorders.
func (s *State) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	caps := s.roster.Capacities()
	primary := make(map[domain.Role][]domain.Identity, len(caps))
	backup := make(map[domain.Role][]domain.Identity, len(caps))
	for role := range caps {
		primary[role] = s.roster.Primary(role)
		backup[role] = s.roster.Backup(role)
	}
	var scheduledAt *time.Time
	if s.scheduledAt != nil {
		at := *s.scheduledAt
		scheduledAt = &at
	}
	return domain.Snapshot{
		ID:            s.id,
		MessageID:     s.messageID,
		ChannelID:     s.channelID,
		ServerID:      s.serverID,
		ServerName:    s.serverName,
		Activity:      s.activity,
		Difficulty:    s.difficulty,
		CreatedBy:     s.createdBy,
		CreatedAt:     s.createdAt,
		ScheduledAt:   scheduledAt,
		ReminderFired: s.reminderFired,
		Status:        s.status,
		Capacities:    caps,
		Primary:       primary,
		Backup:        backup,
	}
}

func (s *State) retarget(messageID domain.MessageID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageID = messageID
}

// settle re-evaluates completion after a mutation and reports the edge crossed.
// Callers hold s.mu.
func (s *State) settle() Transition {
	before := s.status
	s.status = s.derivedStatus()
	switch {
	case before == domain.GroupStatusForming && s.status == domain.GroupStatusComplete:
		return TransitionCompleted
	case before == domain.GroupStatusComplete && s.status == domain.GroupStatusForming:
		return TransitionReopened
	}
	return TransitionNone
}

func (s *State) derivedStatus() domain.GroupStatus {
	if s.status == domain.GroupStatusClosed {
		return domain.GroupStatusClosed
	}
	if s.roster.IsComplete() {
		return domain.GroupStatusComplete
	}
	return domain.GroupStatusForming
}
