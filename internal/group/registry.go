package group

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/mythicmate/internal/domain"
)

// Entry is a registered group: its state, its serialization lane and the
// cancel hook of its pending reminder.
type Entry struct {
	State *State
	lane  *Lane

	mu             sync.Mutex
	cancelReminder func()
}

// Do runs fn on the group's lane and waits for it to finish.
func (e *Entry) Do(ctx context.Context, fn func(*State)) error {
	return e.lane.Do(ctx, func() { fn(e.State) })
}

// Submit enqueues fn on the group's lane without waiting.
func (e *Entry) Submit(ctx context.Context, fn func(*State)) (func(context.Context) error, error) {
	return e.lane.Submit(ctx, func() { fn(e.State) })
}

// SetReminder records the cancel function of the group's pending reminder.
func (e *Entry) SetReminder(cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelReminder = cancel
}

// CancelReminder cancels the pending reminder, if any.
func (e *Entry) CancelReminder() {
	e.mu.Lock()
	cancel := e.cancelReminder
	e.cancelReminder = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (e *Entry) shutdown() {
	e.CancelReminder()
	e.lane.Stop()
}

// Registry maps message ids to live groups. It is the single source of truth
// for whether a message still represents a group. Operations on the map are
// atomic with respect to each other; mutations inside a group are owned by
// that group's lane.
type Registry struct {
	mu         sync.RWMutex
	entries    map[domain.MessageID]*Entry
	laneBuffer int
	closed     bool
}

// NewRegistry builds an empty registry whose lanes buffer laneBuffer jobs.
func NewRegistry(laneBuffer int) *Registry {
	return &Registry{
		entries:    make(map[domain.MessageID]*Entry),
		laneBuffer: laneBuffer,
	}
}

// Create registers state under messageID and starts its lane.
func (r *Registry) Create(messageID domain.MessageID, state *State) (*Entry, error) {
	if messageID == "" || state == nil {
		return nil, ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if _, exists := r.entries[messageID]; exists {
		return nil, ErrDuplicateGroup
	}
	state.retarget(messageID)
	entry := &Entry{State: state, lane: NewLane(r.laneBuffer)}
	r.entries[messageID] = entry
	return entry, nil
}

// Get looks up a live group.
func (r *Registry) Get(messageID domain.MessageID) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[messageID]
	return entry, ok
}

// Remove unregisters a group, cancels its reminder and stops its lane. Safe
// to call from the group's own lane.
func (r *Registry) Remove(messageID domain.MessageID) (*Entry, bool) {
	r.mu.Lock()
	entry, ok := r.entries[messageID]
	if ok {
		delete(r.entries, messageID)
	}
	r.mu.Unlock()
	if ok {
		entry.shutdown()
	}
	return entry, ok
}

// Rekey moves a group to a new message id after its representation was recreated.
func (r *Registry) Rekey(from, to domain.MessageID) error {
	if from == to {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[from]
	if !ok {
		return ErrNotFound
	}
	if _, exists := r.entries[to]; exists {
		return ErrDuplicateGroup
	}
	delete(r.entries, from)
	entry.State.retarget(to)
	r.entries[to] = entry
	return nil
}

// List returns live groups ordered by creation time.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	entries := make([]*Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].State.CreatedAt().Before(entries[j].State.CreatedAt())
	})
	return entries
}

// Len returns the number of live groups.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Drain removes every group and refuses new ones. It returns how many groups
// were dropped.
func (r *Registry) Drain() int {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[domain.MessageID]*Entry)
	r.closed = true
	r.mu.Unlock()

	for _, entry := range entries {
		entry.shutdown()
	}
	return len(entries)
}
