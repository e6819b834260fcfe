// Package lock holds the lock registry and the access grant manager.
package lock

import (
	"fmt"
	"sync"
	"time"

	"github.com/lock-access-monitor/backend/internal/storage/models"
)

// Registry holds the authoritative state of every registered lock.
// Each lock has its own mutex; the index is guarded separately so reads of
// one lock never wait on writes to another.
type Registry struct {
	mu    sync.RWMutex
	locks map[string]*entry
	order []*entry

	now func() time.Time
}

type entry struct {
	mu   sync.Mutex
	lock models.Lock
}

// RegisterOption customizes a lock at registration time.
type RegisterOption func(*models.Lock)

// WithOwner records the property owner of the lock.
func WithOwner(ownerID string) RegisterOption {
	return func(l *models.Lock) {
		l.OwnerID = ownerID
	}
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{
		locks: make(map[string]*entry),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Register adds a new lock in the locked state with a full battery and no grant.
func (r *Registry) Register(id, name string, opts ...RegisterOption) (models.Lock, error) {
	if id == "" {
		return models.Lock{}, fmt.Errorf("%w: lock id is required", ErrInvalidArgument)
	}
	if name == "" {
		return models.Lock{}, fmt.Errorf("%w: lock name is required", ErrInvalidArgument)
	}

	now := r.now()
	l := models.Lock{
		ID:            id,
		Name:          name,
		PhysicalState: models.StateLocked,
		BatteryLevel:  100,
		LastSeen:      now,
		CreatedAt:     now,
	}
	for _, opt := range opts {
		opt(&l)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.locks[id]; ok {
		return models.Lock{}, fmt.Errorf("%w: lock %s", ErrAlreadyExists, id)
	}

	e := &entry{lock: l}
	r.locks[id] = e
	r.order = append(r.order, e)

	return l.Clone(), nil
}

// Get returns a snapshot of the lock with the given id.
func (r *Registry) Get(id string) (models.Lock, error) {
	e, err := r.lookup(id)
	if err != nil {
		return models.Lock{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lock.Clone(), nil
}

// List returns snapshots of all locks in registration order.
func (r *Registry) List() []models.Lock {
	r.mu.RLock()
	entries := make([]*entry, len(r.order))
	copy(entries, r.order)
	r.mu.RUnlock()

	locks := make([]models.Lock, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		locks = append(locks, e.lock.Clone())
		e.mu.Unlock()
	}
	return locks
}

// Count returns the number of registered locks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// update runs fn while holding the lock's mutex. It is the only write path
// into a registered lock and is used exclusively by the Manager.
func (r *Registry) update(id string, fn func(l *models.Lock) error) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(&e.lock)
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.locks[id]
	if !ok {
		return nil, fmt.Errorf("%w: lock %s", ErrNotFound, id)
	}
	return e, nil
}

func setPhysicalState(l *models.Lock, state models.PhysicalState, at time.Time) {
	l.PhysicalState = state
	l.LastSeen = at
}

func setGrant(l *models.Lock, grant *models.AccessGrant) {
	l.CurrentGrant = grant
}
