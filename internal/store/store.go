// Package store holds the single client-side profile slice.
package store

import (
	"sync"
	"time"

	"github.com/janisto/profile-sync/internal/service/profile"
)

// Snapshot is a point-in-time view of the store.
type Snapshot struct {
	Profile   StoredProfile
	Present   bool
	Revision  uint64
	UpdatedAt time.Time
}

// Listener is notified after every mutation.
type Listener func(Snapshot)

type subscription struct {
	id int
	fn Listener
}

// Store holds at most one StoredProfile. Every write replaces it wholesale.
type Store struct {
	mu        sync.RWMutex
	profile   StoredProfile
	present   bool
	revision  uint64
	updatedAt time.Time

	subMu  sync.Mutex
	subs   []subscription
	nextID int

	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{now: time.Now}
}

// Set serializes rec and replaces the stored profile.
func (s *Store) Set(rec profile.Record) {
	s.replace(Serialize(rec), true)
}

// SetStored replaces the stored profile with p after canonicalizing its
// birthday. An unparseable birthday leaves the store unchanged.
func (s *Store) SetStored(p StoredProfile) error {
	birthday, err := ParseBirthday(p.Birthday)
	if err != nil {
		return err
	}
	p.Birthday = FormatBirthday(birthday)
	s.replace(p, true)
	return nil
}

// Clear marks the profile absent.
func (s *Store) Clear() {
	s.replace(StoredProfile{}, false)
}

// Profile returns a copy of the stored profile and whether one is present.
func (s *Store) Profile() (StoredProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile, s.present
}

// Snapshot returns the current state including revision metadata.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe registers fn and returns a function that removes it. Listeners
// run in registration order, outside the store lock.
func (s *Store) Subscribe(fn Listener) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) replace(p StoredProfile, present bool) {
	s.mu.Lock()
	s.profile = p
	s.present = present
	s.revision++
	s.updatedAt = s.now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Profile:   s.profile,
		Present:   s.present,
		Revision:  s.revision,
		UpdatedAt: s.updatedAt,
	}
}

func (s *Store) notify(snap Snapshot) {
	s.subMu.Lock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(snap)
	}
}
