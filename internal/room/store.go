package room

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Store is the authoritative mapping from room id to live room state.
// Implementations must serialize operations per room id while letting
// operations on different rooms proceed independently, and must delete a
// room the instant a mutation leaves it without participants.
type Store interface {
	// Create inserts the room returned by build. build runs before the room
	// becomes visible and must return it with at least one participant
	// already joined. Returns ErrRoomExists if id is live; the existing
	// room is untouched.
	Create(id string, build func() *Room) error

	// Update runs fn against the room under its lock. If fn leaves the room
	// without participants it is deleted in the same step. Returns
	// ErrRoomNotFound if id is not live; fn's error is passed through.
	Update(id string, fn func(*Room) error) error

	// Upsert is Update, except a missing id is first created via build
	// (same contract as Create) and fn is skipped for that case. Reports
	// whether the room was created. Two concurrent Upserts for the same id
	// serialize so that exactly one creates and both observe a live room.
	Upsert(id string, build func() *Room, fn func(*Room) error) (created bool, err error)

	// View runs fn read-only under the room lock.
	View(id string, fn func(*Room)) error

	// Range visits every live room under its lock, one at a time.
	// Iteration order is unspecified.
	Range(fn func(*Room))

	// Len returns the number of live rooms.
	Len() int
}

// MemoryStore is the in-process Store: a map guarded by a read-write mutex,
// with a dedicated mutex per room entry so mutations on different rooms
// never contend. Entries removed from the map are tombstoned so an
// operation that raced the deletion re-resolves the id from scratch and
// finds it absent (or finds a brand-new room under the same id).
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry
}

type roomEntry struct {
	mu   sync.Mutex
	room *Room
	gone bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*roomEntry)}
}

func (s *MemoryStore) Create(id string, build func() *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; ok {
		return ErrRoomExists
	}
	s.rooms[id] = &roomEntry{room: build()}
	log.Debug().Str("room_id", id).Msg("room created")
	return nil
}

func (s *MemoryStore) Update(id string, fn func(*Room) error) error {
	for {
		s.mu.RLock()
		e, ok := s.rooms[id]
		s.mu.RUnlock()
		if !ok {
			return ErrRoomNotFound
		}

		e.mu.Lock()
		if e.gone {
			// Lost a race with deletion; the id may now be absent or may
			// point at a new entry. Resolve again.
			e.mu.Unlock()
			continue
		}
		err := fn(e.room)
		s.reapIfEmpty(id, e)
		e.mu.Unlock()
		return err
	}
}

func (s *MemoryStore) Upsert(id string, build func() *Room, fn func(*Room) error) (bool, error) {
	for {
		s.mu.RLock()
		e, ok := s.rooms[id]
		s.mu.RUnlock()

		if ok {
			e.mu.Lock()
			if e.gone {
				e.mu.Unlock()
				continue
			}
			err := fn(e.room)
			s.reapIfEmpty(id, e)
			e.mu.Unlock()
			return false, err
		}

		s.mu.Lock()
		if _, raced := s.rooms[id]; raced {
			// Another connection created it between our lookups; join the
			// existing room instead.
			s.mu.Unlock()
			continue
		}
		s.rooms[id] = &roomEntry{room: build()}
		s.mu.Unlock()
		log.Debug().Str("room_id", id).Msg("room created on join")
		return true, nil
	}
}

func (s *MemoryStore) View(id string, fn func(*Room)) error {
	for {
		s.mu.RLock()
		e, ok := s.rooms[id]
		s.mu.RUnlock()
		if !ok {
			return ErrRoomNotFound
		}
		e.mu.Lock()
		if e.gone {
			e.mu.Unlock()
			continue
		}
		fn(e.room)
		e.mu.Unlock()
		return nil
	}
}

func (s *MemoryStore) Range(fn func(*Room)) {
	s.mu.RLock()
	entries := make([]*roomEntry, 0, len(s.rooms))
	for _, e := range s.rooms {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		if !e.gone {
			fn(e.room)
		}
		e.mu.Unlock()
	}
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// reapIfEmpty deletes the room when its participant set is empty. Called
// with e.mu held; since we hold the entry lock and it is not tombstoned,
// the map entry for id is necessarily this entry. Lock order is entry then
// map, which is safe because no caller acquires an entry lock while
// holding the map lock.
func (s *MemoryStore) reapIfEmpty(id string, e *roomEntry) {
	if len(e.room.Participants) > 0 {
		return
	}
	s.mu.Lock()
	delete(s.rooms, id)
	s.mu.Unlock()
	e.gone = true
	log.Debug().Str("room_id", id).Msg("room deleted, last participant left")
}
