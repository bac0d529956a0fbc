package room

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultDirectoryDebounce coalesces bursts of membership churn into one
// public-rooms broadcast.
const DefaultDirectoryDebounce = 150 * time.Millisecond

// Directory derives the list of publicly discoverable rooms with live
// participant counts and broadcasts it to every connection when it changes.
// Recomputation is debounced: Notify arms a one-shot timer and further
// notifications within the window fold into the pending flush. The snapshot
// is taken at flush time, so the broadcast always reflects a state at least
// as fresh as the last completed mutation before it was sent.
type Directory struct {
	store    Store
	sink     Sink
	clock    clockwork.Clock
	debounce time.Duration

	mu      sync.Mutex
	pending bool
}

// NewDirectory returns a directory over store emitting through sink. A
// non-positive debounce makes every Notify flush synchronously.
func NewDirectory(store Store, sink Sink, clock clockwork.Clock, debounce time.Duration) *Directory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Directory{
		store:    store,
		sink:     sink,
		clock:    clock,
		debounce: debounce,
	}
}

// Notify schedules a directory broadcast after a membership or room-set
// change. Safe to call from any goroutine, including engine callbacks.
func (d *Directory) Notify() {
	if d.debounce <= 0 {
		d.flush()
		return
	}

	d.mu.Lock()
	if d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = true
	d.mu.Unlock()

	d.clock.AfterFunc(d.debounce, func() {
		d.mu.Lock()
		d.pending = false
		d.mu.Unlock()
		d.flush()
	})
}

// Snapshot returns the current public directory, ordered by room id. The
// slice is never nil so it marshals as an empty list.
func (d *Directory) Snapshot() []DirectoryEntry {
	entries := make([]DirectoryEntry, 0)
	d.store.Range(func(r *Room) {
		if r.Visibility != VisibilityPublic {
			return
		}
		entries = append(entries, DirectoryEntry{
			RoomID:           r.ID,
			ParticipantCount: len(r.Participants),
		})
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].RoomID < entries[j].RoomID })
	return entries
}

func (d *Directory) flush() {
	entries := d.Snapshot()
	log.Debug().Int("public_rooms", len(entries)).Msg("broadcasting public room directory")
	d.sink.EmitAll(Event{
		Type:    EventPublicRoomsUpdated,
		Payload: PublicRoomsPayload{Rooms: entries},
	})
}
