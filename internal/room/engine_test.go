package room

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSink records every emission in order so tests can assert on the
// broadcast discipline as well as the resulting state.
type fakeSink struct {
	mu     sync.Mutex
	room   []Event
	global []Event
}

func (s *fakeSink) EmitRoom(roomID string, evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = append(s.room, evt)
}

func (s *fakeSink) EmitAll(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global = append(s.global, evt)
}

func (s *fakeSink) count(t EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, evt := range s.room {
		if evt.Type == t {
			n++
		}
	}
	return n
}

func (s *fakeSink) last(t EventType) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.room) - 1; i >= 0; i-- {
		if s.room[i].Type == t {
			return s.room[i], true
		}
	}
	return Event{}, false
}

func newTestEngine() (*Engine, *fakeSink, *MemoryStore) {
	store := NewMemoryStore()
	sink := &fakeSink{}
	sched := NewRevealSchedulerWithSource(100*time.Millisecond, 50*time.Millisecond, rand.NewSource(1))
	engine := NewEngine(store, sink, sched, clockwork.NewFakeClock())
	return engine, sink, store
}

func voter(id, name string) Participant {
	return Participant{ID: id, Name: name, Role: RoleVoter}
}

// snapshot copies the room state out from under its lock.
func snapshot(t *testing.T, store *MemoryStore, id string) Room {
	t.Helper()
	var cp Room
	err := store.View(id, func(r *Room) {
		cp = *r
		cp.Participants = make(map[string]*Participant, len(r.Participants))
		for pid, p := range r.Participants {
			member := *p
			cp.Participants[pid] = &member
		}
		cp.Round.Votes = r.Round.VoteSnapshot()
		cp.Round.Cheaters = make(map[string]struct{}, len(r.Round.Cheaters))
		for pid := range r.Round.Cheaters {
			cp.Round.Cheaters[pid] = struct{}{}
		}
		cp.Round.RevealOrder = append([]RevealStep(nil), r.Round.RevealOrder...)
	})
	require.NoError(t, err)
	return cp
}

func TestCreateRoomJoinsCreator(t *testing.T) {
	engine, sink, store := newTestEngine()

	id, err := engine.CreateRoom(CreateParams{RoomID: "ABC"}, voter("c1", "alice"))
	require.NoError(t, err)
	assert.Equal(t, "ABC", id)

	r := snapshot(t, store, "ABC")
	assert.Equal(t, VisibilityPublic, r.Visibility)
	assert.Equal(t, ScaleNumeric, r.Settings.CardScale)
	assert.Len(t, r.Participants, 1)
	assert.Equal(t, 1, sink.count(EventUsersUpdated))
}

func TestCreateRoomGeneratesCode(t *testing.T) {
	engine, _, store := newTestEngine()

	id, err := engine.CreateRoom(CreateParams{Private: true}, voter("c1", "alice"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	r := snapshot(t, store, id)
	assert.Equal(t, VisibilityPrivate, r.Visibility)
}

// Create against a live id must leave the existing room's state
// completely unmodified and fail with ErrRoomExists.
func TestCreateRoomExistingUntouched(t *testing.T) {
	engine, _, store := newTestEngine()

	_, err := engine.CreateRoom(CreateParams{RoomID: "ABC"}, voter("c1", "alice"))
	require.NoError(t, err)
	require.NoError(t, engine.Vote("ABC", "c1", "5"))

	_, err = engine.CreateRoom(CreateParams{RoomID: "ABC", Private: true}, voter("c2", "bob"))
	assert.ErrorIs(t, err, ErrRoomExists)

	r := snapshot(t, store, "ABC")
	assert.Len(t, r.Participants, 1)
	assert.Contains(t, r.Participants, "c1")
	assert.Equal(t, map[string]string{"c1": "5"}, r.Round.Votes)
	assert.Equal(t, VisibilityPublic, r.Visibility)
}

func TestJoinRejoinOverwrites(t *testing.T) {
	engine, _, store := newTestEngine()

	_, err := engine.CreateRoom(CreateParams{RoomID: "ABC"}, voter("c1", "alice"))
	require.NoError(t, err)
	require.NoError(t, engine.Join("ABC", voter("c1", "alice the second")))

	r := snapshot(t, store, "ABC")
	require.Len(t, r.Participants, 1)
	assert.Equal(t, "alice the second", r.Participants["c1"].Name)
}

func TestJoinRoomNotFound(t *testing.T) {
	engine, _, _ := newTestEngine()
	assert.ErrorIs(t, engine.Join("NOPE", voter("c1", "alice")), ErrRoomNotFound)
}

func TestVoteSpectatorSilentNoop(t *testing.T) {
	engine, sink, store := newTestEngine()

	_, err := engine.CreateRoom(CreateParams{RoomID: "ABC"}, voter("c1", "alice"))
	require.NoError(t, err)
	require.NoError(t, engine.Join("ABC", Participant{ID: "c2", Name: "bob", Role: RoleSpectator}))

	before := sink.count(EventVotesUpdated)
	require.NoError(t, engine.Vote("ABC", "c2", "5"))
	require.NoError(t, engine.Vote("ABC", "ghost", "5"))

	assert.Equal(t, before, sink.count(EventVotesUpdated), "spectator and unknown votes must not broadcast")
	r := snapshot(t, store, "ABC")
	assert.Empty(t, r.Round.Votes)
}

// Spectator switch must atomically discard the participant's vote.
func TestSetRoleSpectatorDropsVote(t *testing.T) {
	engine, _, store := newTestEngine()

	_, err := engine.CreateRoom(CreateParams{RoomID: "ABC"}, voter("c1", "alice"))
	require.NoError(t, err)
	require.NoError(t, engine.Join("ABC", voter("c2", "bob")))
	require.NoError(t, engine.Vote("ABC", "c2", "8"))

	require.NoError(t, engine.SetRole("ABC", "c2", RoleSpectator))

	r := snapshot(t, store, "ABC")
	assert.NotContains(t, r.Round.Votes, "c2")
	assert.Equal(t, RoleSpectator, r.Participants["c2"].Role)
}

// With auto-reveal on, the last voter completing the set flips
// the room to revealed with no cheaters.
func TestAutoRevealOnCompletingVote(t *testing.T) {
	engine, _, store := newTestEngine()

	_, err := engine.CreateRoom(CreateParams{RoomID: "ABC", AutoReveal: true}, voter("v1", "alice"))
	require.NoError(t, err)
	require.NoError(t, engine.Join("ABC", voter("v2", "bob")))

	require.NoError(t, engine.Vote("ABC", "v1", "5"))
	assert.False(t, snapshot(t, store, "ABC").Round.Revealed, "one vote outstanding, must stay open")

	require.NoError(t, engine.Vote("ABC", "v2", "8"))
	r := snapshot(t, store, "ABC")
	assert.True(t, r.Round.Revealed)
	assert.Equal(t, map[string]string{"v1": "5", "v2": "8"}, r.Round.Votes)
	assert.Empty(t, r.Round.Cheaters)
}

// Resubmitting the identical value after reveal is not cheating.
func TestPostRevealIdenticalResubmitNotFlagged(t *testing.T) {
	engine, _, store := newTestEngine()

	_, err := engine.CreateRoom(CreateParams{RoomID: "ABC"}, voter("v1", "alice"))
	require.NoError(t, err)
	require.NoError(t, engine.Vote("ABC", "v1", "5"))
	require.NoError(t, engine.Reveal("ABC"))

	require.NoError(t, engine.Vote("ABC", "v1", "5"))
	assert.Empty(t, snapshot(t, store, "ABC").Round.Cheaters)
}

// Changing the value after reveal flags the voter.
func TestPostRevealChangedVoteFlagged(t *testing.T) {
	engine, sink, store := newTestEngine()

	_, err := engine.CreateRoom(CreateParams{RoomID: "ABC"}, voter("v1", "alice"))
	require.NoError(t, err)
	require.NoError(t, engine.Vote("ABC", "v1", "5"))
	require.NoError(t, engine.Reveal("ABC"))

	require.NoError(t, engine.Vote("ABC", "v1", "8"))

	r := snapshot(t, store, "ABC")
	assert.Contains(t, r.Round.Cheaters, "v1")
	assert.Equal(t, "8", r.Round.Votes["v1"], "new value stored regardless of flag")

	evt, ok := sink.last(EventCheatersUpdated)
	require.True(t, ok)
	assert.Equal(t, []string{"v1"}, evt.Payload.(CheatersUpdatedPayload).Cheaters)
}

// A brand-new vote arriving after reveal is also cheating.
func TestPostRevealNewVoteFlagged(t *testing.T) {
	engine, _, store := newTestEngine()

	_, err := engine.CreateRoom(CreateParams{RoomID: "ABC"}, voter("v1", "alice"))
	require.NoError(t, err)
	require.NoError(t, engine.Join("ABC", voter("v2", "bob")))
	require.NoError(t, engine.Vote("ABC", "v1", "5"))
	require.NoError(t, engine.Reveal("ABC"))

	require.NoError(t, engine.Vote("ABC", "v2", "3"))
	assert.Contains(t, snapshot(t, store, "ABC").Round.Cheaters, "v2")
}

// A voter stepping out to spectator can complete the voter set
// and must trigger auto-reveal from within SetRole.
func TestAutoRevealOnSpectatorSwitch(t *testing.T) {
	engine, _, store := newTestEngine()

	_, err := engine.CreateRoom(CreateParams{RoomID: "ABC", AutoReveal: true}, voter("a", "alice"))
	require.NoError(t, err)
	require.NoError(t, engine.Join("ABC", voter("b", "bob")))
	require.NoError(t, engine.Vote("ABC", "a", "3"))

	require.NoError(t, engine.SetRole("ABC", "b", RoleSpectator))

	r := snapshot(t, store, "ABC")
	assert.True(t, r.Round.Revealed)
	assert.Equal(t, map[string]string{"a": "3"}, r.Round.Votes)
}

func TestSetAutoRevealImmediateWhenConditionHolds(t *testing.T) {
	engine, _, store := newTestEngine()

	_, err := engine.CreateRoom(CreateParams{RoomID: "ABC"}, voter("v1", "alice"))
	require.NoError(t, err)
	require.NoError(t, engine.Vote("ABC", "v1", "13"))
	assert.False(t, snapshot(t, store, "ABC").Round.Revealed)

	require.NoError(t, engine.SetAutoReveal("ABC", true))
	assert.True(t, snapshot(t, store, "ABC").Round.Revealed)
}

func TestAutoRevealAllSpectatorsNoop(t *testing.T) {
	engine, _, store := newTestEngine()

	_, err := engine.CreateRoom(CreateParams{RoomID: "ABC", AutoReveal: true}, voter("v1", "alice"))
	require.NoError(t, err)
	require.NoError(t, engine.Vote("ABC", "v1", "5"))
	require.NoError(t, engine.Reset("ABC"))
	require.NoError(t, engine.SetRole("ABC", "v1", RoleSpectator))

	assert.False(t, snapshot(t, store, "ABC").Round.Revealed, "no voters means no auto-reveal")
}

func TestRevealIdempotent(t *testing.T) {
	engine, sink, store := newTestEngine()

	_, err := engine.CreateRoom(CreateParams{RoomID: "ABC"}, voter("v1", "alice"))
	require.NoError(t, err)
	require.NoError(t, engine.Join("ABC", voter("v2", "bob")))
	require.NoError(t, engine.Vote("ABC", "v1", "5"))
	require.NoError(t, engine.Vote("ABC", "v2", "8"))

	require.NoError(t, engine.Reveal("ABC"))
	first := snapshot(t, store, "ABC").Round.RevealOrder
	require.Len(t, first, 2)
	emits := sink.count(EventRevealed)

	require.NoError(t, engine.Reveal("ABC"))
	assert.Equal(t, first, snapshot(t, store, "ABC").Round.RevealOrder, "repeat reveal must not reshuffle")
	assert.Equal(t, emits, sink.count(EventRevealed), "repeat reveal must not re-broadcast")
}

func TestRevealEmptyVotesNoop(t *testing.T) {
	engine, sink, store := newTestEngine()

	_, err := engine.CreateRoom(CreateParams{RoomID: "ABC"}, voter("v1", "alice"))
	require.NoError(t, err)
	require.NoError(t, engine.Reveal("ABC"))

	assert.False(t, snapshot(t, store, "ABC").Round.Revealed)
	assert.Equal(t, 0, sink.count(EventRevealed))
}

func TestVoteRevealResetRoundTrip(t *testing.T) {
	engine, _, store := newTestEngine()

	_, err := engine.CreateRoom(CreateParams{RoomID: "ABC"}, voter("v1", "alice"))
	require.NoError(t, err)
	require.NoError(t, engine.Vote("ABC", "v1", "5"))
	require.NoError(t, engine.Reveal("ABC"))
	require.NoError(t, engine.Vote("ABC", "v1", "8")) // flags v1
	require.NoError(t, engine.Reset("ABC"))
	require.NoError(t, engine.Vote("ABC", "v1", "2"))

	r := snapshot(t, store, "ABC")
	assert.False(t, r.Round.Revealed)
	assert.Empty(t, r.Round.Cheaters)
	assert.Empty(t, r.Round.RevealOrder)
	assert.Equal(t, map[string]string{"v1": "2"}, r.Round.Votes)
}

func TestSetCardScaleForfeitsRound(t *testing.T) {
	engine, sink, store := newTestEngine()

	_, err := engine.CreateRoom(CreateParams{RoomID: "ABC"}, voter("v1", "alice"))
	require.NoError(t, err)
	require.NoError(t, engine.Vote("ABC", "v1", "5"))
	require.NoError(t, engine.Reveal("ABC"))

	require.NoError(t, engine.SetCardScale("ABC", ScaleTShirt))

	r := snapshot(t, store, "ABC")
	assert.Equal(t, ScaleTShirt, r.Settings.CardScale)
	assert.False(t, r.Round.Revealed)
	assert.Empty(t, r.Round.Votes)
	assert.Equal(t, 1, sink.count(EventReset), "scale switch broadcasts a forced reset")
}

// The last leave deletes the room; a later join must see
// ErrRoomNotFound, not stale state.
func TestLastLeaveDeletesRoom(t *testing.T) {
	engine, _, store := newTestEngine()

	_, err := engine.CreateRoom(CreateParams{RoomID: "ABC"}, voter("v1", "alice"))
	require.NoError(t, err)
	require.NoError(t, engine.Vote("ABC", "v1", "5"))

	require.NoError(t, engine.Leave("ABC", "v1"))
	assert.Equal(t, 0, store.Len())
	assert.ErrorIs(t, engine.Join("ABC", voter("v2", "bob")), ErrRoomNotFound)
}

func TestLeaveKeepsRoomWithRemaining(t *testing.T) {
	engine, _, store := newTestEngine()

	_, err := engine.CreateRoom(CreateParams{RoomID: "ABC"}, voter("v1", "alice"))
	require.NoError(t, err)
	require.NoError(t, engine.Join("ABC", voter("v2", "bob")))
	require.NoError(t, engine.Vote("ABC", "v2", "5"))

	require.NoError(t, engine.Leave("ABC", "v2"))

	r := snapshot(t, store, "ABC")
	assert.Len(t, r.Participants, 1)
	assert.NotContains(t, r.Round.Votes, "v2", "leave drops the departing vote")
}

// Invariant: cheaters non-empty implies revealed, at every observable step.
func TestCheatersImplyRevealed(t *testing.T) {
	engine, _, store := newTestEngine()

	_, err := engine.CreateRoom(CreateParams{RoomID: "ABC"}, voter("v1", "alice"))
	require.NoError(t, err)

	check := func() {
		r := snapshot(t, store, "ABC")
		if len(r.Round.Cheaters) > 0 {
			assert.True(t, r.Round.Revealed)
		}
	}

	require.NoError(t, engine.Vote("ABC", "v1", "5"))
	check()
	require.NoError(t, engine.Reveal("ABC"))
	check()
	require.NoError(t, engine.Vote("ABC", "v1", "8"))
	check()
	require.NoError(t, engine.Reset("ABC"))
	r := snapshot(t, store, "ABC")
	assert.Empty(t, r.Round.Cheaters)
	assert.False(t, r.Round.Revealed)
}

// Two connections racing join-or-create for the same id must end up in one
// room together; exactly one of them creates it.
func TestJoinOrCreateConcurrent(t *testing.T) {
	engine, _, store := newTestEngine()

	const n = 16
	var wg sync.WaitGroup
	createdCh := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			created, err := engine.JoinOrCreate("RACE", voter(string(rune('a'+i)), "p"), CreateParams{})
			assert.NoError(t, err)
			createdCh <- created
		}(i)
	}
	wg.Wait()
	close(createdCh)

	creators := 0
	for created := range createdCh {
		if created {
			creators++
		}
	}
	assert.Equal(t, 1, creators, "exactly one caller creates the room")
	assert.Equal(t, 1, store.Len())
	assert.Len(t, snapshot(t, store, "RACE").Participants, n)
}

// Operations on distinct rooms must not serialize against each other; this
// is a liveness smoke test under the race detector.
func TestConcurrentDistinctRooms(t *testing.T) {
	engine, _, store := newTestEngine()

	ids := []string{"R1", "R2", "R3", "R4"}
	for _, id := range ids {
		_, err := engine.CreateRoom(CreateParams{RoomID: id}, voter("v-"+id, "p"))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				assert.NoError(t, engine.Vote(id, "v-"+id, "5"))
				assert.NoError(t, engine.Reveal(id))
				assert.NoError(t, engine.Reset(id))
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, len(ids), store.Len())
}
