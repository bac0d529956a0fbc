package room

import (
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Engine is the per-room vote/reveal/reset state machine. Every operation
// is a single atomic read-modify-broadcast step against one room: the
// mutation and its EmitRoom calls happen under the room's lock, so
// observers never see broadcasts out of order with respect to state.
// Cheater detection and the auto-reveal check run inside the same step,
// never on their own schedule.
type Engine struct {
	store Store
	sink  Sink
	sched *RevealScheduler
	clock clockwork.Clock
	dir   *Directory
}

// NewEngine wires the engine to its store, event sink and reveal scheduler.
func NewEngine(store Store, sink Sink, sched *RevealScheduler, clock clockwork.Clock) *Engine {
	if sched == nil {
		sched = NewRevealScheduler(DefaultRevealStep, DefaultRevealJitter)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		store: store,
		sink:  sink,
		sched: sched,
		clock: clock,
	}
}

// AttachDirectory registers the public-room directory to be notified after
// every membership or room-set change.
func (e *Engine) AttachDirectory(d *Directory) {
	e.dir = d
}

// CreateParams are the creation-time knobs of a room. Visibility is fixed
// for the room's lifetime; everything else is mutable afterwards.
type CreateParams struct {
	RoomID     string
	Private    bool
	AutoReveal bool
	CardScale  CardScale
}

// CreateRoom creates the room and joins the creator in the same step, so a
// freshly created room is never observably empty. An empty RoomID gets a
// generated code. Returns the room id, or ErrRoomExists with the existing
// room left untouched.
func (e *Engine) CreateRoom(params CreateParams, creator Participant) (string, error) {
	id := params.RoomID
	if id == "" {
		id = GenerateRoomCode()
	}
	visibility := VisibilityPublic
	if params.Private {
		visibility = VisibilityPrivate
	}
	if creator.Role == "" {
		creator.Role = RoleVoter
	}

	err := e.store.Create(id, func() *Room {
		r := New(id, visibility, Settings{AutoReveal: params.AutoReveal, CardScale: params.CardScale}, e.clock.Now())
		member := creator
		r.Participants[member.ID] = &member
		e.emitUsers(r)
		e.emitVotes(r)
		return r
	})
	if err != nil {
		return "", err
	}

	log.Info().Str("room_id", id).Str("visibility", string(visibility)).Msg("room created")
	e.notifyDirectory()
	return id, nil
}

// Join inserts p into the room, overwriting any prior entry for the same
// connection id so a re-join never duplicates a participant. Votes and the
// revealed flag are untouched. Mid-round joiners are brought up to date
// with the stored reveal order and cheater set, never a recomputed one.
func (e *Engine) Join(roomID string, p Participant) error {
	if p.Role == "" {
		p.Role = RoleVoter
	}
	err := e.store.Update(roomID, func(r *Room) error {
		member := p
		r.Participants[member.ID] = &member
		e.emitUsers(r)
		e.emitVotes(r)
		e.emitSettings(r)
		if r.Round.Revealed {
			e.emitRevealed(r)
			e.emitCheaters(r)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.notifyDirectory()
	return nil
}

// JoinOrCreate atomically joins roomID, creating it first if absent with
// visibility derived from params. Two concurrent callers for the same id
// serialize so exactly one room is created and both end up joined; neither
// sees ErrRoomExists. Reports whether this call created the room.
func (e *Engine) JoinOrCreate(roomID string, p Participant, params CreateParams) (bool, error) {
	if p.Role == "" {
		p.Role = RoleVoter
	}
	visibility := VisibilityPublic
	if params.Private {
		visibility = VisibilityPrivate
	}

	created, err := e.store.Upsert(roomID,
		func() *Room {
			r := New(roomID, visibility, Settings{AutoReveal: params.AutoReveal, CardScale: params.CardScale}, e.clock.Now())
			member := p
			r.Participants[member.ID] = &member
			e.emitUsers(r)
			e.emitVotes(r)
			return r
		},
		func(r *Room) error {
			member := p
			r.Participants[member.ID] = &member
			e.emitUsers(r)
			e.emitVotes(r)
			e.emitSettings(r)
			if r.Round.Revealed {
				e.emitRevealed(r)
				e.emitCheaters(r)
			}
			return nil
		})
	if err != nil {
		return false, err
	}
	if created {
		log.Info().Str("room_id", roomID).Str("visibility", string(visibility)).Msg("room created on join")
	}
	e.notifyDirectory()
	return created, nil
}

// Vote records value for participantID. A spectator or unknown participant
// is a silent no-op: no mutation, no broadcast. While the round is
// revealed, the cheater rule is evaluated against the prior value before it
// is overwritten; the new value is stored either way. The auto-reveal
// condition is re-checked afterwards.
func (e *Engine) Vote(roomID, participantID, value string) error {
	return e.store.Update(roomID, func(r *Room) error {
		p, ok := r.Participants[participantID]
		if !ok || p.Role == RoleSpectator {
			return nil
		}
		flagged := r.Round.RecordVote(participantID, value)
		e.emitVotes(r)
		if flagged {
			log.Debug().Str("room_id", roomID).Str("participant_id", participantID).Msg("post-reveal vote flagged")
			e.emitCheaters(r)
		}
		e.maybeAutoReveal(r)
		return nil
	})
}

// Reveal transitions the room to revealed: clears cheater flags, computes
// the reveal order once and broadcasts it. A repeat call without an
// intervening reset is a no-op, as is revealing with no votes.
func (e *Engine) Reveal(roomID string) error {
	return e.store.Update(roomID, func(r *Room) error {
		e.reveal(r)
		return nil
	})
}

// Reset clears votes, cheater flags and the reveal order and reopens the
// round. Idempotent.
func (e *Engine) Reset(roomID string) error {
	return e.store.Update(roomID, func(r *Room) error {
		e.reset(r)
		return nil
	})
}

// SetRole updates participantID's role. Switching to spectator discards
// that participant's vote and cheater flag in the same step, then
// re-checks auto-reveal: a voter stepping out can complete the voter set.
func (e *Engine) SetRole(roomID, participantID string, role Role) error {
	return e.store.Update(roomID, func(r *Room) error {
		p, ok := r.Participants[participantID]
		if !ok {
			return nil
		}
		p.Role = role
		if role == RoleSpectator {
			r.Round.DropParticipant(participantID)
		}
		e.emitUsers(r)
		e.emitVotes(r)
		if r.Round.Revealed {
			e.emitCheaters(r)
		}
		e.maybeAutoReveal(r)
		return nil
	})
}

// SetCardScale switches the room's deck and forfeits the in-flight round
// with a full reset in the same step, so votes cast under one scale never
// display against another.
func (e *Engine) SetCardScale(roomID string, scale CardScale) error {
	if !scale.Valid() {
		return nil
	}
	return e.store.Update(roomID, func(r *Room) error {
		r.Settings.CardScale = scale
		e.emitSettings(r)
		e.reset(r)
		return nil
	})
}

// SetAutoReveal updates the auto-reveal setting. Enabling it when the
// completion condition already holds reveals immediately through the same
// path as a manual reveal.
func (e *Engine) SetAutoReveal(roomID string, enabled bool) error {
	return e.store.Update(roomID, func(r *Room) error {
		r.Settings.AutoReveal = enabled
		e.emitSettings(r)
		if enabled {
			e.maybeAutoReveal(r)
		}
		return nil
	})
}

// Leave removes participantID along with its vote and cheater flag. The
// room is deleted in the same step when its participant set becomes empty,
// mid-round state included; otherwise updated membership and votes are
// broadcast. Unknown participants and rooms are tolerated so the
// disconnect path can apply it unconditionally.
func (e *Engine) Leave(roomID, participantID string) error {
	err := e.store.Update(roomID, func(r *Room) error {
		if _, ok := r.Participants[participantID]; !ok {
			return nil
		}
		delete(r.Participants, participantID)
		r.Round.DropParticipant(participantID)
		if len(r.Participants) > 0 {
			e.emitUsers(r)
			e.emitVotes(r)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.notifyDirectory()
	return nil
}

// reveal and reset are the single transition points for the round state;
// every path in or out of revealed goes through one of them, which is what
// keeps the cheaters-only-while-revealed invariant.

func (e *Engine) reveal(r *Room) {
	if r.Round.Revealed || len(r.Round.Votes) == 0 {
		return
	}
	r.Round.Revealed = true
	r.Round.Cheaters = make(map[string]struct{})
	r.Round.RevealOrder = e.sched.Order(r.Round.VotedIDs())
	e.emitRevealed(r)
	e.emitVotes(r)
}

func (e *Engine) reset(r *Room) {
	r.Round.Reset()
	e.sink.EmitRoom(r.ID, Event{Type: EventReset, RoomID: r.ID})
}

// maybeAutoReveal is a pure re-check of current state, safe to invoke
// redundantly: auto-reveal on, round open, at least one voter, every voter
// voted, votes non-empty.
func (e *Engine) maybeAutoReveal(r *Room) {
	if !r.Settings.AutoReveal || r.Round.Revealed {
		return
	}
	if r.VoterCount() == 0 || len(r.Round.Votes) == 0 {
		return
	}
	if !r.AllVotersVoted() {
		return
	}
	log.Debug().Str("room_id", r.ID).Msg("auto-reveal condition met")
	e.reveal(r)
}

func (e *Engine) emitUsers(r *Room) {
	e.sink.EmitRoom(r.ID, Event{
		Type:    EventUsersUpdated,
		RoomID:  r.ID,
		Payload: UsersUpdatedPayload{Participants: r.ParticipantList()},
	})
}

func (e *Engine) emitVotes(r *Room) {
	e.sink.EmitRoom(r.ID, Event{
		Type:    EventVotesUpdated,
		RoomID:  r.ID,
		Payload: VotesUpdatedPayload{Votes: r.Round.VoteSnapshot(), Revealed: r.Round.Revealed},
	})
}

func (e *Engine) emitRevealed(r *Room) {
	e.sink.EmitRoom(r.ID, Event{
		Type:    EventRevealed,
		RoomID:  r.ID,
		Payload: RevealedPayload{RevealOrder: r.Round.RevealOrder},
	})
}

func (e *Engine) emitCheaters(r *Room) {
	e.sink.EmitRoom(r.ID, Event{
		Type:    EventCheatersUpdated,
		RoomID:  r.ID,
		Payload: CheatersUpdatedPayload{Cheaters: r.Round.CheaterIDs()},
	})
}

func (e *Engine) emitSettings(r *Room) {
	e.sink.EmitRoom(r.ID, Event{
		Type:    EventRoomSettingsUpdated,
		RoomID:  r.ID,
		Payload: SettingsUpdatedPayload{AutoReveal: r.Settings.AutoReveal, CardScale: r.Settings.CardScale},
	})
}

func (e *Engine) notifyDirectory() {
	if e.dir != nil {
		e.dir.Notify()
	}
}
