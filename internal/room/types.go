package room

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Visibility controls whether a room is listed in the public directory.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Role determines how a participant takes part in a round. Only voters
// contribute to votes, completion checks and cheater detection.
type Role string

const (
	RoleVoter     Role = "voter"
	RoleSpectator Role = "spectator"
)

// CardScale identifies the deck a room estimates with.
type CardScale string

const (
	ScaleNumeric CardScale = "numeric"
	ScaleTShirt  CardScale = "tshirt"
)

// Valid reports whether s is a known card scale.
func (s CardScale) Valid() bool {
	return s == ScaleNumeric || s == ScaleTShirt
}

// Settings holds the per-room options any participant may change.
type Settings struct {
	AutoReveal bool      `json:"auto_reveal"`
	CardScale  CardScale `json:"card_scale"`
}

// Participant is a connection attached to a room. ID is the connection
// identity and is unique within the room; display names are not.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Room is an isolated estimation session: its participant set, its settings
// and the current vote round. All fields are guarded by the store's per-room
// lock; nothing outside a store callback may touch them.
type Room struct {
	ID           string
	Visibility   Visibility
	Settings     Settings
	Participants map[string]*Participant
	Round        VoteRound
	CreatedAt    time.Time
}

// New returns an empty room. Callers are expected to insert at least one
// participant before the room becomes visible to the store, since a room
// without participants is deleted on its next mutation.
func New(id string, visibility Visibility, settings Settings, now time.Time) *Room {
	if !settings.CardScale.Valid() {
		settings.CardScale = ScaleNumeric
	}
	return &Room{
		ID:           id,
		Visibility:   visibility,
		Settings:     settings,
		Participants: make(map[string]*Participant),
		Round:        newVoteRound(),
		CreatedAt:    now,
	}
}

// ParticipantList returns the participants ordered by id so that every
// recipient of a users-updated broadcast sees the same sequence.
func (r *Room) ParticipantList() []Participant {
	out := make([]Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// VoterCount returns the number of voter-role participants.
func (r *Room) VoterCount() int {
	n := 0
	for _, p := range r.Participants {
		if p.Role == RoleVoter {
			n++
		}
	}
	return n
}

// AllVotersVoted reports whether every voter-role participant has a recorded
// vote. Vacuously true when the room has no voters.
func (r *Room) AllVotersVoted() bool {
	for _, p := range r.Participants {
		if p.Role != RoleVoter {
			continue
		}
		if _, ok := r.Round.Votes[p.ID]; !ok {
			return false
		}
	}
	return true
}

// GenerateRoomCode returns a short, uppercase room code for rooms created
// without an explicit id.
func GenerateRoomCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}
