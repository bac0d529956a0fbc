package room

import "sort"

// RevealStep is one position in a round's reveal order: which participant's
// card flips, and how long after the reveal event it should flip. Delays are
// absolute offsets from the reveal, not gaps between steps.
type RevealStep struct {
	ParticipantID string `json:"participant_id"`
	DelayMS       int    `json:"delay_ms"`
}

// VoteRound is the state between a reset and the next reveal or reset. Votes
// exist only for participants who cast one this round; Cheaters is populated
// only while the round is revealed; RevealOrder is computed exactly once per
// open-to-revealed transition.
type VoteRound struct {
	Revealed    bool
	Votes       map[string]string
	Cheaters    map[string]struct{}
	RevealOrder []RevealStep
}

func newVoteRound() VoteRound {
	return VoteRound{
		Votes:    make(map[string]string),
		Cheaters: make(map[string]struct{}),
	}
}

// RecordVote stores value as id's vote and reports whether the submission
// counts as tampering. While the round is revealed, a brand-new vote or a
// changed value flags the participant; resubmitting the identical value does
// not. The new value is always stored regardless of the flag outcome.
func (r *VoteRound) RecordVote(id, value string) bool {
	flagged := false
	if r.Revealed {
		prev, had := r.Votes[id]
		if !had || prev != value {
			r.Cheaters[id] = struct{}{}
			flagged = true
		}
	}
	r.Votes[id] = value
	return flagged
}

// DropParticipant removes id's vote and cheater flag in one step. Used when
// a participant leaves or switches to spectator.
func (r *VoteRound) DropParticipant(id string) {
	delete(r.Votes, id)
	delete(r.Cheaters, id)
}

// Reset returns the round to a fresh open state.
func (r *VoteRound) Reset() {
	*r = newVoteRound()
}

// VotedIDs returns the ids with a recorded vote, sorted so the reveal
// scheduler shuffles from a deterministic base rather than map order.
func (r *VoteRound) VotedIDs() []string {
	ids := make([]string, 0, len(r.Votes))
	for id := range r.Votes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CheaterIDs returns the flagged ids in sorted order.
func (r *VoteRound) CheaterIDs() []string {
	ids := make([]string, 0, len(r.Cheaters))
	for id := range r.Cheaters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// VoteSnapshot returns a copy of the vote map safe to hand to a broadcast
// payload after the room lock is released.
func (r *VoteRound) VoteSnapshot() map[string]string {
	out := make(map[string]string, len(r.Votes))
	for id, v := range r.Votes {
		out[id] = v
	}
	return out
}
