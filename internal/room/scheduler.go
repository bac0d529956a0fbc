package room

import (
	"math/rand"
	"sync"
	"time"
)

const (
	// DefaultRevealStep is the gap between consecutive card flips.
	DefaultRevealStep = 250 * time.Millisecond
	// DefaultRevealJitter bounds the random offset added to each flip.
	DefaultRevealJitter = 150 * time.Millisecond
)

// RevealScheduler produces the synchronized reveal order for a round: a
// uniform random permutation of the participants with a recorded vote, each
// assigned a staggered delay. The order is computed once, server side, and
// distributed verbatim so every observer sees the same flip sequence.
type RevealScheduler struct {
	mu     sync.Mutex
	rng    *rand.Rand
	step   time.Duration
	jitter time.Duration
}

// NewRevealScheduler returns a scheduler seeded from the current time.
func NewRevealScheduler(step, jitter time.Duration) *RevealScheduler {
	return NewRevealSchedulerWithSource(step, jitter, rand.NewSource(time.Now().UnixNano()))
}

// NewRevealSchedulerWithSource returns a scheduler with an explicit random
// source, which makes reveal orders reproducible in tests.
func NewRevealSchedulerWithSource(step, jitter time.Duration, src rand.Source) *RevealScheduler {
	if step <= 0 {
		step = DefaultRevealStep
	}
	if jitter < 0 {
		jitter = DefaultRevealJitter
	}
	return &RevealScheduler{
		rng:    rand.New(src),
		step:   step,
		jitter: jitter,
	}
}

// Order shuffles ids (Fisher-Yates) and assigns position i the delay
// i*step plus a uniform jitter in [0, jitter). ids is taken over and
// mutated in place.
func (s *RevealScheduler) Order(ids []string) []RevealStep {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rng.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})

	steps := make([]RevealStep, len(ids))
	for i, id := range ids {
		delay := time.Duration(i) * s.step
		if s.jitter > 0 {
			delay += time.Duration(s.rng.Int63n(int64(s.jitter)))
		}
		steps[i] = RevealStep{
			ParticipantID: id,
			DelayMS:       int(delay / time.Millisecond),
		}
	}
	return steps
}
