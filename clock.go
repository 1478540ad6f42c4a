package raft

import (
	"sync"
	"time"

	"github.com/jsonraft/raftcore/internal/random"
)

// Timer represents a single armed state-timeout (§2, §5). The engine holds
// at most one live Timer at a time; arming a new one implicitly supersedes
// whatever was armed before.
type Timer interface {
	// C returns the channel the engine selects on for this timer's expiry.
	// It fires at most once.
	C() <-chan struct{}

	// Stop cancels the timer. It is safe to call even if the timer already
	// fired or was already stopped.
	Stop()
}

// Clock is the external collaborator that supplies randomized election
// timeouts and the fixed heartbeat tick (§2, §6.4). It never blocks the
// engine: creating a Timer only schedules a future notification.
type Clock interface {
	// NewFollowerTimer arms a randomized follower election timeout
	// (150 + rand(150) ms).
	NewFollowerTimer() Timer

	// NewCandidateTimer arms a randomized candidate election timeout
	// (15 + rand(15) ms).
	NewCandidateTimer() Timer

	// NewHeartbeatTimer arms the fixed leader heartbeat tick (75 ms).
	NewHeartbeatTimer() Timer
}

// realClock is the production Clock, backed by time.AfterFunc and a
// per-instance PRNG so concurrently running engines never share jitter.
type realClock struct {
	rnd *random.Source
}

// NewRealClock creates a Clock seeded with seed.
func NewRealClock(seed int64) Clock {
	return &realClock{rnd: random.NewSource(seed)}
}

type realTimer struct {
	t  *time.Timer
	ch chan struct{}
}

func newRealTimer(d time.Duration) *realTimer {
	ch := make(chan struct{}, 1)
	t := time.AfterFunc(d, func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	})
	return &realTimer{t: t, ch: ch}
}

func (r *realTimer) C() <-chan struct{} { return r.ch }
func (r *realTimer) Stop()              { r.t.Stop() }

func (c *realClock) NewFollowerTimer() Timer {
	return newRealTimer(c.rnd.Timeout(followerTimeoutMin, followerTimeoutMax))
}

func (c *realClock) NewCandidateTimer() Timer {
	return newRealTimer(c.rnd.Timeout(candidateTimeoutMin, candidateTimeoutMax))
}

func (c *realClock) NewHeartbeatTimer() Timer {
	return newRealTimer(heartbeatInterval)
}

// FakeClock is a scripted Clock for deterministic tests (§9 design note):
// it never fires a timer on its own. Tests retrieve the most recently armed
// Timer and fire it explicitly to drive the engine through a timeout.
type FakeClock struct {
	mu     sync.Mutex
	timers []*FakeTimer
}

// FakeTimer is the Timer produced by FakeClock.
type FakeTimer struct {
	ch      chan struct{}
	stopped bool
}

func (t *FakeTimer) C() <-chan struct{} { return t.ch }

func (t *FakeTimer) Stop() { t.stopped = true }

// Fire simulates expiry of this timer. It is a no-op if the timer was
// already stopped, matching a real timer's behavior under a race with Stop.
func (t *FakeTimer) Fire() {
	if t.stopped {
		return
	}
	select {
	case t.ch <- struct{}{}:
	default:
	}
}

// NewFakeClock creates a FakeClock.
func NewFakeClock() *FakeClock {
	return &FakeClock{}
}

func (c *FakeClock) newTimer() *FakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &FakeTimer{ch: make(chan struct{}, 1)}
	c.timers = append(c.timers, t)
	return t
}

func (c *FakeClock) NewFollowerTimer() Timer  { return c.newTimer() }
func (c *FakeClock) NewCandidateTimer() Timer { return c.newTimer() }
func (c *FakeClock) NewHeartbeatTimer() Timer { return c.newTimer() }

// Count returns how many timers have been armed on this clock so far.
func (c *FakeClock) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Latest returns the most recently armed timer, or nil if none was armed yet.
func (c *FakeClock) Latest() *FakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}
