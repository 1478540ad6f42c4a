package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFakeClock_LatestTracksMostRecentlyArmedTimer(t *testing.T) {
	clock := NewFakeClock()
	require.Nil(t, clock.Latest())

	first := clock.NewFollowerTimer()
	require.Equal(t, first, clock.Latest())

	second := clock.NewCandidateTimer()
	require.Equal(t, second, clock.Latest())
	require.Equal(t, 2, clock.Count())
}

func TestFakeTimer_FireIsNoOpAfterStop(t *testing.T) {
	clock := NewFakeClock()
	timer := clock.NewHeartbeatTimer()

	timer.Stop()
	timer.(*FakeTimer).Fire()

	select {
	case <-timer.C():
		t.Fatal("expected no notification after Stop")
	default:
	}
}

func TestFakeTimer_FireDeliversExactlyOnce(t *testing.T) {
	clock := NewFakeClock()
	timer := clock.NewHeartbeatTimer().(*FakeTimer)

	timer.Fire()
	timer.Fire()

	received := 0
	for {
		select {
		case <-timer.C():
			received++
		default:
			require.Equal(t, 1, received)
			return
		}
	}
}

func TestRealClock_CreatesStoppableElectionTimers(t *testing.T) {
	clock := NewRealClock(42)

	follower := clock.NewFollowerTimer()
	require.NotNil(t, follower)
	follower.Stop()

	candidate := clock.NewCandidateTimer()
	require.NotNil(t, candidate)
	candidate.Stop()
}
