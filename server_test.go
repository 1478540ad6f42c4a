package raft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServer_CallRejectsWhenNotLeader(t *testing.T) {
	server, err := NewServer("A", []string{"A", "B", "C"}, NewMemoryStore(NewEchoStateMachine()), newRecordingTransport(), NewFakeClock())
	require.NoError(t, err)
	require.NoError(t, server.Start())
	defer server.Stop()

	_, err = server.Call([]byte("cmd"))
	require.ErrorIs(t, err, ErrNotLeader)
}

func TestAwaitWithTimeout_ReturnsErrTimeoutWhenFutureNeverResolves(t *testing.T) {
	fut := newFuture()

	_, err := awaitWithTimeout(fut, 10*time.Millisecond)

	require.ErrorIs(t, err, ErrTimeout)
}

func TestAwaitWithTimeout_ReturnsResultBeforeDeadline(t *testing.T) {
	fut := newFuture()
	fut.deliver("ok", nil)

	value, err := awaitWithTimeout(fut, time.Second)

	require.NoError(t, err)
	require.Equal(t, "ok", value)
}
