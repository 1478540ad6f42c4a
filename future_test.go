package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFuture_AwaitReturnsValueDeliveredFromAnotherGoroutine(t *testing.T) {
	fut := newFuture()
	done := make(chan struct{})

	go func() {
		fut.deliver("result", nil)
		close(done)
	}()
	<-done

	value, err := fut.Await()
	require.NoError(t, err)
	require.Equal(t, "result", value)
}

func TestFuture_AwaitIsIdempotent(t *testing.T) {
	fut := newFuture()
	fut.deliver(nil, ErrDeposed)

	_, err1 := fut.Await()
	_, err2 := fut.Await()

	require.ErrorIs(t, err1, ErrDeposed)
	require.ErrorIs(t, err2, ErrDeposed)
}
