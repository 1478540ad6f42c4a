package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AppendAndLookup(t *testing.T) {
	store := NewMemoryStore(NewEchoStateMachine())

	first, err := store.Append([]LogEntry{{Term: 1, Value: []byte("a")}, {Term: 1, Value: []byte("b")}})
	require.NoError(t, err)
	require.Equal(t, uint64(1), first)

	term, value, err := store.Lookup(2)
	require.NoError(t, err)
	require.Equal(t, uint64(1), term)
	require.Equal(t, []byte("b"), value)

	index, term := store.Last()
	require.Equal(t, uint64(2), index)
	require.Equal(t, uint64(1), term)
}

func TestMemoryStore_LookupMissingReturnsErrNotFound(t *testing.T) {
	store := NewMemoryStore(NewEchoStateMachine())

	_, _, err := store.Lookup(1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_RangeClampsToLogLength(t *testing.T) {
	store := NewMemoryStore(NewEchoStateMachine())
	_, err := store.Append([]LogEntry{
		{Term: 1, Value: []byte("a")},
		{Term: 1, Value: []byte("b")},
		{Term: 2, Value: []byte("c")},
	})
	require.NoError(t, err)

	entries, err := store.Range(2, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, []byte("b"), entries[0].Value)
	require.Equal(t, []byte("c"), entries[1].Value)
}

func TestMemoryStore_TruncateDiscardsSuffix(t *testing.T) {
	store := NewMemoryStore(NewEchoStateMachine())
	_, err := store.Append([]LogEntry{
		{Term: 1, Value: []byte("a")},
		{Term: 1, Value: []byte("b")},
		{Term: 1, Value: []byte("c")},
	})
	require.NoError(t, err)

	require.NoError(t, store.Truncate(1))

	index, _ := store.Last()
	require.Equal(t, uint64(1), index)
	_, _, err = store.Lookup(2)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_TruncateToZeroEmptiesLog(t *testing.T) {
	store := NewMemoryStore(NewEchoStateMachine())
	_, err := store.Append([]LogEntry{{Term: 1, Value: []byte("a")}})
	require.NoError(t, err)

	require.NoError(t, store.Truncate(0))

	index, term := store.Last()
	require.Equal(t, uint64(0), index)
	require.Equal(t, uint64(0), term)
}

func TestMemoryStore_ApplyDelegatesToStateMachine(t *testing.T) {
	fsm := NewEchoStateMachine()
	store := NewMemoryStore(fsm)

	result := store.Apply([]byte("cmd"))
	require.Equal(t, []byte("cmd"), result)
	require.Equal(t, [][]byte{[]byte("cmd")}, fsm.Applied())
}

// TestDocumentStateMachine_OutOfOrderUpdateRejectedWithoutError exercises §8
// scenario 6 directly against the store adapter contract: a stale update is
// rejected via the returned result, and Store.Apply never returns an error
// for it.
func TestDocumentStateMachine_OutOfOrderUpdateRejectedWithoutError(t *testing.T) {
	fsm := NewDocumentStateMachine()
	store := NewMemoryStore(fsm)

	fresh, err := EncodeDocumentUpdate(DocumentUpdate{Key: "doc", Seq: 5, Value: []byte("v5")})
	require.NoError(t, err)
	result := store.Apply(fresh)
	require.Equal(t, DocumentUpdateResult{}, result)

	stale, err := EncodeDocumentUpdate(DocumentUpdate{Key: "doc", Seq: 3, Value: []byte("v3")})
	require.NoError(t, err)
	result = store.Apply(stale)
	require.Equal(t, DocumentUpdateResult{Err: ErrUpdatesOutOfOrder}, result)

	v, ok := fsm.Get("doc")
	require.True(t, ok)
	require.Equal(t, []byte("v5"), v, "the rejected stale update must not overwrite the previously applied value")
}

func TestMemoryStore_SaveAndLoadStateRoundTrip(t *testing.T) {
	store := NewMemoryStore(NewEchoStateMachine())

	require.NoError(t, store.SaveState(PersistentState{Term: 4, VotedFor: "B"}))

	state, err := store.LoadState()
	require.NoError(t, err)
	require.Equal(t, PersistentState{Term: 4, VotedFor: "B"}, state)
}
