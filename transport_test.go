package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelope_RoundTripsEveryMessageType(t *testing.T) {
	cases := []interface{}{
		&RequestVoteRequest{Term: 1, Source: "A", LastLogIndex: 3, LastLogTerm: 1},
		&RequestVoteResponse{Term: 1, Source: "B", VoteGranted: true},
		&AppendEntriesRequest{Term: 2, Source: "A", PrevLogIndex: 3, PrevLogTerm: 1, Entries: []LogEntry{{Term: 2, Value: []byte("v")}}, CommitIndex: 2},
		&AppendEntriesResponse{Term: 2, Source: "B", Success: true, MatchIndex: 4},
	}

	for _, want := range cases {
		data, err := encodeEnvelope(want)
		require.NoError(t, err)

		got, err := decodeEnvelope(data)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestFakeNetwork_PartitionBlocksDeliveryBothWays(t *testing.T) {
	net := NewFakeNetwork()
	received := make(chan interface{}, 1)

	a := net.View("A")
	b := net.View("B")
	b.Register("B", func(m interface{}) { received <- m })

	net.Partition("A")
	a.Cast("B", &RequestVoteRequest{Term: 1, Source: "A"})

	select {
	case <-received:
		t.Fatal("expected no delivery while partitioned")
	default:
	}

	net.Heal("A")
	a.Cast("B", &RequestVoteRequest{Term: 1, Source: "A"})

	msg := <-received
	req, ok := msg.(*RequestVoteRequest)
	require.True(t, ok)
	require.Equal(t, "A", req.Source)
}
