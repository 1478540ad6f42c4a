package raft

// RequestVoteRequest is invoked by candidates to gather votes (§6.2).
type RequestVoteRequest struct {
	Term         uint64
	Source       string
	LastLogIndex uint64
	LastLogTerm  uint64
}

// RequestVoteResponse is the reply to a RequestVoteRequest.
type RequestVoteResponse struct {
	Term        uint64
	Source      string
	VoteGranted bool
}

// AppendEntriesRequest is invoked by the leader to replicate log entries and
// doubles as a heartbeat when Entries is empty (§6.2).
type AppendEntriesRequest struct {
	Term         uint64
	Source       string
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []LogEntry
	CommitIndex  uint64
}

// AppendEntriesResponse is the reply to an AppendEntriesRequest.
type AppendEntriesResponse struct {
	Term       uint64
	Source     string
	Success    bool
	MatchIndex uint64
}
