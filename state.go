package raft

// State is the role a server currently occupies.
type State uint32

const (
	Follower State = iota
	Candidate
	Leader
)

func (s State) String() string {
	switch s {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		panic("invalid state")
	}
}

// candidateState holds the fields that only exist while a server is a
// candidate (§3). It is nil whenever role != Candidate, which is what makes
// I6 (at most one leader per term) enforceable by construction rather than
// by convention: leader-only state simply does not exist on a follower or
// candidate.
type candidateState struct {
	// votesGranted is the set of peers (including self) that have granted
	// a vote in the current term.
	votesGranted map[string]bool
}

// leaderState holds the fields that only exist while a server is the
// leader (§3).
type leaderState struct {
	// nextIndex[p] is the index of the next log entry to send to peer p.
	nextIndex map[string]uint64

	// matchIndex[p] is the highest log index known replicated on peer p.
	matchIndex map[string]uint64

	// froms maps a pending client operation's log index to the reply
	// handle that is waiting on it. Owned by the leader variant: it is
	// drained with ErrDeposed the moment this server stops being leader.
	froms map[uint64]*future
}
