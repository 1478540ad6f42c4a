package raft

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by Store.Lookup when the requested index does not
// exist in the log.
var ErrNotFound = errors.New("raftcore: log entry not found")

// PersistentState is the subset of a server's state that must survive a
// restart: the current term and the candidate voted for in that term.
type PersistentState struct {
	Term     uint64
	VotedFor string
}

// StateMachine is the deterministic, user-supplied machine that committed
// log entries are applied to. Apply must be deterministic given the same
// sequence of values on every server.
type StateMachine interface {
	Apply(value []byte) interface{}
}

// Store is the durable collaborator that owns the replicated log, the
// persistent metadata (term, votedFor), and the user state machine. The
// engine treats every method here as a synchronous suspension point (§5):
// while a call is in flight, the engine dequeues no further events.
//
// Store is the only permitted source of blocking I/O for the engine. An
// error from any method other than Apply is fatal to the engine
// (StoreFailure, §7); Apply has no error return of its own, since a
// state-machine-level rejection is reported through its result, not as a
// Store failure.
type Store interface {
	// Last returns the index and term of the last log entry, or (0, 0) if
	// the log is empty.
	Last() (index uint64, term uint64)

	// Lookup returns the term and value stored at index, or ErrNotFound.
	Lookup(index uint64) (term uint64, value []byte, err error)

	// Range returns up to max entries starting at fromIndex, in index order.
	// It may return fewer than max entries if the log is shorter.
	Range(fromIndex uint64, max int) ([]LogEntry, error)

	// Append appends entries contiguously after Last().index and returns the
	// index assigned to the first appended entry.
	Append(entries []LogEntry) (firstIndex uint64, err error)

	// Truncate discards every entry with index > keepUpTo. It is idempotent.
	Truncate(keepUpTo uint64) error

	// Apply hands value to the user state machine and returns its result.
	// A rejection by the state machine itself (e.g. an out-of-order
	// update) is not a Store error: it is reported through result, the
	// same way a successful application is, and delivered to whichever
	// client is waiting on it.
	Apply(value []byte) (result interface{})

	// SaveState durably persists state before returning.
	SaveState(state PersistentState) error

	// LoadState returns the persistent state saved by the most recent
	// SaveState call, or the zero value if none was ever saved.
	LoadState() (PersistentState, error)
}

// MemoryStore is an in-memory reference implementation of Store. It is
// sufficient for tests and for embedding the engine directly in a process
// that does its own durability out of band; a production deployment that
// needs entries to survive a restart supplies its own Store (persistence
// format is explicitly out of scope for the engine, per spec Non-goals).
type MemoryStore struct {
	mu      sync.Mutex
	entries []LogEntry // 1-based: entries[0] is index 1
	state   PersistentState
	fsm     StateMachine
}

// NewMemoryStore creates a Store backed by an in-memory log and the
// provided state machine.
func NewMemoryStore(fsm StateMachine) *MemoryStore {
	return &MemoryStore{fsm: fsm}
}

func (m *MemoryStore) Last() (uint64, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLocked()
}

func (m *MemoryStore) lastLocked() (uint64, uint64) {
	if len(m.entries) == 0 {
		return 0, 0
	}
	idx := uint64(len(m.entries))
	return idx, m.entries[idx-1].Term
}

func (m *MemoryStore) Lookup(index uint64) (uint64, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index == 0 || index > uint64(len(m.entries)) {
		return 0, nil, ErrNotFound
	}
	e := m.entries[index-1]
	return e.Term, e.Value, nil
}

func (m *MemoryStore) Range(fromIndex uint64, max int) ([]LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fromIndex == 0 || fromIndex > uint64(len(m.entries)) {
		return nil, nil
	}
	end := fromIndex - 1 + uint64(max)
	if end > uint64(len(m.entries)) {
		end = uint64(len(m.entries))
	}
	out := make([]LogEntry, end-(fromIndex-1))
	copy(out, m.entries[fromIndex-1:end])
	return out, nil
}

func (m *MemoryStore) Append(entries []LogEntry) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	first := uint64(len(m.entries)) + 1
	m.entries = append(m.entries, entries...)
	return first, nil
}

func (m *MemoryStore) Truncate(keepUpTo uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if keepUpTo >= uint64(len(m.entries)) {
		return nil
	}
	m.entries = m.entries[:keepUpTo]
	return nil
}

func (m *MemoryStore) Apply(value []byte) interface{} {
	// The state machine is applied without holding the store's own lock:
	// the engine is already single-threaded, and Apply must never be
	// called concurrently with itself, but holding the lock here would
	// serialize Apply against unrelated Lookup/Range calls for no reason.
	return m.fsm.Apply(value)
}

func (m *MemoryStore) SaveState(state PersistentState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	return nil
}

func (m *MemoryStore) LoadState() (PersistentState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}
