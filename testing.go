package raft

import "sync"

// FakeNetwork is a shared in-memory network for exercising several engines
// in one test process. Each engine gets its own FakeTransport view via
// View, so Cast carries a real notion of "from" for Partition/Heal.
type FakeNetwork struct {
	mu          sync.Mutex
	handlers    map[string]func(interface{})
	partitioned map[string]bool
}

// NewFakeNetwork creates an empty FakeNetwork.
func NewFakeNetwork() *FakeNetwork {
	return &FakeNetwork{
		handlers:    map[string]func(interface{}){},
		partitioned: map[string]bool{},
	}
}

// View returns the Transport that self should construct its engine with.
func (n *FakeNetwork) View(self string) *FakeTransport {
	return &FakeTransport{net: n, self: self}
}

// Partition makes every cast to or from id vanish, modeling a network
// partition cutting id off from the rest of the cohort.
func (n *FakeNetwork) Partition(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.partitioned[id] = true
}

// Heal reverses a prior Partition.
func (n *FakeNetwork) Heal(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.partitioned, id)
}

// FakeTransport is one node's view of a FakeNetwork.
type FakeTransport struct {
	net  *FakeNetwork
	self string
}

func (t *FakeTransport) Register(self string, handler func(interface{})) {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	t.net.handlers[self] = handler
}

func (t *FakeTransport) Run() error      { return nil }
func (t *FakeTransport) Shutdown() error { return nil }

// Cast delivers message to peer on its own goroutine, unless either side is
// partitioned or no handler was ever registered for peer.
func (t *FakeTransport) Cast(peer string, message interface{}) {
	t.net.mu.Lock()
	handler, ok := t.net.handlers[peer]
	blocked := t.net.partitioned[t.self] || t.net.partitioned[peer]
	t.net.mu.Unlock()
	if !ok || blocked {
		return
	}
	go handler(message)
}

// EchoStateMachine is a minimal StateMachine for tests: it returns the
// value it was given, letting tests assert on what actually got applied
// without needing a real command-interpreting state machine.
type EchoStateMachine struct {
	mu      sync.Mutex
	applied [][]byte
}

func NewEchoStateMachine() *EchoStateMachine {
	return &EchoStateMachine{}
}

func (s *EchoStateMachine) Apply(value []byte) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, value)
	return value
}

// Applied returns every value handed to Apply so far, in order.
func (s *EchoStateMachine) Applied() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.applied))
	copy(out, s.applied)
	return out
}

// FailingStore wraps a Store and returns Err from Append and SaveState
// regardless of what the wrapped Store would have done, for tests that
// need to drive the engine into StoreFailure (§3, §7).
type FailingStore struct {
	Store
	Err error
}

func (s *FailingStore) Append(entries []LogEntry) (uint64, error) { return 0, s.Err }

func (s *FailingStore) SaveState(state PersistentState) error { return s.Err }
