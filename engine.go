// Package raft implements the replicated log core of a single-leader
// consensus cluster: role transitions, leader election, log replication,
// and commit-index advancement, driven entirely off one serialized event
// queue per server (§5).
package raft

import (
	"fmt"
	"sort"

	"github.com/jsonraft/raftcore/internal/errors"
	"github.com/jsonraft/raftcore/internal/logger"
	"github.com/jsonraft/raftcore/internal/numeric"
)

// clientCallEvent carries a client-submitted operation into the engine's
// event queue (§4.6).
type clientCallEvent struct {
	value  []byte
	future *future
}

// statusQuery is how external callers read engine state without racing the
// event loop: the query is itself an event, answered from inside the loop.
type statusQuery struct {
	respCh chan Status
}

// Status is a point-in-time snapshot of the engine's volatile state.
type Status struct {
	ID          string
	Role        State
	Term        uint64
	VotedFor    string
	CommitIndex uint64
	LastApplied uint64
}

// Engine is one server's consensus state machine. It owns no network
// sockets and no disk files directly; all I/O goes through the Store and
// Transport it was constructed with. An Engine is driven by exactly one
// goroutine (run), which is the only goroutine that ever changes its
// unexported fields. ID and Err read id and err directly; every other method
// communicates with that goroutine over a channel.
type Engine struct {
	id     string
	cohort []string

	store     Store
	transport Transport
	clock     Clock
	log       *logger.Logger

	// Persistent state (§3). Mutations go through setTerm/setVotedFor and
	// are flushed to the Store by persistBarrier before any handler that
	// changed them sends a message or replies to a client (§4.1).
	term     uint64
	votedFor string
	dirty    bool

	// Volatile state (§3).
	role        State
	commitIndex uint64
	lastApplied uint64

	candidate *candidateState
	leader    *leaderState

	timer Timer

	eventCh chan interface{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	err     error
}

// NewEngine constructs an Engine for id among cohort (which must include
// id). The engine does not start running until Start is called.
func NewEngine(id string, cohort []string, store Store, transport Transport, clock Clock, opts ...Option) (*Engine, error) {
	state, err := store.LoadState()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load persistent state for %s", id)
	}

	e := &Engine{
		id:        id,
		cohort:    cohort,
		store:     store,
		transport: transport,
		clock:     clock,
		term:      state.Term,
		votedFor:  state.VotedFor,
		eventCh:   make(chan interface{}, 256),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.log == nil {
		e.log, _ = logger.New()
	}

	transport.Register(id, e.receive)
	return e, nil
}

// ID returns the engine's own identity.
func (e *Engine) ID() string { return e.id }

// Start runs the engine's event loop on a new goroutine.
func (e *Engine) Start() {
	go e.run()
}

// Stop requests the engine to shut down and waits for its event loop to
// exit. It is safe to call more than once.
func (e *Engine) Stop() {
	select {
	case <-e.stopCh:
	default:
		close(e.stopCh)
	}
	<-e.doneCh
}

// Status returns a snapshot of the engine's current state, serialized
// through the same event queue as everything else so it never races a
// concurrent handler.
func (e *Engine) Status() Status {
	respCh := make(chan Status, 1)
	select {
	case e.eventCh <- statusQuery{respCh: respCh}:
	case <-e.doneCh:
		return Status{ID: e.id}
	}
	select {
	case s := <-respCh:
		return s
	case <-e.doneCh:
		return Status{ID: e.id}
	}
}

// Submit enqueues a client operation and returns immediately with a
// Future for its eventual result (§4.6, §6.3). Submit itself never blocks
// on consensus; only Future.Await does.
func (e *Engine) Submit(value []byte) Future {
	fut := newFuture()
	select {
	case <-e.doneCh:
		fut.deliver(nil, ErrStopped)
		return fut
	default:
	}
	select {
	case e.eventCh <- clientCallEvent{value: value, future: fut}:
	case <-e.doneCh:
		fut.deliver(nil, ErrStopped)
	}
	return fut
}

// receive is the handler Transport.Register hands to the transport; it is
// called from whatever goroutine the transport uses to deliver a message.
func (e *Engine) receive(message interface{}) {
	select {
	case e.eventCh <- message:
	case <-e.doneCh:
	}
}

func (e *Engine) run() {
	defer close(e.doneCh)
	e.transitionTo(Follower)

	for {
		var timerC <-chan struct{}
		if e.timer != nil {
			timerC = e.timer.C()
		}

		select {
		case <-e.stopCh:
			return
		case <-timerC:
			e.onTimerExpiry()
		case ev := <-e.eventCh:
			e.dispatch(ev)
		}

		if e.err != nil {
			return
		}
	}
}

func (e *Engine) dispatch(ev interface{}) {
	switch m := ev.(type) {
	case *RequestVoteRequest:
		e.onRequestVoteRequest(m)
	case *RequestVoteResponse:
		e.onRequestVoteResponse(m)
	case *AppendEntriesRequest:
		e.onAppendEntriesRequest(m)
	case *AppendEntriesResponse:
		e.onAppendEntriesResponse(m)
	case clientCallEvent:
		e.onClientCall(m.value, m.future)
	case statusQuery:
		m.respCh <- Status{
			ID:          e.id,
			Role:        e.role,
			Term:        e.term,
			VotedFor:    e.votedFor,
			CommitIndex: e.commitIndex,
			LastApplied: e.lastApplied,
		}
	default:
		e.fail(errors.New(fmt.Sprintf("raftcore: unknown event type %T", ev)))
	}
}

// fail stops the engine after an unrecoverable Store error (§7,
// StoreFailure). The run loop observes e.err and exits after the current
// dispatch returns.
func (e *Engine) fail(err error) {
	if e.err != nil {
		return
	}
	e.err = err
	e.log.Errorf("%s: stopping after unrecoverable error: %v", e.id, err)
}

// Err returns the error that stopped the engine, if it stopped because of
// one rather than an explicit Stop call.
func (e *Engine) Err() error { return e.err }

func (e *Engine) armTimer(t Timer) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = t
}

func (e *Engine) setTerm(term uint64) {
	if term != e.term {
		e.term = term
		e.dirty = true
	}
}

func (e *Engine) setVotedFor(votedFor string) {
	if votedFor != e.votedFor {
		e.votedFor = votedFor
		e.dirty = true
	}
}

// persistBarrier funnels every persistent-field mutation through one call
// to Store.SaveState before the handler that made the mutation is allowed
// to send a message or reply to a client (§4.1). A Store failure here is
// fatal to the engine.
func (e *Engine) persistBarrier() {
	if !e.dirty {
		return
	}
	if err := e.store.SaveState(PersistentState{Term: e.term, VotedFor: e.votedFor}); err != nil {
		e.fail(errors.Wrap(err, "%s: failed to persist term=%d votedFor=%q", e.id, e.term, e.votedFor))
		return
	}
	e.dirty = false
}

func (e *Engine) majority() int {
	return len(e.cohort)/2 + 1
}

// checkTerm applies the universal term-precedence rule (§4.1): any inbound
// message carrying a term greater than currentTerm deposes this server to
// follower in that term before the message is processed further. It
// returns true when a step-down happened, in which case the caller must
// re-dispatch the very same message so it is handled under the new state.
func (e *Engine) checkTerm(msgTerm uint64) bool {
	if msgTerm <= e.term {
		return false
	}
	e.setTerm(msgTerm)
	e.setVotedFor("")
	e.persistBarrier()
	if e.err != nil {
		return true
	}
	e.transitionTo(Follower)
	return true
}

func (e *Engine) transitionTo(role State) {
	switch role {
	case Follower:
		e.enterFollower()
	case Candidate:
		e.enterCandidate()
	case Leader:
		e.enterLeader()
	default:
		panic("raftcore: invalid role transition")
	}
}

// enterFollower is the role-entry handler for follower (§4.2). It clears
// votedFor unconditionally, matching the specified behavior even when the
// transition did not come from a term advance; see DESIGN.md for why this
// is preserved literally rather than "corrected" to only clear on a term
// change.
func (e *Engine) enterFollower() {
	e.role = Follower
	e.candidate = nil
	if e.leader != nil {
		for idx, fut := range e.leader.froms {
			fut.deliver(nil, ErrDeposed)
			delete(e.leader.froms, idx)
		}
		e.leader = nil
	}
	e.setVotedFor("")
	e.persistBarrier()
	if e.err != nil {
		return
	}
	e.armTimer(e.clock.NewFollowerTimer())
}

// enterCandidate is the role-entry handler for candidate (§4.2): it begins
// a new election and arms the candidate timeout.
func (e *Engine) enterCandidate() {
	e.role = Candidate
	e.leader = nil
	e.startElection()
	if e.err != nil {
		return
	}
	e.armTimer(e.clock.NewCandidateTimer())
}

// startElection runs the election-start procedure (§4.4): it fires both on
// the follower-to-candidate transition and on every candidate timeout.
func (e *Engine) startElection() {
	e.setTerm(e.term + 1)
	e.setVotedFor(e.id)
	e.candidate = &candidateState{votesGranted: map[string]bool{e.id: true}}
	e.persistBarrier()
	if e.err != nil {
		return
	}

	lastIndex, lastTerm := e.store.Last()
	req := &RequestVoteRequest{
		Term:         e.term,
		Source:       e.id,
		LastLogIndex: lastIndex,
		LastLogTerm:  lastTerm,
	}
	for _, peer := range e.cohort {
		if peer == e.id {
			continue
		}
		e.transport.Cast(peer, req)
	}
}

// enterLeader is the role-entry handler for leader (§4.2): it initializes
// per-peer replication bookkeeping and arms the heartbeat tick. It does
// not send anything immediately; the first AppendEntries goes out on the
// first heartbeat tick, per §4.5.
func (e *Engine) enterLeader() {
	e.role = Leader
	e.candidate = nil

	lastIndex, _ := e.store.Last()
	ls := &leaderState{
		nextIndex:  map[string]uint64{},
		matchIndex: map[string]uint64{},
		froms:      map[uint64]*future{},
	}
	for _, peer := range e.cohort {
		if peer == e.id {
			continue
		}
		ls.nextIndex[peer] = lastIndex + 1
		ls.matchIndex[peer] = 0
	}
	e.leader = ls
	e.armTimer(e.clock.NewHeartbeatTimer())
}

func (e *Engine) onTimerExpiry() {
	switch e.role {
	case Follower:
		e.transitionTo(Candidate)
	case Candidate:
		e.startElection()
		if e.err != nil {
			return
		}
		e.armTimer(e.clock.NewCandidateTimer())
	case Leader:
		e.onHeartbeatTick()
		if e.err != nil {
			return
		}
		e.armTimer(e.clock.NewHeartbeatTimer())
	}
}

// onRequestVoteRequest implements the vote-granting decision (§4.4).
func (e *Engine) onRequestVoteRequest(req *RequestVoteRequest) {
	if e.checkTerm(req.Term) {
		if e.err != nil {
			return
		}
		e.onRequestVoteRequest(req)
		return
	}

	granted := false
	if req.Term == e.term {
		lastIndex, lastTerm := e.store.Last()
		logOk := req.LastLogTerm > lastTerm ||
			(req.LastLogTerm == lastTerm && req.LastLogIndex >= lastIndex)
		if logOk && (e.votedFor == "" || e.votedFor == req.Source) {
			e.setVotedFor(req.Source)
			e.persistBarrier()
			if e.err != nil {
				return
			}
			granted = true
			e.armTimer(e.clock.NewFollowerTimer())
		}
	}

	e.transport.Cast(req.Source, &RequestVoteResponse{
		Term:        e.term,
		Source:      e.id,
		VoteGranted: granted,
	})
}

// onRequestVoteResponse counts a granted vote toward the current election
// and promotes this server to leader once a majority is reached (§4.4).
func (e *Engine) onRequestVoteResponse(resp *RequestVoteResponse) {
	if e.checkTerm(resp.Term) {
		return
	}
	if e.role != Candidate || resp.Term != e.term || !resp.VoteGranted {
		return
	}
	e.candidate.votesGranted[resp.Source] = true
	if len(e.candidate.votesGranted) >= e.majority() {
		e.transitionTo(Leader)
	}
}

// logOk reports whether this server's log holds an entry at prevIndex whose
// term is prevTerm (always true for prevIndex 0), as an AppendEntries sender
// requires (§4.3).
func (e *Engine) logOk(prevIndex, prevTerm uint64) bool {
	if prevIndex == 0 {
		return true
	}
	lastIndex, _ := e.store.Last()
	if prevIndex > lastIndex {
		return false
	}
	term, _, err := e.store.Lookup(prevIndex)
	if err != nil {
		e.fail(errors.Wrap(err, "%s: lookup at index %d", e.id, prevIndex))
		return false
	}
	return term == prevTerm
}

// termAt returns the term of the entry at index, or 0 if index is 0. A
// Lookup error is fatal to the engine, same as logOk above (§7).
func (e *Engine) termAt(index uint64) uint64 {
	if index == 0 {
		return 0
	}
	term, _, err := e.store.Lookup(index)
	if err != nil {
		e.fail(errors.Wrap(err, "%s: lookup at index %d", e.id, index))
		return 0
	}
	return term
}

// onAppendEntriesRequest implements the AppendEntries decision table
// (§4.3). Several branches re-dispatch the same request once this
// server's own state has changed (step-down, truncate, append): this
// mirrors the specified behavior of processing the request again under
// the new state rather than duplicating the remaining branches inline.
func (e *Engine) onAppendEntriesRequest(req *AppendEntriesRequest) {
	if e.checkTerm(req.Term) {
		if e.err != nil {
			return
		}
		e.onAppendEntriesRequest(req)
		return
	}

	if req.Term < e.term {
		e.replyAppendEntries(req.Source, false, 0)
		return
	}

	if e.role == Candidate {
		e.transitionTo(Follower)
		if e.err != nil {
			return
		}
		e.onAppendEntriesRequest(req)
		return
	}

	if e.role == Leader {
		// Two leaders in the same term should not be possible under I6;
		// ignore defensively rather than act on a message that implies a
		// violated invariant.
		return
	}

	if !e.logOk(req.PrevLogIndex, req.PrevLogTerm) {
		e.replyAppendEntries(req.Source, false, 0)
		e.armTimer(e.clock.NewFollowerTimer())
		return
	}

	if len(req.Entries) == 0 {
		lastIndex, _ := e.store.Last()
		e.advanceFollowerCommit(req.CommitIndex, lastIndex)
		if e.err != nil {
			return
		}
		e.replyAppendEntries(req.Source, true, req.PrevLogIndex)
		e.armTimer(e.clock.NewFollowerTimer())
		return
	}

	lastIndex, _ := e.store.Last()

	if lastIndex == req.PrevLogIndex {
		if _, err := e.store.Append(req.Entries); err != nil {
			e.fail(errors.Wrap(err, "%s: append at index %d", e.id, req.PrevLogIndex+1))
			return
		}
		e.onAppendEntriesRequest(req)
		return
	}

	// lastIndex > req.PrevLogIndex, since logOk required PrevLogIndex <=
	// lastIndex and the equal case was just handled above.
	existingTerm := e.termAt(req.PrevLogIndex + 1)
	if e.err != nil {
		return
	}
	if existingTerm == req.Entries[0].Term {
		matchIndex := req.PrevLogIndex + uint64(len(req.Entries))
		e.advanceFollowerCommit(req.CommitIndex, lastIndex)
		if e.err != nil {
			return
		}
		e.replyAppendEntries(req.Source, true, matchIndex)
		e.armTimer(e.clock.NewFollowerTimer())
		return
	}

	// Conflict at PrevLogIndex+1. The truncation point here is
	// lastIndex-1, not PrevLogIndex: preserved literally, see DESIGN.md.
	if err := e.store.Truncate(lastIndex - 1); err != nil {
		e.fail(errors.Wrap(err, "%s: truncate to %d", e.id, lastIndex-1))
		return
	}
	e.onAppendEntriesRequest(req)
}

func (e *Engine) advanceFollowerCommit(leaderCommit, lastIndex uint64) {
	candidate := numeric.Min(leaderCommit, lastIndex)
	if candidate > e.commitIndex {
		e.commitIndex = candidate
	}
	e.applyLoop()
}

func (e *Engine) replyAppendEntries(dest string, success bool, matchIndex uint64) {
	e.transport.Cast(dest, &AppendEntriesResponse{
		Term:       e.term,
		Source:     e.id,
		Success:    success,
		MatchIndex: matchIndex,
	})
}

// onAppendEntriesResponse updates per-peer replication progress and
// retries with a lower nextIndex on rejection (§4.5).
func (e *Engine) onAppendEntriesResponse(resp *AppendEntriesResponse) {
	if e.checkTerm(resp.Term) {
		return
	}
	if e.role != Leader || resp.Term != e.term {
		return
	}
	if _, known := e.leader.matchIndex[resp.Source]; !known {
		return
	}

	if resp.Success {
		e.leader.matchIndex[resp.Source] = resp.MatchIndex
		e.leader.nextIndex[resp.Source] = resp.MatchIndex + 1
		return
	}

	cur := e.leader.nextIndex[resp.Source]
	if cur > 1 {
		e.leader.nextIndex[resp.Source] = cur - 1
	}
}

// onHeartbeatTick sends every peer an AppendEntries (a heartbeat if it has
// nothing new to replicate) and then advances commitIndex (§4.5).
func (e *Engine) onHeartbeatTick() {
	for _, peer := range e.cohort {
		if peer == e.id {
			continue
		}
		next := e.leader.nextIndex[peer]
		prevLogIndex := next - 1
		prevLogTerm := e.termAt(prevLogIndex)
		if e.err != nil {
			return
		}

		entries, err := e.store.Range(prevLogIndex+1, batchSize)
		if err != nil {
			e.fail(errors.Wrap(err, "%s: range from %d", e.id, prevLogIndex+1))
			return
		}

		lastIndex, _ := e.store.Last()
		wireCommit := numeric.Min(e.commitIndex, numeric.Min(lastIndex, prevLogIndex+2))

		e.transport.Cast(peer, &AppendEntriesRequest{
			Term:         e.term,
			Source:       e.id,
			PrevLogIndex: prevLogIndex,
			PrevLogTerm:  prevLogTerm,
			Entries:      entries,
			CommitIndex:  wireCommit,
		})
	}
	e.advanceLeaderCommit()
}

// advanceLeaderCommit computes the commit candidate by prepending the
// leader's own Last().index to every peer's matchIndex, sorting ascending,
// and taking the (cohort/2+1)-th smallest. For an even-sized cohort this
// picks one position higher than the textbook majority index; see
// DESIGN.md for why that is preserved rather than adjusted.
func (e *Engine) advanceLeaderCommit() {
	lastIndex, _ := e.store.Last()
	indexes := make([]uint64, 0, len(e.cohort))
	indexes = append(indexes, lastIndex)
	for _, idx := range e.leader.matchIndex {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	n := indexes[len(e.cohort)/2]
	termAtN := e.termAt(n)
	if e.err != nil {
		return
	}
	if n > e.commitIndex && termAtN == e.term {
		e.commitIndex = n
	}
	e.applyLoop()
}

// onClientCall implements leader-side client request handling (§4.6): a
// non-leader rejects immediately, a leader appends and waits for the apply
// loop to resolve the future.
func (e *Engine) onClientCall(value []byte, fut *future) {
	if e.role != Leader {
		fut.deliver(nil, ErrNotLeader)
		return
	}

	firstIndex, err := e.store.Append([]LogEntry{{Term: e.term, Value: value}})
	if err != nil {
		e.fail(errors.Wrap(err, "%s: append client entry", e.id))
		return
	}
	e.leader.froms[firstIndex] = fut
}

// applyLoop applies every entry between lastApplied and commitIndex to the
// state machine in order, resolving any pending future for an entry this
// server's leader accepted (§4.7).
func (e *Engine) applyLoop() {
	for e.lastApplied < e.commitIndex {
		index := e.lastApplied + 1
		_, value, err := e.store.Lookup(index)
		if err != nil {
			e.fail(errors.Wrap(err, "%s: lookup for apply at %d", e.id, index))
			return
		}
		result := e.store.Apply(value)
		if e.role == Leader && e.leader != nil {
			if fut, ok := e.leader.froms[index]; ok {
				fut.deliver(result, nil)
				delete(e.leader.froms, index)
			}
		}
		e.lastApplied = index
	}
}
