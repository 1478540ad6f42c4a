package raft

import (
	"bytes"
	"encoding/gob"
	"errors"
	"sync"
)

// ErrUpdatesOutOfOrder is returned as part of a DocumentUpdateResult, never
// as a Store/Apply error: a stale update is a rejection by the user state
// machine, not an I/O failure, and must not take down the engine (§7, §8
// scenario 6).
var ErrUpdatesOutOfOrder = errors.New("raftcore: update sequence does not exceed the last applied sequence for this key")

// DocumentUpdate is a client command for DocumentStateMachine: set Key to
// Value, but only if Seq is greater than the sequence of the last update
// applied for that key.
type DocumentUpdate struct {
	Key   string
	Seq   uint64
	Value []byte
}

// DocumentUpdateResult is what DocumentStateMachine.Apply returns. Err is
// ErrUpdatesOutOfOrder for a stale update and nil otherwise; a client
// waiting on the corresponding future sees this result either way, never an
// engine-level error.
type DocumentUpdateResult struct {
	Err error
}

// DocumentStateMachine is an example StateMachine modeling a keyed document
// store with per-key sequence numbers, as used in §8 scenario 6: a
// DocumentUpdate whose Seq does not exceed the last one applied for its key
// is rejected rather than applied.
type DocumentStateMachine struct {
	mu      sync.Mutex
	docs    map[string][]byte
	lastSeq map[string]uint64
}

// NewDocumentStateMachine creates an empty DocumentStateMachine.
func NewDocumentStateMachine() *DocumentStateMachine {
	return &DocumentStateMachine{
		docs:    map[string][]byte{},
		lastSeq: map[string]uint64{},
	}
}

// Apply decodes value as a gob-encoded DocumentUpdate and returns a
// DocumentUpdateResult. Decode failures are treated as programmer error
// (mismatched client/state-machine encodings), not as an out-of-order
// update, and panic rather than silently rejecting.
func (d *DocumentStateMachine) Apply(value []byte) interface{} {
	var upd DocumentUpdate
	if err := gob.NewDecoder(bytes.NewReader(value)).Decode(&upd); err != nil {
		panic("raftcore: DocumentStateMachine received a value it cannot decode: " + err.Error())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if upd.Seq <= d.lastSeq[upd.Key] {
		return DocumentUpdateResult{Err: ErrUpdatesOutOfOrder}
	}
	d.docs[upd.Key] = upd.Value
	d.lastSeq[upd.Key] = upd.Seq
	return DocumentUpdateResult{}
}

// Get returns the current value for key and whether it has ever been set.
func (d *DocumentStateMachine) Get(key string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.docs[key]
	return v, ok
}

// EncodeDocumentUpdate gob-encodes upd for use as a LogEntry/client-call
// value against a DocumentStateMachine.
func EncodeDocumentUpdate(upd DocumentUpdate) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(upd); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
