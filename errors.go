package raft

import "errors"

// ErrNotLeader is returned to a client call submitted to a server that is
// not currently the leader (§7).
var ErrNotLeader = errors.New("raftcore: not the leader")

// ErrDeposed is returned to a pending client call when the leader that
// accepted it loses leadership before the entry is applied (§7). Clients
// must retry; duplicate application is the state machine's responsibility.
var ErrDeposed = errors.New("raftcore: deposed before operation was applied")

// ErrTimeout is returned by Server.Call when no result arrives within
// clientTimeout (§6.3, §7). The engine itself never observes this error.
var ErrTimeout = errors.New("raftcore: timed out waiting for result")

// ErrStopped is returned by Server.Call once the engine has stopped.
var ErrStopped = errors.New("raftcore: engine stopped")
