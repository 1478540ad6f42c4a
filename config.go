package raft

import "time"

// Protocol constants fixed by the specification (§6.4). These are not
// configurable: the spec gives literal values, unlike the teacher's
// election/heartbeat durations which were functional-option overrides.
const (
	// batchSize is the maximum number of entries sent in one AppendEntries.
	batchSize = 10

	// clientTimeout bounds how long Server.Call waits for a submitted
	// operation to be applied before returning Timeout.
	clientTimeout = 5000 * time.Millisecond

	heartbeatInterval = 75 * time.Millisecond

	followerTimeoutMin = 150 * time.Millisecond
	followerTimeoutMax = 300 * time.Millisecond

	candidateTimeoutMin = 15 * time.Millisecond
	candidateTimeoutMax = 30 * time.Millisecond

	// shutdownGracePeriod bounds how long the gRPC transport waits for a
	// graceful stop before forcing connections closed.
	shutdownGracePeriod = 300 * time.Millisecond
)
