package raft

import "time"

// Server bundles an Engine with its Transport's network lifecycle and
// enforces the client call timeout (§5, §6.3): the engine itself never
// times out a pending operation, the caller does.
type Server struct {
	engine    *Engine
	transport Transport
}

// NewServer builds a Server for id among cohort, backed by store and
// communicating over transport.
func NewServer(id string, cohort []string, store Store, transport Transport, clock Clock, opts ...Option) (*Server, error) {
	engine, err := NewEngine(id, cohort, store, transport, clock, opts...)
	if err != nil {
		return nil, err
	}
	return &Server{engine: engine, transport: transport}, nil
}

// Start brings up the transport's listener, if it has one, and starts the
// engine's event loop.
func (s *Server) Start() error {
	if err := s.transport.Run(); err != nil {
		return err
	}
	s.engine.Start()
	return nil
}

// Stop halts the engine and tears down the transport.
func (s *Server) Stop() error {
	s.engine.Stop()
	return s.transport.Shutdown()
}

// Status returns the engine's current Status.
func (s *Server) Status() Status {
	return s.engine.Status()
}

// Err returns the error that stopped the engine, if any.
func (s *Server) Err() error {
	return s.engine.Err()
}

// Call submits value as a client operation and blocks until it is applied,
// the engine deposes it, or clientTimeout elapses (§6.3).
func (s *Server) Call(value []byte) (interface{}, error) {
	fut := s.engine.Submit(value)
	return awaitWithTimeout(fut, clientTimeout)
}

func awaitWithTimeout(fut Future, timeout time.Duration) (interface{}, error) {
	resultCh := make(chan futureResult, 1)
	go func() {
		v, err := fut.Await()
		resultCh <- futureResult{value: v, err: err}
	}()

	select {
	case r := <-resultCh:
		return r.value, r.err
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}
