package raft

import "github.com/jsonraft/raftcore/internal/logger"

// Option configures an Engine at construction time.
type Option func(*Engine) error

// WithLogger overrides the engine's logger. Without it, NewEngine builds a
// default one logging Info and above to stderr.
func WithLogger(log *logger.Logger) Option {
	return func(e *Engine) error {
		e.log = log
		return nil
	}
}
