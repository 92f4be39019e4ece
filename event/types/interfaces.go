package types

import "context"

// Executor runs a unit of work on a pool. Submit never blocks the caller and
// returns false when the pool is closed and task will never run.
//
// Handlers receive the Executor at dispatch time rather than at construction,
// because the I/O pool behind it may be shut down and recreated between runs.
type Executor interface {
	Submit(task func()) bool
}

// Listener receives matched envelopes in a dedicated goroutine.
//
// OnEnvelope is called in the Listener's own goroutine and never blocks
// publishers.
type Listener interface {
	OnEnvelope(env *Envelope)
	Shutdown(ctx context.Context) error
}
