package event

import "github.com/yaoapp/eventbus/event/types"

// Option configures a Bus.
type Option func(*options)

type options struct {
	computeWorkers int
	ioWorkers      int
	ioPrefix       string
	failureLogRate int
}

// ComputeWorkers sets the compute pool size. Default is GOMAXPROCS.
func ComputeWorkers(n int) Option {
	return func(o *options) {
		o.computeWorkers = n
	}
}

// IOWorkers sets the I/O pool size. Default is 4.
func IOWorkers(n int) Option {
	return func(o *options) {
		o.ioWorkers = n
	}
}

// IOPrefix sets the I/O worker name prefix. Workers are named "<prefix>-<n>".
func IOPrefix(prefix string) Option {
	return func(o *options) {
		o.ioPrefix = prefix
	}
}

// FailureLogRate caps handler panic logs per address per second.
// Zero or less logs every failure.
func FailureLogRate(n int) Option {
	return func(o *options) {
		o.failureLogRate = n
	}
}

// Filter sets a custom filter function for Listen or Subscribe.
// Envelopes that do not pass the filter are skipped.
func Filter(fn func(*types.Envelope) bool) types.FilterOption {
	return func(e *types.FilterEntry) {
		e.Filter = fn
	}
}

// BufferSize sets the Listener channel buffer size. Default is 1024.
// Only effective for Listen; ignored by Subscribe.
func BufferSize(n int) types.FilterOption {
	return func(e *types.FilterEntry) {
		e.BufferSize = n
	}
}
