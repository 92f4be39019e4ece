package types

import (
	"fmt"
	"reflect"
	"time"
)

// Envelope describes a single publish as seen by listeners and subscribers.
type Envelope struct {
	ID       string // Auto-generated publish ID
	Address  string // Address the value was published to
	Payload  any    // Published value
	Handlers int    // Number of handlers the value was fanned out to
	Reply    bool   // true when published with a continuation
}

// Should asserts the Payload to the target pointer type.
// target must be a non-nil pointer. Returns an error if the type does not match.
//
// Usage:
//
//	var p MyPayload
//	if err := env.Should(&p); err != nil { ... }
func (env *Envelope) Should(target any) error {
	if target == nil {
		return fmt.Errorf("envelope.Should: target must be a non-nil pointer")
	}

	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("envelope.Should: target must be a non-nil pointer, got %T", target)
	}

	if env.Payload == nil {
		return fmt.Errorf("envelope.Should: payload is nil")
	}

	payloadVal := reflect.ValueOf(env.Payload)
	targetElem := rv.Elem()

	if payloadVal.Kind() == reflect.Ptr && !payloadVal.Type().AssignableTo(targetElem.Type()) {
		if payloadVal.IsNil() {
			return fmt.Errorf("envelope.Should: payload is nil pointer")
		}
		payloadVal = payloadVal.Elem()
	}

	if !payloadVal.Type().AssignableTo(targetElem.Type()) {
		return fmt.Errorf("envelope.Should: payload type %T is not assignable to %s", env.Payload, targetElem.Type())
	}

	targetElem.Set(payloadVal)
	return nil
}

// HandlerEntry is the immutable registration record of a handler.
type HandlerEntry struct {
	Address     string
	IO          bool          // true = I/O pool, false = compute pool
	Permissions int           // Max invocations per Period; 0 = unthrottled
	Period      time.Duration // Sliding window length, only used when Permissions > 0
}

// Throttled reports whether the entry carries a rate limit.
func (e HandlerEntry) Throttled() bool {
	return e.Permissions > 0
}

// Stats is a point-in-time snapshot of bus counters.
type Stats struct {
	Published   uint64 // Successful Publish/Request calls
	Dispatched  uint64 // Units of work handed to handlers
	Completed   uint64 // Units of work finished, including failures
	Dropped     uint64 // Units of work discarded because their pool was closed
	Failed      uint64 // Units of work whose callback or continuation panicked
	Deferred    uint64 // Throttled units of work that had to wait for the window
	Skipped     uint64 // Envelopes not delivered to a full listener buffer or subscriber channel
	Outstanding int64  // Units of work submitted but not yet finished
	IORestarts  uint64 // Times the I/O pool was recreated after a shutdown
}

// FilterOption configures a Listener or Subscriber registration.
type FilterOption func(*FilterEntry)

// FilterEntry is the internal registration record for a Listener/Subscriber.
type FilterEntry struct {
	Pattern    string
	Filter     func(*Envelope) bool // Custom filter function
	BufferSize int                  // Listener chan buffer size, default 1024; only for Listen
}

// Default configuration values.
const (
	DefaultIOWorkers      = 4
	DefaultIOPrefix       = "io"
	DefaultBufferSize     = 1024
	DefaultFailureLogRate = 5
)
