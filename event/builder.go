package event

import (
	"fmt"
	"reflect"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/yaoapp/eventbus/event/types"
	"github.com/yaoapp/kun/log"
)

// Builder collects a handler registration. Obtain one with Bus.Consume and
// finish it with Callback.
//
//	h, err := event.Callback(bus.Consume("random").IO(true).Throttle(1, time.Second),
//		func(max float64) float64 { return rand.Float64() * max })
type Builder struct {
	bus   *Bus
	entry types.HandlerEntry
}

// IO selects the I/O pool (true) or the compute pool (false, default).
func (hb *Builder) IO(flag bool) *Builder {
	hb.entry.IO = flag
	return hb
}

// Throttle limits the handler to maxCount invocations per sliding window.
// maxCount 0 removes the limit.
func (hb *Builder) Throttle(maxCount int, window time.Duration) *Builder {
	hb.entry.Permissions = maxCount
	hb.entry.Period = window
	return hb
}

func (hb *Builder) validate(nilCallback bool) error {
	var errs *multierror.Error
	if hb.entry.Address == "" {
		errs = multierror.Append(errs, ErrEmptyAddress)
	}
	if nilCallback {
		errs = multierror.Append(errs, ErrNilCallback)
	}
	if hb.entry.Permissions < 0 {
		errs = multierror.Append(errs, fmt.Errorf("%w: max count %d is negative", ErrInvalidThrottle, hb.entry.Permissions))
	}
	if hb.entry.Permissions > 0 && hb.entry.Period <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("%w: window %s must be positive", ErrInvalidThrottle, hb.entry.Period))
	}
	return errs.ErrorOrNil()
}

// Build constructs the handler without registering it.
func Build[T, R any](hb *Builder, fn func(T) R) (*Handler[T, R], error) {
	if err := hb.validate(fn == nil); err != nil {
		return nil, fmt.Errorf("event: invalid handler for %q: %w", hb.entry.Address, err)
	}
	return newHandler(hb.entry, fn), nil
}

// Callback constructs the handler and registers it on the builder's bus.
func Callback[T, R any](hb *Builder, fn func(T) R) (*Handler[T, R], error) {
	h, err := Build(hb, fn)
	if err != nil {
		return nil, err
	}
	if err := hb.bus.AddHandler(h); err != nil {
		return nil, err
	}
	return h, nil
}

// Reply adapts a typed continuation for Bus.Request. A result of another type
// is logged and passed as the zero value of R.
func Reply[R any](fn func(R)) func(any) {
	return func(v any) {
		r, ok := v.(R)
		if !ok && v != nil {
			log.Warn("event reply type mismatch: expected %s, got %T", reflect.TypeFor[R](), v)
		}
		fn(r)
	}
}
