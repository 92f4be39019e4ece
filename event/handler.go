package event

import (
	"reflect"

	"github.com/yaoapp/eventbus/event/types"
)

// Registered is implemented by every *Handler. The registry stores handlers
// through this interface so one address can mix input and output types.
type Registered interface {
	Entry() types.HandlerEntry

	accepts(value any) bool
	inputType() reflect.Type
	call(value any) any
	run(ex types.Executor, work, drop func()) bool
}

// Handler binds an address to a typed callback.
type Handler[T, R any] struct {
	entry    types.HandlerEntry
	callback func(T) R
	limiter  *limiter // nil when unthrottled
}

var _ Registered = (*Handler[any, any])(nil)

func newHandler[T, R any](entry types.HandlerEntry, fn func(T) R) *Handler[T, R] {
	h := &Handler[T, R]{entry: entry, callback: fn}
	if entry.Throttled() {
		h.limiter = newLimiter(entry.Address, entry.Permissions, entry.Period)
	}
	return h
}

// Entry returns the handler's registration record.
func (h *Handler[T, R]) Entry() types.HandlerEntry {
	return h.entry
}

// Queued returns the number of invocations waiting for the throttle window.
func (h *Handler[T, R]) Queued() int {
	if h.limiter == nil {
		return 0
	}
	return h.limiter.queued()
}

func (h *Handler[T, R]) inputType() reflect.Type {
	return reflect.TypeFor[T]()
}

// accepts reports whether value can be passed to the callback. nil is
// accepted for types whose zero value is nil.
func (h *Handler[T, R]) accepts(value any) bool {
	if value == nil {
		switch h.inputType().Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return true
		}
		return false
	}
	_, ok := value.(T)
	return ok
}

func (h *Handler[T, R]) call(value any) any {
	v, _ := value.(T)
	return h.callback(v)
}

// run hands work to ex, immediately or through the throttle. drop is called
// instead of work if ex no longer accepts tasks.
// Reports whether work had to wait for the window.
func (h *Handler[T, R]) run(ex types.Executor, work, drop func()) bool {
	if h.limiter == nil {
		if !ex.Submit(work) {
			drop()
		}
		return false
	}
	return h.limiter.admit(ex, work, drop)
}
