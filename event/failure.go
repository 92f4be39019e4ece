package event

import (
	"fmt"
	"sync/atomic"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/yaoapp/eventbus/event/types"
	"github.com/yaoapp/kun/log"
)

// failureLog logs handler panics, rate limited per address so a handler that
// fails on every publish cannot flood the log.
type failureLog struct {
	limiter    *catrate.Limiter // nil logs everything
	suppressed atomic.Uint64
}

func newFailureLog(perSecond int) *failureLog {
	if perSecond <= 0 {
		return &failureLog{}
	}
	return &failureLog{limiter: catrate.NewLimiter(map[time.Duration]int{time.Second: perSecond})}
}

func (f *failureLog) report(bus string, env *types.Envelope, entry types.HandlerEntry, r any) {
	if f.limiter != nil {
		if _, ok := f.limiter.Allow(entry.Address); !ok {
			f.suppressed.Add(1)
			return
		}
	}
	err := fmt.Errorf("%w: %v", ErrHandlerPanic, r)
	log.With(log.F{
		"bus":        bus,
		"address":    entry.Address,
		"publish_id": env.ID,
		"io":         entry.IO,
		"suppressed": f.suppressed.Load(),
	}).Error("event handler failed: address=%s id=%s err=%v", entry.Address, env.ID, err)
}
