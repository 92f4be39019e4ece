package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/yaoapp/eventbus/event"
	"github.com/yaoapp/eventbus/event/types"
	"github.com/yaoapp/kun/log"
)

// Addresses of the demo pipeline.
const (
	AddressStart    = "start"
	AddressRandom   = "random"
	AddressPrintOut = "print_out"
)

type pipelineOptions struct {
	count     int
	max       float64
	throttle  int
	window    time.Duration
	ioWorkers int
	color     bool
}

// expected is a lower bound on how long the throttle makes the run take.
func (o pipelineOptions) expected() time.Duration {
	if o.throttle <= 0 || o.count <= o.throttle {
		return 0
	}
	return time.Duration(o.count/o.throttle+1) * o.window
}

// runPipeline wires start -> random (I/O, throttled) -> print_out and blocks
// until every generated number has been printed.
//
// start fans out count requests to random; each result is forwarded to
// print_out from the request continuation.
func runPipeline(ctx context.Context, bus *event.Bus, opts pipelineOptions, out *printer) error {
	if opts.count < 0 {
		return fmt.Errorf("count must not be negative, got %d", opts.count)
	}

	_, err := event.Callback(bus.Consume(AddressStart), func(n int) bool {
		for i := 0; i < n; i++ {
			err := bus.Request(AddressRandom, opts.max, event.Reply(func(v float64) {
				if err := bus.Publish(AddressPrintOut, v); err != nil {
					log.Error("eventbus publish %s: %v", AddressPrintOut, err)
				}
			}))
			if err != nil {
				log.Error("eventbus request %s: %v", AddressRandom, err)
				return false
			}
		}
		return true
	})
	if err != nil {
		return err
	}

	_, err = event.Callback(bus.Consume(AddressRandom).IO(true).Throttle(opts.throttle, opts.window), func(upper float64) float64 {
		num := rand.Float64() * upper
		out.generated(num)
		return num
	})
	if err != nil {
		return err
	}

	_, err = event.Callback(bus.Consume(AddressPrintOut), func(num float64) struct{} {
		out.got(num)
		return struct{}{}
	})
	if err != nil {
		return err
	}

	if err := bus.Listen(AddressStart, out); err != nil {
		return err
	}
	if err := bus.Publish(AddressStart, opts.count); err != nil {
		return err
	}
	return bus.WaitTerminationContext(ctx)
}

// printer writes pipeline progress, safe for concurrent use.
type printer struct {
	mu    sync.Mutex
	w     io.Writer
	gen   *color.Color
	get   *color.Color
	done  *color.Color
	lines int
}

func newPrinter(w io.Writer, colored bool) *printer {
	p := &printer{
		w:    w,
		gen:  color.New(color.FgCyan),
		get:  color.New(color.FgGreen),
		done: color.New(color.Bold),
	}
	if !colored {
		p.gen.DisableColor()
		p.get.DisableColor()
		p.done.DisableColor()
	}
	return p
}

// OnEnvelope announces each start request.
func (p *printer) OnEnvelope(env *types.Envelope) {
	var n int
	if err := env.Should(&n); err != nil {
		log.Warn("eventbus %s envelope %s: %v", env.Address, env.ID, err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done.Fprintf(p.w, "Requested %d numbers (%s)\n", n, env.ID)
}

func (p *printer) Shutdown(context.Context) error { return nil }

func (p *printer) generated(num float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen.Fprintf(p.w, "Generate number=%.2f\n", num)
}

func (p *printer) got(num float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines++
	p.get.Fprintf(p.w, "Get number=%.2f\n", num)
}

func (p *printer) printed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lines
}

func (p *printer) finished(elapsed time.Duration, stats types.Stats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done.Fprintf(p.w, "Finished in %s (published=%d completed=%d deferred=%d failed=%d io_restarts=%d)\n",
		elapsed.Round(time.Millisecond), stats.Published, stats.Completed, stats.Deferred, stats.Failed, stats.IORestarts)
}
