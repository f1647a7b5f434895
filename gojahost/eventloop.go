package gojahost

import (
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
)

// timerJob is a pending setTimeout/setInterval callback, adapted from
// nodejs/eventloop's job/timer/interval trio but bound to this package's
// Runtime instead of owning a private *goja.Runtime, so the same
// compiled CommonJS modules that share this Runtime's registry can also
// schedule timers on it.
type timerJob struct {
	fn        goja.Callable
	args      []goja.Value
	cancelled bool
}

type timeout struct {
	timerJob
	t *time.Timer
}

type interval struct {
	timerJob
	ticker   *time.Ticker
	stopChan chan struct{}
}

// eventLoop is a single-goroutine job queue: setTimeout/setInterval
// callbacks post to jobChan and are executed serially by pumpReady, so script
// callbacks never run concurrently with whatever else holds the isolate
// lock (spec.md §5 "engine domain is single-threaded per isolate").
type eventLoop struct {
	vm       *goja.Runtime
	jobChan  chan func()
	jobCount int32
}

func newEventLoop(vm *goja.Runtime) *eventLoop {
	return &eventLoop{vm: vm, jobChan: make(chan func(), 16)}
}

// InstallTimers wires setTimeout/setInterval/clearTimeout/clearInterval
// into the runtime's global object, backed by this Runtime's event loop.
func (r *Runtime) InstallTimers() {
	loop := r.loop()
	r.vm.Set("setTimeout", loop.setTimeout)
	r.vm.Set("setInterval", loop.setInterval)
	r.vm.Set("clearTimeout", loop.clearTimeout)
	r.vm.Set("clearInterval", loop.clearInterval)
}

func (r *Runtime) loop() *eventLoop {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evLoop == nil {
		r.evLoop = newEventLoop(r.vm)
	}
	return r.evLoop
}

// pumpReady drains any timer callbacks that have already fired, without
// blocking for ones that haven't, giving DrainMicrotasksOnce a way to let
// both pending promise jobs and pending timers make progress within one
// bounded wait (spec.md §4.6 "drain the microtask queue once").
func (loop *eventLoop) pumpReady(deadline time.Time) {
	for {
		select {
		case job := <-loop.jobChan:
			job()
		default:
			return
		}
		if time.Now().After(deadline) {
			return
		}
	}
}

func (loop *eventLoop) schedule(call goja.FunctionCall, repeating bool) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		return goja.Undefined()
	}
	delay := call.Argument(1).ToInteger()
	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = call.Arguments[2:]
	}
	if repeating {
		return loop.vm.ToValue(loop.addInterval(fn, time.Duration(delay)*time.Millisecond, args))
	}
	return loop.vm.ToValue(loop.addTimeout(fn, time.Duration(delay)*time.Millisecond, args))
}

func (loop *eventLoop) setTimeout(call goja.FunctionCall) goja.Value  { return loop.schedule(call, false) }
func (loop *eventLoop) setInterval(call goja.FunctionCall) goja.Value { return loop.schedule(call, true) }

func (loop *eventLoop) addTimeout(f goja.Callable, d time.Duration, args []goja.Value) *timeout {
	t := &timeout{timerJob: timerJob{fn: f, args: args}}
	t.t = time.AfterFunc(d, func() {
		loop.jobChan <- func() { loop.doTimeout(t) }
	})
	atomic.AddInt32(&loop.jobCount, 1)
	return t
}

func (loop *eventLoop) addInterval(f goja.Callable, d time.Duration, args []goja.Value) *interval {
	i := &interval{timerJob: timerJob{fn: f, args: args}, ticker: time.NewTicker(d), stopChan: make(chan struct{})}
	go i.run(loop)
	atomic.AddInt32(&loop.jobCount, 1)
	return i
}

func (loop *eventLoop) doTimeout(t *timeout) {
	if !t.cancelled {
		_, _ = t.fn(goja.Undefined(), t.args...)
		t.cancelled = true
		atomic.AddInt32(&loop.jobCount, -1)
	}
}

func (loop *eventLoop) doInterval(i *interval) {
	if !i.cancelled {
		_, _ = i.fn(goja.Undefined(), i.args...)
	}
}

func (loop *eventLoop) clearTimeout(call goja.FunctionCall) goja.Value {
	if t, ok := call.Argument(0).Export().(*timeout); ok && !t.cancelled {
		t.t.Stop()
		t.cancelled = true
		atomic.AddInt32(&loop.jobCount, -1)
	}
	return goja.Undefined()
}

func (loop *eventLoop) clearInterval(call goja.FunctionCall) goja.Value {
	if i, ok := call.Argument(0).Export().(*interval); ok && !i.cancelled {
		i.cancelled = true
		i.stopChan <- struct{}{}
		atomic.AddInt32(&loop.jobCount, -1)
	}
	return goja.Undefined()
}

func (i *interval) run(loop *eventLoop) {
	for {
		select {
		case <-i.stopChan:
			i.ticker.Stop()
			return
		case <-i.ticker.C:
			loop.jobChan <- func() { loop.doInterval(i) }
		}
	}
}
