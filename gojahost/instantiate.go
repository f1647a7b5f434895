package gojahost

import (
	"time"

	"github.com/dop251/goja"

	"github.com/dop251/goja-modreg/engine"
)

// Instantiate satisfies engine.Instantiator. Because every module built by
// this package is already evaluated at CompileSource/NewCommonJSModule
// time (there is no separate link/instantiate phase for CommonJS-style
// wrappers), Instantiate is a no-op for plain module handles; it only
// does real work when h is a deferred top-level-await promise, in which
// case InstantiateDefault gives it one microtask-drain pass to settle
// (spec.md §4.6).
func (r *Runtime) Instantiate(h engine.Handle, opt engine.InstantiateOption) error {
	promise, ok := h.(*goja.Promise)
	if !ok {
		return nil
	}
	if opt == engine.InstantiateNoTopLevelAwait {
		return nil
	}
	r.DrainMicrotasksOnce(50 * time.Millisecond)
	if promise.State() == goja.PromiseStateRejected {
		if err, ok := promise.Result().Export().(error); ok {
			return err
		}
	}
	return nil
}

// DrainMicrotasksOnce runs goja's job queue until empty or the timeout
// elapses, giving a pending top-level-await promise a chance to settle
// (spec.md §4.6). goja drains its own microtask queue synchronously
// within RunProgram/toplevel calls, so in practice this mostly exists to
// satisfy the engine.MicrotaskDrainer contract for engines that need an
// explicit pump.
func (r *Runtime) DrainMicrotasksOnce(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for r.vm.PendingJobsCount() > 0 && time.Now().Before(deadline) {
		r.vm.RunJobs()
	}
	if r.evLoop != nil {
		r.evLoop.pumpReady(deadline)
	}
}

// deferred adapts a *goja.Promise (created via goja.NewPromise) to the
// engine.Deferred surface the dynamic-import trampoline settles.
type deferred struct {
	vm      *goja.Runtime
	promise *goja.Promise
}

// NewDeferred creates an engine.Deferred backed by a fresh goja promise,
// for use by the dynamic-import trampoline's host-import-dynamically
// callback (spec.md §4.5 step 1).
func (r *Runtime) NewDeferred() (engine.Deferred, error) {
	p, err := goja.NewPromise(r.vm)
	if err != nil {
		return nil, err
	}
	return &deferred{vm: r.vm, promise: p}, nil
}

func (d *deferred) Resolve(v engine.Handle) {
	val, _ := v.(goja.Value)
	if val == nil {
		val = goja.Undefined()
	}
	d.promise.Resolve(val)
}

func (d *deferred) Reject(err error) {
	if err == nil {
		d.promise.Reject(goja.Undefined())
		return
	}
	d.promise.Reject(d.vm.NewGoError(err))
}

func (d *deferred) Value() engine.Handle {
	return d.promise.Value()
}
