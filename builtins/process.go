package builtins

import (
	"github.com/dop251/goja"
)

// RegisterLegacyProcessExports builds the pre-process-v2 `process` shape:
// a bare object with only `env` and `platform`, matching the reduced
// surface the legacy shim has always exposed (spec.md §8 "Node process
// routing").
func RegisterLegacyProcessExports(vm *goja.Runtime, exports *goja.Object, env map[string]string) {
	envObj := vm.NewObject()
	for k, v := range env {
		_ = envObj.Set(k, v)
	}
	_ = exports.Set("env", envObj)
	_ = exports.Set("platform", "linux")
}

// RegisterPublicProcessExports builds the process-v2 `process` shape,
// adding version and an EventEmitter-style `on` stub (ignoring the
// handler, since this registry has no process-level event source to
// fire it) on top of the legacy surface.
func RegisterPublicProcessExports(vm *goja.Runtime, exports *goja.Object, env map[string]string, version string) {
	RegisterLegacyProcessExports(vm, exports, env)
	_ = exports.Set("version", version)
	_ = exports.Set("on", func(call goja.FunctionCall) goja.Value {
		return exports
	})
	_ = exports.Set("nextTick", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Undefined()
		}
		if fn, ok := goja.AssertFunction(call.Arguments[0]); ok {
			_, _ = fn(goja.Undefined(), call.Arguments[1:]...)
		}
		return goja.Undefined()
	})
}
