package gojahost

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// wasmEngine is a process-wide wazero runtime shared by every compiled
// Wasm module, mirroring WazeroEngine in the wasm-runtime example: one
// compiler/runtime instance amortized across many module instantiations.
var wasmEngine = wazero.NewRuntime(context.Background())

// compileWasmModule compiles and instantiates code with wazero, then
// projects every exported function as a callable property on a plain
// goja object, so script sees WasmModuleInfo's default export as
// `{ add(a, b), ... }` (spec.md WasmModuleInfo).
func compileWasmModule(vm *goja.Runtime, code []byte) (*goja.Object, error) {
	ctx := context.Background()

	compiled, err := wasmEngine.CompileModule(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("gojahost: compile wasm: %w", err)
	}

	cfg := wazero.NewModuleConfig()
	instance, err := wasmEngine.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("gojahost: instantiate wasm: %w", err)
	}

	exportsObj := vm.NewObject()
	for name, def := range compiled.ExportedFunctions() {
		fn := instance.ExportedFunction(name)
		if fn == nil {
			continue
		}
		paramTypes := def.ParamTypes()
		_ = exportsObj.Set(name, wrapWasmFunc(vm, ctx, fn, paramTypes))
	}
	return exportsObj, nil
}

// wrapWasmFunc adapts a wazero api.Function (taking/returning uint64-coded
// values) into a goja-callable function taking and returning JS numbers.
// It only supports numeric (i32/i64/f32/f64) parameters, which covers the
// arithmetic-style modules the module registry's WasmModuleInfo is meant
// to expose; anything richer belongs in a host-authored binding, not this
// generic adapter.
func wrapWasmFunc(vm *goja.Runtime, ctx context.Context, fn api.Function, paramTypes []api.ValueType) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args := make([]uint64, len(paramTypes))
		for i, pt := range paramTypes {
			var v float64
			if i < len(call.Arguments) {
				v = call.Arguments[i].ToFloat()
			}
			switch pt {
			case api.ValueTypeI32:
				args[i] = api.EncodeI32(int32(v))
			case api.ValueTypeI64:
				args[i] = api.EncodeI64(int64(v))
			case api.ValueTypeF32:
				args[i] = api.EncodeF32(float32(v))
			default: // F64 and anything else
				args[i] = api.EncodeF64(v)
			}
		}
		results, err := fn.Call(ctx, args...)
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		if len(results) == 0 {
			return goja.Undefined()
		}
		switch fn.Definition().ResultTypes()[0] {
		case api.ValueTypeI32:
			return vm.ToValue(int32(uint32(results[0])))
		case api.ValueTypeI64:
			return vm.ToValue(int64(results[0]))
		case api.ValueTypeF32:
			return vm.ToValue(api.DecodeF32(results[0]))
		default: // F64 and anything else
			return vm.ToValue(api.DecodeF64(results[0]))
		}
	}
}
