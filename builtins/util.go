// Package builtins adapts a handful of Node built-in modules (util,
// console, process) into internal registry entries, grounded on
// nodejs/console's and nodejs/util's native-module pattern but wired
// through this module's own registry instead of nodejs/require.Registry,
// and logging through zap instead of the standard log package (spec.md
// §9 supplemented feature: "public built-ins" needs at least one
// concrete family of them to exercise BUILTIN/INTERNAL namespacing).
package builtins

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dop251/goja"
)

// Util mirrors nodejs/util's New(vm)-constructed helper object, reduced
// to the formatting primitive console.log needs.
type Util struct {
	vm *goja.Runtime
}

// NewUtil constructs the util helper bound to vm.
func NewUtil(vm *goja.Runtime) *Util {
	return &Util{vm: vm}
}

// Format implements a minimal subset of Node's util.format: %s, %d, %j,
// and a literal %% escape, with any arguments left over after the format
// string is exhausted appended space-separated (matching
// nodejs/util/module_test.go's TestUtil_Format_MoreArgs expectation).
func (u *Util) Format(w io.Writer, f string, args ...goja.Value) {
	i := 0
	for j := 0; j < len(f); j++ {
		c := f[j]
		if c != '%' || j == len(f)-1 {
			_, _ = w.Write([]byte{c})
			continue
		}
		verb := f[j+1]
		switch verb {
		case '%':
			_, _ = w.Write([]byte{'%'})
			j++
		case 's':
			if i < len(args) {
				_, _ = io.WriteString(w, args[i].String())
				i++
			} else {
				_, _ = io.WriteString(w, "%s")
			}
			j++
		case 'd':
			if i < len(args) {
				_, _ = io.WriteString(w, args[i].ToNumber().String())
				i++
			} else {
				_, _ = io.WriteString(w, "%d")
			}
			j++
		case 'j':
			if i < len(args) {
				_, _ = io.WriteString(w, jsonify(u.vm, args[i]))
				i++
			} else {
				_, _ = io.WriteString(w, "%j")
			}
			j++
		default:
			_, _ = w.Write([]byte{c})
		}
	}
	for ; i < len(args); i++ {
		_, _ = io.WriteString(w, " "+args[i].String())
	}
}

// FormatString is a convenience wrapper returning Format's output as a
// string, used by console.log.
func (u *Util) FormatString(f string, args ...goja.Value) string {
	var b bytes.Buffer
	u.Format(&b, f, args...)
	return b.String()
}

func jsonify(vm *goja.Runtime, v goja.Value) string {
	jsonGlobal, ok := vm.GlobalObject().Get("JSON").(*goja.Object)
	if !ok {
		return fmt.Sprintf("%v", v.Export())
	}
	stringify, ok := goja.AssertFunction(jsonGlobal.Get("stringify"))
	if !ok {
		return fmt.Sprintf("%v", v.Export())
	}
	result, err := stringify(jsonGlobal, v)
	if err != nil {
		return fmt.Sprintf("%v", v.Export())
	}
	return result.String()
}

// RegisterUtilExports installs Format as a `format` function on exports,
// matching nodejs/util's Require(runtime, module) native-module shape.
func RegisterUtilExports(vm *goja.Runtime, exports *goja.Object) {
	u := NewUtil(vm)
	_ = exports.Set("format", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue("")
		}
		return vm.ToValue(u.FormatString(call.Arguments[0].String(), call.Arguments[1:]...))
	})
}
