package builtins

import (
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// RegisterConsoleExports installs log/error/warn on exports, matching
// nodejs/console's Require(runtime, module) shape but logging through
// zap (at Info/Error/Warn levels respectively) instead of the standard
// log package, the way GriffinCanCode-ArtificialOS routes all service
// logging through zap rather than log.Print.
func RegisterConsoleExports(vm *goja.Runtime, exports *goja.Object, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	u := NewUtil(vm)

	logAt := func(level func(string, ...zap.Field)) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) == 0 {
				level("")
				return goja.Undefined()
			}
			msg := u.FormatString(call.Arguments[0].String(), call.Arguments[1:]...)
			level(msg)
			return goja.Undefined()
		}
	}

	_ = exports.Set("log", logAt(log.Info))
	_ = exports.Set("warn", logAt(log.Warn))
	_ = exports.Set("error", logAt(log.Error))
}
