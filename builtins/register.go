package builtins

import (
	"os"

	"go.uber.org/zap"

	"github.com/dop251/goja-modreg/engine"
	"github.com/dop251/goja-modreg/gojahost"
	"github.com/dop251/goja-modreg/path"
	"github.com/dop251/goja-modreg/registry"
)

// Register installs util, console, and both process variants as
// Internal builtins, and console/util additionally as Builtin so user
// code can `import "node:util"`/`import "node:console"` directly
// (spec.md §4.1 reserved prefixes; §8 "Node process routing" is Internal
// only, reached exclusively through the trampoline's node:process
// special case).
func Register(reg *registry.Registry, rt *gojahost.Runtime, log *zap.Logger) error {
	vm := rt.VM()

	if err := registerFactory(reg, registry.Internal, "node-internal:util", func() (engine.Handle, error) {
		exports := vm.NewObject()
		RegisterUtilExports(vm, exports)
		return exports, nil
	}); err != nil {
		return err
	}
	if err := registerFactory(reg, registry.Builtin, "node:util", func() (engine.Handle, error) {
		exports := vm.NewObject()
		RegisterUtilExports(vm, exports)
		return exports, nil
	}); err != nil {
		return err
	}

	if err := registerFactory(reg, registry.Internal, "node-internal:console", func() (engine.Handle, error) {
		exports := vm.NewObject()
		RegisterConsoleExports(vm, exports, log)
		return exports, nil
	}); err != nil {
		return err
	}
	if err := registerFactory(reg, registry.Builtin, "node:console", func() (engine.Handle, error) {
		exports := vm.NewObject()
		RegisterConsoleExports(vm, exports, log)
		return exports, nil
	}); err != nil {
		return err
	}

	env := processEnvMap()
	if err := registerFactory(reg, registry.Internal, "node-internal:legacy_process", func() (engine.Handle, error) {
		exports := vm.NewObject()
		RegisterLegacyProcessExports(vm, exports, env)
		return exports, nil
	}); err != nil {
		return err
	}
	if err := registerFactory(reg, registry.Internal, "node-internal:public_process", func() (engine.Handle, error) {
		exports := vm.NewObject()
		RegisterPublicProcessExports(vm, exports, env, "v2")
		return exports, nil
	}); err != nil {
		return err
	}
	return nil
}

func registerFactory(reg *registry.Registry, ns registry.Namespace, specifier string, build func() (engine.Handle, error)) error {
	return reg.AddBuiltinFactory(specifier, ns, func(eng engine.Lock, _ registry.ResolveMethod, _ *path.Path) (registry.InstantiatedArtifact, bool) {
		h, err := build()
		if err != nil {
			return registry.InstantiatedArtifact{}, false
		}
		return registry.InstantiatedArtifact{Handle: h}, true
	})
}

func processEnvMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return env
}
