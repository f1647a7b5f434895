// Command modreg is a small host that wires the module registry to a
// goja runtime and runs a single worker-bundle entrypoint, in the style
// of goja's own cmd/goja CLI (flag-driven, reads a script from a file or
// stdin) but built around this module's registry instead of goja's bare
// RunScript.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/dop251/goja-modreg/builtins"
	"github.com/dop251/goja-modreg/config"
	"github.com/dop251/goja-modreg/dynimport"
	"github.com/dop251/goja-modreg/engine"
	"github.com/dop251/goja-modreg/fallback"
	"github.com/dop251/goja-modreg/gojahost"
	"github.com/dop251/goja-modreg/internal/logging"
	"github.com/dop251/goja-modreg/path"
	"github.com/dop251/goja-modreg/registry"
)

var (
	entrypoint   = flag.String("entry", "/main.js", "worker bundle entrypoint specifier")
	fallbackAddr = flag.String("fallback-addr", "", "address of an out-of-process fallback module service")
	fallbackWire = flag.String("fallback-version", "v1", "fallback wire protocol: v1 or v2")
	flagsFile    = flag.String("flags", "", "path to an HCL compatibility-flags document")
	logMode      = flag.String("log-mode", "production", "production or development")
)

func readSource(filename string) ([]byte, error) {
	if filename == "" || filename == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(filename)
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	log, err := logging.New(*logMode)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	vm := goja.New()
	rt := gojahost.New(vm)

	var opts []registry.Option
	if *fallbackAddr != "" {
		version := registry.FallbackV1
		if *fallbackWire == "v2" {
			version = registry.FallbackV2
		}
		client := fallback.New(*fallbackAddr, log)
		defer client.Close()
		opts = append(opts, registry.WithFallbackClient(client, version))
	}
	reg := registry.New(opts...)

	if err := builtins.Register(reg, rt, log); err != nil {
		return fmt.Errorf("register builtins: %w", err)
	}

	flags := config.Default()
	if *flagsFile != "" {
		flags, err = config.Load(*flagsFile)
		if err != nil {
			return fmt.Errorf("load compatibility flags: %w", err)
		}
	}

	gojahost.SetContextSlot(rt, reg)
	defer gojahost.ClearContextSlot(rt)

	reg.SetDynamicImportHandler(func(thunk func() (engine.Handle, error)) engine.Deferred {
		d, derr := rt.NewDeferred()
		if derr != nil {
			log.Error("could not allocate dynamic-import deferred", zap.Error(derr))
			return nil
		}
		h, err := thunk()
		if err != nil {
			d.Reject(err)
		} else {
			d.Resolve(h)
		}
		return d
	})

	deps := dynimport.Deps{Registry: reg, Flags: flags, Log: log}
	installImportFunction(vm, rt, deps)

	entryPath, err := path.Parse(*entrypoint)
	if err != nil {
		return fmt.Errorf("parse entrypoint %q: %w", *entrypoint, err)
	}

	src, err := readSource(flag.Arg(0))
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	requireFn := func(specifier string) (engine.Handle, error) {
		return reg.Require(rt, specifier, entryPath, registry.RequireExportDefault)
	}
	handle, err := rt.NewCommonJSModule(entryPath.ToString(true), string(src), requireFn)
	if err != nil {
		return fmt.Errorf("compile entrypoint: %w", err)
	}
	reg.Add(entryPath, handle, nil)
	return nil
}

// installImportFunction exposes dynimport.Handle to script as a global
// `__dynamicImport` function, standing in for goja wiring its dynamic
// `import()` expressions to a host callback (goja's public API for that
// hook is still evolving upstream; embedders on a version that exposes
// it call dynimport.Handle from that callback instead of from this
// stand-in global).
func installImportFunction(vm *goja.Runtime, rt *gojahost.Runtime, deps dynimport.Deps) {
	vm.Set("__dynamicImport", func(call goja.FunctionCall) goja.Value {
		referrer := call.Argument(0).String()
		specifier := call.Argument(1).String()
		d := dynimport.Handle(deps, rt, rt.NewDeferred, referrer, specifier, specifier, nil)
		if d == nil {
			return goja.Undefined()
		}
		if v, ok := d.Value().(goja.Value); ok {
			return v
		}
		return goja.Undefined()
	})
}
