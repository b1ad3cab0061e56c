// Package consoleapi installs the global console object, layering the
// recorder's stdout/stderr capture on top of goja_nodejs's require("console")
// native module (registered once per session by core/sandbox.Engine.Run).
package consoleapi

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"

	"github.com/faasforge/faascore/core/sandbox"
)

// Install replaces the global `console` with one whose log/info/debug route
// to inv.Stdout and whose warn/error route to inv.Stderr, matching
// system/tee/script_engine.go's console.log capture but split by stream and
// generalized to every console method instead of only `log`.
func Install(vm *goja.Runtime, inv *sandbox.Invocation) error {
	base := require.Require(vm, "console")

	obj := vm.NewObject()
	methods := map[string]func(line string){
		"log":   emit(inv.Stdout),
		"info":  emit(inv.Stdout),
		"debug": emit(inv.Stdout),
		"warn":  emit(inv.Stderr),
		"error": emit(inv.Stderr),
	}
	for name, sink := range methods {
		sink := sink
		_ = obj.Set(name, func(call goja.FunctionCall) goja.Value {
			sink(formatArgs(call.Arguments))
			return goja.Undefined()
		})
	}
	// trace/group/table/assert fall back to the base console implementation
	// when present, otherwise no-op.
	for _, name := range []string{"trace", "group", "groupEnd", "table", "assert", "time", "timeEnd", "dir"} {
		if baseObj, ok := base.(*goja.Object); ok {
			if fn := baseObj.Get(name); fn != nil && !goja.IsUndefined(fn) {
				_ = obj.Set(name, fn)
				continue
			}
		}
		_ = obj.Set(name, func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	}

	return vm.Set("console", obj)
}

func emit(sink func(string)) func(string) {
	if sink == nil {
		return func(string) {}
	}
	return sink
}

func formatArgs(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	return strings.Join(parts, " ")
}
