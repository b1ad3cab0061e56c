// Package pathapi installs a require("path")-shaped module using POSIX
// semantics only (the sandbox never runs on a real filesystem, so there is
// no platform-specific separator to model).
package pathapi

import (
	"path"
	"strings"

	"github.com/dop251/goja"

	"github.com/faasforge/faascore/core/sandbox"
)

func Install(vm *goja.Runtime, _ *sandbox.Invocation) error {
	obj := vm.NewObject()

	_ = obj.Set("join", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		return vm.ToValue(path.Join(parts...))
	})
	_ = obj.Set("resolve", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		joined := path.Join(parts...)
		if !strings.HasPrefix(joined, "/") {
			joined = "/" + joined
		}
		return vm.ToValue(path.Clean(joined))
	})
	_ = obj.Set("dirname", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(path.Dir(arg(call, 0)))
	})
	_ = obj.Set("basename", func(call goja.FunctionCall) goja.Value {
		b := path.Base(arg(call, 0))
		if len(call.Arguments) > 1 {
			b = strings.TrimSuffix(b, arg(call, 1))
		}
		return vm.ToValue(b)
	})
	_ = obj.Set("extname", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(path.Ext(arg(call, 0)))
	})
	_ = obj.Set("normalize", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(path.Clean(arg(call, 0)))
	})
	_ = obj.Set("isAbsolute", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(strings.HasPrefix(arg(call, 0), "/"))
	})
	_ = obj.Set("sep", "/")
	_ = obj.Set("delimiter", ":")

	return vm.Set("path", obj)
}

func arg(call goja.FunctionCall, i int) string {
	if i >= len(call.Arguments) {
		return ""
	}
	return call.Arguments[i].String()
}
