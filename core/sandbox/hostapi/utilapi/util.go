// Package utilapi installs a small require("util")-shaped module: format,
// inspect, and type predicates commonly used by user handlers.
package utilapi

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/faasforge/faascore/core/sandbox"
)

func Install(vm *goja.Runtime, _ *sandbox.Invocation) error {
	obj := vm.NewObject()

	_ = obj.Set("format", func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = a.Export()
		}
		if len(args) == 0 {
			return vm.ToValue("")
		}
		format, ok := args[0].(string)
		if !ok {
			return vm.ToValue(fmt.Sprint(args...))
		}
		return vm.ToValue(fmt.Sprintf(format, args[1:]...))
	})

	_ = obj.Set("inspect", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue("undefined")
		}
		return vm.ToValue(fmt.Sprintf("%+v", call.Arguments[0].Export()))
	})

	_ = obj.Set("isArray", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue(false)
		}
		_, ok := call.Arguments[0].Export().([]any)
		return vm.ToValue(ok)
	})

	_ = obj.Set("isString", typeCheck(func(v any) bool { _, ok := v.(string); return ok }))
	_ = obj.Set("isNumber", typeCheck(func(v any) bool {
		switch v.(type) {
		case int64, float64:
			return true
		default:
			return false
		}
	}))
	_ = obj.Set("isFunction", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue(false)
		}
		_, ok := goja.AssertFunction(call.Arguments[0])
		return vm.ToValue(ok)
	})

	return vm.Set("util", obj)
}

func typeCheck(pred func(any) bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.ValueFalse
		}
		if pred(call.Arguments[0].Export()) {
			return goja.ValueTrue
		}
		return goja.ValueFalse
	}
}
