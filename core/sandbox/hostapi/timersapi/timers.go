// Package timersapi installs setTimeout/setInterval/clearTimeout/
// clearInterval/setImmediate/queueMicrotask onto the global scope, all
// backed by the per-invocation event loop (core/sandbox.Loop) instead of
// real OS timers, so a function's declared timeout remains the only thing
// that can keep an invocation alive.
package timersapi

import (
	"time"

	"github.com/dop251/goja"

	"github.com/faasforge/faascore/core/sandbox"
)

func Install(vm *goja.Runtime, inv *sandbox.Invocation) error {
	loop := inv.Loop

	setTimeout := func(call goja.FunctionCall) goja.Value {
		fn, ms := parseTimerCall(call)
		id := loop.SetTimeout(time.Duration(ms)*time.Millisecond, func() {
			callVMFunc(vm, fn)
		})
		return vm.ToValue(id)
	}
	setInterval := func(call goja.FunctionCall) goja.Value {
		fn, ms := parseTimerCall(call)
		id := loop.SetInterval(time.Duration(ms)*time.Millisecond, func() {
			callVMFunc(vm, fn)
		})
		return vm.ToValue(id)
	}
	clearTimer := func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Undefined()
		}
		loop.ClearTimer(call.Arguments[0].ToInteger())
		return goja.Undefined()
	}
	setImmediate := func(call goja.FunctionCall) goja.Value {
		fn, _ := parseTimerCall(call)
		id := loop.SetTimeout(0, func() { callVMFunc(vm, fn) })
		return vm.ToValue(id)
	}
	queueMicrotask := func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Undefined()
		}
		fn, ok := goja.AssertFunction(call.Arguments[0])
		if !ok {
			return goja.Undefined()
		}
		loop.QueueMicrotask(func() { _, _ = fn(goja.Undefined()) })
		return goja.Undefined()
	}

	if err := vm.Set("setTimeout", setTimeout); err != nil {
		return err
	}
	if err := vm.Set("setInterval", setInterval); err != nil {
		return err
	}
	if err := vm.Set("clearTimeout", clearTimer); err != nil {
		return err
	}
	if err := vm.Set("clearInterval", clearTimer); err != nil {
		return err
	}
	if err := vm.Set("setImmediate", setImmediate); err != nil {
		return err
	}
	return vm.Set("queueMicrotask", queueMicrotask)
}

func parseTimerCall(call goja.FunctionCall) (goja.Value, int64) {
	var fn goja.Value
	var ms int64
	if len(call.Arguments) > 0 {
		fn = call.Arguments[0]
	}
	if len(call.Arguments) > 1 {
		ms = call.Arguments[1].ToInteger()
	}
	return fn, ms
}

func callVMFunc(vm *goja.Runtime, v goja.Value) {
	if v == nil {
		return
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return
	}
	_, _ = fn(goja.Undefined())
}
