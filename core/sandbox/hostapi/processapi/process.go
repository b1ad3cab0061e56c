// Package processapi installs a restricted `process` global: env snapshot,
// nextTick, stdout/stderr writers, and a process-control surface that is
// always denied via the policy's APIProcessControl restricted API.
package processapi

import (
	"time"

	"github.com/dop251/goja"

	"github.com/faasforge/faascore/core/policy"
	"github.com/faasforge/faascore/core/sandbox"
)

func Install(vm *goja.Runtime, inv *sandbox.Invocation) error {
	obj := vm.NewObject()

	env := vm.NewObject()
	for k, v := range inv.Env {
		if err := env.Set(k, v); err != nil {
			return err
		}
	}
	if err := obj.Set("env", env); err != nil {
		return err
	}

	if err := obj.Set("nextTick", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Undefined()
		}
		fn, ok := goja.AssertFunction(call.Arguments[0])
		if !ok {
			return goja.Undefined()
		}
		args := append([]goja.Value(nil), call.Arguments[1:]...)
		inv.Loop.QueueNextTick(func() { _, _ = fn(goja.Undefined(), args...) })
		return goja.Undefined()
	}); err != nil {
		return err
	}

	stdout := vm.NewObject()
	_ = stdout.Set("write", writeFunc(inv.Stdout))
	if err := obj.Set("stdout", stdout); err != nil {
		return err
	}

	stderr := vm.NewObject()
	_ = stderr.Set("write", writeFunc(inv.Stderr))
	if err := obj.Set("stderr", stderr); err != nil {
		return err
	}

	denyControl := func(call goja.FunctionCall) goja.Value {
		panic(vm.ToValue(inv.Policy.CheckRestricted(policy.APIProcessControl)))
	}
	if err := obj.Set("exit", denyControl); err != nil {
		return err
	}
	if err := obj.Set("abort", denyControl); err != nil {
		return err
	}
	if err := obj.Set("kill", denyControl); err != nil {
		return err
	}

	if err := obj.Set("hrtime", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(time.Now().UnixNano())
	}); err != nil {
		return err
	}

	return vm.Set("process", obj)
}

func writeFunc(sink func(string)) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if sink != nil && len(call.Arguments) > 0 {
			sink(call.Arguments[0].String())
		}
		return goja.Undefined()
	}
}
