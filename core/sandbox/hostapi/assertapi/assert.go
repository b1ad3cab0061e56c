// Package assertapi installs a require("assert")-shaped module, modeled on
// the cross-pack runtime-js.go.go's NewAssert helper: assertion failures
// throw an apierr.UserError rather than returning a boolean.
package assertapi

import (
	"fmt"
	"reflect"

	"github.com/dop251/goja"

	"github.com/faasforge/faascore/core/apierr"
	"github.com/faasforge/faascore/core/sandbox"
)

func Install(vm *goja.Runtime, _ *sandbox.Invocation) error {
	fail := func(message string) {
		panic(vm.ToValue(apierr.NewUserError(message)))
	}

	assertFn := func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 || !call.Arguments[0].ToBoolean() {
			msg := "assertion failed"
			if len(call.Arguments) > 1 {
				msg = call.Arguments[1].String()
			}
			fail(msg)
		}
		return goja.Undefined()
	}

	if err := vm.Set("assert", assertFn); err != nil {
		return err
	}
	obj, ok := vm.Get("assert").(*goja.Object)
	if !ok {
		return apierr.NewInternal(fmt.Errorf("assert did not resolve to an object"))
	}
	_ = obj.Set("ok", assertFn)
	_ = obj.Set("equal", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			fail("assert.equal requires two arguments")
		}
		a, b := call.Arguments[0].Export(), call.Arguments[1].Export()
		if fmt.Sprint(a) != fmt.Sprint(b) {
			fail(fmt.Sprintf("expected %v to equal %v", a, b))
		}
		return goja.Undefined()
	})
	_ = obj.Set("deepEqual", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			fail("assert.deepEqual requires two arguments")
		}
		a, b := call.Arguments[0].Export(), call.Arguments[1].Export()
		if !reflect.DeepEqual(a, b) {
			fail(fmt.Sprintf("expected %v to deeply equal %v", a, b))
		}
		return goja.Undefined()
	})
	_ = obj.Set("throws", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			fail("assert.throws requires a function")
		}
		fn, ok := goja.AssertFunction(call.Arguments[0])
		if !ok {
			fail("assert.throws requires a function")
		}
		if _, err := fn(goja.Undefined()); err == nil {
			fail("expected function to throw")
		}
		return goja.Undefined()
	})

	return nil
}
