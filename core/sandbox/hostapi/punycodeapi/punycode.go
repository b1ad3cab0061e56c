// Package punycodeapi installs a require("punycode")-shaped module backed
// by golang.org/x/net/idna, covering the encode/decode pair
// user code typically needs for internationalized host names.
package punycodeapi

import (
	"golang.org/x/net/idna"

	"github.com/dop251/goja"

	"github.com/faasforge/faascore/core/apierr"
	"github.com/faasforge/faascore/core/sandbox"
)

func Install(vm *goja.Runtime, _ *sandbox.Invocation) error {
	obj := vm.NewObject()

	_ = obj.Set("toASCII", func(call goja.FunctionCall) goja.Value {
		input := ""
		if len(call.Arguments) > 0 {
			input = call.Arguments[0].String()
		}
		out, err := idna.ToASCII(input)
		if err != nil {
			panic(vm.ToValue(apierr.NewUserError("invalid domain: " + err.Error())))
		}
		return vm.ToValue(out)
	})

	_ = obj.Set("toUnicode", func(call goja.FunctionCall) goja.Value {
		input := ""
		if len(call.Arguments) > 0 {
			input = call.Arguments[0].String()
		}
		out, err := idna.ToUnicode(input)
		if err != nil {
			panic(vm.ToValue(apierr.NewUserError("invalid domain: " + err.Error())))
		}
		return vm.ToValue(out)
	})

	return vm.Set("punycode", obj)
}
