// Package eventtargetapi installs a DOM-style EventTarget constructor
// (addEventListener/removeEventListener/dispatchEvent), distinct from
// eventsapi's Node EventEmitter: this is the shape WHATWG fetch/ws/abort
// APIs expect callers to implement.
package eventtargetapi

import (
	"github.com/dop251/goja"

	"github.com/faasforge/faascore/core/sandbox"
)

type handler struct {
	raw goja.Value
	fn  goja.Callable
}

func Install(vm *goja.Runtime, _ *sandbox.Invocation) error {
	ctor := func(call goja.ConstructorCall) *goja.Object {
		handlers := map[string][]handler{}
		this := call.This

		_ = this.Set("addEventListener", func(c goja.FunctionCall) goja.Value {
			typ, raw, fn := listenerArgs(c)
			if fn != nil {
				handlers[typ] = append(handlers[typ], handler{raw: raw, fn: fn})
			}
			return goja.Undefined()
		})

		_ = this.Set("removeEventListener", func(c goja.FunctionCall) goja.Value {
			typ, raw, _ := listenerArgs(c)
			if raw == nil {
				return goja.Undefined()
			}
			list := handlers[typ]
			out := list[:0]
			for _, h := range list {
				if !h.raw.SameAs(raw) {
					out = append(out, h)
				}
			}
			handlers[typ] = out
			return goja.Undefined()
		})

		_ = this.Set("dispatchEvent", func(c goja.FunctionCall) goja.Value {
			if len(c.Arguments) == 0 {
				return vm.ToValue(true)
			}
			evt := c.Arguments[0]
			typ := ""
			if obj, ok := evt.(*goja.Object); ok {
				typ = obj.Get("type").String()
			}
			for _, h := range handlers[typ] {
				_, _ = h.fn(this, evt)
			}
			return vm.ToValue(true)
		})

		return nil
	}

	return vm.Set("EventTarget", ctor)
}

func listenerArgs(c goja.FunctionCall) (typ string, raw goja.Value, fn goja.Callable) {
	if len(c.Arguments) > 0 {
		typ = c.Arguments[0].String()
	}
	if len(c.Arguments) > 1 {
		raw = c.Arguments[1]
		fn, _ = goja.AssertFunction(raw)
	}
	return typ, raw, fn
}
