// Package eventsapi installs a require("events")-shaped EventEmitter
// constructor, the Node-style pub/sub primitive user handlers commonly
// build request pipelines on top of.
package eventsapi

import (
	"github.com/dop251/goja"

	"github.com/faasforge/faascore/core/sandbox"
)

// listener pairs a registered callback with the JS function value the user
// originally passed, so off()/removeListener() can match by reference
// equality on the goja.Value rather than on the Go closure (which is never
// comparable once wrapped by goja.AssertFunction).
type listener struct {
	raw goja.Value
	fn  goja.Callable
}

func Install(vm *goja.Runtime, _ *sandbox.Invocation) error {
	ctor := func(call goja.ConstructorCall) *goja.Object {
		listeners := map[string][]listener{}
		this := call.This

		on := func(c goja.FunctionCall) goja.Value {
			name, raw, fn := eventArgs(c)
			if fn != nil {
				listeners[name] = append(listeners[name], listener{raw: raw, fn: fn})
			}
			return this
		}
		_ = this.Set("on", on)
		_ = this.Set("addListener", on)

		_ = this.Set("once", func(c goja.FunctionCall) goja.Value {
			name, raw, fn := eventArgs(c)
			if fn == nil {
				return this
			}
			fired := false
			wrapped := func(_ goja.Value, args ...goja.Value) (goja.Value, error) {
				if fired {
					return goja.Undefined(), nil
				}
				fired = true
				removeByRaw(listeners, name, raw)
				return fn(goja.Undefined(), args...)
			}
			listeners[name] = append(listeners[name], listener{raw: raw, fn: wrapped})
			return this
		})

		off := func(c goja.FunctionCall) goja.Value {
			name, raw, _ := eventArgs(c)
			removeByRaw(listeners, name, raw)
			return this
		}
		_ = this.Set("off", off)
		_ = this.Set("removeListener", off)

		_ = this.Set("emit", func(c goja.FunctionCall) goja.Value {
			if len(c.Arguments) == 0 {
				return goja.ValueFalse
			}
			name := c.Arguments[0].String()
			rest := c.Arguments[1:]
			fns := listeners[name]
			for _, l := range fns {
				_, _ = l.fn(goja.Undefined(), rest...)
			}
			return vm.ToValue(len(fns) > 0)
		})

		_ = this.Set("listenerCount", func(c goja.FunctionCall) goja.Value {
			name := ""
			if len(c.Arguments) > 0 {
				name = c.Arguments[0].String()
			}
			return vm.ToValue(len(listeners[name]))
		})

		_ = this.Set("removeAllListeners", func(c goja.FunctionCall) goja.Value {
			if len(c.Arguments) == 0 {
				listeners = map[string][]listener{}
				return this
			}
			delete(listeners, c.Arguments[0].String())
			return this
		})

		return nil
	}

	return vm.Set("EventEmitter", ctor)
}

func eventArgs(c goja.FunctionCall) (name string, raw goja.Value, fn goja.Callable) {
	if len(c.Arguments) > 0 {
		name = c.Arguments[0].String()
	}
	if len(c.Arguments) > 1 {
		raw = c.Arguments[1]
		fn, _ = goja.AssertFunction(raw)
	}
	return name, raw, fn
}

func removeByRaw(listeners map[string][]listener, name string, raw goja.Value) {
	if raw == nil {
		return
	}
	fns := listeners[name]
	out := fns[:0]
	for _, l := range fns {
		if !l.raw.SameAs(raw) {
			out = append(out, l)
		}
	}
	listeners[name] = out
}
