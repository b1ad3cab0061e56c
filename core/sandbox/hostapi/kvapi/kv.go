// Package kvapi installs a require("kv")-shaped module binding the
// invocation's namespaced KV Store (core/kv) into the sandbox, surfaced as
// promise-returning get/set/delete/has/keys.
package kvapi

import (
	"context"
	"time"

	"github.com/dop251/goja"

	"github.com/faasforge/faascore/core/apierr"
	"github.com/faasforge/faascore/core/kv"
	"github.com/faasforge/faascore/core/sandbox"
	"github.com/faasforge/faascore/core/sandbox/hostapi/bufferapi"
)

func Install(vm *goja.Runtime, inv *sandbox.Invocation) error {
	if inv.KVOpen == nil {
		return nil
	}
	raw := inv.KVOpen(inv.Function.ID)
	store, ok := raw.(*kv.Store)
	if !ok || store == nil {
		return nil
	}

	obj := vm.NewObject()

	_ = obj.Set("get", func(call goja.FunctionCall) goja.Value {
		key := arg(call, 0)
		p, resolve, reject := vm.NewPromise()
		inv.Loop.PostMacrotask(func() {
			v, ok, err := store.Get(context.Background(), key)
			if err != nil {
				_ = reject(apierr.NewInternal(err))
				return
			}
			if !ok {
				_ = resolve(goja.Null())
				return
			}
			_ = resolve(vm.ToValue(string(v)))
		})
		return vm.ToValue(p)
	})

	_ = obj.Set("set", func(call goja.FunctionCall) goja.Value {
		key := arg(call, 0)
		var value []byte
		if len(call.Arguments) > 1 {
			value = bufferapi.ExportBytes(call.Arguments[1])
		}
		var ttl time.Duration
		if len(call.Arguments) > 2 {
			ttl = time.Duration(call.Arguments[2].ToInteger()) * time.Millisecond
		}
		p, resolve, reject := vm.NewPromise()
		inv.Loop.PostMacrotask(func() {
			if err := store.Set(context.Background(), key, value, ttl); err != nil {
				_ = reject(apierr.NewInternal(err))
				return
			}
			_ = resolve(goja.Undefined())
		})
		return vm.ToValue(p)
	})

	_ = obj.Set("delete", func(call goja.FunctionCall) goja.Value {
		key := arg(call, 0)
		p, resolve, reject := vm.NewPromise()
		inv.Loop.PostMacrotask(func() {
			if err := store.Delete(context.Background(), key); err != nil {
				_ = reject(apierr.NewInternal(err))
				return
			}
			_ = resolve(goja.Undefined())
		})
		return vm.ToValue(p)
	})

	_ = obj.Set("has", func(call goja.FunctionCall) goja.Value {
		key := arg(call, 0)
		p, resolve, reject := vm.NewPromise()
		inv.Loop.PostMacrotask(func() {
			has, err := store.Has(context.Background(), key)
			if err != nil {
				_ = reject(apierr.NewInternal(err))
				return
			}
			_ = resolve(vm.ToValue(has))
		})
		return vm.ToValue(p)
	})

	_ = obj.Set("keys", func(call goja.FunctionCall) goja.Value {
		p, resolve, reject := vm.NewPromise()
		inv.Loop.PostMacrotask(func() {
			keys, err := store.Keys(context.Background())
			if err != nil {
				_ = reject(apierr.NewInternal(err))
				return
			}
			_ = resolve(vm.ToValue(keys))
		})
		return vm.ToValue(p)
	})

	return vm.Set("kv", obj)
}

func arg(call goja.FunctionCall, i int) string {
	if i >= len(call.Arguments) {
		return ""
	}
	return call.Arguments[i].String()
}
