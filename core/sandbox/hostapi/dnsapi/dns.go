// Package dnsapi installs a require("dns")-shaped module doing real
// resolution via net.DefaultResolver, still gated by the invocation's
// Enforcer so a function can't probe hosts outside its network policy.
package dnsapi

import (
	"context"
	"net"

	"github.com/dop251/goja"

	"github.com/faasforge/faascore/core/apierr"
	"github.com/faasforge/faascore/core/sandbox"
)

func Install(vm *goja.Runtime, inv *sandbox.Invocation) error {
	obj := vm.NewObject()

	_ = obj.Set("lookup", func(call goja.FunctionCall) goja.Value {
		host := arg(call, 0)
		p, resolve, reject := vm.NewPromise()
		inv.Loop.PostMacrotask(func() {
			if err := inv.Policy.CheckOutboundURL("dns", host); err != nil {
				_ = reject(vm.ToValue(err))
				return
			}
			addrs, err := net.DefaultResolver.LookupHost(context.Background(), host)
			if err != nil {
				_ = reject(vm.ToValue(apierr.Wrap(apierr.InternalError, "dns lookup failed", err)))
				return
			}
			if len(addrs) == 0 {
				_ = reject(vm.ToValue(apierr.NewUserError("no addresses found for " + host)))
				return
			}
			_ = resolve(vm.ToValue(addrs[0]))
		})
		return vm.ToValue(p)
	})

	_ = obj.Set("resolve", func(call goja.FunctionCall) goja.Value {
		host := arg(call, 0)
		p, resolve, reject := vm.NewPromise()
		inv.Loop.PostMacrotask(func() {
			if err := inv.Policy.CheckOutboundURL("dns", host); err != nil {
				_ = reject(vm.ToValue(err))
				return
			}
			addrs, err := net.DefaultResolver.LookupHost(context.Background(), host)
			if err != nil {
				_ = reject(vm.ToValue(apierr.Wrap(apierr.InternalError, "dns lookup failed", err)))
				return
			}
			_ = resolve(vm.ToValue(addrs))
		})
		return vm.ToValue(p)
	})

	return vm.Set("dns", obj)
}

func arg(call goja.FunctionCall, i int) string {
	if i >= len(call.Arguments) {
		return ""
	}
	return call.Arguments[i].String()
}
