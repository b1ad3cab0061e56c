// Package urlapi installs a WHATWG-flavored URL global backed by Go's
// net/url, plus a legacy require("url").parse compatible with older code.
package urlapi

import (
	"net/url"

	"github.com/dop251/goja"

	"github.com/faasforge/faascore/core/sandbox"
)

func Install(vm *goja.Runtime, _ *sandbox.Invocation) error {
	ctor := func(call goja.ConstructorCall) *goja.Object {
		raw := ""
		if len(call.Arguments) > 0 {
			raw = call.Arguments[0].String()
		}
		u, err := url.Parse(raw)
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		obj := call.This
		_ = obj.Set("href", u.String())
		_ = obj.Set("protocol", u.Scheme+":")
		_ = obj.Set("host", u.Host)
		_ = obj.Set("hostname", u.Hostname())
		_ = obj.Set("port", u.Port())
		_ = obj.Set("pathname", u.Path)
		_ = obj.Set("search", searchString(u))
		_ = obj.Set("hash", fragmentString(u))
		_ = obj.Set("origin", u.Scheme+"://"+u.Host)
		_ = obj.Set("toString", func(goja.FunctionCall) goja.Value { return vm.ToValue(u.String()) })
		return nil
	}

	if err := vm.Set("URL", ctor); err != nil {
		return err
	}

	legacy := vm.NewObject()
	_ = legacy.Set("parse", func(call goja.FunctionCall) goja.Value {
		raw := ""
		if len(call.Arguments) > 0 {
			raw = call.Arguments[0].String()
		}
		u, err := url.Parse(raw)
		if err != nil {
			return goja.Null()
		}
		out := vm.NewObject()
		_ = out.Set("protocol", u.Scheme+":")
		_ = out.Set("host", u.Host)
		_ = out.Set("hostname", u.Hostname())
		_ = out.Set("port", u.Port())
		_ = out.Set("pathname", u.Path)
		_ = out.Set("search", searchString(u))
		_ = out.Set("hash", fragmentString(u))
		return out
	})
	return vm.Set("legacyUrl", legacy)
}

func searchString(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	return "?" + u.RawQuery
}

func fragmentString(u *url.URL) string {
	if u.Fragment == "" {
		return ""
	}
	return "#" + u.Fragment
}
