// Package fsapi installs a require("fs")-shaped module over the
// invocation's read-only materialized Virtual FS (core/materializer). Every
// write operation is always denied via the policy's APIFilesystemWrite
// restricted API.
package fsapi

import (
	"github.com/dop251/goja"

	"github.com/faasforge/faascore/core/apierr"
	"github.com/faasforge/faascore/core/policy"
	"github.com/faasforge/faascore/core/sandbox"
	"github.com/faasforge/faascore/core/sandbox/hostapi/bufferapi"
)

func Install(vm *goja.Runtime, inv *sandbox.Invocation) error {
	obj := vm.NewObject()

	_ = obj.Set("readFileSync", func(call goja.FunctionCall) goja.Value {
		p := arg(call, 0)
		f, ok := inv.VFS.Get(normalize(p))
		if !ok || f.IsDir {
			panic(vm.ToValue(apierr.New(apierr.UserError, "no such file: "+p)))
		}
		if len(call.Arguments) > 1 && isUTF8Encoding(call.Arguments[1]) {
			return vm.ToValue(string(f.Content))
		}
		return bufferapi.NewBuffer(vm, append([]byte(nil), f.Content...))
	})

	_ = obj.Set("existsSync", func(call goja.FunctionCall) goja.Value {
		_, ok := inv.VFS.Get(normalize(arg(call, 0)))
		return vm.ToValue(ok)
	})

	_ = obj.Set("statSync", func(call goja.FunctionCall) goja.Value {
		f, ok := inv.VFS.Get(normalize(arg(call, 0)))
		if !ok {
			panic(vm.ToValue(apierr.New(apierr.UserError, "no such file: "+arg(call, 0))))
		}
		stat := vm.NewObject()
		_ = stat.Set("isDirectory", func(goja.FunctionCall) goja.Value { return vm.ToValue(f.IsDir) })
		_ = stat.Set("isFile", func(goja.FunctionCall) goja.Value { return vm.ToValue(!f.IsDir) })
		_ = stat.Set("size", len(f.Content))
		return stat
	})

	_ = obj.Set("readdirSync", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(inv.VFS.List(normalize(arg(call, 0))))
	})

	denyWrite := func(call goja.FunctionCall) goja.Value {
		panic(vm.ToValue(inv.Policy.CheckRestricted(policy.APIFilesystemWrite)))
	}
	for _, name := range []string{"writeFileSync", "mkdirSync", "unlinkSync", "rmdirSync", "appendFileSync", "renameSync"} {
		_ = obj.Set(name, denyWrite)
	}

	return vm.Set("fs", obj)
}

func arg(call goja.FunctionCall, i int) string {
	if i >= len(call.Arguments) {
		return ""
	}
	return call.Arguments[i].String()
}

func normalize(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	return p
}

func isUTF8Encoding(v goja.Value) bool {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return false
	}
	if s, ok := v.Export().(string); ok {
		return s == "utf8" || s == "utf-8"
	}
	if opts, ok := v.Export().(map[string]any); ok {
		enc, _ := opts["encoding"].(string)
		return enc == "utf8" || enc == "utf-8"
	}
	return false
}
