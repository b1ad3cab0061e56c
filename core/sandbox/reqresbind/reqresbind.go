// Package reqresbind wires core/reqres's Go-side req/res state machine into
// a goja.Runtime as the `req`/`res` values passed to the user handler.
// It is the one place that translates reqres's (value, error)
// returns into goja's panic-to-throw convention, the same idiom
// system/tee/sdk_adapter.go uses to surface Go errors as JS exceptions.
package reqresbind

import (
	"net/http"

	"github.com/dop251/goja"

	"github.com/faasforge/faascore/core/reqres"
	"github.com/faasforge/faascore/core/sandbox/hostapi/bufferapi"
)

// BindRequest builds the read-only `req` object exposed to user code.
func BindRequest(vm *goja.Runtime, req *reqres.Request) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("method", req.Method)
	_ = obj.Set("path", req.Path)
	_ = obj.Set("url", req.URL)
	_ = obj.Set("query", req.Query)
	_ = obj.Set("headers", req.Headers)
	_ = obj.Set("cookies", req.Cookies)
	_ = obj.Set("params", req.Params)
	if raw, ok := req.Body.([]byte); ok {
		_ = obj.Set("body", bufferapi.NewBuffer(vm, raw))
	} else {
		_ = obj.Set("body", req.Body)
	}
	_ = obj.Set("ip", req.IP)
	_ = obj.Set("xhr", req.XHR)

	_ = obj.Set("get", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(req.Get(stringArg(call, 0)))
	})
	_ = obj.Set("header", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(req.Header(stringArg(call, 0)))
	})
	_ = obj.Set("is", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(req.Is(stringArg(call, 0)))
	})
	_ = obj.Set("accepts", func(call goja.FunctionCall) goja.Value {
		types := make([]string, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			types = append(types, a.String())
		}
		return vm.ToValue(req.Accepts(types))
	})

	return obj
}

// BindResponse builds the `res` object exposed to user code, mapping every
// response operation onto the Go state machine in core/reqres.
// Every method that returns an error panics with the error value so goja
// surfaces it as a thrown JS exception (e.g. calling res.json() twice).
func BindResponse(vm *goja.Runtime, res *reqres.Response) *goja.Object {
	obj := vm.NewObject()

	_ = obj.Set("status", func(call goja.FunctionCall) goja.Value {
		mustNil(vm, res.Status(int(call.Argument(0).ToInteger())))
		return obj.Get("self")
	})
	_ = obj.Set("set", func(call goja.FunctionCall) goja.Value {
		mustNil(vm, res.SetHeader(stringArg(call, 0), stringArg(call, 1)))
		return goja.Undefined()
	})
	_ = obj.Set("get", func(call goja.FunctionCall) goja.Value {
		v, err := res.GetHeader(stringArg(call, 0))
		mustNil(vm, err)
		return vm.ToValue(v)
	})
	_ = obj.Set("removeHeader", func(call goja.FunctionCall) goja.Value {
		mustNil(vm, res.RemoveHeader(stringArg(call, 0)))
		return goja.Undefined()
	})
	_ = obj.Set("type", func(call goja.FunctionCall) goja.Value {
		mustNil(vm, res.Type(stringArg(call, 0)))
		return goja.Undefined()
	})
	_ = obj.Set("cookie", func(call goja.FunctionCall) goja.Value {
		name := stringArg(call, 0)
		value := stringArg(call, 1)
		c := &http.Cookie{Name: name, Value: value}
		if len(call.Arguments) > 2 {
			if opts, ok := call.Arguments[2].Export().(map[string]any); ok {
				applyCookieOpts(c, opts)
			}
		}
		mustNil(vm, res.Cookie(c))
		return goja.Undefined()
	})
	_ = obj.Set("write", func(call goja.FunctionCall) goja.Value {
		mustNil(vm, res.Write(bodyArg(call, 0)))
		return goja.Undefined()
	})
	_ = obj.Set("json", func(call goja.FunctionCall) goja.Value {
		var v any
		if len(call.Arguments) > 0 {
			v = call.Arguments[0].Export()
		}
		mustNil(vm, res.JSON(v))
		return goja.Undefined()
	})
	_ = obj.Set("send", func(call goja.FunctionCall) goja.Value {
		var v any
		if len(call.Arguments) > 0 {
			if bufferapi.IsBuffer(call.Arguments[0]) {
				v = bufferapi.ExportBytes(call.Arguments[0])
			} else {
				v = call.Arguments[0].Export()
			}
		}
		mustNil(vm, res.Send(v))
		return goja.Undefined()
	})
	_ = obj.Set("end", func(call goja.FunctionCall) goja.Value {
		mustNil(vm, res.End())
		return goja.Undefined()
	})
	_ = obj.Set("redirect", func(call goja.FunctionCall) goja.Value {
		code, location := redirectArgs(call)
		mustNil(vm, res.Redirect(code, location))
		return goja.Undefined()
	})
	_ = obj.Set("pipe", func(call goja.FunctionCall) goja.Value {
		mustNil(vm, res.Pipe(bodyArg(call, 0)))
		return goja.Undefined()
	})

	_ = obj.Set("self", obj)
	return obj
}

// redirectArgs supports both res.redirect(location) and
// res.redirect(code, location), mirroring Express's overload.
func redirectArgs(call goja.FunctionCall) (int, string) {
	if len(call.Arguments) == 1 {
		return 0, call.Arguments[0].String()
	}
	return int(call.Argument(0).ToInteger()), stringArg(call, 1)
}

func applyCookieOpts(c *http.Cookie, opts map[string]any) {
	if v, ok := opts["path"].(string); ok {
		c.Path = v
	}
	if v, ok := opts["domain"].(string); ok {
		c.Domain = v
	}
	if v, ok := opts["httpOnly"].(bool); ok {
		c.HttpOnly = v
	}
	if v, ok := opts["secure"].(bool); ok {
		c.Secure = v
	}
	if v, ok := opts["maxAge"].(int64); ok {
		c.MaxAge = int(v)
	}
}

func stringArg(call goja.FunctionCall, i int) string {
	if i >= len(call.Arguments) {
		return ""
	}
	return call.Arguments[i].String()
}

// bodyArg accepts either a Buffer (res.write/res.pipe take raw bytes in
// Node too) or a plain string argument.
func bodyArg(call goja.FunctionCall, i int) []byte {
	if i >= len(call.Arguments) {
		return nil
	}
	if bufferapi.IsBuffer(call.Arguments[i]) {
		return bufferapi.ExportBytes(call.Arguments[i])
	}
	return []byte(call.Arguments[i].String())
}

func mustNil(vm *goja.Runtime, err error) {
	if err != nil {
		panic(vm.ToValue(err))
	}
}
