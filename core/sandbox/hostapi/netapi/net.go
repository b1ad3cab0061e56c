// Package netapi installs fetch and a minimal require("http")/require("https")
// surface, all routed through net/http and gated by the invocation's
// Enforcer.CheckOutboundURL before any connection is attempted, plus a ws
// module built on gorilla/websocket.
package netapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/gorilla/websocket"

	"github.com/faasforge/faascore/core/apierr"
	"github.com/faasforge/faascore/core/sandbox"
	"github.com/faasforge/faascore/core/sandbox/hostapi/bufferapi"
)

var sharedClient = &http.Client{Timeout: 60 * time.Second}

// Install wires `fetch`, `http`, `https`, and `ws` into vm. Every outbound
// call is checked against inv.Policy before the request is issued; a denial
// rejects the returned promise with a policy_denied apierr.Error instead of
// ever reaching the network.
func Install(vm *goja.Runtime, inv *sandbox.Invocation) error {
	fetchFn := func(call goja.FunctionCall) goja.Value {
		p, resolve, reject := vm.NewPromise()
		reqURL, opts := fetchArgs(call)

		inv.Loop.PostMacrotask(func() {
			resp, body, err := doRequest(inv, reqURL, opts)
			if err != nil {
				_ = reject(toJSValue(vm, err))
				return
			}
			_ = resolve(vm.ToValue(responseObject(vm, resp, body)))
		})
		return vm.ToValue(p)
	}
	if err := vm.Set("fetch", fetchFn); err != nil {
		return err
	}

	httpModule := vm.NewObject()
	_ = httpModule.Set("request", requestShim(vm, inv, "http"))
	_ = httpModule.Set("get", getShim(vm, inv, "http"))
	if err := vm.Set("http", httpModule); err != nil {
		return err
	}

	httpsModule := vm.NewObject()
	_ = httpsModule.Set("request", requestShim(vm, inv, "https"))
	_ = httpsModule.Set("get", getShim(vm, inv, "https"))
	if err := vm.Set("https", httpsModule); err != nil {
		return err
	}

	wsModule := vm.NewObject()
	_ = wsModule.Set("connect", func(call goja.FunctionCall) goja.Value {
		target := arg(call, 0)
		p, resolve, reject := vm.NewPromise()
		inv.Loop.PostMacrotask(func() {
			conn, err := dialWS(inv, target)
			if err != nil {
				_ = reject(toJSValue(vm, err))
				return
			}
			_ = resolve(vm.ToValue(wsConnObject(vm, inv, conn)))
		})
		return vm.ToValue(p)
	})
	return vm.Set("ws", wsModule)
}

type requestOpts struct {
	method  string
	headers map[string]string
	body    []byte
}

func fetchArgs(call goja.FunctionCall) (string, requestOpts) {
	reqURL := arg(call, 0)
	opts := requestOpts{method: http.MethodGet, headers: map[string]string{}}
	if len(call.Arguments) > 1 {
		optsObj, _ := call.Arguments[1].(*goja.Object)
		if m, ok := call.Arguments[1].Export().(map[string]any); ok {
			if method, ok := m["method"].(string); ok && method != "" {
				opts.method = strings.ToUpper(method)
			}
			if h, ok := m["headers"].(map[string]any); ok {
				for k, v := range h {
					opts.headers[k] = toString(v)
				}
			}
		}
		if optsObj != nil {
			if body := optsObj.Get("body"); body != nil && !goja.IsUndefined(body) && !goja.IsNull(body) {
				opts.body = bufferapi.ExportBytes(body)
			}
		}
	}
	return reqURL, opts
}

func requestShim(vm *goja.Runtime, inv *sandbox.Invocation, scheme string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		target := scheme + "://" + arg(call, 0)
		if strings.Contains(arg(call, 0), "://") {
			target = arg(call, 0)
		}
		_, opts := fetchArgs(call)
		p, resolve, reject := vm.NewPromise()
		inv.Loop.PostMacrotask(func() {
			resp, body, err := doRequest(inv, target, opts)
			if err != nil {
				_ = reject(toJSValue(vm, err))
				return
			}
			_ = resolve(vm.ToValue(responseObject(vm, resp, body)))
		})
		return vm.ToValue(p)
	}
}

func getShim(vm *goja.Runtime, inv *sandbox.Invocation, scheme string) func(goja.FunctionCall) goja.Value {
	req := requestShim(vm, inv, scheme)
	return func(call goja.FunctionCall) goja.Value {
		return req(call)
	}
}

func doRequest(inv *sandbox.Invocation, rawURL string, opts requestOpts) (*http.Response, []byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, apierr.NewUserError("invalid url: " + rawURL)
	}
	if err := inv.Policy.CheckOutboundURL(u.Scheme, u.Host); err != nil {
		return nil, nil, err
	}

	var bodyReader io.Reader
	if len(opts.body) > 0 {
		bodyReader = bytes.NewReader(opts.body)
	}
	method := opts.method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(context.Background(), method, rawURL, bodyReader)
	if err != nil {
		return nil, nil, apierr.NewUserError("invalid request: " + err.Error())
	}
	for k, v := range opts.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := sharedClient.Do(httpReq)
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.InternalError, "fetch failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.InternalError, "reading response body", err)
	}
	return resp, body, nil
}

func responseObject(vm *goja.Runtime, resp *http.Response, body []byte) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("ok", resp.StatusCode >= 200 && resp.StatusCode < 300)
	_ = obj.Set("status", resp.StatusCode)
	_ = obj.Set("statusText", resp.Status)

	headers := vm.NewObject()
	for k := range resp.Header {
		_ = headers.Set(strings.ToLower(k), resp.Header.Get(k))
	}
	_ = obj.Set("headers", headers)

	_ = obj.Set("text", func(call goja.FunctionCall) goja.Value {
		p, resolve, _ := vm.NewPromise()
		_ = resolve(vm.ToValue(string(body)))
		return vm.ToValue(p)
	})
	_ = obj.Set("json", func(call goja.FunctionCall) goja.Value {
		p, resolve, reject := vm.NewPromise()
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			_ = reject(toJSValue(vm, apierr.NewUserError("invalid json response")))
		} else {
			_ = resolve(vm.ToValue(v))
		}
		return vm.ToValue(p)
	})
	_ = obj.Set("arrayBuffer", func(call goja.FunctionCall) goja.Value {
		p, resolve, _ := vm.NewPromise()
		_ = resolve(vm.ToValue(body))
		return vm.ToValue(p)
	})
	return obj
}

func dialWS(inv *sandbox.Invocation, rawURL string) (*websocket.Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, apierr.NewUserError("invalid url: " + rawURL)
	}
	scheme := "ws"
	if u.Scheme == "wss" {
		scheme = "wss"
	}
	if err := inv.Policy.CheckOutboundURL(scheme, u.Host); err != nil {
		return nil, err
	}
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.Dial(rawURL, nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.InternalError, "websocket dial failed", err)
	}
	return conn, nil
}

func wsConnObject(vm *goja.Runtime, inv *sandbox.Invocation, conn *websocket.Conn) *goja.Object {
	obj := vm.NewObject()
	var onMessage, onClose goja.Callable

	_ = obj.Set("onMessage", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 0 {
			onMessage, _ = goja.AssertFunction(call.Arguments[0])
		}
		return goja.Undefined()
	})
	_ = obj.Set("onClose", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 0 {
			onClose, _ = goja.AssertFunction(call.Arguments[0])
		}
		return goja.Undefined()
	})
	_ = obj.Set("send", func(call goja.FunctionCall) goja.Value {
		msg := arg(call, 0)
		inv.Loop.PostMacrotask(func() {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		})
		return goja.Undefined()
	})
	_ = obj.Set("close", func(call goja.FunctionCall) goja.Value {
		inv.Loop.PostMacrotask(func() {
			_ = conn.Close()
			if onClose != nil {
				_, _ = onClose(goja.Undefined())
			}
		})
		return goja.Undefined()
	})

	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				inv.Loop.PostMacrotask(func() {
					if onClose != nil {
						_, _ = onClose(goja.Undefined())
					}
				})
				return
			}
			text := string(msg)
			inv.Loop.PostMacrotask(func() {
				if onMessage != nil {
					_, _ = onMessage(goja.Undefined(), vm.ToValue(text))
				}
			})
		}
	}()

	return obj
}

func arg(call goja.FunctionCall, i int) string {
	if i >= len(call.Arguments) {
		return ""
	}
	return call.Arguments[i].String()
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toJSValue(vm *goja.Runtime, err error) goja.Value {
	return vm.ToValue(err)
}
