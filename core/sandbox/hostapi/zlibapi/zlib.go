// Package zlibapi installs a require("zlib")-shaped module backed by Go's
// stdlib compress/gzip and compress/flate, plus klauspost/compress's brotli
// codec for parity with Node's gzip/deflate/brotli trio.
package zlibapi

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"

	"github.com/dop251/goja"
	"github.com/klauspost/compress/brotli"

	"github.com/faasforge/faascore/core/apierr"
	"github.com/faasforge/faascore/core/sandbox"
	"github.com/faasforge/faascore/core/sandbox/hostapi/bufferapi"
)

func Install(vm *goja.Runtime, _ *sandbox.Invocation) error {
	obj := vm.NewObject()

	_ = obj.Set("gzipSync", func(call goja.FunctionCall) goja.Value {
		data := bytesArg(call, 0)
		level := levelOption(call, 1, gzip.DefaultCompression)
		var buf bytes.Buffer
		w, err := gzip.NewWriterLevel(&buf, level)
		if err != nil {
			panic(vm.ToValue(apierr.NewUserError("invalid gzip level: " + err.Error())))
		}
		if _, err := w.Write(data); err != nil {
			panic(vm.ToValue(apierr.NewInternal(err)))
		}
		if err := w.Close(); err != nil {
			panic(vm.ToValue(apierr.NewInternal(err)))
		}
		return bufferapi.NewBuffer(vm, buf.Bytes())
	})

	_ = obj.Set("gunzipSync", func(call goja.FunctionCall) goja.Value {
		data := bytesArg(call, 0)
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			panic(vm.ToValue(apierr.NewUserError("invalid gzip stream: " + err.Error())))
		}
		out, err := io.ReadAll(r)
		if err != nil {
			panic(vm.ToValue(apierr.NewUserError("invalid gzip stream: " + err.Error())))
		}
		return bufferapi.NewBuffer(vm, out)
	})

	_ = obj.Set("deflateSync", func(call goja.FunctionCall) goja.Value {
		data := bytesArg(call, 0)
		level := levelOption(call, 1, flate.DefaultCompression)
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, level)
		if err != nil {
			panic(vm.ToValue(apierr.NewUserError("invalid deflate level: " + err.Error())))
		}
		if _, err := w.Write(data); err != nil {
			panic(vm.ToValue(apierr.NewInternal(err)))
		}
		if err := w.Close(); err != nil {
			panic(vm.ToValue(apierr.NewInternal(err)))
		}
		return bufferapi.NewBuffer(vm, buf.Bytes())
	})

	_ = obj.Set("inflateSync", func(call goja.FunctionCall) goja.Value {
		data := bytesArg(call, 0)
		r := flate.NewReader(bytes.NewReader(data))
		out, err := io.ReadAll(r)
		if err != nil {
			panic(vm.ToValue(apierr.NewUserError("invalid deflate stream: " + err.Error())))
		}
		return bufferapi.NewBuffer(vm, out)
	})

	_ = obj.Set("brotliCompressSync", func(call goja.FunctionCall) goja.Value {
		data := bytesArg(call, 0)
		level := levelOption(call, 1, brotli.DefaultCompression)
		var buf bytes.Buffer
		w := brotli.NewWriterLevel(&buf, level)
		if _, err := w.Write(data); err != nil {
			panic(vm.ToValue(apierr.NewInternal(err)))
		}
		if err := w.Close(); err != nil {
			panic(vm.ToValue(apierr.NewInternal(err)))
		}
		return bufferapi.NewBuffer(vm, buf.Bytes())
	})

	_ = obj.Set("brotliDecompressSync", func(call goja.FunctionCall) goja.Value {
		data := bytesArg(call, 0)
		r := brotli.NewReader(bytes.NewReader(data))
		out, err := io.ReadAll(r)
		if err != nil {
			panic(vm.ToValue(apierr.NewUserError("invalid brotli stream: " + err.Error())))
		}
		return bufferapi.NewBuffer(vm, out)
	})

	return vm.Set("zlib", obj)
}

// levelOption reads an optional {level} options object at argument index i,
// falling back to def. Node's zlib options also carry chunkSize/memLevel/
// strategy knobs this sandbox does not expose.
func levelOption(call goja.FunctionCall, i, def int) int {
	if i >= len(call.Arguments) {
		return def
	}
	opts, ok := call.Arguments[i].Export().(map[string]any)
	if !ok {
		return def
	}
	switch v := opts["level"].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func bytesArg(call goja.FunctionCall, i int) []byte {
	if i >= len(call.Arguments) {
		return nil
	}
	return bufferapi.ExportBytes(call.Arguments[i])
}
