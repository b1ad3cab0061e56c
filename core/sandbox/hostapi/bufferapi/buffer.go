// Package bufferapi installs a require("buffer")-shaped Buffer global backed
// by Go byte slices, with the Node instance-method surface (toString,
// slice, compare, equals, fill, copy, typed reads/writes) attached per
// returned value rather than relying on goja's default []byte projection.
package bufferapi

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/dop251/goja"

	"github.com/faasforge/faascore/core/sandbox"
)

// rawAccessor is a hidden method every Buffer object carries so other
// hostapi packages (crypto, zlib) can recover the backing []byte from a
// Buffer argument without re-implementing this package's object shape.
const rawAccessor = "__faascoreBufferRaw"

func Install(vm *goja.Runtime, _ *sandbox.Invocation) error {
	ctor := vm.NewObject()

	_ = ctor.Set("alloc", func(call goja.FunctionCall) goja.Value {
		n := intArg(call, 0, 0)
		data := make([]byte, n)
		if len(call.Arguments) > 1 {
			fillRange(data, call.Arguments[1], 0, len(data))
		}
		return NewBuffer(vm, data)
	})

	_ = ctor.Set("from", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return NewBuffer(vm, nil)
		}
		encoding := "utf8"
		if len(call.Arguments) > 1 {
			encoding = call.Arguments[1].String()
		}
		switch v := call.Arguments[0].Export().(type) {
		case string:
			return NewBuffer(vm, decodeString(v, encoding))
		case []byte:
			return NewBuffer(vm, append([]byte(nil), v...))
		case []any:
			out := make([]byte, 0, len(v))
			for _, item := range v {
				out = append(out, byteOf(item))
			}
			return NewBuffer(vm, out)
		default:
			return NewBuffer(vm, ExportBytes(call.Arguments[0]))
		}
	})

	_ = ctor.Set("concat", func(call goja.FunctionCall) goja.Value {
		var out []byte
		if len(call.Arguments) > 0 {
			if list, ok := call.Arguments[0].Export().([]any); ok {
				for _, item := range list {
					if obj, ok := item.(*goja.Object); ok {
						out = append(out, ExportBytes(obj)...)
					}
				}
			}
		}
		return NewBuffer(vm, out)
	})

	_ = ctor.Set("isBuffer", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue(false)
		}
		return vm.ToValue(IsBuffer(call.Arguments[0]))
	})

	_ = ctor.Set("compare", func(call goja.FunctionCall) goja.Value {
		a := ExportBytes(argAt(call, 0))
		b := ExportBytes(argAt(call, 1))
		return vm.ToValue(bytes.Compare(a, b))
	})

	return vm.Set("Buffer", ctor)
}

// NewBuffer wraps data as a Node-shaped Buffer instance: an object carrying
// length, a raw-bytes accessor, and the common Buffer instance methods. data
// is not copied; callers that hand in a slice they still mutate elsewhere
// should copy first.
func NewBuffer(vm *goja.Runtime, data []byte) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("length", len(data))
	// rawAccessor exposes the live backing slice, not a copy: buf.copy(target)
	// must mutate target's own bytes, the same way Node's Buffer.copy does.
	_ = obj.Set(rawAccessor, func(goja.FunctionCall) goja.Value {
		return vm.ToValue(data)
	})

	for i, b := range data {
		_ = obj.Set(itoa(i), int(b))
	}

	_ = obj.Set("toString", func(call goja.FunctionCall) goja.Value {
		encoding := "utf8"
		if len(call.Arguments) > 0 {
			encoding = call.Arguments[0].String()
		}
		return vm.ToValue(encodeString(data, encoding))
	})

	_ = obj.Set("slice", func(call goja.FunctionCall) goja.Value {
		start, end := sliceBounds(call, 0, len(data))
		return NewBuffer(vm, append([]byte(nil), data[start:end]...))
	})
	_ = obj.Set("subarray", func(call goja.FunctionCall) goja.Value {
		start, end := sliceBounds(call, 0, len(data))
		return NewBuffer(vm, append([]byte(nil), data[start:end]...))
	})

	_ = obj.Set("equals", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(bytes.Equal(data, ExportBytes(argAt(call, 0))))
	})
	_ = obj.Set("compare", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(bytes.Compare(data, ExportBytes(argAt(call, 0))))
	})

	_ = obj.Set("fill", func(call goja.FunctionCall) goja.Value {
		start, end := 0, len(data)
		if len(call.Arguments) > 1 {
			start = intArg(call, 1, 0)
		}
		if len(call.Arguments) > 2 {
			end = intArg(call, 2, len(data))
		}
		if len(call.Arguments) > 0 {
			fillRange(data, call.Arguments[0], start, end)
		}
		return obj
	})

	_ = obj.Set("copy", func(call goja.FunctionCall) goja.Value {
		target := ExportBytes(argAt(call, 0))
		targetStart := intArg(call, 1, 0)
		sourceStart := intArg(call, 2, 0)
		sourceEnd := intArg(call, 3, len(data))
		if sourceEnd > len(data) {
			sourceEnd = len(data)
		}
		if sourceStart < 0 || sourceStart > sourceEnd || targetStart < 0 || targetStart > len(target) {
			return vm.ToValue(0)
		}
		n := copy(target[targetStart:], data[sourceStart:sourceEnd])
		return vm.ToValue(n)
	})

	installIntReaders(obj, vm, data)
	installIntWriters(obj, vm, data)
	installFloatReaders(obj, vm, data)
	installFloatWriters(obj, vm, data)

	return obj
}

// IsBuffer reports whether v is an object built by NewBuffer, letting
// callers that accept Buffer-or-other-value arguments (res.send, fetch
// bodies, ...) branch before falling back to a generic Export().
func IsBuffer(v goja.Value) bool {
	obj, ok := v.(*goja.Object)
	if !ok {
		return false
	}
	return obj.Get(rawAccessor) != nil
}

// ExportBytes recovers a []byte from either a Buffer object built by
// NewBuffer, a plain goja []byte export, or (last resort) a value's string
// representation, so other hostapi packages can accept "Buffer-or-string"
// arguments the way Node's APIs do.
func ExportBytes(v goja.Value) []byte {
	if v == nil {
		return nil
	}
	if obj, ok := v.(*goja.Object); ok {
		if fn, ok := goja.AssertFunction(obj.Get(rawAccessor)); ok {
			if res, err := fn(goja.Undefined()); err == nil {
				if b, ok := res.Export().([]byte); ok {
					return b
				}
			}
		}
	}
	switch ex := v.Export().(type) {
	case []byte:
		return ex
	case string:
		return []byte(ex)
	default:
		return []byte(v.String())
	}
}

func argAt(call goja.FunctionCall, i int) goja.Value {
	if i >= len(call.Arguments) {
		return goja.Undefined()
	}
	return call.Arguments[i]
}

func intArg(call goja.FunctionCall, i, def int) int {
	if i >= len(call.Arguments) {
		return def
	}
	return int(call.Arguments[i].ToInteger())
}

func byteOf(v any) byte {
	switch n := v.(type) {
	case int64:
		return byte(n)
	case float64:
		return byte(n)
	default:
		return 0
	}
}

func sliceBounds(call goja.FunctionCall, argStart, length int) (int, int) {
	start, end := 0, length
	if argStart < len(call.Arguments) {
		start = int(call.Arguments[argStart].ToInteger())
	}
	if argStart+1 < len(call.Arguments) {
		end = int(call.Arguments[argStart+1].ToInteger())
	}
	if start < 0 {
		start = 0
	}
	if end > length {
		end = length
	}
	if start > end {
		start = end
	}
	return start, end
}

func fillRange(data []byte, value goja.Value, start, end int) {
	if start < 0 {
		start = 0
	}
	if end > len(data) {
		end = len(data)
	}
	var b byte
	switch v := value.Export().(type) {
	case string:
		if len(v) > 0 {
			b = v[0]
		}
	default:
		b = byte(value.ToInteger())
	}
	for i := start; i < end; i++ {
		data[i] = b
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	buf := [20]byte{}
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func decodeString(s, encoding string) []byte {
	switch encoding {
	case "base64":
		if b, err := base64.StdEncoding.DecodeString(s); err == nil {
			return b
		}
		return nil
	case "base64url":
		if b, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(s); err == nil {
			return b
		}
		return nil
	case "hex":
		if b, err := hex.DecodeString(s); err == nil {
			return b
		}
		return nil
	case "ascii", "latin1", "binary":
		runes := []rune(s)
		out := make([]byte, len(runes))
		for i, r := range runes {
			out[i] = byte(r)
		}
		return out
	default: // utf8/utf-8
		return []byte(s)
	}
}

func encodeString(data []byte, encoding string) string {
	switch encoding {
	case "base64":
		return base64.StdEncoding.EncodeToString(data)
	case "base64url":
		return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(data)
	case "hex":
		return hex.EncodeToString(data)
	case "ascii", "latin1", "binary":
		runes := make([]rune, len(data))
		for i, b := range data {
			runes[i] = rune(b)
		}
		return string(runes)
	default: // utf8/utf-8
		return string(data)
	}
}

func installIntReaders(obj *goja.Object, vm *goja.Runtime, data []byte) {
	read := func(n int, le bool, signed bool) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			off := intArg(call, 0, 0)
			if off < 0 || off+n > len(data) {
				panic(vm.ToValue("out of bounds read"))
			}
			window := data[off : off+n]
			var u uint64
			if le {
				for i := n - 1; i >= 0; i-- {
					u = u<<8 | uint64(window[i])
				}
			} else {
				for i := 0; i < n; i++ {
					u = u<<8 | uint64(window[i])
				}
			}
			if !signed {
				return vm.ToValue(u)
			}
			shift := 64 - uint(n)*8
			return vm.ToValue(int64(u<<shift) >> shift)
		}
	}
	_ = obj.Set("readUInt8", func(call goja.FunctionCall) goja.Value {
		off := intArg(call, 0, 0)
		return vm.ToValue(data[off])
	})
	_ = obj.Set("readInt8", func(call goja.FunctionCall) goja.Value {
		off := intArg(call, 0, 0)
		return vm.ToValue(int8(data[off]))
	})
	_ = obj.Set("readUInt16LE", read(2, true, false))
	_ = obj.Set("readUInt16BE", read(2, false, false))
	_ = obj.Set("readInt16LE", read(2, true, true))
	_ = obj.Set("readInt16BE", read(2, false, true))
	_ = obj.Set("readUInt32LE", read(4, true, false))
	_ = obj.Set("readUInt32BE", read(4, false, false))
	_ = obj.Set("readInt32LE", read(4, true, true))
	_ = obj.Set("readInt32BE", read(4, false, true))
}

func installIntWriters(obj *goja.Object, vm *goja.Runtime, data []byte) {
	write := func(n int, le bool) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			value := uint64(call.Arguments[0].ToInteger())
			off := intArg(call, 1, 0)
			if off < 0 || off+n > len(data) {
				panic(vm.ToValue("out of bounds write"))
			}
			window := data[off : off+n]
			if le {
				for i := 0; i < n; i++ {
					window[i] = byte(value)
					value >>= 8
				}
			} else {
				for i := n - 1; i >= 0; i-- {
					window[i] = byte(value)
					value >>= 8
				}
			}
			return vm.ToValue(off + n)
		}
	}
	_ = obj.Set("writeUInt8", func(call goja.FunctionCall) goja.Value {
		value := byte(call.Arguments[0].ToInteger())
		off := intArg(call, 1, 0)
		data[off] = value
		return vm.ToValue(off + 1)
	})
	_ = obj.Set("writeInt8", func(call goja.FunctionCall) goja.Value {
		value := byte(call.Arguments[0].ToInteger())
		off := intArg(call, 1, 0)
		data[off] = value
		return vm.ToValue(off + 1)
	})
	_ = obj.Set("writeUInt16LE", write(2, true))
	_ = obj.Set("writeUInt16BE", write(2, false))
	_ = obj.Set("writeInt16LE", write(2, true))
	_ = obj.Set("writeInt16BE", write(2, false))
	_ = obj.Set("writeUInt32LE", write(4, true))
	_ = obj.Set("writeUInt32BE", write(4, false))
	_ = obj.Set("writeInt32LE", write(4, true))
	_ = obj.Set("writeInt32BE", write(4, false))
}

func installFloatReaders(obj *goja.Object, vm *goja.Runtime, data []byte) {
	_ = obj.Set("readFloatLE", func(call goja.FunctionCall) goja.Value {
		off := intArg(call, 0, 0)
		return vm.ToValue(float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))))
	})
	_ = obj.Set("readFloatBE", func(call goja.FunctionCall) goja.Value {
		off := intArg(call, 0, 0)
		return vm.ToValue(float64(math.Float32frombits(binary.BigEndian.Uint32(data[off : off+4]))))
	})
	_ = obj.Set("readDoubleLE", func(call goja.FunctionCall) goja.Value {
		off := intArg(call, 0, 0)
		return vm.ToValue(math.Float64frombits(binary.LittleEndian.Uint64(data[off : off+8])))
	})
	_ = obj.Set("readDoubleBE", func(call goja.FunctionCall) goja.Value {
		off := intArg(call, 0, 0)
		return vm.ToValue(math.Float64frombits(binary.BigEndian.Uint64(data[off : off+8])))
	})
}

func installFloatWriters(obj *goja.Object, vm *goja.Runtime, data []byte) {
	_ = obj.Set("writeFloatLE", func(call goja.FunctionCall) goja.Value {
		value := float32(call.Arguments[0].ToFloat())
		off := intArg(call, 1, 0)
		binary.LittleEndian.PutUint32(data[off:off+4], math.Float32bits(value))
		return vm.ToValue(off + 4)
	})
	_ = obj.Set("writeFloatBE", func(call goja.FunctionCall) goja.Value {
		value := float32(call.Arguments[0].ToFloat())
		off := intArg(call, 1, 0)
		binary.BigEndian.PutUint32(data[off:off+4], math.Float32bits(value))
		return vm.ToValue(off + 4)
	})
	_ = obj.Set("writeDoubleLE", func(call goja.FunctionCall) goja.Value {
		value := call.Arguments[0].ToFloat()
		off := intArg(call, 1, 0)
		binary.LittleEndian.PutUint64(data[off:off+8], math.Float64bits(value))
		return vm.ToValue(off + 8)
	})
	_ = obj.Set("writeDoubleBE", func(call goja.FunctionCall) goja.Value {
		value := call.Arguments[0].ToFloat()
		off := intArg(call, 1, 0)
		binary.BigEndian.PutUint64(data[off:off+8], math.Float64bits(value))
		return vm.ToValue(off + 8)
	})
}
