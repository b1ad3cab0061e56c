package hostapi

import (
	"archive/zip"
	"bytes"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faasforge/faascore/core/kv"
	"github.com/faasforge/faascore/core/materializer"
	"github.com/faasforge/faascore/core/policy"
	"github.com/faasforge/faascore/core/sandbox"
	"github.com/faasforge/faascore/core/sandbox/hostapi/bufferapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/cryptoapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/eventsapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/fsapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/kvapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/pathapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/processapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/timersapi"
	"github.com/faasforge/faascore/domain/function"
)

func newTestInvocation(t *testing.T) *sandbox.Invocation {
	t.Helper()
	store := kv.New(kv.NewMemDriver(), "ns")
	return &sandbox.Invocation{
		ID:       "inv-test",
		Function: &function.Descriptor{ID: "fn-1"},
		Limits:   policy.Limits{Timeout: time.Second},
		Policy:   policy.New(function.NetworkPolicy{}),
		KVOpen:   func(string) any { return store },
		Env:      map[string]string{"FOO": "bar"},
	}
}

// run compiles and evaluates src synchronously against a vm with installers
// applied, draining the loop until done fires or idleTimeout elapses.
func run(t *testing.T, inv *sandbox.Invocation, installers []func(*goja.Runtime, *sandbox.Invocation) error, src string) goja.Value {
	t.Helper()
	vm := goja.New()
	loop := sandbox.NewLoop(8)
	inv.Loop = loop

	for _, install := range installers {
		require.NoError(t, install(vm, inv))
	}

	v, err := vm.RunString(src)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		close(done)
	}()
	loop.Run(done, 50*time.Millisecond)
	return v
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestBufferFromAndToString(t *testing.T) {
	inv := newTestInvocation(t)
	v := run(t, inv, []func(*goja.Runtime, *sandbox.Invocation) error{bufferapi.Install}, `
		var b = Buffer.from("hello", "utf8");
		b.length
	`)
	assert.EqualValues(t, 5, v.ToInteger())
}

func TestPathJoinAndBasename(t *testing.T) {
	inv := newTestInvocation(t)
	v := run(t, inv, []func(*goja.Runtime, *sandbox.Invocation) error{pathapi.Install}, `
		path.basename(path.join("/a", "b", "c.js"))
	`)
	assert.Equal(t, "c.js", v.String())
}

func TestCryptoCreateHashSha256(t *testing.T) {
	inv := newTestInvocation(t)
	v := run(t, inv, []func(*goja.Runtime, *sandbox.Invocation) error{cryptoapi.Install}, `
		crypto.createHash("sha256").update("abc").digest("hex")
	`)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", v.String())
}

func TestProcessEnvExposesInvocationEnv(t *testing.T) {
	inv := newTestInvocation(t)
	v := run(t, inv, []func(*goja.Runtime, *sandbox.Invocation) error{processapi.Install}, `process.env.FOO`)
	assert.Equal(t, "bar", v.String())
}

func TestTimersSetTimeoutFiresOnLoop(t *testing.T) {
	inv := newTestInvocation(t)
	vm := goja.New()
	loop := sandbox.NewLoop(8)
	inv.Loop = loop
	require.NoError(t, timersapi.Install(vm, inv))

	_, err := vm.RunString(`
		var fired = false;
		setTimeout(function() { fired = true; }, 1);
	`)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		close(done)
	}()
	loop.Run(done, 50*time.Millisecond)

	assert.True(t, vm.Get("fired").ToBoolean())
}

func TestEventsEmitterOnAndEmit(t *testing.T) {
	inv := newTestInvocation(t)
	v := run(t, inv, []func(*goja.Runtime, *sandbox.Invocation) error{eventsapi.Install}, `
		var e = new EventEmitter();
		var got = null;
		e.on("ping", function(x) { got = x; });
		e.emit("ping", "pong");
		got
	`)
	assert.Equal(t, "pong", v.String())
}

func TestFSReadFileSyncReadsFromVFS(t *testing.T) {
	inv := newTestInvocation(t)
	mat := materializer.New()
	handle, err := mat.Acquire("hash1", buildZip(t, map[string]string{"index.js": "1", "data.txt": "hello"}))
	require.NoError(t, err)
	inv.VFS = handle.VFS

	v := run(t, inv, []func(*goja.Runtime, *sandbox.Invocation) error{fsapi.Install}, `
		fs.readFileSync("data.txt", "utf8")
	`)
	assert.Equal(t, "hello", v.String())
}

func TestKVGetSetRoundTrip(t *testing.T) {
	inv := newTestInvocation(t)
	var settled bool
	vm := goja.New()
	loop := sandbox.NewLoop(8)
	inv.Loop = loop
	require.NoError(t, kvapi.Install(vm, inv))
	require.NoError(t, vm.Set("__done", func(goja.FunctionCall) goja.Value {
		settled = true
		return goja.Undefined()
	}))

	_, err := vm.RunString(`
		var result = null;
		kv.set("k", "v").then(function() {
			return kv.get("k");
		}).then(function(v) {
			result = v;
			__done();
		});
	`)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		close(done)
	}()
	loop.Run(done, 50*time.Millisecond)

	assert.True(t, settled)
	result := vm.Get("result")
	assert.Equal(t, "v", result.String())
}
