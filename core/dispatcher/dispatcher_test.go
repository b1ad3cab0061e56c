package dispatcher

import (
	"archive/zip"
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/faasforge/faascore/core/kv"
	"github.com/faasforge/faascore/core/logging"
	"github.com/faasforge/faascore/core/materializer"
	"github.com/faasforge/faascore/core/recorder"
	"github.com/faasforge/faascore/core/resolver"
	"github.com/faasforge/faascore/core/store"
	"github.com/faasforge/faascore/domain/function"
)

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

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	res, err := resolver.New(mem, 64)
	require.NoError(t, err)

	rec := recorder.New(mem, zap.NewNop(), nil)
	logger := logging.New("dispatcher_test", "error", "json")

	d := New(res, materializer.New(), mem, kv.NewMemDriver(), rec, logger, Limits{
		DefaultTimeout:   2 * time.Second,
		DefaultHeapCapMB: 64,
		RingBufferBytes:  1 << 16,
	})
	return d, mem
}

func TestHandleInvokeUnknownRefReturns404(t *testing.T) {
	d, _ := newTestDispatcher(t)
	req := httptest.NewRequest(http.MethodGet, "/invoke/does-not-exist", nil)
	w := httptest.NewRecorder()
	d.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "function_not_found")
}

func TestHandleInvokeRequiresAPIKey(t *testing.T) {
	d, mem := newTestDispatcher(t)
	desc := &function.Descriptor{
		ID: "fn1", Name: "fn1", Active: true,
		RequiresAPIKey: true, APIKey: "secret-key",
		ActiveVersionID: "fn1:1",
	}
	mem.PutFunction(desc)
	archive := buildZip(t, map[string]string{
		"index.js": "module.exports = (req, res) => res.json({ok: true});",
	})
	mem.PutVersion(&function.Version{
		FunctionID: "fn1", Number: 1, ContentHash: "hash1",
		State: function.VersionReady,
	}, archive)

	req := httptest.NewRequest(http.MethodGet, "/invoke/fn1", nil)
	w := httptest.NewRecorder()
	d.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "api_key_required")

	req2 := httptest.NewRequest(http.MethodGet, "/invoke/fn1", nil)
	req2.Header.Set("x-api-key", "secret-key")
	w2 := httptest.NewRecorder()
	d.Router().ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.JSONEq(t, `{"ok":true}`, w2.Body.String())
}

func TestHandleInvokeDisabledFunctionReturns(t *testing.T) {
	d, mem := newTestDispatcher(t)
	desc := &function.Descriptor{
		ID: "fn2", Name: "fn2", Active: false, ActiveVersionID: "fn2:1",
	}
	mem.PutFunction(desc)

	req := httptest.NewRequest(http.MethodGet, "/invoke/fn2", nil)
	w := httptest.NewRecorder()
	d.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "function_disabled")
}

func TestHandleInvokeNoActiveVersionReturns(t *testing.T) {
	d, mem := newTestDispatcher(t)
	desc := &function.Descriptor{
		ID: "fn3", Name: "fn3", Active: true, ActiveVersionID: "",
	}
	mem.PutFunction(desc)

	req := httptest.NewRequest(http.MethodGet, "/invoke/fn3", nil)
	w := httptest.NewRecorder()
	d.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "no_active_version")
}

func TestHandleInvokeConcurrencyCapReturns429(t *testing.T) {
	d, mem := newTestDispatcher(t)
	desc := &function.Descriptor{
		ID: "fn4", Name: "fn4", Active: true, ActiveVersionID: "fn4:1",
		Concurrency: 1,
	}
	mem.PutFunction(desc)
	archive := buildZip(t, map[string]string{
		"index.js": "module.exports = (req, res) => res.json({ok: true});",
	})
	mem.PutVersion(&function.Version{
		FunctionID: "fn4", Number: 1, ContentHash: "hash4",
		State: function.VersionReady,
	}, archive)

	gate := d.gateFor(desc)
	require.True(t, gate.acquire())
	defer gate.release()

	req := httptest.NewRequest(http.MethodGet, "/invoke/fn4", nil)
	w := httptest.NewRecorder()
	d.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "too_many_concurrent")
}

func TestHandleInvokeSuccessRoundTripWithCommonJSExport(t *testing.T) {
	d, mem := newTestDispatcher(t)
	desc := &function.Descriptor{
		ID: "fn5", Name: "fn5", Active: true, ActiveVersionID: "fn5:1",
	}
	mem.PutFunction(desc)
	archive := buildZip(t, map[string]string{
		"index.js": `exports.default = function(req, res) {
			res.status(201).json({ method: req.method, path: req.path });
		};`,
	})
	mem.PutVersion(&function.Version{
		FunctionID: "fn5", Number: 1, ContentHash: "hash5",
		State: function.VersionReady,
	}, archive)

	req := httptest.NewRequest(http.MethodPost, "/invoke/fn5/sub/path", nil)
	w := httptest.NewRecorder()
	d.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"method":"POST","path":"/sub/path"}`, w.Body.String())

	logs := mem.ExecutionLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, function.OutcomeSuccess, logs[0].Outcome)
	assert.Equal(t, 201, logs[0].StatusCode)
}

func TestHandleInvokeHandlerReturnsWithoutEndingResponseAutoEnds(t *testing.T) {
	d, mem := newTestDispatcher(t)
	desc := &function.Descriptor{
		ID: "fn6", Name: "fn6", Active: true, ActiveVersionID: "fn6:1",
	}
	mem.PutFunction(desc)
	archive := buildZip(t, map[string]string{
		"index.js": "function handler(req, res) { /* forgot to call res.end */ }",
	})
	mem.PutVersion(&function.Version{
		FunctionID: "fn6", Number: 1, ContentHash: "hash6",
		State: function.VersionReady,
	}, archive)

	req := httptest.NewRequest(http.MethodGet, "/invoke/fn6", nil)
	w := httptest.NewRecorder()
	d.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthzAndReadyzEndpoints(t *testing.T) {
	d, _ := newTestDispatcher(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	d.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	req2 := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w2 := httptest.NewRecorder()
	d.Router().ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusOK, w2.Code)

	req3 := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w3 := httptest.NewRecorder()
	d.Router().ServeHTTP(w3, req3)
	assert.Equal(t, http.StatusOK, w3.Code)
	assert.Contains(t, w3.Body.String(), "faascore_invoke_requests_total")
}
