package reqresbind

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faasforge/faascore/core/reqres"
	"github.com/faasforge/faascore/core/sandbox/hostapi/bufferapi"
)

func TestBindRequestExposesFields(t *testing.T) {
	httpReq := httptest.NewRequest(http.MethodPost, "/x?a=1", nil)
	httpReq.Header.Set("Content-Type", "text/plain")
	req := reqres.FromHTTP(httpReq, "/tail", []byte("hi"))

	vm := goja.New()
	_ = vm.Set("req", BindRequest(vm, req))

	v, err := vm.RunString(`req.method + ":" + req.path + ":" + req.body`)
	require.NoError(t, err)
	assert.Equal(t, "POST:/tail:hi", v.String())
}

func TestBindResponseJSONEndsResponse(t *testing.T) {
	res := reqres.New()
	vm := goja.New()
	_ = vm.Set("res", BindResponse(vm, res))

	_, err := vm.RunString(`res.json({ok: true})`)
	require.NoError(t, err)

	select {
	case <-res.Done():
	default:
		t.Fatal("expected response to be done after res.json")
	}
	snap := res.Snapshot()
	assert.JSONEq(t, `{"ok":true}`, string(snap.Body))
}

func TestBindResponseStatusChaining(t *testing.T) {
	res := reqres.New()
	vm := goja.New()
	_ = vm.Set("res", BindResponse(vm, res))

	_, err := vm.RunString(`res.status(201).send("created")`)
	require.NoError(t, err)

	snap := res.Snapshot()
	assert.Equal(t, 201, snap.StatusCode)
	assert.Equal(t, "created", string(snap.Body))
}

func TestBindResponseSendBufferCarriesRawBytes(t *testing.T) {
	res := reqres.New()
	vm := goja.New()
	_ = vm.Set("res", BindResponse(vm, res))
	_ = bufferapi.Install(vm, nil)

	_, err := vm.RunString(`res.send(Buffer.from([0x68, 0x69]))`)
	require.NoError(t, err)

	snap := res.Snapshot()
	assert.Equal(t, []byte("hi"), snap.Body)
}

func TestBindRequestBinaryBodyExposesBufferMethods(t *testing.T) {
	httpReq := httptest.NewRequest(http.MethodPost, "/x", nil)
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	req := reqres.FromHTTP(httpReq, "/x", []byte{0x68, 0x69})

	vm := goja.New()
	_ = vm.Set("req", BindRequest(vm, req))

	v, err := vm.RunString(`req.body.toString('utf8')`)
	require.NoError(t, err)
	assert.Equal(t, "hi", v.String())
}

func TestBindResponseDoubleEndThrows(t *testing.T) {
	res := reqres.New()
	vm := goja.New()
	_ = vm.Set("res", BindResponse(vm, res))

	_, err := vm.RunString(`res.end(); res.end();`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "headers_already_sent")
}
