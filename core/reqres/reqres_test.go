package reqres

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faasforge/faascore/core/apierr"
)

func TestRequestFromHTTPParsesJSONBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/x?a=1", strings.NewReader(`{"hello":"world"}`))
	r.Header.Set("Content-Type", "application/json")

	req := FromHTTP(r, "/x", []byte(`{"hello":"world"}`))
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "1", req.Query["a"])

	body, ok := req.Body.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "world", body["hello"])
}

func TestRequestIsAndAccepts(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Accept", "text/html")
	req := FromHTTP(r, "/", nil)

	assert.True(t, req.Is("json"))
	assert.False(t, req.Is("text/*"))
	assert.Equal(t, "text/html", req.Accepts([]string{"application/json", "text/html"}))
}

func TestResponseHeadPhaseSetsStatusAndHeaders(t *testing.T) {
	res := New()
	require.NoError(t, res.Status(201))
	require.NoError(t, res.SetHeader("X-Test", "a"))
	require.NoError(t, res.Type("json"))

	v, err := res.GetHeader("X-Test")
	require.NoError(t, err)
	assert.Equal(t, "a", v)
}

func TestResponseWriteTransitionsToBodyAndRejectsHeaderMutation(t *testing.T) {
	res := New()
	require.NoError(t, res.Write([]byte("chunk")))

	err := res.Status(500)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.HeadersAlreadySent, apiErr.Kind)
}

func TestResponseJSONEndsResponse(t *testing.T) {
	res := New()
	require.NoError(t, res.JSON(map[string]any{"ok": true}))

	select {
	case <-res.Done():
	default:
		t.Fatal("expected response to be done after JSON")
	}

	snap := res.Snapshot()
	assert.JSONEq(t, `{"ok":true}`, string(snap.Body))
	assert.Equal(t, "application/json; charset=utf-8", snap.Headers.Get("Content-Type"))

	err := res.Send("too late")
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.HeadersAlreadySent, apiErr.Kind)
}

func TestResponseRedirectSetsLocationAndStatus(t *testing.T) {
	res := New()
	require.NoError(t, res.Redirect(302, "/elsewhere"))

	snap := res.Snapshot()
	assert.Equal(t, 302, snap.StatusCode)
	assert.Equal(t, "/elsewhere", snap.Headers.Get("Location"))
}

func TestResponseSendStringAppendsAndEnds(t *testing.T) {
	res := New()
	require.NoError(t, res.Send("hello"))

	snap := res.Snapshot()
	assert.Equal(t, "hello", string(snap.Body))
	assert.Equal(t, http.StatusOK, snap.StatusCode)
}

func TestResponseCookieOnlyLegalInHead(t *testing.T) {
	res := New()
	require.NoError(t, res.Cookie(&http.Cookie{Name: "sid", Value: "abc"}))
	require.NoError(t, res.Write([]byte("x")))

	err := res.Cookie(&http.Cookie{Name: "late", Value: "x"})
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.HeadersAlreadySent, apiErr.Kind)
}

func TestResponseEndTwiceFails(t *testing.T) {
	res := New()
	require.NoError(t, res.End())
	err := res.End()
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.HeadersAlreadySent, apiErr.Kind)
}
