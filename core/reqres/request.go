// Package reqres implements the HTTP Request/Response Binding:
// a frozen-shape `req` snapshot and an `res` state machine with HEAD, BODY,
// and TERMINAL states guarding the legal operation table exactly.
package reqres

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// Request is the immutable snapshot exposed to user code as `req`.
type Request struct {
	Method  string
	Path    string // decoded tail path; "/" if empty
	URL     string // path + query string
	Query   map[string]string
	Headers map[string]string   // lowercase key, multi-value joined with ", "; set-cookie is omitted
	Cookies map[string]string
	Params  map[string]string
	Body    any // parsed per content-type, or raw []byte
	IP      string
	XHR     bool

	rawHeaders http.Header
}

// FromHTTP builds a Request snapshot from an inbound *http.Request and the
// tail path already extracted by the dispatcher.
func FromHTTP(r *http.Request, tailPath string, body []byte) *Request {
	if tailPath == "" {
		tailPath = "/"
	}

	query := map[string]string{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			query[k] = v[len(v)-1]
		}
	}

	headers := map[string]string{}
	for k, v := range r.Header {
		lk := strings.ToLower(k)
		if lk == "set-cookie" {
			continue
		}
		headers[lk] = strings.Join(v, ", ")
	}

	cookies := map[string]string{}
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx >= 0 {
		ip = ip[:idx]
	}

	return &Request{
		Method:     strings.ToUpper(r.Method),
		Path:       tailPath,
		URL:        urlWithQuery(tailPath, r.URL.RawQuery),
		Query:      query,
		Headers:    headers,
		Cookies:    cookies,
		Params:     map[string]string{},
		Body:       parseBody(r.Header.Get("Content-Type"), body),
		IP:         ip,
		XHR:        r.Header.Get("X-Requested-With") == "XMLHttpRequest",
		rawHeaders: r.Header,
	}
}

func urlWithQuery(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}
	return path + "?" + rawQuery
}

// parseBody dispatches on content-type. multipart/form-data
// is left raw rather than parsed.
func parseBody(contentType string, body []byte) any {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "application/json":
		var v any
		if err := json.Unmarshal(body, &v); err == nil {
			return v
		}
		return body
	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return body
		}
		out := map[string]any{}
		for k, v := range values {
			if len(v) == 1 {
				out[k] = v[0]
			} else {
				out[k] = v
			}
		}
		return out
	case strings.HasPrefix(mediaType, "text/"):
		return string(body)
	default:
		return body
	}
}

// Get/Header return a request header by case-insensitive name.
func (req *Request) Get(name string) string {
	return req.rawHeaders.Get(name)
}

func (req *Request) Header(name string) string { return req.Get(name) }

// Is reports whether the request's Content-Type matches typ (e.g. "json",
// "multipart/form-data", "text/*").
func (req *Request) Is(typ string) bool {
	ct := req.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(ct)
	if mediaType == "" {
		return false
	}
	if typ == "json" {
		return mediaType == "application/json"
	}
	if strings.HasSuffix(typ, "/*") {
		return strings.HasPrefix(mediaType, strings.TrimSuffix(typ, "*"))
	}
	return mediaType == typ
}

// Accepts returns the first of types that appears as a substring of the
// Accept header (the first type at all when Accept is empty or exactly
// "*/*"), or "" if none match.
func (req *Request) Accepts(types []string) string {
	accept := req.Get("Accept")
	for _, t := range types {
		if strings.Contains(accept, t) || accept == "*/*" || accept == "" {
			return t
		}
	}
	return ""
}
