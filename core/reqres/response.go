package reqres

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/faasforge/faascore/core/apierr"
)

// phase tracks the res state machine's three stages: HEAD allows
// status/header mutation, BODY allows writes but no further header changes,
// TERMINAL rejects everything.
type phase int

const (
	phaseHead phase = iota
	phaseBody
	phaseTerminal
)

// Response is the sandboxed `res` object. One Response per invocation; not
// safe for concurrent use from more than the single sandbox goroutine that
// owns it, except Done() which callers may poll.
type Response struct {
	mu sync.Mutex

	phase      phase
	statusCode int
	headers    http.Header
	cookies    []*http.Cookie
	body       strings.Builder
	bodyBytes  []byte
	redirectTo string

	done chan struct{}
}

// New returns a Response parked in the HEAD phase with status 200.
func New() *Response {
	return &Response{
		phase:      phaseHead,
		statusCode: http.StatusOK,
		headers:    http.Header{},
		done:       make(chan struct{}),
	}
}

// Done is closed once the response reaches TERMINAL.
func (res *Response) Done() <-chan struct{} { return res.done }

func (res *Response) requireNotTerminal() error {
	if res.phase == phaseTerminal {
		return apierr.NewHeadersAlreadySent()
	}
	return nil
}

func (res *Response) requireHead() error {
	if res.phase == phaseTerminal {
		return apierr.NewHeadersAlreadySent()
	}
	if res.phase == phaseBody {
		return apierr.NewHeadersAlreadySent()
	}
	return nil
}

// Status sets the HTTP status code. Legal only in HEAD.
func (res *Response) Status(code int) error {
	res.mu.Lock()
	defer res.mu.Unlock()
	if err := res.requireHead(); err != nil {
		return err
	}
	res.statusCode = code
	return nil
}

// SetHeader sets a response header. Legal only in HEAD.
func (res *Response) SetHeader(name, value string) error {
	res.mu.Lock()
	defer res.mu.Unlock()
	if err := res.requireHead(); err != nil {
		return err
	}
	res.headers.Set(name, value)
	return nil
}

// GetHeader reads back a previously-set header. Legal in any non-terminal phase.
func (res *Response) GetHeader(name string) (string, error) {
	res.mu.Lock()
	defer res.mu.Unlock()
	if err := res.requireNotTerminal(); err != nil {
		return "", err
	}
	return res.headers.Get(name), nil
}

// RemoveHeader deletes a header. Legal only in HEAD.
func (res *Response) RemoveHeader(name string) error {
	res.mu.Lock()
	defer res.mu.Unlock()
	if err := res.requireHead(); err != nil {
		return err
	}
	res.headers.Del(name)
	return nil
}

// Type sets Content-Type, expanding common shorthands ("json", "html", "text").
func (res *Response) Type(t string) error {
	switch t {
	case "json":
		t = "application/json; charset=utf-8"
	case "html":
		t = "text/html; charset=utf-8"
	case "text":
		t = "text/plain; charset=utf-8"
	}
	return res.SetHeader("Content-Type", t)
}

// Cookie appends a Set-Cookie header entry. Legal only in HEAD.
func (res *Response) Cookie(c *http.Cookie) error {
	res.mu.Lock()
	defer res.mu.Unlock()
	if err := res.requireHead(); err != nil {
		return err
	}
	res.cookies = append(res.cookies, c)
	return nil
}

// Write appends raw bytes to the body, transitioning HEAD->BODY on first call.
func (res *Response) Write(p []byte) error {
	res.mu.Lock()
	defer res.mu.Unlock()
	if err := res.requireNotTerminal(); err != nil {
		return err
	}
	res.phase = phaseBody
	res.body.Write(p)
	return nil
}

// JSON marshals v, sets Content-Type, writes it as the full body, and ends
// the response. Legal only in HEAD (it both writes and ends in one step).
func (res *Response) JSON(v any) error {
	res.mu.Lock()
	defer res.mu.Unlock()
	if err := res.requireHead(); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return apierr.NewUserError(fmt.Sprintf("res.json: %v", err))
	}
	res.headers.Set("Content-Type", "application/json; charset=utf-8")
	res.phase = phaseBody
	res.body.Write(raw)
	return res.endLocked()
}

// Send writes body (string, []byte, or JSON-marshalable value) and ends the
// response. Legal in HEAD or BODY.
func (res *Response) Send(body any) error {
	res.mu.Lock()
	defer res.mu.Unlock()
	if err := res.requireNotTerminal(); err != nil {
		return err
	}
	switch v := body.(type) {
	case string:
		res.body.WriteString(v)
	case []byte:
		res.body.Write(v)
	case nil:
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return apierr.NewUserError(fmt.Sprintf("res.send: %v", err))
		}
		if res.headers.Get("Content-Type") == "" {
			res.headers.Set("Content-Type", "application/json; charset=utf-8")
		}
		res.body.Write(raw)
	}
	res.phase = phaseBody
	return res.endLocked()
}

// End terminates the response with whatever body has accumulated so far.
func (res *Response) End() error {
	res.mu.Lock()
	defer res.mu.Unlock()
	if err := res.requireNotTerminal(); err != nil {
		return err
	}
	return res.endLocked()
}

// Redirect sets a Location header and a 30x status, then ends the response.
// Legal only in HEAD.
func (res *Response) Redirect(code int, location string) error {
	res.mu.Lock()
	defer res.mu.Unlock()
	if err := res.requireHead(); err != nil {
		return err
	}
	if code == 0 {
		code = http.StatusFound
	}
	res.statusCode = code
	res.headers.Set("Location", location)
	res.redirectTo = location
	return res.endLocked()
}

// Pipe writes content as the whole body, then ends the response. Legal
// only in HEAD (pipe owns the body exclusively, like Node's stream.pipe).
func (res *Response) Pipe(content []byte) error {
	res.mu.Lock()
	defer res.mu.Unlock()
	if err := res.requireHead(); err != nil {
		return err
	}
	res.phase = phaseBody
	res.body.Write(content)
	return res.endLocked()
}

func (res *Response) endLocked() error {
	if res.phase == phaseTerminal {
		return apierr.NewHeadersAlreadySent()
	}
	res.phase = phaseTerminal
	res.bodyBytes = []byte(res.body.String())
	close(res.done)
	return nil
}

// Snapshot returns the finalized response for the dispatcher to write out.
// Valid only after Done() has closed.
type Snapshot struct {
	StatusCode int
	Headers    http.Header
	Cookies    []*http.Cookie
	Body       []byte
}

func (res *Response) Snapshot() Snapshot {
	res.mu.Lock()
	defer res.mu.Unlock()
	return Snapshot{
		StatusCode: res.statusCode,
		Headers:    res.headers.Clone(),
		Cookies:    append([]*http.Cookie(nil), res.cookies...),
		Body:       res.bodyBytes,
	}
}
