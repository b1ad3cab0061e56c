// Package apierr defines the closed error-kind taxonomy and maps
// each kind to an HTTP status and an observable JSON envelope.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of outcome/error kinds the engine and the
// execution log record distinguish.
type Kind string

const (
	FunctionNotFound    Kind = "function_not_found"
	FunctionDisabled    Kind = "function_disabled"
	NoActiveVersion     Kind = "no_active_version"
	APIKeyRequired      Kind = "api_key_required"
	TooManyConcurrent   Kind = "too_many_concurrent"
	Timeout             Kind = "timeout"
	MemoryExhausted     Kind = "memory_exhausted"
	PolicyDenied        Kind = "policy_denied"
	UserError           Kind = "user_error"
	InternalError       Kind = "internal_error"
	Aborted             Kind = "aborted"
	ReadOnlyFilesystem  Kind = "read_only_filesystem"
	AuthFailed          Kind = "auth_failed"
	OperationNotAllowed Kind = "operation_not_permitted"
	HeadersAlreadySent  Kind = "headers_already_sent"
	ModuleNotFound      Kind = "module_not_found"
	InvalidData         Kind = "invalid_data"
)

var statusByKind = map[Kind]int{
	FunctionNotFound:    404,
	FunctionDisabled:    503,
	NoActiveVersion:     503,
	APIKeyRequired:      401,
	TooManyConcurrent:   429,
	Timeout:             504,
	MemoryExhausted:     500,
	PolicyDenied:        502,
	UserError:           500,
	InternalError:       500,
	Aborted:             500,
	ReadOnlyFilesystem:  500,
	AuthFailed:          500,
	OperationNotAllowed: 500,
	HeadersAlreadySent:  500,
	ModuleNotFound:      500,
	InvalidData:         500,
}

// Error is the execution core's structured error type. It carries enough
// information to render both the HTTP error envelope and the log record.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is comparisons against a bare *Error with only Kind set.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// HTTPStatus returns the response status this error kind maps to.
func (e *Error) HTTPStatus() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return 500
}

// WithDetails returns a copy of e with Details merged in.
func (e *Error) WithDetails(details map[string]any) *Error {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &Error{Kind: e.Kind, Message: e.Message, Details: merged, Cause: e.Cause}
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// OfKind reports whether err (or something it wraps) is an *Error of kind k.
func OfKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// Convenience constructors, one per error kind.

func NewFunctionNotFound(ref string) *Error {
	return New(FunctionNotFound, "function not found").WithDetails(map[string]any{"ref": ref})
}

func NewFunctionDisabled(fnID string) *Error {
	return New(FunctionDisabled, "function is disabled").WithDetails(map[string]any{"function_id": fnID})
}

func NewNoActiveVersion(fnID string) *Error {
	return New(NoActiveVersion, "function has no active version").WithDetails(map[string]any{"function_id": fnID})
}

func NewAPIKeyRequired() *Error {
	return New(APIKeyRequired, "a valid x-api-key header is required")
}

func NewTooManyConcurrent(fnID string) *Error {
	return New(TooManyConcurrent, "too many concurrent invocations").WithDetails(map[string]any{"function_id": fnID})
}

func NewTimeout(timeoutMS int64) *Error {
	return New(Timeout, "invocation exceeded its timeout").WithDetails(map[string]any{"timeout_ms": timeoutMS})
}

func NewPolicyDenied(rule string) *Error {
	return New(PolicyDenied, "denied by policy").WithDetails(map[string]any{"rule": rule})
}

func NewUserError(message string) *Error {
	return New(UserError, message)
}

func NewInternal(cause error) *Error {
	return Wrap(InternalError, "internal error", cause)
}

func NewAborted() *Error {
	return New(Aborted, "operation aborted")
}

func NewReadOnlyFilesystem(path string) *Error {
	return New(ReadOnlyFilesystem, "filesystem is read-only").WithDetails(map[string]any{"path": path})
}

func NewAuthFailed() *Error {
	return New(AuthFailed, "authentication tag mismatch")
}

func NewMemoryExhausted(heapCapMB int) *Error {
	return New(MemoryExhausted, "invocation exceeded its heap cap").WithDetails(map[string]any{"heap_cap_mb": heapCapMB})
}

func NewOperationNotPermitted(op string) *Error {
	return New(OperationNotAllowed, "operation not permitted").WithDetails(map[string]any{"operation": op})
}

func NewHeadersAlreadySent() *Error {
	return New(HeadersAlreadySent, "headers already sent")
}

func NewModuleNotFound(name string) *Error {
	return New(ModuleNotFound, "module not found").WithDetails(map[string]any{"module": name})
}
