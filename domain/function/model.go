// Package function holds the execution core's data model: the
// function descriptor, its immutable versions, env bindings, and the
// ephemeral/durable records an invocation produces. The control plane owns
// mutation of descriptors/versions/env; the core only ever reads them
// through the Metadata Store contract (see core/store).
package function

import "time"

// RetentionKind is one of the three execution-log retention policies.
type RetentionKind string

const (
	RetentionNone   RetentionKind = "none"
	RetentionByTime RetentionKind = "by_time"
	RetentionByCnt  RetentionKind = "by_count"
)

// RetentionPolicy governs how long execution log records survive.
type RetentionPolicy struct {
	Kind RetentionKind
	// Days is used when Kind == RetentionByTime.
	Days int
	// Count is used when Kind == RetentionByCnt.
	Count int
}

// NetworkPolicy is the outbound allow-list consulted by the Host-API's
// network modules. A nil/zero-value Policy is permissive.
type NetworkPolicy struct {
	// AllowedHosts, when non-empty, restricts outbound destinations to these
	// hosts (exact match or "*.suffix" wildcard).
	AllowedHosts []string
	// AllowedPortMin/Max bound the allowed destination port range; zero
	// values mean "no restriction".
	AllowedPortMin int
	AllowedPortMax int
	// AllowedSchemes restricts to these URI schemes ("https", "wss", ...).
	AllowedSchemes []string
}

// Descriptor is a function's stable identity and control-plane-owned
// configuration. Read-only to the core.
type Descriptor struct {
	ID              string
	ProjectID       string
	Name            string
	Active          bool
	RequiresAPIKey  bool
	APIKey          string
	ActiveVersionID string
	Timeout         time.Duration
	HeapCapMB       int
	Concurrency     int // 0 = unlimited
	Schedule        string
	Retention       RetentionPolicy
	Network         NetworkPolicy
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// VersionState is the readiness state of a Version.
type VersionState string

const (
	VersionPending VersionState = "pending"
	VersionReady   VersionState = "ready"
)

// Version is one immutable, content-addressed archive of a function's
// source.
type Version struct {
	FunctionID  string
	Number      int
	ContentHash string
	SizeBytes   int64
	CreatorID   string
	CreatedAt   time.Time
	State       VersionState
}

// EnvBinding is one KEY=value pair in a function's environment snapshot.
type EnvBinding struct {
	Key   string
	Value string
}

// Outcome is the machine-readable classification of an invocation's
// terminal state.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeUserError       Outcome = "user_error"
	OutcomeTimeout         Outcome = "timeout"
	OutcomePolicyDenied    Outcome = "policy_denied"
	OutcomeMemoryExhausted Outcome = "memory_exhausted"
	OutcomeInternalError   Outcome = "internal_error"
)

// Invocation is the ephemeral per-request record of one function call.
type Invocation struct {
	ID             string
	FunctionID     string
	VersionID      string
	Method         string
	Path           string
	Headers        map[string][]string
	Query          string
	Body           []byte
	StartedAt      time.Time
	MonotonicStart int64
	StatusCode     int
	ResponseBody   []byte
	ResponseHeader map[string][]string
	Outcome        Outcome
	DurationMS     int64
}

// ExecutionLog is the durable record persisted at invocation completion
//, governed by the owning function's RetentionPolicy.
type ExecutionLog struct {
	InvocationID   string
	FunctionID     string
	VersionID      string
	StartedAt      time.Time
	EndedAt        time.Time
	DurationMS     int64
	Outcome        Outcome
	StatusCode     int
	RequestEnv     map[string]any
	ResponseEnv    map[string]any
	Stdout         string
	Stderr         string
	ErrorKind      string
	ErrorMessage   string
	ErrorStack     string
}
