// Package policy implements Policy & Limits: per-invocation
// timeout/heap/network/restricted-API enforcement, generalized from the
// teacher's capability/security-policy model (system/sandbox/sandbox.go)
// from a service-identity scope down to a per-invocation one.
package policy

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/faasforge/faascore/core/apierr"
	"github.com/faasforge/faascore/domain/function"
)

// RestrictedAPI names a host capability that is always denied, regardless
// of network policy.
type RestrictedAPI string

const (
	APIServerBind     RestrictedAPI = "server_bind"
	APIProcessControl RestrictedAPI = "process_control"
	APINativeAddon    RestrictedAPI = "native_addon"
	APIFilesystemWrite RestrictedAPI = "filesystem_write"
)

// Limits are the effective per-invocation resource limits, after merging
// function-level overrides over process-wide defaults.
type Limits struct {
	Timeout   time.Duration
	HeapCapMB int
}

// Enforcer evaluates outbound-network and restricted-API requests against a
// function's policy, returning a policy_denied *apierr.Error naming the
// rule that matched.
type Enforcer struct {
	network function.NetworkPolicy
}

// New builds an Enforcer for the given network policy. A zero-value
// NetworkPolicy is permissive by default.
func New(network function.NetworkPolicy) *Enforcer {
	return &Enforcer{network: network}
}

// CheckRestricted always denies the named restricted API, regardless of any
// configured allow-list.
func (e *Enforcer) CheckRestricted(api RestrictedAPI) error {
	return apierr.NewPolicyDenied(string(api))
}

// CheckOutbound validates a destination (scheme, host, port) against the
// configured allow-list. A permissive (zero-value) policy allows everything.
func (e *Enforcer) CheckOutbound(scheme, host string, port int) error {
	if len(e.network.AllowedSchemes) > 0 && !contains(e.network.AllowedSchemes, scheme) {
		return apierr.NewPolicyDenied("scheme:" + scheme)
	}
	if len(e.network.AllowedHosts) > 0 && !hostAllowed(e.network.AllowedHosts, host) {
		return apierr.NewPolicyDenied("host:" + host)
	}
	if e.network.AllowedPortMin > 0 || e.network.AllowedPortMax > 0 {
		min, max := e.network.AllowedPortMin, e.network.AllowedPortMax
		if min == 0 {
			min = 1
		}
		if max == 0 {
			max = 65535
		}
		if port < min || port > max {
			return apierr.NewPolicyDenied("port:" + strconv.Itoa(port))
		}
	}
	return nil
}

// CheckOutboundURL is a convenience wrapper for the common fetch/http(s)/ws
// case of validating a raw "host:port" or bare host destination string.
func (e *Enforcer) CheckOutboundURL(scheme, hostport string) error {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
		portStr = defaultPort(scheme)
	}
	port, _ := strconv.Atoi(portStr)
	return e.CheckOutbound(scheme, host, port)
}

func defaultPort(scheme string) string {
	switch scheme {
	case "https", "wss":
		return "443"
	default:
		return "80"
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func hostAllowed(allowed []string, host string) bool {
	host = strings.ToLower(host)
	for _, pattern := range allowed {
		pattern = strings.ToLower(pattern)
		if strings.HasPrefix(pattern, "*.") {
			suffix := pattern[1:] // ".example.com"
			if strings.HasSuffix(host, suffix) || host == pattern[2:] {
				return true
			}
			continue
		}
		if host == pattern {
			return true
		}
	}
	return false
}

// ResolveLimits merges a function's configured overrides over the process
// defaults (30s timeout, 256 MiB heap).
func ResolveLimits(d *function.Descriptor, defaultTimeout time.Duration, defaultHeapMB int) Limits {
	l := Limits{Timeout: defaultTimeout, HeapCapMB: defaultHeapMB}
	if d.Timeout > 0 {
		l.Timeout = d.Timeout
	}
	if d.HeapCapMB > 0 {
		l.HeapCapMB = d.HeapCapMB
	}
	return l
}
