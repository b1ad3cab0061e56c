// Package tlsapi installs a require("tls")-shaped module exposing a minimal
// checkServerIdentity-style primitive: connect and report the negotiated
// certificate's subject/issuer/expiry, without exposing the raw socket.
package tlsapi

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/dop251/goja"

	"github.com/faasforge/faascore/core/apierr"
	"github.com/faasforge/faascore/core/sandbox"
)

func Install(vm *goja.Runtime, inv *sandbox.Invocation) error {
	obj := vm.NewObject()

	_ = obj.Set("connect", func(call goja.FunctionCall) goja.Value {
		hostport := arg(call, 0)
		p, resolve, reject := vm.NewPromise()
		inv.Loop.PostMacrotask(func() {
			if err := inv.Policy.CheckOutboundURL("tls", hostport); err != nil {
				_ = reject(vm.ToValue(err))
				return
			}
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := tls.DialWithDialer(dialer, "tcp", hostport, &tls.Config{})
			if err != nil {
				_ = reject(vm.ToValue(apierr.Wrap(apierr.InternalError, "tls connect failed", err)))
				return
			}
			defer conn.Close()

			state := conn.ConnectionState()
			result := vm.NewObject()
			_ = result.Set("authorized", state.HandshakeComplete)
			_ = result.Set("protocol", state.NegotiatedProtocol)
			if len(state.PeerCertificates) > 0 {
				cert := state.PeerCertificates[0]
				_ = result.Set("subject", cert.Subject.CommonName)
				_ = result.Set("issuer", cert.Issuer.CommonName)
				_ = result.Set("validFrom", cert.NotBefore.Format(time.RFC3339))
				_ = result.Set("validTo", cert.NotAfter.Format(time.RFC3339))
			}
			_ = resolve(result)
		})
		return vm.ToValue(p)
	})

	return vm.Set("tls", obj)
}

func arg(call goja.FunctionCall, i int) string {
	if i >= len(call.Arguments) {
		return ""
	}
	return call.Arguments[i].String()
}
