// Package hostapi is the closed Host-API module table:
// every capability user code can see, and nothing else. Modules is the
// single place that assembles the per-package Install functions into the
// map core/sandbox.Engine installs into a fresh Runtime for each
// invocation.
package hostapi

import (
	"github.com/faasforge/faascore/core/sandbox"
	"github.com/faasforge/faascore/core/sandbox/hostapi/assertapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/bufferapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/consoleapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/cryptoapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/dnsapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/eventsapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/eventtargetapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/fsapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/kvapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/netapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/pathapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/processapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/punycodeapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/timersapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/tlsapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/urlapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/utilapi"
	"github.com/faasforge/faascore/core/sandbox/hostapi/zlibapi"
)

// Modules returns the fixed module table keyed by the names every
// invocation's Runtime is wired with, mirroring the Globals/require groups
// the Host-API surface enumerates. sandbox.Engine installs every entry
// unconditionally per invocation and registers each one as a require()able
// module; there is nothing reachable beyond this table (core/sandbox's
// closedLoader rejects any other module name).
func Modules() map[string]sandbox.ModuleInstaller {
	return map[string]sandbox.ModuleInstaller{
		"console":     consoleapi.Install,
		"process":     processapi.Install,
		"timers":      timersapi.Install,
		"buffer":      bufferapi.Install,
		"path":        pathapi.Install,
		"url":         urlapi.Install,
		"util":        utilapi.Install,
		"assert":      assertapi.Install,
		"crypto":      cryptoapi.Install,
		"zlib":        zlibapi.Install,
		"punycode":    punycodeapi.Install,
		"fs":          fsapi.Install,
		"events":      eventsapi.Install,
		"eventtarget": eventtargetapi.Install,
		"kv":          kvapi.Install,
		"net":         netapi.Install,
		"dns":         dnsapi.Install,
		"tls":         tlsapi.Install,
	}
}
