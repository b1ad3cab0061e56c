// Package sandbox builds one goja.Runtime per invocation, wires in the
// closed Host-API module table through a require.Registry, and drives a
// hand-rolled event loop so user code can genuinely suspend on async work
// instead of blocking the invoking goroutine.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/faasforge/faascore/core/apierr"
	"github.com/faasforge/faascore/core/materializer"
	"github.com/faasforge/faascore/core/policy"
	"github.com/faasforge/faascore/domain/function"
)

// Invocation carries everything a Host-API module needs to act on behalf of
// one running function call: the resolved limits, the policy enforcer, the
// materialized code, and hooks back into the loop.
type Invocation struct {
	ID         string
	Function   *function.Descriptor
	Version    *function.Version
	VFS        *materializer.VFS
	Env        map[string]string
	Limits     policy.Limits
	Policy     *policy.Enforcer
	KVOpen     func(namespace string) any // returns a *kv.Store-shaped value; typed any to avoid an import cycle with hostapi
	RequireAPI string                     // value of x-api-key if supplied, else ""

	Stdout func(line string) // receives one console/stdout line at a time, for the recorder's ring buffer
	Stderr func(line string)

	// AutoEnd forces the HTTP response to TERMINAL when the handler returns
	// (or the loop goes idle) without ever ending it itself: if the handler
	// returns or resolves while res is still in HEAD or BODY, the engine
	// implicitly ends the body. Errors are ignored: a
	// response already TERMINAL has nothing left to do.
	AutoEnd func() error

	Loop *Loop
}

// ModuleInstaller installs one require()-able native module family into vm,
// scoped to inv. Implemented once per package under core/sandbox/hostapi.
type ModuleInstaller func(vm *goja.Runtime, inv *Invocation) error

// Result is what the engine hands back once the entry point's synchronous
// run (and any pending microtasks) complete or the deadline fires.
type Result struct {
	Outcome    function.Outcome
	Err        *apierr.Error
	DurationMS int64
}

// Engine builds and runs a fresh Runtime per invocation. It is stateless and
// safe to share across invocations; all per-call state lives in a *session.
type Engine struct {
	modules      map[string]ModuleInstaller // require("name") table, closed set
	idleTimeout  time.Duration
	macrotaskCap int
}

// New returns an Engine with the given closed module table. idleTimeout
// bounds how long the loop waits for the next timer/macrotask once there is
// no more scheduled work; it should exceed any single function's timeout.
func New(modules map[string]ModuleInstaller, idleTimeout time.Duration) *Engine {
	if idleTimeout <= 0 {
		idleTimeout = 5 * time.Second
	}
	return &Engine{modules: modules, idleTimeout: idleTimeout, macrotaskCap: 256}
}

// session is the live state of one Run call.
type session struct {
	vm   *goja.Runtime
	loop *Loop
	inv  *Invocation
}

// ArgsBuilder constructs the entry function's arguments once vm exists,
// e.g. binding core/reqres's Request/Response into goja values via
// core/sandbox/reqresbind. A nil builder means "call with no arguments".
type ArgsBuilder func(vm *goja.Runtime) []goja.Value

// Run compiles and executes source's entry point, blocks
// until the invocation's result is finalized (by calling done, typically
// wired to reqres.Response.Done) or ctx's deadline fires, and returns the
// outcome. buildArgs, if non-nil, is invoked once vm is ready to produce the
// entry function's argument list, e.g. [req, res].
func (e *Engine) Run(ctx context.Context, source string, entryPoint string, inv *Invocation, buildArgs ArgsBuilder, done <-chan struct{}) Result {
	start := time.Now()

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	loop := NewLoop(e.macrotaskCap)
	inv.Loop = loop

	sess := &session{vm: vm, loop: loop, inv: inv}

	registry := require.NewRegistry(require.WithLoader(sess.closedLoader))
	registry.Enable(vm)
	registry.RegisterNativeModule("console", console.Require)

	for name, install := range e.modules {
		if err := install(vm, inv); err != nil {
			return Result{
				Outcome:    function.OutcomeInternalError,
				Err:        apierr.Wrap(apierr.InternalError, fmt.Sprintf("install module %q", name), err),
				DurationMS: time.Since(start).Milliseconds(),
			}
		}
	}

	// Every installed module is also require()-able under its table name (and,
	// for modules that expose several unrelated globals instead of one, under
	// each of those extra names too) so require('fs')/require('crypto')/...
	// resolve the same way the bare globals already do. closedLoader only ever
	// sees names absent from this set.
	for name := range e.modules {
		if name == "console" {
			continue
		}
		registerModuleLoader(registry, vm, name)
	}
	for _, extra := range []string{"http", "https", "ws", "fetch"} {
		registerModuleLoader(registry, vm, extra)
	}

	if deadline, ok := ctx.Deadline(); ok {
		timer := time.AfterFunc(time.Until(deadline), func() {
			vm.Interrupt(apierr.NewTimeout(inv.Limits.Timeout.Milliseconds()))
			loop.PostMacrotask(loop.Stop)
		})
		defer timer.Stop()
	}

	memStop := make(chan struct{})
	defer close(memStop)
	if inv.Limits.HeapCapMB > 0 {
		if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
			go watchHeap(proc, inv.Limits.HeapCapMB, vm, memStop)
		}
	}

	program, err := goja.Compile(entryPoint+".js", source, true)
	if err != nil {
		return Result{
			Outcome:    function.OutcomeUserError,
			Err:        apierr.NewUserError(fmt.Sprintf("compile: %v", err)),
			DurationMS: time.Since(start).Milliseconds(),
		}
	}

	if _, err := vm.RunProgram(program); err != nil {
		return translateRunErr(err, start)
	}

	entryFn, ok := goja.AssertFunction(vm.Get(entryFnName))
	if !ok {
		return Result{
			Outcome:    function.OutcomeUserError,
			Err:        apierr.NewModuleNotFound(entryFnName),
			DurationMS: time.Since(start).Milliseconds(),
		}
	}

	var args []goja.Value
	if buildArgs != nil {
		args = buildArgs(vm)
	}

	if _, err := entryFn(goja.Undefined(), args...); err != nil {
		return translateRunErr(err, start)
	}

	loop.drainCheckpoint()
	if res, ok := sess.settledWithNothingPending(done, start); ok {
		return res
	}

	loop.Run(done, e.idleTimeout)

	select {
	case <-done:
		return Result{Outcome: function.OutcomeSuccess, DurationMS: time.Since(start).Milliseconds()}
	default:
	}

	if ctx.Err() == context.DeadlineExceeded {
		return Result{
			Outcome:    function.OutcomeTimeout,
			Err:        apierr.NewTimeout(inv.Limits.Timeout.Milliseconds()),
			DurationMS: time.Since(start).Milliseconds(),
		}
	}

	if inv.AutoEnd != nil {
		_ = inv.AutoEnd()
	}
	select {
	case <-done:
		return Result{Outcome: function.OutcomeSuccess, DurationMS: time.Since(start).Milliseconds()}
	default:
		return Result{
			Outcome:    function.OutcomeTimeout,
			Err:        apierr.NewTimeout(inv.Limits.Timeout.Milliseconds()),
			DurationMS: time.Since(start).Milliseconds(),
		}
	}
}

// settledWithNothingPending checks, right after the entry function's
// synchronous portion returns, whether done is already closed or whether
// there is no scheduled timer and no outstanding macrotask at all. In the
// latter case nothing will ever happen that could still end the response
// (the handler returned synchronously without scheduling anything and
// without ending res), so it is ended immediately instead of idling out the
// full idle timeout waiting for work that will never arrive.
func (s *session) settledWithNothingPending(done <-chan struct{}, start time.Time) (Result, bool) {
	select {
	case <-done:
		return Result{Outcome: function.OutcomeSuccess, DurationMS: time.Since(start).Milliseconds()}, true
	default:
	}
	if len(s.loop.timers) > 0 || len(s.loop.macrotaskCh) > 0 {
		return Result{}, false
	}
	if s.inv.AutoEnd != nil {
		_ = s.inv.AutoEnd()
	}
	select {
	case <-done:
		return Result{Outcome: function.OutcomeSuccess, DurationMS: time.Since(start).Milliseconds()}, true
	default:
		return Result{}, false
	}
}

// entryFnName is the symbol user code must export as the top-level handler,
// matching the materializer's EntryPoint file convention (index.js exporting
// a global `handler`).
const entryFnName = "handler"

func translateRunErr(err error, start time.Time) Result {
	if ix, ok := err.(*goja.InterruptedError); ok {
		if apiErr, ok := ix.Value().(*apierr.Error); ok {
			return Result{Outcome: outcomeForKind(apiErr.Kind), Err: apiErr, DurationMS: time.Since(start).Milliseconds()}
		}
		return Result{
			Outcome:    function.OutcomeTimeout,
			Err:        apierr.New(apierr.Timeout, fmt.Sprint(ix.Value())),
			DurationMS: time.Since(start).Milliseconds(),
		}
	}
	if exc, ok := err.(*goja.Exception); ok {
		return Result{
			Outcome:    function.OutcomeUserError,
			Err:        apierr.NewUserError(exc.Error()),
			DurationMS: time.Since(start).Milliseconds(),
		}
	}
	return Result{
		Outcome:    function.OutcomeInternalError,
		Err:        apierr.NewInternal(err),
		DurationMS: time.Since(start).Milliseconds(),
	}
}

func outcomeForKind(k apierr.Kind) function.Outcome {
	switch k {
	case apierr.Timeout:
		return function.OutcomeTimeout
	case apierr.MemoryExhausted:
		return function.OutcomeMemoryExhausted
	case apierr.PolicyDenied, apierr.OperationNotAllowed, apierr.ReadOnlyFilesystem:
		return function.OutcomePolicyDenied
	default:
		return function.OutcomeInternalError
	}
}

// moduleGlobals names the extra globals a module table entry installs beyond
// (or instead of) one matching its own key, e.g. "timers" sets six timer
// functions rather than a "timers" global. Keys absent here are assumed to
// install exactly one global under their own name.
var moduleGlobals = map[string][]string{
	"buffer":      {"Buffer"},
	"events":      {"EventEmitter"},
	"eventtarget": {"EventTarget"},
	"net":         {"fetch", "http", "https", "ws"},
	"timers":      {"setTimeout", "setInterval", "clearTimeout", "clearInterval", "setImmediate", "queueMicrotask"},
	"url":         {"URL", "legacyUrl"},
}

// registerModuleLoader wires name into registry so require(name) returns
// whatever the corresponding Install call already put on vm's global object,
// rather than re-running any install logic.
func registerModuleLoader(registry *require.Registry, vm *goja.Runtime, name string) {
	names, ok := moduleGlobals[name]
	if !ok {
		names = []string{name}
	}
	registry.RegisterNativeModule(name, func(_ *goja.Runtime, module *goja.Object) {
		if len(names) == 1 {
			_ = module.Set("exports", vm.Get(names[0]))
			return
		}
		exports := vm.NewObject()
		for _, n := range names {
			_ = exports.Set(n, vm.Get(n))
		}
		if name == "url" {
			if legacy, ok := vm.Get("legacyUrl").(*goja.Object); ok {
				_ = exports.Set("parse", legacy.Get("parse"))
			}
		}
		_ = module.Set("exports", exports)
	})
}

// watchHeap samples the process's resident set size against a baseline taken
// at invocation start and interrupts vm once the growth attributable to this
// invocation crosses heapCapMB. RSS is process-wide, so this is an
// approximation shared across concurrently running invocations rather than a
// true per-isolate heap cap, but it is the only memory signal available
// without a separate OS process per invocation.
func watchHeap(proc *process.Process, heapCapMB int, vm *goja.Runtime, stop <-chan struct{}) {
	var baseline uint64
	if info, err := proc.MemoryInfo(); err == nil && info != nil {
		baseline = info.RSS
	}
	capBytes := uint64(heapCapMB) * 1024 * 1024

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			info, err := proc.MemoryInfo()
			if err != nil || info == nil || info.RSS <= baseline {
				continue
			}
			if info.RSS-baseline > capBytes {
				vm.Interrupt(apierr.NewMemoryExhausted(heapCapMB))
				return
			}
		}
	}
}

// closedLoader backs require.WithLoader: every require(name) is resolved
// against the module table's keys rather than the filesystem, keeping the
// capability surface closed. Native modules (registered separately via
// RegisterNativeModule) short-circuit before this loader runs; this loader
// only ever sees unknown names and always rejects them.
func (s *session) closedLoader(path string) ([]byte, error) {
	return nil, fmt.Errorf("module not found: %s", path)
}
