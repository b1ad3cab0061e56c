// Package dispatcher implements the Invocation Dispatcher:
// the one HTTP entry point, `/invoke/{ref}[/*]`, that resolves a function,
// enforces its API key and activation state, materializes and runs its
// current version in the Sandbox Engine with a bounded deadline, and
// translates the result back into an HTTP response.
package dispatcher

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/gorilla/mux"

	"github.com/faasforge/faascore/core/apierr"
	"github.com/faasforge/faascore/core/kv"
	"github.com/faasforge/faascore/core/logging"
	"github.com/faasforge/faascore/core/materializer"
	"github.com/faasforge/faascore/core/policy"
	"github.com/faasforge/faascore/core/recorder"
	"github.com/faasforge/faascore/core/reqres"
	"github.com/faasforge/faascore/core/resolver"
	"github.com/faasforge/faascore/core/sandbox"
	"github.com/faasforge/faascore/core/sandbox/hostapi"
	"github.com/faasforge/faascore/core/sandbox/reqresbind"
	"github.com/faasforge/faascore/core/store"
	"github.com/faasforge/faascore/domain/function"
)

// Limits carries the process-wide defaults a function's descriptor may
// override.
type Limits struct {
	DefaultTimeout   time.Duration
	DefaultHeapCapMB int
	RingBufferBytes  int
	// RequestsPerSecond/Burst throttle invocation throughput per function id
	// ahead of the concurrency gate; RequestsPerSecond <= 0 disables it.
	RequestsPerSecond float64
	Burst             int
}

// Dispatcher wires every core package into the HTTP invocation path.
type Dispatcher struct {
	resolver     *resolver.Resolver
	materializer *materializer.Materializer
	engine       *sandbox.Engine
	blob         store.Blob
	kvDriver     kv.Driver
	recorder     *recorder.Recorder
	logger       *logging.Logger
	limits       Limits
	metrics      *Metrics
	rateLimiter  *rateLimiterSet

	gates sync.Map // function id -> *concurrencyGate
}

// New builds a Dispatcher. blob opens version archives by content hash;
// kvDriver backs every function's namespaced kv global (core/kv.New is
// called once per invocation with the function id as namespace).
func New(
	res *resolver.Resolver,
	mat *materializer.Materializer,
	blob store.Blob,
	kvDriver kv.Driver,
	rec *recorder.Recorder,
	logger *logging.Logger,
	limits Limits,
) *Dispatcher {
	if limits.DefaultTimeout <= 0 {
		limits.DefaultTimeout = 30 * time.Second
	}
	if limits.DefaultHeapCapMB <= 0 {
		limits.DefaultHeapCapMB = 256
	}
	if limits.RingBufferBytes <= 0 {
		limits.RingBufferBytes = 1 << 20
	}
	engine := sandbox.New(hostapi.Modules(), limits.DefaultTimeout+5*time.Second)
	return &Dispatcher{
		resolver:     res,
		materializer: mat,
		engine:       engine,
		blob:         blob,
		kvDriver:     kvDriver,
		recorder:     rec,
		logger:       logger,
		limits:       limits,
		metrics:      NewMetrics(),
		rateLimiter:  newRateLimiterSet(limits.RequestsPerSecond, limits.Burst),
	}
}

// Router builds the mux.Router exposing /invoke/{ref}[/*], /healthz,
// /readyz, and /metrics, wrapped in the recover -> logging -> metrics
// middleware chain, mirroring cmd/gateway/main.go's router assembly.
func (d *Dispatcher) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(recoveryMiddleware(d.logger))
	r.Use(loggingMiddleware(d.logger))
	r.Use(metricsMiddleware(d.metrics))

	r.HandleFunc("/healthz", d.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", d.handleReadyz).Methods(http.MethodGet)
	r.Handle("/metrics", d.metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/invoke/{ref}", d.handleInvoke)
	r.HandleFunc("/invoke/{ref}/{rest:.*}", d.handleInvoke)

	return r
}

// handleInvoke implements the invocation path's seven-step contract.
func (d *Dispatcher) handleInvoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	ref := vars["ref"]
	tail := vars["rest"]

	descriptor, err := d.resolver.Resolve(ctx, ref)
	if err != nil {
		d.writeAPIErr(w, err)
		return
	}

	if descriptor.RequiresAPIKey {
		supplied := r.Header.Get("x-api-key")
		if supplied == "" || !constantTimeEqual(supplied, descriptor.APIKey) {
			d.writeAPIErr(w, apierr.NewAPIKeyRequired())
			return
		}
	}

	if !descriptor.Active {
		d.writeAPIErr(w, apierr.NewFunctionDisabled(descriptor.ID))
		return
	}

	version, err := d.resolver.LoadActiveVersion(ctx, descriptor)
	if err != nil {
		d.writeAPIErr(w, err)
		return
	}

	if !d.rateLimiter.allow(descriptor.ID) {
		d.metrics.concurrencyDenied.WithLabelValues(ref).Inc()
		d.writeAPIErr(w, apierr.NewTooManyConcurrent(descriptor.ID))
		return
	}

	gate := d.gateFor(descriptor)
	if !gate.acquire() {
		d.metrics.concurrencyDenied.WithLabelValues(ref).Inc()
		d.writeAPIErr(w, apierr.NewTooManyConcurrent(descriptor.ID))
		return
	}
	defer gate.release()

	env, err := d.resolver.EnvSnapshot(ctx, descriptor.ID)
	if err != nil {
		d.writeAPIErr(w, err)
		return
	}
	netPolicy, err := d.resolver.NetworkPolicy(ctx, descriptor.ID)
	if err != nil {
		d.writeAPIErr(w, err)
		return
	}

	rc, err := d.blob.OpenArchive(ctx, version.ContentHash)
	if err != nil {
		d.writeAPIErr(w, apierr.NewInternal(err))
		return
	}
	archive, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		d.writeAPIErr(w, apierr.NewInternal(err))
		return
	}

	handle, err := d.materializer.Acquire(version.ContentHash, archive)
	if err != nil {
		d.writeAPIErr(w, apierr.NewInternal(err))
		return
	}
	defer handle.Release()

	rawEntrySource, err := handle.VFS.EntryScript()
	if err != nil {
		d.writeAPIErr(w, err)
		return
	}
	entrySource := sandbox.WrapCommonJS(string(rawEntrySource))

	limits := policy.ResolveLimits(descriptor, d.limits.DefaultTimeout, d.limits.DefaultHeapCapMB)
	enforcer := policy.New(netPolicy)

	body, _ := io.ReadAll(r.Body)
	tailPath := "/" + strings.TrimPrefix(tail, "/")
	req := reqres.FromHTTP(r, tailPath, body)
	res := reqres.New()

	invocationID := logging.NewInvocationID()
	domainInv := &function.Invocation{
		ID:         invocationID,
		FunctionID: descriptor.ID,
		VersionID:  version.ContentHash,
		Method:     req.Method,
		Path:       req.Path,
		Query:      r.URL.RawQuery,
		Body:       body,
		StartedAt:  time.Now().UTC(),
	}
	session := d.recorder.Begin(domainInv, d.limits.RingBufferBytes)

	kvOpen := func(namespace string) any { return kv.New(d.kvDriver, namespace) }

	inv := &sandbox.Invocation{
		ID:         invocationID,
		Function:   descriptor,
		Version:    version,
		VFS:        handle.VFS,
		Env:        env,
		Limits:     limits,
		Policy:     enforcer,
		KVOpen:     kvOpen,
		RequireAPI: r.Header.Get("x-api-key"),
		Stdout:     session.Stdout,
		Stderr:     session.Stderr,
		AutoEnd:    func() error { return res.End() },
	}

	runCtx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	buildArgs := func(vm *goja.Runtime) []goja.Value {
		return []goja.Value{reqresbind.BindRequest(vm, req), reqresbind.BindResponse(vm, res)}
	}

	result := d.engine.Run(runCtx, entrySource, "index", inv, buildArgs, res.Done())

	snap := res.Snapshot()
	var execErr error
	if result.Err != nil {
		execErr = result.Err
	}
	if _, logErr := session.Finish(ctx, result.Outcome, snap.StatusCode, body, snap.Body, execErr); logErr != nil {
		d.logger.WithContext(ctx).WithField("invocation_id", invocationID).WithError(logErr).Warn("persist execution log failed")
	}

	// Spec §4.1 step 6/7: if res ever reached TERMINAL, emit it verbatim;
	// otherwise the engine ended without a sent response and the error is
	// synthesized into the {error, message} envelope.
	select {
	case <-res.Done():
		d.writeSnapshot(w, snap)
	default:
		if result.Err == nil {
			result.Err = apierr.New(apierr.InternalError, "engine completed without a terminal response")
		}
		d.writeAPIErr(w, result.Err)
	}
}

func (d *Dispatcher) writeSnapshot(w http.ResponseWriter, snap reqres.Snapshot) {
	for k, vs := range snap.Headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	for _, c := range snap.Cookies {
		http.SetCookie(w, c)
	}
	status := snap.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(snap.Body)
}

// writeAPIErr synthesizes the JSON error envelope: {error, message}.
func (d *Dispatcher) writeAPIErr(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*apierr.Error)
	if !ok {
		apiErr = apierr.NewInternal(err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatus())
	_, _ = w.Write([]byte(`{"error":"` + string(apiErr.Kind) + `","message":"` + jsonEscape(apiErr.Message) + `"}`))
}

func jsonEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (d *Dispatcher) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(healthSnapshot()))
}

func (d *Dispatcher) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
