// Package resolver implements the Function Resolver: locating a
// function by id-or-name, loading its active version, and snapshotting its
// environment and network policy, all behind a small TTL/invalidation cache.
package resolver

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/robfig/cron/v3"

	"github.com/faasforge/faascore/core/apierr"
	"github.com/faasforge/faascore/core/store"
	"github.com/faasforge/faascore/domain/function"
)

// defaultTTL is the fallback cache-entry lifetime used when no explicit
// invalidation event arrives from the control plane's event bus.
const defaultTTL = 5 * time.Second

type cacheEntry struct {
	descriptor *function.Descriptor
	cachedAt   time.Time
}

// Resolver is the Function Resolver.
type Resolver struct {
	metadata store.Metadata
	cache    *lru.Cache[string, *cacheEntry]
	ttl      time.Duration

	mu        sync.Mutex
	schedules map[string]cron.Schedule
}

// New builds a Resolver backed by metadata, with an LRU cache of the given
// size (entries keyed by the lookup ref and by each descriptor's name and id).
func New(metadata store.Metadata, cacheSize int) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	c, err := lru.New[string, *cacheEntry](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		metadata:  metadata,
		cache:     c,
		ttl:       defaultTTL,
		schedules: map[string]cron.Schedule{},
	}, nil
}

// Resolve locates a function by opaque id or unique name.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*function.Descriptor, error) {
	if entry, ok := r.cache.Get(ref); ok && time.Since(entry.cachedAt) < r.ttl {
		return entry.descriptor, nil
	}

	d, err := r.metadata.FindFunction(ctx, ref)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apierr.NewFunctionNotFound(ref)
		}
		return nil, apierr.NewInternal(err)
	}

	r.cache.Add(ref, &cacheEntry{descriptor: d, cachedAt: time.Now()})
	if d.Name != "" && d.Name != ref {
		r.cache.Add(d.Name, &cacheEntry{descriptor: d, cachedAt: time.Now()})
	}
	if d.ID != "" && d.ID != ref {
		r.cache.Add(d.ID, &cacheEntry{descriptor: d, cachedAt: time.Now()})
	}
	return d, nil
}

// LoadActiveVersion resolves the function's currently-active version.
func (r *Resolver) LoadActiveVersion(ctx context.Context, d *function.Descriptor) (*function.Version, error) {
	if d.ActiveVersionID == "" {
		return nil, apierr.NewNoActiveVersion(d.ID)
	}
	v, err := r.metadata.LoadVersion(ctx, d.ID, d.ActiveVersionID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apierr.NewNoActiveVersion(d.ID)
		}
		return nil, apierr.NewInternal(err)
	}
	if v.State != function.VersionReady {
		return nil, apierr.NewNoActiveVersion(d.ID)
	}
	return v, nil
}

// EnvSnapshot returns an immutable environment map for the function,
// reflecting control-plane state at call time: in-flight invocations see a
// stable snapshot taken once, at resolution time.
func (r *Resolver) EnvSnapshot(ctx context.Context, functionID string) (map[string]string, error) {
	bindings, err := r.metadata.ListEnv(ctx, functionID)
	if err != nil {
		return nil, apierr.NewInternal(err)
	}
	out := make(map[string]string, len(bindings))
	for _, b := range bindings {
		out[b.Key] = b.Value
	}
	return out, nil
}

// NetworkPolicy returns the outbound allow-list for functionID.
func (r *Resolver) NetworkPolicy(ctx context.Context, functionID string) (function.NetworkPolicy, error) {
	p, err := r.metadata.GetNetworkPolicy(ctx, functionID)
	if err != nil {
		return function.NetworkPolicy{}, apierr.NewInternal(err)
	}
	return p, nil
}

// Invalidate drops any cached descriptor for fnID, in response to a
// descriptor/version-update event from the control plane's event bus.
func (r *Resolver) Invalidate(fnID string) {
	r.cache.Remove(fnID)
	for _, k := range r.cache.Keys() {
		if e, ok := r.cache.Peek(k); ok && e.descriptor.ID == fnID {
			r.cache.Remove(k)
		}
	}
}

// ValidateSchedule parses and caches a cron expression (standard 5-field
// form), returning an error if it is not syntactically valid. Firing the
// schedule remains the out-of-scope scheduler's job; this only supports
// descriptor validation and NextRun diagnostics.
func (r *Resolver) ValidateSchedule(functionID, expr string) error {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return apierr.New(apierr.InvalidData, "invalid cron schedule: "+err.Error())
	}
	r.mu.Lock()
	r.schedules[functionID] = sched
	r.mu.Unlock()
	return nil
}

// NextRun reports the next time a validated schedule would fire at or after
// from, and whether a schedule is registered for functionID at all.
func (r *Resolver) NextRun(functionID string, from time.Time) (time.Time, bool) {
	r.mu.Lock()
	sched, ok := r.schedules[functionID]
	r.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return sched.Next(from), true
}
