package recorder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/faasforge/faascore/core/store"
)

// FunctionSource supplies the set of function ids the Reaper should sweep
// and their current retention policy, decoupling the reaper from any one
// Metadata Store shape.
type FunctionSource interface {
	FunctionIDs() []string
}

// Reaper periodically walks every known function's RetentionPolicy against
// the Log Store, deleting execution log records the policy no longer
// retains, as a standalone sweep instead of inline per-write trimming.
type Reaper struct {
	metadata store.Metadata
	logs     store.Log
	source   FunctionSource
	log      *zap.Logger
	interval time.Duration
}

// NewReaper builds a Reaper sweeping at interval (defaults to 5 minutes if
// interval <= 0).
func NewReaper(metadata store.Metadata, logs store.Log, source FunctionSource, zapLogger *zap.Logger, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &Reaper{metadata: metadata, logs: logs, source: source, log: zapLogger, interval: interval}
}

// Run sweeps every interval until ctx is canceled. Intended to be started in
// its own goroutine by cmd/faasd at startup.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep performs one reap pass over every function the source reports,
// continuing past individual failures so one bad retention lookup doesn't
// block the rest of the fleet.
func (r *Reaper) Sweep(ctx context.Context) {
	for _, fnID := range r.source.FunctionIDs() {
		policy, err := r.metadata.GetRetention(ctx, fnID)
		if err != nil {
			r.log.Warn("reaper: retention lookup failed", zap.String("function_id", fnID), zap.Error(err))
			continue
		}
		removed, err := r.logs.Reap(ctx, fnID, policy)
		if err != nil {
			r.log.Warn("reaper: sweep failed", zap.String("function_id", fnID), zap.Error(err))
			continue
		}
		if removed > 0 {
			r.log.Info("reaper: removed execution log records",
				zap.String("function_id", fnID),
				zap.Int("removed", removed),
				zap.String("retention_kind", string(policy.Kind)))
		}
	}
}
