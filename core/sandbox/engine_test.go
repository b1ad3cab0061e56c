package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faasforge/faascore/core/policy"
	"github.com/faasforge/faascore/domain/function"
)

func testInvocation() *Invocation {
	return &Invocation{
		ID:     "inv-1",
		Limits: policy.Limits{Timeout: time.Second, HeapCapMB: 64},
		Policy: policy.New(function.NetworkPolicy{}),
	}
}

func TestEngineRunsSimpleHandler(t *testing.T) {
	e := New(nil, time.Second)
	inv := testInvocation()
	ctx, cancel := context.WithTimeout(context.Background(), inv.Limits.Timeout)
	defer cancel()

	done := make(chan struct{})
	close(done) // synchronous handler: no async work pending

	src := `function handler(x) { return x + 1; }`
	result := e.Run(ctx, src, "index", inv, func(vm *goja.Runtime) []goja.Value {
		return []goja.Value{vm.ToValue(int64(41))}
	}, done)

	assert.Equal(t, function.OutcomeSuccess, result.Outcome)
	assert.Nil(t, result.Err)
}

func TestEngineReportsCompileError(t *testing.T) {
	e := New(nil, time.Second)
	inv := testInvocation()
	ctx, cancel := context.WithTimeout(context.Background(), inv.Limits.Timeout)
	defer cancel()

	done := make(chan struct{})
	close(done)

	result := e.Run(ctx, `this is not valid js {{{`, "index", inv, nil, done)
	require.NotNil(t, result.Err)
	assert.Equal(t, function.OutcomeUserError, result.Outcome)
}

func TestEngineReportsMissingEntryPoint(t *testing.T) {
	e := New(nil, time.Second)
	inv := testInvocation()
	ctx, cancel := context.WithTimeout(context.Background(), inv.Limits.Timeout)
	defer cancel()

	done := make(chan struct{})
	close(done)

	result := e.Run(ctx, `var x = 1;`, "index", inv, nil, done)
	require.NotNil(t, result.Err)
	assert.Equal(t, function.OutcomeUserError, result.Outcome)
}

func TestEngineInstallsModulesBeforeRunning(t *testing.T) {
	installed := false
	modules := map[string]ModuleInstaller{
		"probe": func(vm *goja.Runtime, inv *Invocation) error {
			installed = true
			return vm.Set("probed", true)
		},
	}
	e := New(modules, time.Second)
	inv := testInvocation()
	ctx, cancel := context.WithTimeout(context.Background(), inv.Limits.Timeout)
	defer cancel()

	done := make(chan struct{})
	close(done)

	result := e.Run(ctx, `function handler() { if (typeof probed === "undefined") { throw new Error("missing"); } return true; }`, "index", inv, nil, done)
	assert.True(t, installed)
	assert.Equal(t, function.OutcomeSuccess, result.Outcome)
}

func TestLoopDrainsMicrotasksBeforeMacrotasks(t *testing.T) {
	l := NewLoop(4)
	var order []string

	l.QueueMicrotask(func() { order = append(order, "micro") })
	l.SetTimeout(0, func() { order = append(order, "macro") })

	done := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(done)
	}()
	l.Run(done, 50*time.Millisecond)

	require.True(t, len(order) >= 1)
	assert.Equal(t, "micro", order[0])
}

func TestLoopNextTickDrainsAheadOfMicrotasks(t *testing.T) {
	l := NewLoop(4)
	var order []string

	l.QueueMicrotask(func() { order = append(order, "micro") })
	l.QueueNextTick(func() { order = append(order, "nextTick") })

	done := make(chan struct{})
	close(done)
	l.Run(done, 10*time.Millisecond)

	require.Len(t, order, 2)
	assert.Equal(t, "nextTick", order[0])
	assert.Equal(t, "micro", order[1])
}
