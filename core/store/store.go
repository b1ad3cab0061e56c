// Package store defines the external collaborator contracts
// (Metadata Store, Blob Store, Log Store) and ships an in-memory
// implementation suitable for the local runner and tests. A real deployment
// backs these interfaces with its own relational store — out of scope here.
package store

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/faasforge/faascore/domain/function"
)

// ErrNotFound is returned by Metadata Store lookups that find nothing.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

// Metadata is the read side of the control plane's relational store that
// the core consumes.
type Metadata interface {
	FindFunction(ctx context.Context, ref string) (*function.Descriptor, error)
	LoadVersion(ctx context.Context, functionID, versionID string) (*function.Version, error)
	ListEnv(ctx context.Context, functionID string) ([]function.EnvBinding, error)
	GetNetworkPolicy(ctx context.Context, functionID string) (function.NetworkPolicy, error)
	GetRetention(ctx context.Context, functionID string) (function.RetentionPolicy, error)
}

// Blob opens content-addressed version archives.
type Blob interface {
	OpenArchive(ctx context.Context, contentHash string) (io.ReadCloser, error)
}

// Log appends and reaps execution log records.
type Log interface {
	Append(ctx context.Context, record *function.ExecutionLog) error
	Reap(ctx context.Context, functionID string, policy function.RetentionPolicy) (int, error)
}

// Memory is an in-memory Metadata+Blob+Log Store, used by the local runner
// (cmd/faasrun) and by tests. It is not a production control-plane backing.
type Memory struct {
	mu        sync.RWMutex
	functions map[string]*function.Descriptor
	byName    map[string]string // name -> id
	versions  map[string]*function.Version
	env       map[string][]function.EnvBinding
	archives  map[string][]byte
	logs      []*function.ExecutionLog
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		functions: map[string]*function.Descriptor{},
		byName:    map[string]string{},
		versions:  map[string]*function.Version{},
		env:       map[string][]function.EnvBinding{},
		archives:  map[string][]byte{},
	}
}

// PutFunction registers or replaces a function descriptor.
func (m *Memory) PutFunction(d *function.Descriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.functions[d.ID] = d
	m.byName[d.Name] = d.ID
}

// PutVersion registers a version and its archive bytes, keyed by a
// synthetic "functionID:number" version id string.
func (m *Memory) PutVersion(v *function.Version, archive []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := versionID(v.FunctionID, v.Number)
	m.versions[id] = v
	m.archives[v.ContentHash] = archive
	return id
}

// SetEnv replaces the environment snapshot for a function.
func (m *Memory) SetEnv(functionID string, env []function.EnvBinding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.env[functionID] = env
}

func versionID(functionID string, number int) string {
	return functionID + ":" + itoa(number)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (m *Memory) FindFunction(_ context.Context, ref string) (*function.Descriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.functions[ref]; ok {
		return d, nil
	}
	if id, ok := m.byName[ref]; ok {
		return m.functions[id], nil
	}
	return nil, ErrNotFound
}

func (m *Memory) LoadVersion(_ context.Context, functionID, versionID_ string) (*function.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.versions[versionID_]
	if !ok || v.FunctionID != functionID {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *Memory) ListEnv(_ context.Context, functionID string) ([]function.EnvBinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]function.EnvBinding, len(m.env[functionID]))
	copy(out, m.env[functionID])
	return out, nil
}

func (m *Memory) GetNetworkPolicy(_ context.Context, functionID string) (function.NetworkPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.functions[functionID]; ok {
		return d.Network, nil
	}
	return function.NetworkPolicy{}, ErrNotFound
}

func (m *Memory) GetRetention(_ context.Context, functionID string) (function.RetentionPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.functions[functionID]; ok {
		return d.Retention, nil
	}
	return function.RetentionPolicy{}, ErrNotFound
}

func (m *Memory) OpenArchive(_ context.Context, contentHash string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.archives[contentHash]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *Memory) Append(_ context.Context, record *function.ExecutionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, record)
	return nil
}

// FunctionIDs returns every registered function id, for the reaper to walk
// when deciding which functions' logs to reap on each sweep.
func (m *Memory) FunctionIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.functions))
	for id := range m.functions {
		out = append(out, id)
	}
	return out
}

// ExecutionLogs returns a snapshot of every log record appended so far, for
// tests and the local runner's --kv-file-adjacent diagnostics.
func (m *Memory) ExecutionLogs() []*function.ExecutionLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*function.ExecutionLog, len(m.logs))
	copy(out, m.logs)
	return out
}

func (m *Memory) Reap(_ context.Context, functionID string, policy function.RetentionPolicy) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if policy.Kind == function.RetentionNone {
		kept := m.logs[:0]
		removed := 0
		for _, l := range m.logs {
			if l.FunctionID != functionID {
				kept = append(kept, l)
				continue
			}
			removed++
		}
		m.logs = kept
		return removed, nil
	}

	if policy.Kind == function.RetentionByCnt {
		var matching []*function.ExecutionLog
		var others []*function.ExecutionLog
		for _, l := range m.logs {
			if l.FunctionID == functionID {
				matching = append(matching, l)
			} else {
				others = append(others, l)
			}
		}
		if len(matching) <= policy.Count {
			return 0, nil
		}
		removed := len(matching) - policy.Count
		matching = matching[removed:]
		m.logs = append(others, matching...)
		return removed, nil
	}

	if policy.Kind == function.RetentionByTime {
		cutoff := time.Now().UTC().AddDate(0, 0, -policy.Days)
		kept := m.logs[:0]
		removed := 0
		for _, l := range m.logs {
			if l.FunctionID == functionID && l.EndedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, l)
		}
		m.logs = kept
		return removed, nil
	}

	return 0, nil
}
