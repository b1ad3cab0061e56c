package kv

import (
	"context"
	"strings"
	"sync"
)

// MemDriver is the default in-memory Driver, suitable for ephemeral
// deployments and the local runner.
type MemDriver struct {
	mu   sync.RWMutex
	data map[string]Entry
}

// NewMemDriver returns an empty MemDriver.
func NewMemDriver() *MemDriver {
	return &MemDriver{data: map[string]Entry{}}
}

func (d *MemDriver) Get(_ context.Context, key string) (Entry, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.data[key]
	return e, ok, nil
}

func (d *MemDriver) Set(_ context.Context, key string, entry Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data[key] = entry
	return nil
}

func (d *MemDriver) Delete(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.data, key)
	return nil
}

func (d *MemDriver) Keys(_ context.Context, prefix string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []string
	for k := range d.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (d *MemDriver) ClearPrefix(_ context.Context, prefix string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k := range d.data {
		if strings.HasPrefix(k, prefix) {
			delete(d.data, k)
		}
	}
	return nil
}

func (d *MemDriver) Close() error { return nil }
