package kv

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"
)

// jsonFileRecord is one entry as persisted to disk, ordered by insertion.
type jsonFileRecord struct {
	Key       string     `json:"key"`
	Value     []byte     `json:"value"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// JSONFileDriver is the local runner's file-backed Driver. Insertion order
// is preserved across reload by persisting an ordered array of records
// rather than a bare JSON object.
type JSONFileDriver struct {
	mu    sync.Mutex
	path  string
	order []string
	data  map[string]Entry
}

// NewJSONFileDriver loads path if it exists, or starts empty.
func NewJSONFileDriver(path string) (*JSONFileDriver, error) {
	d := &JSONFileDriver{
		path: path,
		data: map[string]Entry{},
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return d, nil
	}
	var records []jsonFileRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	for _, r := range records {
		d.order = append(d.order, r.Key)
		d.data[r.Key] = Entry{Value: r.Value, ExpiresAt: r.ExpiresAt}
	}
	return d, nil
}

func (d *JSONFileDriver) Get(_ context.Context, key string) (Entry, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.data[key]
	return e, ok, nil
}

func (d *JSONFileDriver) Set(_ context.Context, key string, entry Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, existed := d.data[key]; !existed {
		d.order = append(d.order, key)
	}
	d.data[key] = entry
	return d.flushLocked()
}

func (d *JSONFileDriver) Delete(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.data[key]; !ok {
		return nil
	}
	delete(d.data, key)
	d.removeFromOrderLocked(key)
	return d.flushLocked()
}

func (d *JSONFileDriver) Keys(_ context.Context, prefix string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, k := range d.order {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (d *JSONFileDriver) ClearPrefix(_ context.Context, prefix string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var kept []string
	for _, k := range d.order {
		if strings.HasPrefix(k, prefix) {
			delete(d.data, k)
			continue
		}
		kept = append(kept, k)
	}
	d.order = kept
	return d.flushLocked()
}

func (d *JSONFileDriver) Close() error { return nil }

func (d *JSONFileDriver) removeFromOrderLocked(key string) {
	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			return
		}
	}
}

func (d *JSONFileDriver) flushLocked() error {
	records := make([]jsonFileRecord, 0, len(d.order))
	for _, k := range d.order {
		e := d.data[k]
		records = append(records, jsonFileRecord{Key: k, Value: e.Value, ExpiresAt: e.ExpiresAt})
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(d.path, raw, 0o644)
}
