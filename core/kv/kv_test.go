package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemDriverSetGetHasDeleteClear(t *testing.T) {
	s := New(NewMemDriver(), "fn1")
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "c")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "c", []byte("1"), 0))
	v, ok, err := s.Get(ctx, "c")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", string(v))

	has, err := s.Has(ctx, "c")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, s.Delete(ctx, "c"))
	has, err = s.Has(ctx, "c")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestTTLExpiry(t *testing.T) {
	s := New(NewMemDriver(), "fn1")
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	has, err := s.Has(ctx, "k")
	require.NoError(t, err)
	assert.True(t, has)

	time.Sleep(20 * time.Millisecond)
	has, err = s.Has(ctx, "k")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestNamespaceIsolation(t *testing.T) {
	driver := NewMemDriver()
	a := New(driver, "fnA")
	b := New(driver, "fnB")
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "k", []byte("a-value"), 0))
	_, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearOnlyAffectsNamespace(t *testing.T) {
	driver := NewMemDriver()
	a := New(driver, "fnA")
	b := New(driver, "fnB")
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "k1", []byte("1"), 0))
	require.NoError(t, b.Set(ctx, "k1", []byte("1"), 0))

	require.NoError(t, a.Clear(ctx))

	has, _ := a.Has(ctx, "k1")
	assert.False(t, has)
	has, _ = b.Has(ctx, "k1")
	assert.True(t, has)
}

func TestKeysListsNamespaceOnly(t *testing.T) {
	driver := NewMemDriver()
	s := New(driver, "fnA")
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestJSONFileDriverPreservesInsertionOrderAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.json")
	ctx := context.Background()

	d1, err := NewJSONFileDriver(path)
	require.NoError(t, err)
	s1 := New(d1, "fn")
	require.NoError(t, s1.Set(ctx, "z", []byte("1"), 0))
	require.NoError(t, s1.Set(ctx, "a", []byte("2"), 0))
	require.NoError(t, s1.Set(ctx, "m", []byte("3"), 0))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, len(raw) > 0)

	d2, err := NewJSONFileDriver(path)
	require.NoError(t, err)
	keys, err := d2.Keys(ctx, "fn\x00")
	require.NoError(t, err)
	require.Len(t, keys, 3)
	assert.Equal(t, []string{"fn\x00z", "fn\x00a", "fn\x00m"}, keys)
}

func TestJSONFileDriverDeleteRemovesFromOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.json")
	d, err := NewJSONFileDriver(path)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, d.Set(ctx, "a", Entry{Value: []byte("1")}))
	require.NoError(t, d.Set(ctx, "b", Entry{Value: []byte("2")}))
	require.NoError(t, d.Delete(ctx, "a"))

	keys, err := d.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)
}
