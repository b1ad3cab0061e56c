package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faasforge/faascore/core/apierr"
	"github.com/faasforge/faascore/core/store"
	"github.com/faasforge/faascore/domain/function"
)

func TestResolveByIDAndName(t *testing.T) {
	m := store.NewMemory()
	m.PutFunction(&function.Descriptor{ID: "f1", Name: "hi", Active: true, ActiveVersionID: "f1:1"})
	m.PutVersion(&function.Version{FunctionID: "f1", Number: 1, ContentHash: "h", State: function.VersionReady}, []byte("x"))

	r, err := New(m, 16)
	require.NoError(t, err)

	byID, err := r.Resolve(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "hi", byID.Name)

	byName, err := r.Resolve(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "f1", byName.ID)
}

func TestResolveUnknownReturnsFunctionNotFound(t *testing.T) {
	r, err := New(store.NewMemory(), 16)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, apierr.OfKind(err, apierr.FunctionNotFound))
}

func TestLoadActiveVersionNoActive(t *testing.T) {
	m := store.NewMemory()
	m.PutFunction(&function.Descriptor{ID: "f1", Name: "hi"})
	r, err := New(m, 16)
	require.NoError(t, err)

	d, err := r.Resolve(context.Background(), "f1")
	require.NoError(t, err)

	_, err = r.LoadActiveVersion(context.Background(), d)
	require.Error(t, err)
	assert.True(t, apierr.OfKind(err, apierr.NoActiveVersion))
}

func TestInvalidateDropsCacheEntry(t *testing.T) {
	m := store.NewMemory()
	m.PutFunction(&function.Descriptor{ID: "f1", Name: "hi"})
	r, err := New(m, 16)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), "f1")
	require.NoError(t, err)

	r.Invalidate("f1")

	m.PutFunction(&function.Descriptor{ID: "f1", Name: "renamed"})
	d, err := r.Resolve(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", d.Name)
}

func TestValidateScheduleAndNextRun(t *testing.T) {
	r, err := New(store.NewMemory(), 16)
	require.NoError(t, err)

	require.NoError(t, r.ValidateSchedule("f1", "*/5 * * * *"))

	now := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	next, ok := r.NextRun("f1", now)
	require.True(t, ok)
	assert.True(t, next.After(now))

	err = r.ValidateSchedule("f2", "not a cron")
	require.Error(t, err)
	assert.True(t, apierr.OfKind(err, apierr.InvalidData))
}
