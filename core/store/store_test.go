package store

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faasforge/faascore/domain/function"
)

func TestMemoryFindFunctionByIDOrName(t *testing.T) {
	m := NewMemory()
	m.PutFunction(&function.Descriptor{ID: "f1", Name: "hello", Active: true})

	byID, err := m.FindFunction(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "hello", byID.Name)

	byName, err := m.FindFunction(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "f1", byName.ID)

	_, err = m.FindFunction(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryVersionAndArchiveRoundtrip(t *testing.T) {
	m := NewMemory()
	m.PutFunction(&function.Descriptor{ID: "f1", Name: "hello"})
	vid := m.PutVersion(&function.Version{FunctionID: "f1", Number: 1, ContentHash: "abc"}, []byte("archive-bytes"))

	v, err := m.LoadVersion(context.Background(), "f1", vid)
	require.NoError(t, err)
	assert.Equal(t, "abc", v.ContentHash)

	rc, err := m.OpenArchive(context.Background(), "abc")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", string(data))
}

func TestMemoryReapByCount(t *testing.T) {
	m := NewMemory()
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Append(context.Background(), &function.ExecutionLog{
			InvocationID: string(rune('a' + i)),
			FunctionID:   "f1",
			StartedAt:    time.Now(),
		}))
	}

	removed, err := m.Reap(context.Background(), "f1", function.RetentionPolicy{Kind: function.RetentionByCnt, Count: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Len(t, m.ExecutionLogs(), 2)
}

func TestMemoryReapNoneDeletesAll(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Append(context.Background(), &function.ExecutionLog{FunctionID: "f1"}))
	require.NoError(t, m.Append(context.Background(), &function.ExecutionLog{FunctionID: "f2"}))

	removed, err := m.Reap(context.Background(), "f1", function.RetentionPolicy{Kind: function.RetentionNone})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Len(t, m.ExecutionLogs(), 1)
}

func TestMemoryReapByTimeRemovesOnlyExpired(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Append(context.Background(), &function.ExecutionLog{
		FunctionID: "f1",
		EndedAt:    time.Now().UTC().AddDate(0, 0, -10),
	}))
	require.NoError(t, m.Append(context.Background(), &function.ExecutionLog{
		FunctionID: "f1",
		EndedAt:    time.Now().UTC(),
	}))

	removed, err := m.Reap(context.Background(), "f1", function.RetentionPolicy{Kind: function.RetentionByTime, Days: 7})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Len(t, m.ExecutionLogs(), 1)
}

func TestMemoryFunctionIDsListsAllRegistered(t *testing.T) {
	m := NewMemory()
	m.PutFunction(&function.Descriptor{ID: "f1", Name: "hello"})
	m.PutFunction(&function.Descriptor{ID: "f2", Name: "world"})

	ids := m.FunctionIDs()
	assert.ElementsMatch(t, []string{"f1", "f2"}, ids)
}
