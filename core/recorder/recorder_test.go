package recorder

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/faasforge/faascore/core/apierr"
	"github.com/faasforge/faascore/core/store"
	"github.com/faasforge/faascore/domain/function"
)

func TestRingBufferTruncatesWithSentinelOnce(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Write("0123456789")
	rb.Write("more")
	rb.Write("even more")

	assert.True(t, rb.Truncated())
	assert.Equal(t, 1, strings.Count(rb.String(), "[truncated]"))
	assert.True(t, strings.HasPrefix(rb.String(), "0123456789"))
}

func TestRingBufferKeepsFullContentUnderCap(t *testing.T) {
	rb := NewRingBuffer(100)
	rb.WriteLine("hello")
	rb.WriteLine("world")

	assert.False(t, rb.Truncated())
	assert.Equal(t, "hello\nworld\n", rb.String())
}

func TestSanitizeExtractsAllowListedFieldsOnly(t *testing.T) {
	r := New(store.NewMemory(), zaptest.NewLogger(t), []string{"user.id", "missing.field"})
	got := r.Sanitize([]byte(`{"user":{"id":"u1","email":"secret@example.com"},"other":"x"}`))

	assert.Equal(t, "u1", got["user.id"])
	_, hasMissing := got["missing.field"]
	assert.False(t, hasMissing)
	assert.Len(t, got, 1)
}

func TestSessionFinishPersistsExecutionLog(t *testing.T) {
	mem := store.NewMemory()
	r := New(mem, zaptest.NewLogger(t), []string{"ok"})
	inv := &function.Invocation{ID: "inv-1", FunctionID: "fn-1", VersionID: "v1"}

	session := r.Begin(inv, 1024)
	session.Stdout("hello")
	session.Stderr("uh oh")

	record, err := session.Finish(context.Background(), function.OutcomeSuccess, 200, nil, []byte(`{"ok":true}`), nil)
	require.NoError(t, err)
	assert.Equal(t, "inv-1", record.InvocationID)
	assert.Contains(t, record.Stdout, "hello")
	assert.Contains(t, record.Stderr, "uh oh")
	assert.Equal(t, true, record.ResponseEnv["ok"])
	assert.Len(t, mem.ExecutionLogs(), 1)
}

func TestSessionFinishRecordsApierrKind(t *testing.T) {
	mem := store.NewMemory()
	r := New(mem, zap.NewNop(), nil)
	inv := &function.Invocation{ID: "inv-2", FunctionID: "fn-1"}

	session := r.Begin(inv, 1024)
	_, err := session.Finish(context.Background(), function.OutcomeTimeout, 504, nil, nil, apierr.NewTimeout(5000))
	require.NoError(t, err)

	logs := mem.ExecutionLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, string(apierr.Timeout), logs[0].ErrorKind)
}

type fakeSource struct{ ids []string }

func (f fakeSource) FunctionIDs() []string { return f.ids }

func TestReaperSweepsByRetentionPolicy(t *testing.T) {
	mem := store.NewMemory()
	mem.PutFunction(&function.Descriptor{
		ID:        "f1",
		Retention: function.RetentionPolicy{Kind: function.RetentionByCnt, Count: 1},
	})
	for i := 0; i < 3; i++ {
		require.NoError(t, mem.Append(context.Background(), &function.ExecutionLog{
			FunctionID: "f1",
			EndedAt:    time.Now(),
		}))
	}

	reaper := NewReaper(mem, mem, fakeSource{ids: []string{"f1"}}, zap.NewNop(), time.Hour)
	reaper.Sweep(context.Background())

	assert.Len(t, mem.ExecutionLogs(), 1)
}
