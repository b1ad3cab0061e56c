// Package recorder implements per-invocation stdout/stderr capture, a
// sanitized request/response envelope, and the structured execution-log
// record persisted at invocation completion. It also runs the retention
// reaper that walks each function's RetentionPolicy against the Log Store.
package recorder

import (
	"context"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/faasforge/faascore/core/apierr"
	"github.com/faasforge/faascore/core/store"
	"github.com/faasforge/faascore/domain/function"
)

// DefaultStreamCapBytes bounds stdout/stderr capture per invocation absent
// a more specific limit from the function's policy.
const DefaultStreamCapBytes = 64 * 1024

// Recorder builds ExecutionLog records for completed invocations and writes
// them to a Log Store, tagging each with a zap-structured audit entry
// independent of the app-wide logrus logger used for operational logging.
type Recorder struct {
	logs   store.Log
	zap    *zap.Logger
	fields []string // allow-listed JSON field paths extracted into Request/ResponseEnv
}

// New builds a Recorder. allowedFields are gjson paths (e.g. "user.id",
// "items.#.sku") extracted from request/response bodies into the execution
// log's sanitized envelope; fields outside this list are never persisted.
func New(logs store.Log, zapLogger *zap.Logger, allowedFields []string) *Recorder {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &Recorder{logs: logs, zap: zapLogger, fields: allowedFields}
}

// Session accumulates one invocation's stdout/stderr while it runs; Finish
// turns it into a persisted ExecutionLog record.
type Session struct {
	r          *Recorder
	invocation *function.Invocation
	stdout     *RingBuffer
	stderr     *RingBuffer
	startedAt  time.Time
}

// Begin opens a recording session for inv, capping each stream at capBytes
// (DefaultStreamCapBytes if capBytes <= 0).
func (r *Recorder) Begin(inv *function.Invocation, capBytes int) *Session {
	if capBytes <= 0 {
		capBytes = DefaultStreamCapBytes
	}
	return &Session{
		r:          r,
		invocation: inv,
		stdout:     NewRingBuffer(capBytes),
		stderr:     NewRingBuffer(capBytes),
		startedAt:  time.Now().UTC(),
	}
}

// Stdout is the sink to pass (as a method value) as sandbox.Invocation.Stdout.
func (s *Session) Stdout(line string) { s.stdout.WriteLine(line) }

// Stderr is the sink to pass (as a method value) as sandbox.Invocation.Stderr.
func (s *Session) Stderr(line string) { s.stderr.WriteLine(line) }

// Sanitize extracts the session's recorder's allow-listed fields out of
// rawJSON without a full unmarshal, via gjson. Absent/malformed fields are
// silently omitted rather than failing the whole extraction.
func (r *Recorder) Sanitize(rawJSON []byte) map[string]any {
	if len(rawJSON) == 0 || len(r.fields) == 0 {
		return nil
	}
	out := make(map[string]any, len(r.fields))
	results := gjson.GetManyBytes(rawJSON, r.fields...)
	for i, field := range r.fields {
		res := results[i]
		if !res.Exists() {
			continue
		}
		out[field] = res.Value()
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Finish builds and persists the ExecutionLog for this session, logging a
// structured zap entry alongside. outcome/statusCode/execErr describe the
// invocation's terminal state as classified by the engine/dispatcher.
func (s *Session) Finish(ctx context.Context, outcome function.Outcome, statusCode int, requestBody, responseBody []byte, execErr error) (*function.ExecutionLog, error) {
	endedAt := time.Now().UTC()
	record := &function.ExecutionLog{
		InvocationID: s.invocation.ID,
		FunctionID:   s.invocation.FunctionID,
		VersionID:    s.invocation.VersionID,
		StartedAt:    s.startedAt,
		EndedAt:      endedAt,
		DurationMS:   endedAt.Sub(s.startedAt).Milliseconds(),
		Outcome:      outcome,
		StatusCode:   statusCode,
		RequestEnv:   s.r.Sanitize(requestBody),
		ResponseEnv:  s.r.Sanitize(responseBody),
		Stdout:       s.stdout.String(),
		Stderr:       s.stderr.String(),
	}

	fields := []zap.Field{
		zap.String("invocation_id", record.InvocationID),
		zap.String("function_id", record.FunctionID),
		zap.String("version_id", record.VersionID),
		zap.String("outcome", string(record.Outcome)),
		zap.Int("status_code", record.StatusCode),
		zap.Int64("duration_ms", record.DurationMS),
		zap.Bool("stdout_truncated", s.stdout.Truncated()),
		zap.Bool("stderr_truncated", s.stderr.Truncated()),
	}

	if execErr != nil {
		if apiErr, ok := execErr.(*apierr.Error); ok {
			record.ErrorKind = string(apiErr.Kind)
			record.ErrorMessage = apiErr.Message
		} else {
			record.ErrorKind = string(apierr.InternalError)
			record.ErrorMessage = execErr.Error()
		}
		fields = append(fields, zap.String("error_kind", record.ErrorKind), zap.String("error_message", record.ErrorMessage))
		s.r.zap.Warn("invocation completed with error", fields...)
	} else {
		s.r.zap.Info("invocation completed", fields...)
	}

	if err := s.r.logs.Append(ctx, record); err != nil {
		return record, apierr.NewInternal(err)
	}
	return record, nil
}

// NewProductionLogger builds the zap logger the recorder uses for
// structured per-invocation entries, distinct in shape and destination from
// the app-wide logrus logger (core/logging) used for operational logging.
func NewProductionLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	return cfg.Build()
}
