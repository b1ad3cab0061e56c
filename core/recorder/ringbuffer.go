package recorder

import "strings"

// truncationSentinel marks a stdout/stderr stream that exceeded its cap;
// it is appended once, after which further writes are dropped.
const truncationSentinel = "\n...[truncated]\n"

// RingBuffer is a bounded byte accumulator for one invocation's stdout or
// stderr stream: it keeps the first capBytes written and appends
// truncationSentinel exactly once when a write would exceed that cap,
// rather than rotating out earlier output: callers care about the
// beginning of a runaway log, not the tail, since the cause of a loop is
// usually near the first iteration.
type RingBuffer struct {
	capBytes  int
	buf       strings.Builder
	truncated bool
}

// NewRingBuffer returns an empty buffer capped at capBytes.
func NewRingBuffer(capBytes int) *RingBuffer {
	if capBytes <= 0 {
		capBytes = 1
	}
	return &RingBuffer{capBytes: capBytes}
}

// WriteLine appends line plus a trailing newline, truncating (once) if the
// buffer is already at or over capacity.
func (r *RingBuffer) WriteLine(line string) {
	r.Write(line + "\n")
}

// Write appends s, truncating (once) if the buffer is already at or over
// capacity. Safe to call repeatedly after truncation; it becomes a no-op.
func (r *RingBuffer) Write(s string) {
	if r.truncated {
		return
	}
	remaining := r.capBytes - r.buf.Len()
	if remaining <= 0 {
		r.buf.WriteString(truncationSentinel)
		r.truncated = true
		return
	}
	if len(s) <= remaining {
		r.buf.WriteString(s)
		return
	}
	r.buf.WriteString(s[:remaining])
	r.buf.WriteString(truncationSentinel)
	r.truncated = true
}

// String returns the accumulated contents, including the truncation
// sentinel if the stream overflowed.
func (r *RingBuffer) String() string {
	return r.buf.String()
}

// Truncated reports whether this buffer dropped output.
func (r *RingBuffer) Truncated() bool {
	return r.truncated
}
