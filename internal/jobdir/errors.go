package jobdir

import "fmt"

// ErrorKind names one of the fatal error categories a job directory stream
// can raise. These indicate producer/consumer protocol violations rather
// than ordinary recoverable conditions (a missing file just means "not yet",
// it never raises).
type ErrorKind string

const (
	// ErrOrderingViolation means a released structured event's stream_id did
	// not match the ESYNC barrier that released it — lost or reordered events.
	ErrOrderingViolation ErrorKind = "ordering_violation"
	// ErrUnknownMarkerType means a "T2-HARNESS-<KIND>:" token was recognized
	// but KIND was neither ESYNC nor EVENT.
	ErrUnknownMarkerType ErrorKind = "unknown_marker_type"
	// ErrMalformedMarkerPayload means a recognized marker's payload could not
	// be parsed into the shape its kind requires (bad ESYNC triple, invalid
	// EVENT JSON object).
	ErrMalformedMarkerPayload ErrorKind = "malformed_marker_payload"
	// ErrEventsDirOpen means the events/ directory exists but could not be
	// read (permissions, I/O error).
	ErrEventsDirOpen ErrorKind = "events_dir_open_failure"
)

// FatalError is returned for the error taxonomy's fatal categories. The
// caller (an outer test-harness loop) is expected to treat it as job
// corruption: stop polling this job directory and surface it distinctly
// from an ordinary transient error. These conditions are protocol
// violations by the producer, not recoverable states, but this package
// always returns them as an error value rather than panicking, so the
// caller decides how loud to be about it.
type FatalError struct {
	Kind   ErrorKind
	Detail string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("jobdir: %s: %s", e.Kind, e.Detail)
}

func fatalf(kind ErrorKind, format string, args ...interface{}) *FatalError {
	return &FatalError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// ConfigError is returned by New when a required constructor field is empty.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("jobdir: configuration error: %s is required", e.Field)
}

// UnknownFileKeyError is returned by Streamer.File for any FileKind other
// than the three value-files it exposes (FileStart, FileExit, FileScript).
type UnknownFileKeyError struct {
	Kind FileKind
}

func (e *UnknownFileKeyError) Error() string {
	return fmt.Sprintf("jobdir: unknown file key: %v", e.Kind)
}
