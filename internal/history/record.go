// Package history provides a best-effort, asynchronous sink for
// RunRecords: one row per finished session, published to Kafka and
// drained into MySQL by an in-process consumer. Nothing in this package
// is on the per-session hot path — Record always returns immediately.
package history

import "time"

// RunRecord describes one finished session for out-of-band persistence.
type RunRecord struct {
	SubmissionID string    `json:"submission_id"`
	CompilerName string    `json:"compiler_name"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	ExitCode     *int      `json:"exit_code,omitempty"`
	SignalName   *string   `json:"signal_name,omitempty"`
	StdoutBytes  int64     `json:"stdout_bytes"`
	StderrBytes  int64     `json:"stderr_bytes"`
}

// Sink accepts finished-run records. Record must not block past
// enqueueing: a disconnected broker or database is logged and
// swallowed, never surfaced to the session that produced the record.
type Sink interface {
	Record(record RunRecord)
	Close() error
}

// Noop discards every record. Used when history.enabled is false.
type Noop struct{}

func (Noop) Record(RunRecord) {}
func (Noop) Close() error     { return nil }

var _ Sink = Noop{}
