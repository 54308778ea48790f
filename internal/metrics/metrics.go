// Package metrics defines the narrow observation surface ProgramRunner
// and AdmissionSem report through, plus a Prometheus implementation.
// Neither depends on the concrete type: both take a Recorder interface,
// so the per-session strand never imports prometheus directly.
package metrics

import "time"

// Recorder is implemented by both the Prometheus recorder and the noop
// stand-in used in tests and when metrics are disabled.
type Recorder interface {
	ObserveSessionStart()
	ObserveSessionEnd()
	ObserveCompile(compiler string, ok bool, duration time.Duration)
	ObserveRun(compiler string, verdict string, duration time.Duration, outputBytes int64)
	ObserveAdmissionRejected()
}

// Noop discards every observation. It is the default Recorder so the
// core never needs a nil check.
type Noop struct{}

func (Noop) ObserveSessionStart() {}
func (Noop) ObserveSessionEnd()   {}
func (Noop) ObserveCompile(compiler string, ok bool, duration time.Duration) {}
func (Noop) ObserveRun(compiler, verdict string, duration time.Duration, outputBytes int64) {}
func (Noop) ObserveAdmissionRejected() {}

var _ Recorder = Noop{}
