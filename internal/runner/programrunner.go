// Package runner implements the two-phase compile-then-run orchestrator:
// it builds compile and run command descriptors from a compiler
// profile, spawns them in sequence, forwards their stdio through a
// WriteMux, and reports the final exit status.
package runner

import (
	"context"
	"strconv"
	"time"

	"github.com/mmizutani/wandbox/internal/config"
	"github.com/mmizutani/wandbox/internal/history"
	"github.com/mmizutani/wandbox/internal/metrics"
	"github.com/mmizutani/wandbox/internal/protocol"
	"github.com/mmizutani/wandbox/pkg/logger"
)

// ProgramRunner drives one session's compile-then-run sequence after
// ProgramWriter has staged its sources into workdir.
type ProgramRunner struct {
	Mux      *protocol.WriteMux
	Metrics  metrics.Recorder
	History  history.Sink
	Switches map[string]config.SwitchProfile
}

// Run executes the compile phase, and — only if it exits zero — the run
// phase, emitting Control:Start, the per-phase output frames, a final
// ExitCode or Signal frame, and Control:Finish in that order.
func (pr *ProgramRunner) Run(
	ctx context.Context,
	workdir string,
	submissionID string,
	compiler config.CompilerProfile,
	jail config.JailProfile,
	received map[string][]byte,
) error {
	descriptors := BuildDescriptors(compiler, jail, pr.Switches, received)

	if err := pr.Mux.SubmitSync("Control", []byte("Start")); err != nil {
		return err
	}

	record := history.RunRecord{
		SubmissionID: submissionID,
		CompilerName: compiler.Name,
		StartedAt:    time.Now(),
	}

	var last PhaseResult
	for i, desc := range descriptors {
		var stdinData []byte
		if desc.StdinFrame != "" {
			stdinData = received[desc.StdinFrame]
		}

		phaseStart := time.Now()
		result, err := RunPhase(ctx, workdir, desc, stdinData, pr.Mux, jail.KillWait, jail.OutputLimitWarn, jail.OutputLimitKill)
		duration := time.Since(phaseStart)
		if err != nil {
			logger.Errorf(ctx, "phase %d failed to spawn for compiler %s: %v", i, compiler.Name, err)
			return pr.reportSpawnFailure(record)
		}

		if i == 0 {
			pr.Metrics.ObserveCompile(compiler.Name, result.ExitCode == 0 && result.SignalName == "", duration)
		} else {
			pr.Metrics.ObserveRun(compiler.Name, verdict(result), duration, result.StdoutBytes+result.StderrBytes)
		}

		last = result
		record.StdoutBytes += result.StdoutBytes
		record.StderrBytes += result.StderrBytes

		if result.SignalName != "" || result.ExitCode != 0 {
			break
		}
	}

	if last.SignalName != "" {
		signalName := last.SignalName
		record.SignalName = &signalName
		if err := pr.Mux.SubmitSync("Signal", []byte(signalName)); err != nil {
			return err
		}
	} else {
		exitCode := last.ExitCode
		record.ExitCode = &exitCode
		if err := pr.Mux.SubmitSync("ExitCode", []byte(strconv.Itoa(exitCode))); err != nil {
			return err
		}
	}

	record.FinishedAt = time.Now()
	pr.History.Record(record)

	return pr.Mux.SubmitSync("Control", []byte("Finish"))
}

// reportSpawnFailure synthesizes the Signal: spawn-failed and
// Control: Finish frames a client still needs when Control: Start has
// already gone out but a phase's child process could not be spawned.
// There is no exit code or signal from a process that never started,
// but the wire protocol still requires a terminal frame pair.
func (pr *ProgramRunner) reportSpawnFailure(record history.RunRecord) error {
	const spawnFailedSignal = "spawn-failed"
	signalName := spawnFailedSignal
	record.SignalName = &signalName
	record.FinishedAt = time.Now()
	pr.History.Record(record)

	if err := pr.Mux.SubmitSync("Signal", []byte(spawnFailedSignal)); err != nil {
		return err
	}
	return pr.Mux.SubmitSync("Control", []byte("Finish"))
}

func verdict(r PhaseResult) string {
	switch {
	case r.SignalName != "":
		return "signaled"
	case r.ExitCode == 0:
		return "ok"
	default:
		return "nonzero_exit"
	}
}
