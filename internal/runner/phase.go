package runner

import (
	"bytes"
	"context"
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/mmizutani/wandbox/internal/limiter"
	"github.com/mmizutani/wandbox/internal/procpipes"
	"github.com/mmizutani/wandbox/internal/protocol"
)

// PhaseResult carries one command descriptor's outcome back to the
// two-phase driver.
type PhaseResult struct {
	ExitCode    int
	SignalName  string
	StdoutBytes int64
	StderrBytes int64
}

// RunPhase spawns desc.Argv under workdir, forwards its stdio through
// mux under the descriptor's frame names, and escalates SIGXCPU then
// SIGKILL if the four forwarders (stdin writer, stdout/stderr readers,
// status waiter) haven't all finished within softKillWait and then
// killWait. It blocks until the child has exited and its stdio is
// fully drained.
func RunPhase(
	ctx context.Context,
	workdir string,
	desc CommandDescriptor,
	stdinData []byte,
	mux *protocol.WriteMux,
	killWait time.Duration,
	outputWarn, outputKill int64,
) (PhaseResult, error) {
	child, err := procpipes.Spawn(ctx, workdir, desc.Argv)
	if err != nil {
		return PhaseResult{}, err
	}

	lim := limiter.New(child, outputWarn, outputKill)

	var wg sync.WaitGroup
	var stdoutBytes, stderrBytes int64
	wg.Add(3)

	go func() {
		defer wg.Done()
		defer child.Stdin.Close()
		if len(stdinData) > 0 {
			_, _ = io.Copy(child.Stdin, bytes.NewReader(stdinData))
		}
	}()

	go func() {
		defer wg.Done()
		stdoutBytes = forwardOutput(child.Stdout, desc.StdoutFrame, mux, lim)
	}()

	go func() {
		defer wg.Done()
		stderrBytes = forwardOutput(child.Stderr, desc.StderrFrame, mux, lim)
	}()

	forwardersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(forwardersDone)
	}()

	allDone := make(chan struct{})
	go func() {
		<-forwardersDone
		<-child.Done()
		close(allDone)
	}()

	watchdog(child, desc.SoftKillWait, killWait, allDone)

	<-allDone
	exitCode, signalName := child.Result()
	return PhaseResult{
		ExitCode:    exitCode,
		SignalName:  signalName,
		StdoutBytes: stdoutBytes,
		StderrBytes: stderrBytes,
	}, nil
}

// watchdog races a two-stage kill escalation against allDone. It returns
// as soon as allDone fires (the timers are abandoned, not explicitly
// cancelled, same as letting an expired deadline_timer's wait return
// with an error the caller ignores), after SIGKILL has been sent, or
// without escalating at all when softKillWait is not positive.
func watchdog(child *procpipes.ChildHandle, softKillWait, killWait time.Duration, allDone <-chan struct{}) {
	if softKillWait <= 0 {
		return
	}
	select {
	case <-allDone:
		return
	case <-time.After(softKillWait):
	}
	child.Kill(syscall.SIGXCPU)

	if killWait <= 0 {
		return
	}
	select {
	case <-allDone:
		return
	case <-time.After(killWait):
	}
	child.Kill(syscall.SIGKILL)
}

func forwardOutput(r io.Reader, frameName string, mux *protocol.WriteMux, lim *limiter.OutputLimiter) int64 {
	buf := make([]byte, 4096)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			total += int64(n)
			lim.Add(int64(n))
			_ = mux.SubmitSync(frameName, append([]byte{}, buf[:n]...))
		}
		if err != nil {
			return total
		}
	}
}
