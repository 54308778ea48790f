// Package procpipes spawns a child process with piped stdio and exposes
// a non-blocking-flavored wait: callers register for an exit
// notification instead of calling a blocking Wait directly, mirroring
// the SIGCHLD-driven wakeup the broker was originally built around.
package procpipes

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/mmizutani/wandbox/pkg/errors"
)

// ChildHandle owns one spawned process's pipes and exit state. It is
// owned exclusively by the RunningPhase that spawned it.
type ChildHandle struct {
	cmd *exec.Cmd

	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	mu       sync.Mutex
	finished bool
	exitCode int
	signal   string

	waitOnce sync.Once
	exitCh   chan struct{}
}

// Spawn starts argv[0] with argv[1:] as arguments and cwd set to
// workdir. argv is executed exactly as given: any jail command prefix
// is already part of it, and this package never interprets it.
func Spawn(ctx context.Context, workdir string, argv []string) (*ChildHandle, error) {
	if len(argv) == 0 {
		return nil, errors.New(errors.SpawnError).WithDetail("reason", "empty argv")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = workdir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, errors.SpawnError)
	}
	// Plain os.Pipe pairs: cmd.Wait closes pipes made by StdoutPipe as
	// soon as the child exits, which would race readers still draining.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(err, errors.SpawnError)
	}
	stderr, stderrW, err := os.Pipe()
	if err != nil {
		stdout.Close()
		stdoutW.Close()
		return nil, errors.Wrap(err, errors.SpawnError)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()
	stdoutW.Close()
	stderrW.Close()
	if err != nil {
		stdout.Close()
		stderr.Close()
		return nil, errors.Wrap(err, errors.SpawnError)
	}

	h := &ChildHandle{
		cmd:    cmd,
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		exitCh: make(chan struct{}),
	}
	go h.waitLoop()
	return h, nil
}

func (h *ChildHandle) waitLoop() {
	err := h.cmd.Wait()

	h.mu.Lock()
	h.finished = true
	if h.cmd.ProcessState != nil {
		status, ok := h.cmd.ProcessState.Sys().(syscall.WaitStatus)
		switch {
		case ok && status.Signaled():
			h.signal = status.Signal().String()
			h.exitCode = -1
		case ok && status.Exited():
			h.exitCode = status.ExitStatus()
		case err == nil:
			h.exitCode = 0
		default:
			h.exitCode = -1
		}
	}
	h.mu.Unlock()

	close(h.exitCh)
}

// Pid returns the child's process id.
func (h *ChildHandle) Pid() int {
	if h.cmd.Process == nil {
		return -1
	}
	return h.cmd.Process.Pid
}

// Done returns a channel closed once the child has exited and its
// status is known. Safe to call from multiple waiters; each receives
// the same close event at most once.
func (h *ChildHandle) Done() <-chan struct{} {
	return h.exitCh
}

// Result returns the exit code and, if the child was killed by a
// signal, the signal's name. Only meaningful after Done() is closed.
func (h *ChildHandle) Result() (exitCode int, signalName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode, h.signal
}

// Finished reports whether the child has exited.
func (h *ChildHandle) Finished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finished
}

// Kill sends signo to the child's entire process group if it has not
// yet exited. Best-effort: errors (already exited, permission) are
// swallowed; idempotent resend is fine because the child either dies
// or ignores the signal.
func (h *ChildHandle) Kill(signo syscall.Signal) {
	if h.Finished() || h.cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-h.Pid(), signo)
}
