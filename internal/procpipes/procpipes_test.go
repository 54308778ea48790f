package procpipes_test

import (
	"bufio"
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/mmizutani/wandbox/internal/procpipes"
)

func TestSpawnRunsToCompletionWithExitCode(t *testing.T) {
	child, err := procpipes.Spawn(context.Background(), t.TempDir(), []string{"/bin/sh", "-c", "exit 7"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	select {
	case <-child.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit in time")
	}

	exitCode, signalName := child.Result()
	if signalName != "" {
		t.Fatalf("expected no signal, got %q", signalName)
	}
	if exitCode != 7 {
		t.Fatalf("exitCode = %d, want 7", exitCode)
	}
	if !child.Finished() {
		t.Error("expected Finished() to report true after Done()")
	}
}

func TestSpawnForwardsStdoutAndStdin(t *testing.T) {
	child, err := procpipes.Spawn(context.Background(), t.TempDir(), []string{"/bin/cat"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if _, err := child.Stdin.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write stdin: %v", err)
	}
	child.Stdin.Close()

	scanner := bufio.NewScanner(child.Stdout)
	if !scanner.Scan() {
		t.Fatal("expected one line of echoed stdout")
	}
	if got := scanner.Text(); got != "hello" {
		t.Errorf("stdout = %q, want %q", got, "hello")
	}

	<-child.Done()
}

func TestKillTerminatesLongRunningChild(t *testing.T) {
	child, err := procpipes.Spawn(context.Background(), t.TempDir(), []string{"/bin/sh", "-c", "sleep 30"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	child.Kill(syscall.SIGKILL)

	select {
	case <-child.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("child was not killed in time")
	}

	_, signalName := child.Result()
	if signalName != "killed" {
		t.Errorf("signalName = %q, want %q", signalName, "killed")
	}
}

func TestKillOnAlreadyFinishedChildIsNoop(t *testing.T) {
	child, err := procpipes.Spawn(context.Background(), t.TempDir(), []string{"/bin/true"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	<-child.Done()

	child.Kill(syscall.SIGKILL)
}

func TestSpawnRejectsEmptyArgv(t *testing.T) {
	if _, err := procpipes.Spawn(context.Background(), t.TempDir(), nil); err == nil {
		t.Fatal("expected error for empty argv")
	}
}
