package runner_test

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/mmizutani/wandbox/internal/config"
	"github.com/mmizutani/wandbox/internal/history"
	"github.com/mmizutani/wandbox/internal/metrics"
	"github.com/mmizutani/wandbox/internal/protocol"
	"github.com/mmizutani/wandbox/internal/runner"
)

func newRunner(mux *protocol.WriteMux) *runner.ProgramRunner {
	return &runner.ProgramRunner{
		Mux:     mux,
		Metrics: metrics.Noop{},
		History: history.Noop{},
	}
}

func decodeFrames(t *testing.T, sb *syncBuffer) []protocol.Frame {
	t.Helper()
	return sb.frames(t)
}

func frameCommands(frames []protocol.Frame) []string {
	var out []string
	for _, f := range frames {
		out = append(out, f.Command)
	}
	return out
}

func TestProgramRunnerHelloWorldSuccess(t *testing.T) {
	var sb syncBuffer
	mux := protocol.NewWriteMux(&sb)
	defer mux.Close()

	pr := newRunner(mux)
	compiler := config.CompilerProfile{
		Name:           "echo",
		CompileCommand: []string{"/bin/true"},
		RunCommand:     []string{"/bin/sh", "-c", "echo hello, world"},
	}

	err := pr.Run(context.Background(), t.TempDir(), "submission-1", compiler, config.JailProfile{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	frames := decodeFrames(t, &sb)
	if len(frames) == 0 {
		t.Fatal("no frames written")
	}
	if frames[0].Command != "Control" || string(frames[0].Data) != "Start" {
		t.Fatalf("first frame = %+v, want Control:Start", frames[0])
	}
	last := frames[len(frames)-1]
	if last.Command != "Control" || string(last.Data) != "Finish" {
		t.Fatalf("last frame = %+v, want Control:Finish", last)
	}

	var sawExitCode bool
	var stdout []byte
	for _, f := range frames {
		switch f.Command {
		case "ExitCode":
			sawExitCode = true
			if string(f.Data) != "0" {
				t.Errorf("ExitCode frame = %q, want 0", f.Data)
			}
		case "StdOut":
			stdout = append(stdout, f.Data...)
		}
	}
	if !sawExitCode {
		t.Error("no ExitCode frame seen")
	}
	if !bytes.Contains(stdout, []byte("hello, world")) {
		t.Errorf("stdout = %q, want it to contain %q", stdout, "hello, world")
	}
}

func TestProgramRunnerStopsAfterFailedCompile(t *testing.T) {
	var sb syncBuffer
	mux := protocol.NewWriteMux(&sb)
	defer mux.Close()

	pr := newRunner(mux)
	workdir := t.TempDir()
	marker := workdir + "/run-phase-executed"

	compiler := config.CompilerProfile{
		Name:           "broken",
		CompileCommand: []string{"/bin/sh", "-c", "echo compile failed >&2; exit 3"},
		RunCommand:     []string{"/bin/sh", "-c", "touch " + marker},
	}

	err := pr.Run(context.Background(), workdir, "submission-2", compiler, config.JailProfile{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	frames := decodeFrames(t, &sb)
	var sawExitCode bool
	for _, f := range frames {
		if f.Command == "ExitCode" {
			sawExitCode = true
			if string(f.Data) != "3" {
				t.Errorf("ExitCode frame = %q, want 3", f.Data)
			}
		}
		if f.Command == "StdOut" {
			t.Errorf("unexpected StdOut frame %q: run phase must not execute", f.Data)
		}
	}
	if !sawExitCode {
		t.Error("no ExitCode frame seen")
	}

	if _, statErr := os.Stat(marker); statErr == nil {
		t.Error("run phase executed despite a non-zero compile exit code")
	}

	last := frames[len(frames)-1]
	if last.Command != "Control" || string(last.Data) != "Finish" {
		t.Fatalf("last frame = %+v, want Control:Finish", last)
	}
}

func TestProgramRunnerReportsSpawnFailure(t *testing.T) {
	var sb syncBuffer
	mux := protocol.NewWriteMux(&sb)
	defer mux.Close()

	pr := newRunner(mux)
	compiler := config.CompilerProfile{
		Name:           "missing",
		CompileCommand: []string{"/no/such/executable-xyz"},
		RunCommand:     []string{"/bin/true"},
	}

	err := pr.Run(context.Background(), t.TempDir(), "submission-3", compiler, config.JailProfile{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	frames := decodeFrames(t, &sb)
	commands := frameCommands(frames)
	if len(commands) != 3 {
		t.Fatalf("frames = %v, want exactly Control:Start, Signal:spawn-failed, Control:Finish", commands)
	}
	if commands[0] != "Control" || string(frames[0].Data) != "Start" {
		t.Fatalf("frame[0] = %+v, want Control:Start", frames[0])
	}
	if commands[1] != "Signal" || string(frames[1].Data) != "spawn-failed" {
		t.Fatalf("frame[1] = %+v, want Signal:spawn-failed", frames[1])
	}
	if commands[2] != "Control" || string(frames[2].Data) != "Finish" {
		t.Fatalf("frame[2] = %+v, want Control:Finish", frames[2])
	}
}
