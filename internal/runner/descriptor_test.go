package runner_test

import (
	"reflect"
	"testing"

	"github.com/mmizutani/wandbox/internal/config"
	"github.com/mmizutani/wandbox/internal/runner"
)

func baseCompiler() config.CompilerProfile {
	return config.CompilerProfile{
		Name:           "gcc-head",
		CompileCommand: []string{"g++", "-o", "prog", "prog.cpp"},
		RunCommand:     []string{"./prog"},
		Switches:       []string{"warning", "optimize-runtime"},
	}
}

func baseSwitches() map[string]config.SwitchProfile {
	return map[string]config.SwitchProfile{
		"warning":          {Flags: []string{"-Wall"}, InsertPosition: 1},
		"optimize-runtime": {Flags: []string{"--fast"}, InsertPosition: 0, Runtime: true},
	}
}

func TestBuildDescriptorsSplicesSelectedSwitchAtInsertPosition(t *testing.T) {
	descs := runner.BuildDescriptors(baseCompiler(), config.JailProfile{}, baseSwitches(), map[string][]byte{
		"CompilerOption": []byte("warning"),
	})

	want := []string{"g++", "-Wall", "-o", "prog", "prog.cpp"}
	if !reflect.DeepEqual(descs[0].Argv, want) {
		t.Errorf("compile argv = %v, want %v", descs[0].Argv, want)
	}
}

func TestBuildDescriptorsRuntimeSwitchGoesToRunArgv(t *testing.T) {
	descs := runner.BuildDescriptors(baseCompiler(), config.JailProfile{}, baseSwitches(), map[string][]byte{
		"CompilerOption": []byte("optimize-runtime"),
	})

	want := []string{"./prog", "--fast"}
	if !reflect.DeepEqual(descs[1].Argv, want) {
		t.Errorf("run argv = %v, want %v", descs[1].Argv, want)
	}
	if !reflect.DeepEqual(descs[0].Argv, baseCompiler().CompileCommand) {
		t.Errorf("compile argv should be unaffected by a runtime switch, got %v", descs[0].Argv)
	}
}

func TestBuildDescriptorsUnknownSwitchIDIsIgnored(t *testing.T) {
	descs := runner.BuildDescriptors(baseCompiler(), config.JailProfile{}, baseSwitches(), map[string][]byte{
		"CompilerOption": []byte("does-not-exist"),
	})
	if !reflect.DeepEqual(descs[0].Argv, baseCompiler().CompileCommand) {
		t.Errorf("expected compile argv unchanged for an unknown switch id, got %v", descs[0].Argv)
	}
}

func TestBuildDescriptorsAppendsRawOptionsVerbatimAfterSplitting(t *testing.T) {
	descs := runner.BuildDescriptors(baseCompiler(), config.JailProfile{}, baseSwitches(), map[string][]byte{
		"CompilerOptionRaw": []byte("-DFOO\r\n-DBAR\n"),
		"RuntimeOptionRaw":  []byte("--trace\n"),
	})

	wantCompile := append(append([]string{}, baseCompiler().CompileCommand...), "-DFOO", "-DBAR")
	if !reflect.DeepEqual(descs[0].Argv, wantCompile) {
		t.Errorf("compile argv = %v, want %v", descs[0].Argv, wantCompile)
	}
	wantRun := append(append([]string{}, baseCompiler().RunCommand...), "--trace")
	if !reflect.DeepEqual(descs[1].Argv, wantRun) {
		t.Errorf("run argv = %v, want %v", descs[1].Argv, wantRun)
	}
}

func TestBuildDescriptorsPrependsJailCommandToBothPhases(t *testing.T) {
	jail := config.JailProfile{JailCommand: []string{"jail", "--profile", "default"}}
	descs := runner.BuildDescriptors(baseCompiler(), jail, baseSwitches(), nil)

	if got, want := descs[0].Argv[:3], jail.JailCommand; !reflect.DeepEqual(got, want) {
		t.Errorf("compile argv jail prefix = %v, want %v", got, want)
	}
	if got, want := descs[1].Argv[:3], jail.JailCommand; !reflect.DeepEqual(got, want) {
		t.Errorf("run argv jail prefix = %v, want %v", got, want)
	}
}

func TestBuildDescriptorsFrameAssignment(t *testing.T) {
	descs := runner.BuildDescriptors(baseCompiler(), config.JailProfile{}, baseSwitches(), nil)

	compile := descs[0]
	if compile.StdoutFrame != "CompilerMessageS" || compile.StderrFrame != "CompilerMessageE" || compile.StdinFrame != "" {
		t.Errorf("unexpected compile phase frames: %+v", compile)
	}
	run := descs[1]
	if run.StdoutFrame != "StdOut" || run.StderrFrame != "StdErr" || run.StdinFrame != "StdIn" {
		t.Errorf("unexpected run phase frames: %+v", run)
	}
}
