package runner

import (
	"strings"
	"time"

	"github.com/mmizutani/wandbox/internal/config"
)

// CommandDescriptor is one phase's fully-built argv plus the frame
// names its stdio should be forwarded as. Built once by BuildDescriptors
// and consumed once by ProgramRunner.
type CommandDescriptor struct {
	Argv         []string
	StdinFrame   string // empty = no stdin content
	StdoutFrame  string
	StderrFrame  string
	SoftKillWait time.Duration
}

// BuildDescriptors assembles the compile and run command descriptors for
// one session: compiler-selected switches spliced into the base argv,
// raw option lines appended verbatim, and the jail command prefixed
// onto both.
func BuildDescriptors(
	compiler config.CompilerProfile,
	jail config.JailProfile,
	switches map[string]config.SwitchProfile,
	received map[string][]byte,
) []CommandDescriptor {
	ccargs := append([]string{}, compiler.CompileCommand...)
	progargs := append([]string{}, compiler.RunCommand...)

	if raw, ok := received["CompilerOption"]; ok {
		selected := parseSwitchList(string(raw))
		for _, swID := range compiler.Switches {
			if !selected[swID] {
				continue
			}
			sw, ok := switches[swID]
			if !ok {
				continue
			}
			target := &ccargs
			if sw.Runtime {
				target = &progargs
			}
			spliceFlags(target, sw.Flags, sw.InsertPosition)
		}
	}

	if raw, ok := received["CompilerOptionRaw"]; ok {
		ccargs = append(ccargs, splitOptionLines(string(raw))...)
	}
	if raw, ok := received["RuntimeOptionRaw"]; ok {
		progargs = append(progargs, splitOptionLines(string(raw))...)
	}

	ccargs = append(append([]string{}, jail.JailCommand...), ccargs...)
	progargs = append(append([]string{}, jail.JailCommand...), progargs...)

	return []CommandDescriptor{
		{Argv: ccargs, StdinFrame: "", StdoutFrame: "CompilerMessageS", StderrFrame: "CompilerMessageE", SoftKillWait: jail.CompileTimeLimit},
		{Argv: progargs, StdinFrame: "StdIn", StdoutFrame: "StdOut", StderrFrame: "StdErr", SoftKillWait: jail.ProgramDuration},
	}
}

func parseSwitchList(raw string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.Trim(tok, "\n")
		if tok == "" {
			continue
		}
		out[tok] = true
	}
	return out
}

func spliceFlags(args *[]string, flags []string, insertPosition uint32) {
	if insertPosition == 0 || int(insertPosition) > len(*args) {
		*args = append(*args, flags...)
		return
	}
	out := make([]string, 0, len(*args)+len(flags))
	out = append(out, (*args)[:insertPosition]...)
	out = append(out, flags...)
	out = append(out, (*args)[insertPosition:]...)
	*args = out
}

func splitOptionLines(raw string) []string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(normalized, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
