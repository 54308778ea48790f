// Package session implements the per-connection protocol state machine:
// it reads frames off the wire, accumulates them into the session's
// received/sources maps, and on the Control:run commit point hands off
// to staging and the program runner — or, on a Version frame, to the
// version lister.
package session

import (
	"context"
	"io"
	"net"
	"strings"

	"github.com/google/uuid"

	"github.com/mmizutani/wandbox/internal/admission"
	"github.com/mmizutani/wandbox/internal/config"
	"github.com/mmizutani/wandbox/internal/history"
	"github.com/mmizutani/wandbox/internal/metrics"
	"github.com/mmizutani/wandbox/internal/protocol"
	"github.com/mmizutani/wandbox/internal/runner"
	"github.com/mmizutani/wandbox/internal/stage"
	"github.com/mmizutani/wandbox/internal/versioncache"
	"github.com/mmizutani/wandbox/pkg/errors"
	"github.com/mmizutani/wandbox/pkg/logger"
)

type state int

const (
	stateReadingFrames state = iota
	stateRunning
	stateVersioning
	stateClosed
)

// Session owns one accepted connection's protocol state machine and the
// admission permit it was accepted under.
type Session struct {
	conn    net.Conn
	permit  *admission.Permit
	cfg     *config.AppConfig
	metrics metrics.Recorder
	history history.Sink
	cache   versioncache.Cache

	mux   *protocol.WriteMux
	state state

	received        map[string][]byte
	sources         map[string][]byte
	sourceOrder     []string
	currentFilename string
}

// New builds a Session for an accepted connection. The caller must have
// already acquired permit from the admission semaphore.
func New(conn net.Conn, permit *admission.Permit, cfg *config.AppConfig, m metrics.Recorder, h history.Sink, c versioncache.Cache) *Session {
	return &Session{
		conn:     conn,
		permit:   permit,
		cfg:      cfg,
		metrics:  m,
		history:  h,
		cache:    c,
		mux:      protocol.NewWriteMux(conn),
		state:    stateReadingFrames,
		received: make(map[string][]byte),
		sources:  make(map[string][]byte),
	}
}

// Run drives the session to completion: read frames until the commit
// point, then transfer control to whichever subcomponent owns the rest
// of the connection's lifetime.
func (s *Session) Run(ctx context.Context) error {
	defer s.permit.Release()
	defer s.conn.Close()
	defer s.mux.Close()

	s.metrics.ObserveSessionStart()
	defer s.metrics.ObserveSessionEnd()

	reader := protocol.NewFrameReader(s.conn)

	for s.state == stateReadingFrames {
		frame, err := reader.ReadFrame()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		if done, err := s.dispatch(ctx, frame); done {
			return err
		}
	}
	return nil
}

// dispatch applies one decoded frame to session state. It returns
// done=true once the session has transferred control away from the
// frame-reading loop (Control:run committed, or Version requested).
func (s *Session) dispatch(ctx context.Context, frame protocol.Frame) (done bool, err error) {
	switch frame.Command {
	case "SourceFileName":
		s.currentFilename = string(frame.Data)

	case "Source":
		if _, seen := s.sources[s.currentFilename]; !seen {
			s.sourceOrder = append(s.sourceOrder, s.currentFilename)
		}
		s.sources[s.currentFilename] = append(s.sources[s.currentFilename], frame.Data...)

	case "Control":
		if string(frame.Data) == "run" {
			s.state = stateRunning
			return true, s.handleRun(ctx)
		}
		s.received["Control"] = append(s.received["Control"], frame.Data...)

	case "Version":
		s.state = stateVersioning
		return true, s.handleVersion(ctx)

	default:
		s.received[frame.Command] = append(s.received[frame.Command], frame.Data...)
	}
	return false, nil
}

func (s *Session) handleRun(ctx context.Context) error {
	compilerName := parseCompilerName(string(s.received["Control"]))
	compiler, ok := s.cfg.Compilers[compilerName]
	if !ok {
		return errors.New(errors.UnknownCompiler).WithDetail("compiler", compilerName)
	}
	jail, ok := s.cfg.Jails[compiler.JailName]
	if !ok {
		return errors.New(errors.UnknownCompiler).WithDetail("jail", compiler.JailName)
	}

	workdir, err := stage.CreateWorkDir(s.cfg.System.BaseDir)
	if err != nil {
		return err
	}

	sources := make([]stage.SourceFile, 0, len(s.sourceOrder))
	for _, filename := range s.sourceOrder {
		sources = append(sources, stage.SourceFile{Filename: filename, Source: s.sources[filename]})
	}

	if err := stage.Write(workdir, s.cfg.System.StoreDir, compiler, sources); err != nil {
		return err
	}

	ctx = logger.WithSessionID(ctx, workdir.UniqueName)
	ctx = logger.WithCompiler(ctx, compiler.Name)

	submissionID := uuid.NewString()

	pr := &runner.ProgramRunner{
		Mux:      s.mux,
		Metrics:  s.metrics,
		History:  s.history,
		Switches: s.cfg.Switches,
	}
	return pr.Run(ctx, workdir.Path, submissionID, compiler, jail, s.received)
}

func (s *Session) handleVersion(ctx context.Context) error {
	vl := &runner.VersionLister{Compilers: s.cfg.Compilers, Cache: s.cache}
	return vl.SendResult(ctx, s.mux)
}

func parseCompilerName(receivedControl string) string {
	const prefix = "compiler="
	if !strings.HasPrefix(receivedControl, prefix) {
		return ""
	}
	return strings.TrimPrefix(receivedControl, prefix)
}
