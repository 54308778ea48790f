// Package server wires the TCP listener, admission control, and the
// ambient collaborators (metrics, history, version cache) together and
// runs one Session per accepted connection.
package server

import (
	"context"
	"net"
	"os"

	"github.com/mmizutani/wandbox/internal/admission"
	"github.com/mmizutani/wandbox/internal/config"
	"github.com/mmizutani/wandbox/internal/history"
	"github.com/mmizutani/wandbox/internal/metrics"
	"github.com/mmizutani/wandbox/internal/session"
	"github.com/mmizutani/wandbox/internal/versioncache"
	"github.com/mmizutani/wandbox/pkg/errors"
	"github.com/mmizutani/wandbox/pkg/logger"
)

const (
	baseDirMode  = 0700
	storeDirMode = 0700
)

// Server owns the listening socket and the collaborators every accepted
// session is handed a reference to.
type Server struct {
	cfg     *config.AppConfig
	sem     *admission.Sem
	metrics metrics.Recorder
	history history.Sink
	cache   versioncache.Cache
}

// New creates a Server from a loaded config and its ambient
// collaborators. Any of m, h, c may be the package's own Noop.
func New(cfg *config.AppConfig, m metrics.Recorder, h history.Sink, c versioncache.Cache) *Server {
	return &Server{
		cfg:     cfg,
		sem:     admission.New(cfg.System.MaxConnections, m),
		metrics: m,
		history: h,
		cache:   c,
	}
}

// ListenAndServe creates basedir/storedir if missing, binds the
// listener, and accepts connections until ctx is cancelled or Accept
// fails. Each accepted connection is admitted through the semaphore and
// run in its own goroutine.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.System.BaseDir, baseDirMode); err != nil {
		return errors.Wrap(err, errors.ConfigError).WithDetail("dir", s.cfg.System.BaseDir)
	}
	if err := os.MkdirAll(s.cfg.System.StoreDir, storeDirMode); err != nil {
		return errors.Wrap(err, errors.ConfigError).WithDetail("dir", s.cfg.System.StoreDir)
	}

	ln, err := net.Listen("tcp", s.cfg.System.ListenAddr)
	if err != nil {
		return errors.Wrap(err, errors.InternalError).WithDetail("addr", s.cfg.System.ListenAddr)
	}
	logger.Infof(ctx, "listening at %s", s.cfg.System.ListenAddr)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, errors.InternalError)
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	permit, err := s.sem.Acquire(ctx)
	if err != nil {
		_ = conn.Close()
		return
	}

	sess := session.New(conn, permit, s.cfg, s.metrics, s.history, s.cache)
	if err := sess.Run(ctx); err != nil {
		logger.Warnf(ctx, "session on %s ended with error: %v", conn.RemoteAddr(), err)
	}
}
