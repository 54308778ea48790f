// Package stage materializes a session's source files into a fresh
// sandbox working directory, plus a best-effort archival copy under the
// store directory, before handing off to the program runner.
package stage

import (
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mmizutani/wandbox/internal/config"
	"github.com/mmizutani/wandbox/internal/pathstage"
	"github.com/mmizutani/wandbox/pkg/errors"
	"github.com/mmizutani/wandbox/pkg/logger"
)

// SourceFile is one (filename, bytes) pair collected by a session
// before staging; filename may be empty.
type SourceFile struct {
	Filename string
	Source   []byte
}

const (
	dirMode  = 0700
	fileMode = 0600

	fdRetryAttempts = 5
	fdRetryBackoff  = 20 * time.Millisecond
)

// WorkDir is the per-session directory created under basedir.
type WorkDir struct {
	Path       string
	UniqueName string
}

// CreateWorkDir creates a fresh unique directory under baseDir. A
// collision that is not "already exists" is fatal; a collision that is
// retries with a new random name, mirroring os.MkdirTemp's own retry
// loop, which is the idiomatic Go equivalent of the mkdir+open retry
// this component is specified around.
func CreateWorkDir(baseDir string) (*WorkDir, error) {
	dir, err := os.MkdirTemp(baseDir, "wandbox")
	if err != nil {
		return nil, errors.Wrap(err, errors.IoError)
	}
	return &WorkDir{Path: dir, UniqueName: filepathBase(dir)}, nil
}

func filepathBase(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// Write stages every source file into workdir/store/<filename> (fatal
// on failure) and, best-effort, into storeDir/<uniqueName>/<filename>
// (logged and swallowed on failure). An empty filename is replaced with
// the compiler's configured output file.
func Write(workdir *WorkDir, storeDir string, compiler config.CompilerProfile, sources []SourceFile) error {
	rootFD, err := unix.Open(workdir.Path, unix.O_DIRECTORY|unix.O_RDONLY, 0)
	if err != nil {
		return errors.Wrap(err, errors.IoError)
	}
	defer unix.Close(rootFD)

	archiveDir := storeDir + "/" + workdir.UniqueName
	_ = os.MkdirAll(archiveDir, dirMode)
	archiveFD, archiveErr := unix.Open(archiveDir, unix.O_DIRECTORY|unix.O_RDONLY, 0)

	for _, src := range sources {
		filename := src.Filename
		if filename == "" {
			filename = compiler.OutputFile
		}

		if err := writeWithRetry(rootFD, "store/"+filename, src.Source); err != nil {
			if archiveErr == nil {
				_ = unix.Close(archiveFD)
			}
			return err
		}

		if archiveErr == nil {
			if err := writeWithRetry(archiveFD, filename, src.Source); err != nil {
				logger.Warnf(nil, "archival write of %q for %s failed: %v", filename, workdir.UniqueName, err)
			}
		}
	}

	if archiveErr == nil {
		_ = unix.Close(archiveFD)
	}
	return nil
}

func writeWithRetry(rootFD int, relativePath string, data []byte) error {
	var lastErr error
	for attempt := 0; attempt < fdRetryAttempts; attempt++ {
		fd, err := pathstage.CreateUnder(rootFD, relativePath, dirMode, fileMode)
		if err == nil {
			_, writeErr := unix.Write(fd, data)
			_ = unix.Close(fd)
			return writeErr
		}
		if !isTransientFDExhaustion(err) {
			return err
		}
		lastErr = err
		time.Sleep(fdRetryBackoff)
	}
	return lastErr
}

func isTransientFDExhaustion(err error) bool {
	e, ok := err.(*errors.Error)
	if !ok || e.Err == nil {
		return false
	}
	switch e.Err {
	case unix.EAGAIN, unix.EMFILE, unix.ENFILE:
		return true
	default:
		return false
	}
}
