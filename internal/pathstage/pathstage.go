// Package pathstage opens files under a directory fd while rejecting
// any relative path that would escape that root, walking intermediate
// directory segments with openat/mkdirat instead of resolving a single
// concatenated path string.
package pathstage

import (
	"strings"

	"golang.org/x/sys/unix"

	"github.com/mmizutani/wandbox/pkg/errors"
)

// CreateUnder opens relativePath for exclusive create under rootFD,
// best-effort-creating any missing intermediate directories along the
// way. It rejects absolute paths and any ".." that would pop past
// rootFD. The returned fd is opened O_WRONLY|O_CREAT|O_EXCL|O_TRUNC.
func CreateUnder(rootFD int, relativePath string, dirMode, fileMode uint32) (int, error) {
	if strings.HasPrefix(relativePath, "/") {
		return -1, errors.New(errors.PathEscape).WithDetail("path", relativePath)
	}

	segments := strings.Split(relativePath, "/")
	if len(segments) == 0 {
		return -1, errors.New(errors.PathEscape).WithDetail("path", relativePath)
	}

	targetFile := segments[len(segments)-1]
	dirs := segments[:len(segments)-1]

	var dirFDs []int
	closeAll := func() {
		for _, fd := range dirFDs {
			_ = unix.Close(fd)
		}
		dirFDs = nil
	}

	for _, seg := range dirs {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(dirFDs) == 0 {
				closeAll()
				return -1, errors.New(errors.PathEscape).WithDetail("path", relativePath)
			}
			last := dirFDs[len(dirFDs)-1]
			dirFDs = dirFDs[:len(dirFDs)-1]
			_ = unix.Close(last)
		default:
			parent := rootFD
			if len(dirFDs) > 0 {
				parent = dirFDs[len(dirFDs)-1]
			}
			if err := unix.Mkdirat(parent, seg, dirMode); err != nil && err != unix.EEXIST {
				closeAll()
				return -1, errors.Wrap(err, errors.IoError).WithDetail("path", relativePath)
			}
			dirfd, err := unix.Openat(parent, seg, unix.O_DIRECTORY|unix.O_RDONLY, 0)
			if err != nil {
				closeAll()
				return -1, errors.Wrap(err, errors.IoError).WithDetail("path", relativePath)
			}
			dirFDs = append(dirFDs, dirfd)
		}
	}

	parent := rootFD
	if len(dirFDs) > 0 {
		parent = dirFDs[len(dirFDs)-1]
	}
	newFD, err := unix.Openat(parent, targetFile, unix.O_WRONLY|unix.O_CREAT|unix.O_EXCL|unix.O_TRUNC, fileMode)
	closeAll()
	if err != nil {
		return -1, errors.Wrap(err, errors.IoError).WithDetail("path", relativePath)
	}
	return newFD, nil
}
