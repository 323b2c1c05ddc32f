//go:build linux

package proctitle

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// comm holds at most 15 bytes plus the terminating NUL.
const commMax = 15

// Set renames the calling thread group via PR_SET_NAME. Longer titles are
// cut to 15 bytes.
func Set(title string) error {
	if title == "" {
		return errors.New("empty process title")
	}
	buf := make([]byte, commMax+1)
	copy(buf, title)
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&buf[0])), 0, 0, 0)
}
