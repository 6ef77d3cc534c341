//go:build !windows

package fs

import (
	"os"
	"syscall"
)

// flockTry takes an exclusive kernel lock without blocking. It fails when
// another process already holds one on the same file.
func flockTry(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

// flockUnlock drops the kernel lock.
func flockUnlock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
