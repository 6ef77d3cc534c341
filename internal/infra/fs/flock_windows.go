//go:build windows

package fs

import "os"

// Windows has no flock. The O_EXCL lock file is the only guard there.
func flockTry(f *os.File) error { return nil }

func flockUnlock(f *os.File) error { return nil }
