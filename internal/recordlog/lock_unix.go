//go:build unix

package recordlog

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// withLock holds an exclusive flock on lockPath while fn runs. The lock file
// is never removed so it survives the log being renamed over.
func withLock(lockPath string, fn func() error) error {
	f, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire file lock: %w", err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN) //nolint:errcheck

	return fn()
}
