package cli

import (
	"testing"

	"go.uber.org/goleak"
)

// TestPackageLeaks verifies the command tree spawns no stray goroutines.
func TestPackageLeaks(t *testing.T) {
	defer goleak.VerifyNone(t)

	cmd := NewRoot()
	cmd.SetArgs([]string{"version"})
	_ = cmd.Execute()
}
