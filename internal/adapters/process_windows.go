//go:build windows

package adapters

import "os/exec"

// killProcessGroup kills the adapter process directly; Windows has no
// POSIX process-group semantics here, so child debuggees are not
// guaranteed to be reaped.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
