//go:build !windows

package adapters

import (
	"os/exec"
	"syscall"
)

// killProcessGroup kills the spawned adapter's entire process group. Used
// when a session is torn down (Terminated, Failed, or disconnect timeout)
// so debuggee children spawned by the adapter don't leak.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		if err != syscall.ESRCH {
			return err
		}
	}
	return nil
}
