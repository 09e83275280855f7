//go:build !windows

package adapters

import (
	"os/exec"
	"syscall"
)

// setProcAttr makes a spawned adapter process its own session leader so
// its whole process group can be killed on disconnect or teardown.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
