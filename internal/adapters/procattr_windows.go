//go:build windows

package adapters

import "os/exec"

// setProcAttr is a no-op on Windows; process-group kill uses taskkill
// instead (see process_windows.go).
func setProcAttr(cmd *exec.Cmd) {}
