//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr gives the proxy its own process group so a console
// Ctrl+C aimed at mca is not delivered to it twice.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
