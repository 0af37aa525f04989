//go:build !windows

package engine

import (
	"os/exec"
	"syscall"
)

// detach puts a long running engine in its own process group, so a terminal
// interrupt is left to the caller, which stops the engine once it is done.
func detach(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
