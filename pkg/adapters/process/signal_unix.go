//go:build !windows

package process

import (
	"os"
	"os/exec"
)

// interrupt asks the process to stop; WaitDelay kills it if it does not.
func interrupt(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(os.Interrupt)
}
