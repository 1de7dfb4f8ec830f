//go:build windows

package procexec

import "os/exec"

// configureProcess keeps the default cancellation, which kills the child process.
func configureProcess(cmd *exec.Cmd) {}
