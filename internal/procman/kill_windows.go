//go:build windows

package procman

import (
	"os/exec"
	"strconv"
)

// terminate forces the task to end; Windows has no TERM equivalent
// that console tools reliably honor.
func terminate(pid int) error {
	return exec.Command("taskkill", "/F", "/PID", strconv.Itoa(pid)).Run()
}
