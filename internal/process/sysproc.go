package process

import "syscall"

// sysProcAttr puts the child in its own process group so Cancel/Pause/
// Resume can signal the whole subtree via the negative PID.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
