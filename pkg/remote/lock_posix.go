//go:build !windows

package remote

import "syscall"

// processAlive reports whether pid names a running process on this host,
// following the teacher's raw syscall approach to process/lock liveness
// rather than a higher-level process-listing library.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
