//go:build windows

package remote

import (
	"os"
)

// processAlive reports whether pid names a running process on this host.
// os.FindProcess on Windows already opens a handle to the process, so a
// failure here is the liveness signal; there is no Windows equivalent of
// POSIX's signal-0 probe against an already-open handle.
func processAlive(pid int) bool {
	_, err := os.FindProcess(pid)
	return err == nil
}
