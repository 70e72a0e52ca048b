// Package process supervises external build processes: spawning, streaming
// their output line by line, and terminating them on cancellation.
package process

// IsProcessAlive reports whether a process with the given PID exists.
// Client liveness checks use it to discard work for editors that exited.
func IsProcessAlive(pid int) bool {
	return pid > 0 && alive(pid)
}
