//go:build !linux && !darwin && !freebsd && !windows

package terminal

func screenSize() (rows, cols int, ok bool) {
	return 0, 0, false
}
