//go:build !windows && !linux

package proc

// FindProcess is not implemented on this platform.
func FindProcess(name string) (Process, error) {
	return nil, ErrUnsupportedPlatform
}
