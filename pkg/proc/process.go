package proc

import (
	dpe "debug/pe"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/monomirror/monomirror/pkg/pe"
)

// Process is an attached target process.
type Process interface {
	MemoryReader
	// Pid returns the operating system process id.
	Pid() int
	// MainModule returns the load address and mapped size of the process
	// executable image.
	MainModule() (base uint64, size int)
	// Close releases the process handle.
	Close() error
}

// ProcessNotFoundError is returned when no running process matches the
// configured name.
type ProcessNotFoundError struct {
	Name string
}

func (e *ProcessNotFoundError) Error() string {
	return fmt.Sprintf("could not find process %q", e.Name)
}

// ErrUnsupportedPlatform is returned by FindProcess on operating systems
// without a process backend.
var ErrUnsupportedPlatform = errors.New("reading other processes is not supported on this platform")

// matchProcessName reports whether the executable path exe belongs to the
// process image name. The comparison ignores case, directories and a
// trailing ".exe" on either side. Both '/' and '\' separate directories so
// that Windows paths seen through Wine match as well.
func matchProcessName(exe, name string) bool {
	exe = strings.TrimSpace(exe)
	if i := strings.LastIndexAny(exe, `/\`); i >= 0 {
		exe = exe[i+1:]
	}
	return strings.EqualFold(trimExe(exe), trimExe(filepath.Base(name)))
}

func trimExe(s string) string {
	if len(s) > 4 && strings.EqualFold(s[len(s)-4:], ".exe") {
		return s[:len(s)-4]
	}
	return s
}

// wideTargetError returns a *pe.ArchitectureError when the target is not a
// 32-bit process, nil otherwise. ptrSize is the pointer size of this
// process; the flags tell whether this process and the target run under
// WOW64. On a 32-bit system every process is 32-bit.
func wideTargetError(ptrSize int, selfWow64, targetWow64 bool) error {
	if targetWow64 || (ptrSize == 4 && !selfWow64) {
		return nil
	}
	return &pe.ArchitectureError{Machine: dpe.IMAGE_FILE_MACHINE_AMD64}
}
