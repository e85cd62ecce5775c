package proc

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

type windowsProcess struct {
	pid        int
	handle     windows.Handle
	moduleBase uint64
	moduleSize int
}

// FindProcess attaches to the first running process whose image name
// matches name, opening it for reading only.
func FindProcess(name string) (Process, error) {
	pid, err := findPid(name)
	if err != nil {
		return nil, err
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ, false, pid)
	if err != nil {
		return nil, err
	}
	// A 32-bit build can not list the modules of a 64-bit process, so the
	// width is checked before the module snapshot.
	var base uint64
	var size int
	err = checkWidth(h)
	if err == nil {
		base, size, err = mainModule(pid)
	}
	if err != nil {
		windows.CloseHandle(h)
		return nil, err
	}
	return &windowsProcess{pid: int(pid), handle: h, moduleBase: base, moduleSize: size}, nil
}

func checkWidth(h windows.Handle) error {
	var self, target bool
	if err := windows.IsWow64Process(windows.CurrentProcess(), &self); err != nil {
		return err
	}
	if err := windows.IsWow64Process(h, &target); err != nil {
		return err
	}
	return wideTargetError(int(unsafe.Sizeof(uintptr(0))), self, target)
}

func findPid(name string) (uint32, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return 0, err
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Process32First(snapshot, &entry); err != nil {
		return 0, err
	}
	for {
		if matchProcessName(windows.UTF16ToString(entry.ExeFile[:]), name) {
			return entry.ProcessID, nil
		}
		if err := windows.Process32Next(snapshot, &entry); err != nil {
			break
		}
	}
	return 0, &ProcessNotFoundError{Name: name}
}

// mainModule returns the first module of the snapshot, which is always the
// process executable.
func mainModule(pid uint32) (uint64, int, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, pid)
	if err != nil {
		return 0, 0, err
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ModuleEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Module32First(snapshot, &entry); err != nil {
		return 0, 0, err
	}
	return uint64(entry.ModBaseAddr), int(entry.ModBaseSize), nil
}

func (p *windowsProcess) ReadMemory(buf []byte, addr uint64) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	var count uintptr
	err := windows.ReadProcessMemory(p.handle, uintptr(addr), &buf[0], uintptr(len(buf)), &count)
	if err == nil && count != uintptr(len(buf)) {
		err = ErrShortRead
	}
	return int(count), err
}

func (p *windowsProcess) Pid() int {
	return p.pid
}

func (p *windowsProcess) MainModule() (uint64, int) {
	return p.moduleBase, p.moduleSize
}

func (p *windowsProcess) Close() error {
	return windows.CloseHandle(p.handle)
}
