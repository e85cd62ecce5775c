package proc

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// linuxProcess reads a target running under Wine or Proton, where the
// Windows executable image is mapped from its file like any other mapping.
type linuxProcess struct {
	pid        int
	moduleBase uint64
	moduleSize int
}

// FindProcess attaches to the first running process whose image name
// matches name.
func FindProcess(name string) (Process, error) {
	pids, err := filepath.Glob("/proc/[0-9]*")
	if err != nil {
		return nil, err
	}
	for _, dir := range pids {
		pid, err := strconv.Atoi(filepath.Base(dir))
		if err != nil {
			continue
		}
		if !processMatches(pid, name) {
			continue
		}
		f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
		if err != nil {
			continue
		}
		base, size, ok := parseMaps(f, name)
		f.Close()
		if !ok {
			continue
		}
		return &linuxProcess{pid: pid, moduleBase: base, moduleSize: size}, nil
	}
	return nil, &ProcessNotFoundError{Name: name}
}

func processMatches(pid int, name string) bool {
	cmdline, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err == nil && len(cmdline) > 0 {
		argv0 := cmdline
		if i := bytes.IndexByte(cmdline, 0); i >= 0 {
			argv0 = cmdline[:i]
		}
		if matchProcessName(string(argv0), name) {
			return true
		}
	}
	comm, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	return err == nil && matchProcessName(string(comm), name)
}

// parseMaps scans the contents of /proc/<pid>/maps for mappings backed by
// the executable image and returns the extent covering all of them.
func parseMaps(r io.Reader, name string) (base uint64, size int, ok bool) {
	var end uint64
	s := bufio.NewScanner(r)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) < 6 {
			continue
		}
		path := strings.Join(fields[5:], " ")
		if !matchProcessName(path, name) {
			continue
		}
		var lo, hi uint64
		if _, err := fmt.Sscanf(fields[0], "%x-%x", &lo, &hi); err != nil {
			continue
		}
		if !ok || lo < base {
			base = lo
		}
		if hi > end {
			end = hi
		}
		ok = true
	}
	if !ok {
		return 0, 0, false
	}
	return base, int(end - base), true
}

func (p *linuxProcess) ReadMemory(buf []byte, addr uint64) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	local := []unix.Iovec{{Base: (*byte)(unsafe.Pointer(&buf[0]))}}
	local[0].SetLen(len(buf))
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}
	n, err := unix.ProcessVMReadv(p.pid, local, remote, 0)
	if err == nil && n != len(buf) {
		err = ErrShortRead
	}
	return n, err
}

func (p *linuxProcess) Pid() int {
	return p.pid
}

func (p *linuxProcess) MainModule() (uint64, int) {
	return p.moduleBase, p.moduleSize
}

func (p *linuxProcess) Close() error {
	return nil
}
