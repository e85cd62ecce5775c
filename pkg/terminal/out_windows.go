package terminal

import (
	"os"

	"golang.org/x/sys/windows"
)

func screenSize() (rows, cols int, ok bool) {
	var sbi windows.ConsoleScreenBufferInfo
	if err := windows.GetConsoleScreenBufferInfo(windows.Handle(os.Stdout.Fd()), &sbi); err != nil {
		return 0, 0, false
	}
	return int(sbi.Window.Bottom - sbi.Window.Top + 1), int(sbi.Window.Right - sbi.Window.Left + 1), true
}
