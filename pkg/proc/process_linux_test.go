package proc

import (
	"strings"
	"testing"
)

const wineMaps = `00010000-00011000 rw-p 00000000 00:00 0 
00400000-00401000 r--p 00000000 08:01 1234 /home/u/.wine/drive_c/Game/Hearthstone.exe
00401000-00c00000 r-xp 00001000 08:01 1234 /home/u/.wine/drive_c/Game/Hearthstone.exe
00c00000-00d20000 rw-p 00800000 08:01 1234 /home/u/.wine/drive_c/Game/Hearthstone.exe
10000000-10200000 r-xp 00000000 08:01 5678 /home/u/.wine/drive_c/Game/mono.dll
7ffd0000-7fff0000 rw-p 00000000 00:00 0 [stack]
`

func TestParseMaps(t *testing.T) {
	base, size, ok := parseMaps(strings.NewReader(wineMaps), "Hearthstone")
	if !ok {
		t.Fatalf("module not found")
	}
	if base != 0x400000 || size != 0x920000 {
		t.Fatalf("got base %#x size %#x; want 0x400000 0x920000", base, size)
	}
	if _, _, ok := parseMaps(strings.NewReader(wineMaps), "Missing"); ok {
		t.Fatalf("found a module that is not mapped")
	}
}
