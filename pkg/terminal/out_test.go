package terminal

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

type fakePagerInput struct {
	bytes.Buffer
	closed bool
}

func (in *fakePagerInput) Close() error {
	in.closed = true
	return nil
}

func newTestPager(screen io.Writer, in *fakePagerInput, started *[]string) *pager {
	return &pager{w: screen, start: func(command string) (io.WriteCloser, func() error, error) {
		*started = append(*started, command)
		return in, func() error { return nil }, nil
	}}
}

func TestPagerOverflow(t *testing.T) {
	var screen bytes.Buffer
	in := &fakePagerInput{}
	var started []string
	p := newTestPager(&screen, in, &started)

	p.watch("less -R", 3, 10)
	io.WriteString(p, "Game.Item\n")
	io.WriteString(p, "Game.Manager")
	if len(started) != 0 || screen.String() != "Game.Item\nGame.Manager" {
		t.Fatalf("listing that fits was not shown directly: %q, pager %q", screen.String(), started)
	}
	// "Game.Manager" wrapped onto a third row.
	io.WriteString(p, "\nGame.Deck\n")
	if len(started) != 1 || started[0] != "less -R" {
		t.Fatalf("pager not started: %q", started)
	}
	if want := "Game.Item\nGame.Manager\nSending output to pager...\n"; screen.String() != want {
		t.Errorf("screen %q, want %q", screen.String(), want)
	}
	io.WriteString(p, "Game.Hero\n")
	if want := "Game.Item\nGame.Manager\nGame.Deck\nGame.Hero\n"; in.String() != want {
		t.Errorf("pager got %q, want %q", in.String(), want)
	}

	p.Release()
	if !in.closed || p.state != pagerOff {
		t.Errorf("Release did not close the pager")
	}
	io.WriteString(p, "next\n")
	if in.String() != "Game.Item\nGame.Manager\nGame.Deck\nGame.Hero\n" {
		t.Errorf("output after Release went to the pager")
	}
}

func TestPagerStartFailure(t *testing.T) {
	var screen bytes.Buffer
	p := &pager{w: &screen, start: func(string) (io.WriteCloser, func() error, error) {
		return nil, nil, errors.New("not found")
	}}
	p.watch("nopager", 2, 80)
	io.WriteString(p, "a\nb\nc\n")
	io.WriteString(p, "d\n")
	if screen.String() != "a\nb\nc\nd\n" || p.state != pagerOff {
		t.Errorf("screen %q, state %d", screen.String(), p.state)
	}
}

func TestPagerAdvance(t *testing.T) {
	for _, tc := range []struct {
		in       string
		row, col int
	}{
		{"", 0, 0},
		{"abc", 0, 3},
		{"abcd", 0, 4},
		{"abcde", 1, 1},
		{"abcd\n", 1, 0},
		{"ab\ncdefghijkl", 3, 2},
	} {
		p := &pager{rows: 100, cols: 4}
		p.advance([]byte(tc.in))
		if p.row != tc.row || p.col != tc.col {
			t.Errorf("%q: cursor at %d,%d; want %d,%d", tc.in, p.row, p.col, tc.row, tc.col)
		}
	}
}

func TestPagerCommand(t *testing.T) {
	t.Setenv("MONOMIRROR_PAGER", "")
	t.Setenv("PAGER", "less")
	if got := pagerCommand(&bytes.Buffer{}); got != "" {
		t.Errorf("pager for a buffer: %q", got)
	}
	t.Setenv("MONOMIRROR_PAGER", " most ")
	if got := pagerCommand(&bytes.Buffer{}); got != "most" {
		t.Errorf("MONOMIRROR_PAGER not used: %q", got)
	}
}

func TestTranscriptEcho(t *testing.T) {
	var screen bytes.Buffer
	o := newTermOutput(&screen)
	path := filepath.Join(t.TempDir(), "session.txt")
	fh, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := o.StartTranscript(fh, false, "# header\n"); err != nil {
		t.Fatal(err)
	}
	o.Echo("(mono) classes\n")
	io.WriteString(o, "Game.Item\n")
	if err := o.StopTranscript(); err != nil {
		t.Fatal(err)
	}
	o.Echo("(mono) exit\n")
	io.WriteString(o, "after\n")

	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf) != "# header\n(mono) classes\nGame.Item\n" {
		t.Errorf("transcript %q", buf)
	}
	if screen.String() != "Game.Item\nafter\n" {
		t.Errorf("screen %q", screen.String())
	}
}
