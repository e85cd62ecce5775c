package terminal

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-isatty"
)

// termOutput is where command output goes: the screen, through a pager
// when a listing is long, and an optional transcript file.
type termOutput struct {
	pager *pager

	transcript   *bufio.Writer
	transcriptFh io.Closer
	screenOff    bool
}

func newTermOutput(w io.Writer) *termOutput {
	return &termOutput{pager: &pager{w: w, start: startPager}}
}

func (o *termOutput) Write(p []byte) (n int, err error) {
	n = len(p)
	if !o.screenOff {
		n, err = o.pager.Write(p)
	}
	if err == nil && o.transcript != nil {
		return o.transcript.Write(p)
	}
	return n, err
}

// Echo records str in the transcript only. Used for the command lines
// typed at the prompt.
func (o *termOutput) Echo(str string) {
	if o.transcript != nil {
		o.transcript.WriteString(str)
	}
}

// Flush writes buffered transcript output to its file.
func (o *termOutput) Flush() {
	if o.transcript != nil {
		o.transcript.Flush()
	}
}

// StartTranscript copies output to fh, starting with header. If screenOff
// is true output only goes to fh until the transcript stops.
func (o *termOutput) StartTranscript(fh io.WriteCloser, screenOff bool, header string) error {
	if err := o.StopTranscript(); err != nil {
		return err
	}
	o.transcript = bufio.NewWriter(fh)
	o.transcriptFh = fh
	o.screenOff = screenOff
	_, err := o.transcript.WriteString(header)
	return err
}

// StopTranscript flushes and closes the transcript file, if any.
func (o *termOutput) StopTranscript() error {
	if o.transcript == nil {
		return nil
	}
	err := o.transcript.Flush()
	if cerr := o.transcriptFh.Close(); err == nil {
		err = cerr
	}
	o.transcript, o.transcriptFh, o.screenOff = nil, nil, false
	return err
}

type pagerState uint8

const (
	pagerOff      pagerState = iota
	pagerWatching            // output shown and held until it overflows the screen
	pagerPaging              // output sent to the pager process
)

// pager sends a listing to an external pager once it no longer fits on
// the screen. Until then output goes straight to w.
type pager struct {
	w     io.Writer
	state pagerState
	start func(command string) (io.WriteCloser, func() error, error)

	command    string
	rows, cols int

	held     []byte
	row, col int
	endsLine bool

	in   io.WriteCloser
	wait func() error
}

// Watch starts watching the output of a listing. It does nothing unless a
// pager is configured and the screen size is known.
func (p *pager) Watch() {
	if p.state != pagerOff {
		return
	}
	command := pagerCommand(p.w)
	if command == "" {
		return
	}
	rows, cols, ok := screenSize()
	if !ok {
		return
	}
	p.watch(command, rows, cols)
}

func (p *pager) watch(command string, rows, cols int) {
	p.state = pagerWatching
	p.command = command
	p.rows, p.cols = rows, cols
	p.held, p.row, p.col, p.endsLine = nil, 0, 0, true
}

func (p *pager) Write(b []byte) (int, error) {
	switch p.state {
	case pagerWatching:
		p.held = append(p.held, b...)
		if !p.advance(b) {
			if len(b) > 0 {
				p.endsLine = b[len(b)-1] == '\n'
			}
			return p.w.Write(b)
		}
		in, wait, err := p.start(p.command)
		if err != nil {
			p.state = pagerOff
			p.held = nil
			return p.w.Write(b)
		}
		if !p.endsLine {
			io.WriteString(p.w, "\n")
		}
		io.WriteString(p.w, "Sending output to pager...\n")
		p.in, p.wait = in, wait
		p.state = pagerPaging
		held := p.held
		p.held = nil
		if _, err := p.in.Write(held); err != nil {
			return 0, err
		}
		return len(b), nil
	case pagerPaging:
		return p.in.Write(b)
	default:
		return p.w.Write(b)
	}
}

// advance moves the cursor of the held output over b and reports whether
// the held output no longer fits on the screen. The last row is left for
// the prompt.
func (p *pager) advance(b []byte) bool {
	for _, c := range b {
		switch {
		case c == '\n':
			p.row, p.col = p.row+1, 0
		case p.col >= p.cols:
			p.row, p.col = p.row+1, 1
		default:
			p.col++
		}
	}
	return p.row >= p.rows
}

// Release ends the current listing, waiting for the pager to exit if one
// was started.
func (p *pager) Release() {
	if p.state == pagerPaging {
		p.in.Close()
		p.wait()
	}
	p.state = pagerOff
	p.held, p.in, p.wait = nil, nil, nil
}

// pagerCommand returns the pager for listings written to out, "" for none.
// $MONOMIRROR_PAGER is always used. Otherwise out must be an interactive
// terminal and the pager is $PAGER, then more.
func pagerCommand(out io.Writer) string {
	if pager := strings.TrimSpace(os.Getenv("MONOMIRROR_PAGER")); pager != "" {
		return pager
	}
	if f, _ := out.(*os.File); f == nil || !isatty.IsTerminal(f.Fd()) {
		return ""
	}
	if strings.ToLower(os.Getenv("TERM")) == "dumb" {
		return ""
	}
	if pager := strings.TrimSpace(os.Getenv("PAGER")); pager != "" {
		return pager
	}
	return "more"
}

func startPager(command string) (io.WriteCloser, func() error, error) {
	args := strings.Fields(command)
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	return in, cmd.Wait, nil
}
