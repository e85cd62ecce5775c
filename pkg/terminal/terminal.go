package terminal

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-delve/liner"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/monomirror/monomirror/pkg/config"
	"github.com/monomirror/monomirror/pkg/logflags"
	"github.com/monomirror/monomirror/pkg/mirror"
	"github.com/monomirror/monomirror/pkg/terminal/starbind"
)

const (
	historyFile                 string = ".monomirror_history"
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalResetEscapeCode     string = "\033[0m"
)

const (
	ansiRed    = 31
	ansiGreen  = 32
	ansiYellow = 33
	ansiBlue   = 34
)

// Term represents the terminal browsing a target.
type Term struct {
	m        *mirror.Mirror
	conf     *config.Config
	prompt   string
	line     *liner.State
	cmds     *Commands
	colors   bool
	stdout   *termOutput
	InitFile string
	log      logflags.Logger

	starlarkEnv *starbind.Env
}

// New returns a new Term.
func New(m *mirror.Mirror, conf *config.Config) *Term {
	if conf == nil {
		conf = config.Default()
	}
	t := newTerm(m, conf, getColorableWriter(), useColors())
	t.line = liner.NewLiner()
	return t
}

func newTerm(m *mirror.Mirror, conf *config.Config, w io.Writer, colors bool) *Term {
	cmds := MirrorCommands()
	if conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}
	t := &Term{
		m:      m,
		conf:   conf,
		prompt: "(mono) ",
		cmds:   cmds,
		colors: colors,
		stdout: newTermOutput(w),
		log:    logflags.REPLLogger(),
	}
	t.starlarkEnv = starbind.New(starlarkContext{t}, t.stdout)
	return t
}

// Execute runs a single command line without starting the interactive
// prompt.
func Execute(m *mirror.Mirror, conf *config.Config, cmdstr string) error {
	if conf == nil {
		conf = config.Default()
	}
	t := newTerm(m, conf, getColorableWriter(), useColors())
	defer t.Close()
	defer t.stdout.pager.Release()
	return t.cmds.Call(cmdstr, t)
}

// getColorableWriter returns stdout wrapped so that ANSI escapes work on
// Windows consoles.
func getColorableWriter() io.Writer {
	return colorable.NewColorableStdout()
}

func useColors() bool {
	if strings.ToLower(os.Getenv("TERM")) == "dumb" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	if t.line != nil {
		t.line.Close()
	}
	t.stdout.StopTranscript()
}

func (t *Term) sigintGuard(ch <-chan os.Signal) {
	for range ch {
		t.starlarkEnv.Cancel()
		fmt.Fprintln(os.Stderr, "received SIGINT, cancelling running script")
	}
}

// Run begins running the terminal. The mirror is closed on exit.
func (t *Term) Run() (int, error) {
	defer t.Close()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	go t.sigintGuard(ch)
	defer signal.Stop(ch)

	t.line.SetCompleter(t.complete)

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Printf("Unable to load history file: %v.", err)
	}

	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Printf("Unable to open history file: %v. History will not be saved for this session.", err)
		}
	}

	if f != nil {
		t.line.ReadHistory(f)
		f.Close()
	}
	fmt.Fprintln(t.stdout, "Type 'help' for list of commands.")

	if t.InitFile != "" {
		err := t.cmds.executeFile(t, t.InitFile)
		if err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Error executing init file: %s\n", err)
		}
	}

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				fmt.Fprintln(t.stdout, "exit")
				return t.handleExit()
			}
			return 1, fmt.Errorf("prompt for input failed: %v", err)
		}
		t.stdout.Echo(t.prompt + cmdstr + "\n")

		if err := t.cmds.Call(cmdstr, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			t.log.Debugf("command %q failed: %v", cmdstr, err)
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
		t.stdout.Flush()
		t.stdout.pager.Release()
	}
}

// complete completes command names on the first word and class names of
// the image on the first argument of the commands taking one.
func (t *Term) complete(line string) (c []string) {
	fields := strings.SplitN(line, " ", 2)
	if len(fields) == 1 {
		for _, cmd := range t.cmds.cmds {
			for _, alias := range cmd.aliases {
				if strings.HasPrefix(alias, strings.ToLower(line)) {
					c = append(c, alias)
				}
			}
		}
		return c
	}
	cmd := t.cmds.find(fields[0])
	if cmd == nil || !cmd.classArg || strings.Contains(fields[1], " ") {
		return nil
	}
	img, err := t.m.Root()
	if err != nil {
		t.log.Debugf("completion: %v", err)
		return nil
	}
	for _, name := range img.Complete(fields[1]) {
		c = append(c, fields[0]+" "+name)
	}
	return c
}

// Println prints a line to the terminal.
func (t *Term) Println(prefix, str string) {
	fmt.Fprintf(t.stdout, "%s%s\n", t.highlight(ansiBlue, prefix), str)
}

func (t *Term) highlight(color int, s string) string {
	if !t.colors || s == "" {
		return s
	}
	return fmt.Sprintf(terminalHighlightEscapeCode, color) + s + terminalResetEscapeCode
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) handleExit() (int, error) {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Println("Error saving history file:", err)
	} else {
		if f, err := os.OpenFile(fullHistoryFile, os.O_RDWR, 0666); err == nil {
			_, err = t.line.WriteHistory(f)
			if err != nil {
				fmt.Println("readline history error:", err)
			}
			f.Close()
		}
	}

	if err := t.m.Close(); err != nil {
		return 1, err
	}
	return 0, nil
}
