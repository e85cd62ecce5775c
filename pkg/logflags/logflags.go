package logflags

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var memory = false
var peParse = false
var bootstrap = false
var monoMeta = false
var mirror = false
var repl = false

var logOut io.WriteCloser

var textFormatterInstance = &textFormatter{}

func makeLogger(level logrus.Level, fields Fields) Logger {
	if lf := loggerFactory; lf != nil {
		return lf(level, fields, logOut)
	}
	logger := logrus.New().WithFields(logrus.Fields(fields))
	logger.Logger.Formatter = textFormatterInstance
	if logOut != nil {
		logger.Logger.Out = logOut
	}
	logger.Logger.Level = level
	return &logrusLogger{logger}
}

func makeFlaggableLogger(flag bool, fields Fields) Logger {
	if !flag {
		return makeLogger(logrus.ErrorLevel, fields)
	}
	return makeLogger(logrus.DebugLevel, fields)
}

// Memory returns true if page cache fetches and failed remote reads
// should be logged.
func Memory() bool {
	return memory
}

// MemoryLogger returns a logger for the remote memory layer.
func MemoryLogger() Logger {
	return makeFlaggableLogger(memory, Fields{"layer": "memory"})
}

// PE returns true if the export table parser should log.
func PE() bool {
	return peParse
}

// PELogger returns a logger for the PE export resolver.
func PELogger() Logger {
	return makeFlaggableLogger(peParse, Fields{"layer": "pe"})
}

// Bootstrap returns true if the root domain discovery should log.
func Bootstrap() bool {
	return bootstrap
}

// BootstrapLogger returns a logger for the root domain discovery.
func BootstrapLogger() Logger {
	return makeFlaggableLogger(bootstrap, Fields{"layer": "bootstrap"})
}

// Mono returns true if the metadata walker and value decoder should log.
func Mono() bool {
	return monoMeta
}

// MonoLogger returns a logger for the metadata walker and value decoder.
func MonoLogger() Logger {
	return makeFlaggableLogger(monoMeta, Fields{"layer": "mono"})
}

// Mirror returns true if session management (attach, retry) should log.
func Mirror() bool {
	return mirror
}

// MirrorLogger returns a logger for session management.
func MirrorLogger() Logger {
	return makeFlaggableLogger(mirror, Fields{"layer": "mirror"})
}

// REPL returns true if the interactive browser should log.
func REPL() bool {
	return repl
}

// REPLLogger returns a logger for the interactive browser.
func REPLLogger() Logger {
	return makeFlaggableLogger(repl, Fields{"layer": "repl"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets the layer flags based on the contents of logstr.
// If logDest is not empty logs will be redirected to the file descriptor or
// file path specified by logDest.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "monomirror-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
	}
	if !logFlag {
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "mirror"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		switch logcmd {
		case "memory":
			memory = true
		case "pe":
			peParse = true
		case "bootstrap":
			bootstrap = true
		case "mono":
			monoMeta = true
		case "mirror":
			mirror = true
		case "repl":
			repl = true
		default:
			fmt.Fprintf(os.Stderr, "Warning: unknown log output value %q, run 'monomirror help log' for usage.\n", logcmd)
		}
	}
	return nil
}

// Close closes the logger output.
func Close() {
	if logOut != nil {
		logOut.Close()
	}
}

// textFormatter is a simplified version of logrus.TextFormatter that
// doesn't make logs unreadable when they are output to a text file or to a
// terminal that doesn't support colors.
type textFormatter struct {
}

func (f *textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *strings.Builder = &strings.Builder{}

	fmt.Fprintf(b, "%s %s ", entry.Time.Format("2006-01-02T15:04:05Z07:00"), entry.Level.String())
	if layer, ok := entry.Data["layer"]; ok {
		fmt.Fprintf(b, "%v ", layer)
	}
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != "layer" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s=%v ", k, entry.Data[k])
	}
	b.WriteString(entry.Message)
	b.WriteByte('\n')
	return []byte(b.String()), nil
}
