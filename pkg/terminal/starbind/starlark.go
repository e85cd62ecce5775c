// Package starbind exposes the decoded object graph of the target to
// starlark scripts.
package starbind

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	startime "go.starlark.net/lib/time"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"

	"github.com/monomirror/monomirror/pkg/hearthstone"
	"github.com/monomirror/monomirror/pkg/mirror"
	"github.com/monomirror/monomirror/pkg/mono"
)

const (
	commandBuiltinName   = "mono_command"
	readFileBuiltinName  = "read_file"
	writeFileBuiltinName = "write_file"
	staticBuiltinName    = "static"
	classesBuiltinName   = "classes"
	searchBuiltinName    = "search"
	fieldsBuiltinName    = "fields"
	helpBuiltinName      = "help"
	commandPrefix        = "command_"
	contextName          = "mono_context"
)

func init() {
	resolve.AllowNestedDef = true
	resolve.AllowLambda = true
	resolve.AllowFloat = true
	resolve.AllowSet = true
	resolve.AllowBitwise = true
	resolve.AllowRecursion = true
	resolve.AllowGlobalReassign = true
}

// ErrNotAttached is returned by builtins that need a live session when the
// context has none.
var ErrNotAttached = errors.New("not attached to a target")

// Context is the context in which starlark scripts are evaluated.
type Context interface {
	// Image returns the root image of the target.
	Image() (*mono.Image, error)
	// Mirror returns the session, nil when scripts run against a fixed
	// image.
	Mirror() *mirror.Mirror
	// ClearCache drops cached target memory so the next read is current.
	ClearCache()
	RegisterCommand(name, helpMsg string, cmdfn func(args string) error)
	CallCommand(cmdstr string) error
}

// Env is the environment used to evaluate starlark scripts.
type Env struct {
	env       starlark.StringDict
	doc       map[string]string
	contextMu sync.Mutex
	thread    *starlark.Thread
	cancelfn  context.CancelFunc

	ctx Context
	out EchoWriter
}

// FieldInfo describes a field as returned by the fields builtin.
type FieldInfo struct {
	Name   string
	Type   string
	Tag    string
	Offset int32
	Static bool
}

// New creates a new starlark binding environment.
func New(ctx Context, out EchoWriter) *Env {
	env := &Env{
		env: starlark.StringDict{},
		doc: map[string]string{},
		ctx: ctx,
		out: out,
	}

	// Make the "time" module available to Starlark scripts.
	starlark.Universe["time"] = startime.Module

	env.builtin(commandBuiltinName, "(Command)", "runs a terminal command.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		argstrs := make([]string, len(args))
		for i := range args {
			a, ok := args[i].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("argument of %s is not a string", commandBuiltinName)
			}
			argstrs[i] = string(a)
		}
		return starlark.None, env.ctx.CallCommand(strings.Join(argstrs, " "))
	})

	env.builtin(readFileBuiltinName, "(Path)", "reads a file.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var path string
		if err := starlark.UnpackArgs(readFileBuiltinName, args, kwargs, "path", &path); err != nil {
			return nil, err
		}
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return starlark.String(string(buf)), nil
	})

	env.builtin(writeFileBuiltinName, "(Path, Text)", "writes text to the specified file.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var path string
		var text starlark.Value
		if err := starlark.UnpackArgs(writeFileBuiltinName, args, kwargs, "path", &path, "text", &text); err != nil {
			return nil, err
		}
		s, ok := starlark.AsString(text)
		if !ok {
			s = text.String()
		}
		return starlark.None, os.WriteFile(path, []byte(s), 0640)
	})

	env.builtin(staticBuiltinName, "(Class, Field)", "returns the value of a static field of the named class.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var class, field string
		if err := starlark.UnpackArgs(staticBuiltinName, args, kwargs, "class", &class, "field", &field); err != nil {
			return nil, err
		}
		img, err := env.ctx.Image()
		if err != nil {
			return nil, err
		}
		v, err := img.StaticValue(class, field)
		if err != nil {
			return nil, err
		}
		return env.valueToStarlarkValue(v), nil
	})

	env.builtin(classesBuiltinName, "(Prefix=\"\")", "returns the sorted names of the classes of the image starting with Prefix.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var prefix string
		if err := starlark.UnpackArgs(classesBuiltinName, args, kwargs, "prefix?", &prefix); err != nil {
			return nil, err
		}
		img, err := env.ctx.Image()
		if err != nil {
			return nil, err
		}
		return stringList(img.Complete(prefix)), nil
	})

	env.builtin(searchBuiltinName, "(Pattern)", "returns the class names fuzzy matching Pattern, shortest first.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var pattern string
		if err := starlark.UnpackArgs(searchBuiltinName, args, kwargs, "pattern", &pattern); err != nil {
			return nil, err
		}
		img, err := env.ctx.Image()
		if err != nil {
			return nil, err
		}
		return stringList(img.Search(pattern)), nil
	})

	env.builtin(fieldsBuiltinName, "(Class)", "returns the fields of the named class and its ancestors.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var class string
		if err := starlark.UnpackArgs(fieldsBuiltinName, args, kwargs, "class", &class); err != nil {
			return nil, err
		}
		img, err := env.ctx.Image()
		if err != nil {
			return nil, err
		}
		infos, err := ClassFields(img, class)
		if err != nil {
			return nil, err
		}
		return env.interfaceToStarlarkValue(infos), nil
	})

	env.queryBuiltin("collection", "returns the card collection.", func(m *mirror.Mirror) (interface{}, error) {
		return hearthstone.GetCollection(m)
	})
	env.queryBuiltin("decks", "returns the decks of the collection manager.", func(m *mirror.Mirror) (interface{}, error) {
		return hearthstone.GetDecks(m)
	})
	env.queryBuiltin("arena", "returns the current arena run.", func(m *mirror.Mirror) (interface{}, error) {
		return hearthstone.GetArenaDeck(m)
	})
	env.queryBuiltin("draft_choices", "returns the cards offered by the arena draft.", func(m *mirror.Mirror) (interface{}, error) {
		return hearthstone.GetArenaDraftChoices(m)
	})
	env.queryBuiltin("game_type", "returns the current game type.", func(m *mirror.Mirror) (interface{}, error) {
		return hearthstone.GetGameType(m)
	})
	env.queryBuiltin("spectating", "reports whether the player is spectating.", func(m *mirror.Mirror) (interface{}, error) {
		return hearthstone.IsSpectating(m)
	})
	env.queryBuiltin("selected_deck", "returns the id of the deck selected in the menu.", func(m *mirror.Mirror) (interface{}, error) {
		return hearthstone.GetSelectedDeckInMenu(m)
	})
	env.queryBuiltin("match_info", "returns the players of the current match.", func(m *mirror.Mirror) (interface{}, error) {
		return hearthstone.GetMatchInfo(m)
	})

	env.env[helpBuiltinName] = starlark.NewBuiltin(helpBuiltinName, func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		switch len(args) {
		case 0:
			fmt.Fprintln(env.out, "Available builtins:")
			bins := make([]string, 0, len(env.env))
			for name, value := range env.env {
				switch value.(type) {
				case *starlark.Builtin:
					bins = append(bins, name)
				}
			}
			sort.Strings(bins)
			for _, bin := range bins {
				fmt.Fprintf(env.out, "\t%s\n", bin)
			}
		case 1:
			switch x := args[0].(type) {
			case *starlark.Builtin:
				if env.doc[x.Name()] != "" {
					fmt.Fprintf(env.out, "%s\n", env.doc[x.Name()])
				} else {
					fmt.Fprintf(env.out, "no help for builtin %s\n", x.Name())
				}
			case *starlark.Function:
				fmt.Fprintf(env.out, "user defined function %s\n", x.Name())
				if doc := x.Doc(); doc != "" {
					fmt.Fprintln(env.out, doc)
				}
			default:
				fmt.Fprintf(env.out, "no help for object of type %T\n", args[0])
			}
		default:
			fmt.Fprintln(env.out, "wrong number of arguments ", len(args))
		}
		return starlark.None, nil
	})
	env.doc[helpBuiltinName] = helpBuiltinName + "(Object)\n\n" + helpBuiltinName + " prints help for Object."

	return env
}

type builtinFunc func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

// builtin registers fn under name. Cancellation is checked before fn runs
// and errors are decorated with the script position.
func (env *Env) builtin(name, args, descr string, fn builtinFunc) {
	env.env[name] = starlark.NewBuiltin(name, func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := isCancelled(thread); err != nil {
			return starlark.None, err
		}
		v, err := fn(thread, args, kwargs)
		if err != nil {
			return nil, decorateError(thread, err)
		}
		return v, nil
	})
	env.doc[name] = name + args + "\n\n" + name + " " + descr
}

func (env *Env) queryBuiltin(name, descr string, fn func(m *mirror.Mirror) (interface{}, error)) {
	env.builtin(name, "()", descr, func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackArgs(name, args, kwargs); err != nil {
			return nil, err
		}
		m := env.ctx.Mirror()
		if m == nil {
			return nil, ErrNotAttached
		}
		v, err := fn(m)
		if err != nil {
			return nil, err
		}
		return env.interfaceToStarlarkValue(v), nil
	})
}

// ClassFields lists the fields of the named class, most derived first.
func ClassFields(img *mono.Image, class string) ([]FieldInfo, error) {
	cls, err := img.Class(class)
	if err != nil {
		return nil, err
	}
	fields, err := cls.AllFields()
	if err != nil {
		return nil, err
	}
	infos := make([]FieldInfo, len(fields))
	for i, f := range fields {
		typ := f.Type()
		infos[i] = FieldInfo{
			Name:   f.Name(),
			Type:   typ.String(),
			Tag:    typ.Tag().String(),
			Offset: f.Offset(),
			Static: f.IsStatic(),
		}
	}
	return infos, nil
}

func stringList(ss []string) *starlark.List {
	elems := make([]starlark.Value, len(ss))
	for i, s := range ss {
		elems[i] = starlark.String(s)
	}
	return starlark.NewList(elems)
}

// Redirect redirects starlark output to out.
func (env *Env) Redirect(out EchoWriter) {
	env.out = out
	if env.thread != nil {
		env.thread.Print = env.printFunc()
	}
}

func (env *Env) printFunc() func(_ *starlark.Thread, msg string) {
	return func(_ *starlark.Thread, msg string) { fmt.Fprintln(env.out, msg) }
}

// Execute executes a script. Path is the name of the file to execute and
// source is the source code to execute.
// Source can be either a []byte, a string or a io.Reader. If source is nil
// Execute will execute the file specified by 'path'.
// After the file is executed if a function named mainFnName exists it will be called, passing args to it.
func (env *Env) Execute(path string, source interface{}, mainFnName string, args []interface{}) (_ starlark.Value, _err error) {
	defer func() {
		err := recover()
		if err == nil {
			return
		}
		_err = fmt.Errorf("panic executing starlark script: %v", err)
		fmt.Fprintf(env.out, "panic executing starlark script: %v\n", err)
		for i := 0; ; i++ {
			pc, file, line, ok := runtime.Caller(i)
			if !ok {
				break
			}
			fname := "<unknown>"
			fn := runtime.FuncForPC(pc)
			if fn != nil {
				fname = fn.Name()
			}
			fmt.Fprintf(env.out, "%s\n\tin %s:%d\n", fname, file, line)
		}
	}()

	thread := env.newThread()
	globals, err := starlark.ExecFile(thread, path, source, env.env)
	if err != nil {
		return starlark.None, err
	}

	err = env.exportGlobals(globals)
	if err != nil {
		return starlark.None, err
	}

	return env.callMain(thread, globals, mainFnName, args)
}

// exportGlobals saves globals with a name starting with a capital letter
// into the environment and creates commands from globals with a name
// starting with "command_"
func (env *Env) exportGlobals(globals starlark.StringDict) error {
	for name, val := range globals {
		switch {
		case strings.HasPrefix(name, commandPrefix):
			err := env.createCommand(name, val)
			if err != nil {
				return err
			}
		case name[0] >= 'A' && name[0] <= 'Z':
			env.env[name] = val
		}
	}
	return nil
}

// Cancel cancels the execution of a currently running script or function.
func (env *Env) Cancel() {
	if env == nil {
		return
	}
	env.contextMu.Lock()
	if env.cancelfn != nil {
		env.cancelfn()
		env.cancelfn = nil
	}
	if env.thread != nil {
		env.thread.Cancel("user interrupt")
	}
	env.contextMu.Unlock()
}

func (env *Env) newThread() *starlark.Thread {
	thread := &starlark.Thread{
		Print: env.printFunc(),
	}
	env.contextMu.Lock()
	var ctx context.Context
	ctx, env.cancelfn = context.WithCancel(context.Background())
	env.thread = thread
	env.contextMu.Unlock()
	thread.SetLocal(contextName, ctx)
	return thread
}

func (env *Env) createCommand(name string, val starlark.Value) error {
	fnval, ok := val.(*starlark.Function)
	if !ok {
		return nil
	}

	name = name[len(commandPrefix):]

	helpMsg := fnval.Doc()
	if helpMsg == "" {
		helpMsg = "user defined"
	}

	if fnval.NumParams() == 1 {
		if p0, _ := fnval.Param(0); p0 == "args" {
			env.ctx.RegisterCommand(name, helpMsg, func(args string) error {
				_, err := starlark.Call(env.newThread(), fnval, starlark.Tuple{starlark.String(args)}, nil)
				return err
			})
			return nil
		}
	}

	env.ctx.RegisterCommand(name, helpMsg, func(args string) error {
		thread := env.newThread()
		argval, err := starlark.Eval(thread, "<input>", "("+args+")", env.env)
		if err != nil {
			return err
		}
		argtuple, ok := argval.(starlark.Tuple)
		if !ok {
			argtuple = starlark.Tuple{argval}
		}
		_, err = starlark.Call(thread, fnval, argtuple, nil)
		return err
	})
	return nil
}

// callMain calls the main function in globals, if one was defined.
func (env *Env) callMain(thread *starlark.Thread, globals starlark.StringDict, mainFnName string, args []interface{}) (starlark.Value, error) {
	if mainFnName == "" {
		return starlark.None, nil
	}
	mainval := globals[mainFnName]
	if mainval == nil {
		return starlark.None, nil
	}
	mainfn, ok := mainval.(*starlark.Function)
	if !ok {
		return starlark.None, fmt.Errorf("%s is not a function", mainFnName)
	}
	if mainfn.NumParams() != len(args) {
		return starlark.None, fmt.Errorf("wrong number of arguments for %s", mainFnName)
	}
	argtuple := make(starlark.Tuple, len(args))
	for i := range args {
		argtuple[i] = env.interfaceToStarlarkValue(args[i])
	}
	return starlark.Call(thread, mainfn, argtuple, nil)
}

func isCancelled(thread *starlark.Thread) error {
	if ctx, ok := thread.Local(contextName).(context.Context); ok {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

func decorateError(thread *starlark.Thread, err error) error {
	if err == nil {
		return nil
	}
	if thread.CallStackDepth() < 2 {
		return err
	}
	pos := thread.CallFrame(1).Pos
	if pos.Col > 0 {
		return fmt.Errorf("%s:%d:%d: %w", pos.Filename(), pos.Line, pos.Col, err)
	}
	return fmt.Errorf("%s:%d: %w", pos.Filename(), pos.Line, err)
}

// EchoWriter is the destination of script output.
type EchoWriter interface {
	io.Writer
	Echo(string)
	Flush()
}
