package starbind

// Code in this file is derived from go.starlark.net/repl/repl.go
// Which is licensed under the following copyright:
//
// Copyright (c) 2017 The Bazel Authors.  All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are
// met:
//
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the
//    distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
//    contributors may be used to endorse or promote products derived
//    from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS
// "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT
// LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR
// A PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT
// HOLDER OR CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT
// LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE,
// DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER CAUSED AND ON ANY
// THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT
// (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

import (
	"fmt"
	"io"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/go-delve/liner"

	"github.com/monomirror/monomirror/pkg/mirror"
)

const (
	normalPrompt = ">>> "
	extraPrompt  = "... "

	exitCommand = "exit"
)

// lineReader is the part of liner.State the loop needs.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// REPL executes a read, eval, print loop against the target. Every
// statement starts from an empty page cache, so values printed by one
// statement are never older than the statement itself.
func (env *Env) REPL() error {
	rl := liner.NewLiner()
	defer rl.Close()
	return env.repl(rl)
}

func (env *Env) repl(rl lineReader) error {
	env.reportSession()

	s := &replSession{
		env:     env,
		rl:      rl,
		thread:  env.newThread(),
		globals: starlark.StringDict{},
	}
	for k, v := range env.env {
		s.globals[k] = v
	}
	for {
		if err := isCancelled(s.thread); err != nil {
			return err
		}
		if err := s.step(); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
	}
	fmt.Fprintln(env.out)
	return env.exportGlobals(s.globals)
}

// reportSession prints whether the target can be reached. Nothing is
// printed when scripts run against a fixed image.
func (env *Env) reportSession() {
	m := env.ctx.Mirror()
	if m == nil {
		return
	}
	name := m.Config().ProcessName
	switch st := mirror.GetStatus(m); st.Kind {
	case mirror.StatusOK:
		fmt.Fprintf(env.out, "attached to %s (pid %d)\n", name, m.Pid())
	case mirror.StatusProcNotFound:
		fmt.Fprintf(env.out, "%s is not running, queries fail until it starts\n", name)
	default:
		fmt.Fprintf(env.out, "can not attach to %s: %v\n", name, st.Err)
	}
}

type replSession struct {
	env     *Env
	rl      lineReader
	thread  *starlark.Thread
	globals starlark.StringDict

	prompt string
	eof    bool
}

func (s *replSession) readline() ([]byte, error) {
	line, err := s.rl.Prompt(s.prompt)
	if err != nil {
		if err == io.EOF {
			s.eof = true
		}
		return nil, err
	}
	s.env.out.Echo(s.prompt + line + "\n")
	if s.prompt == normalPrompt && strings.TrimSpace(line) == exitCommand {
		s.eof = true
		return nil, io.EOF
	}
	if line != "" {
		s.rl.AppendHistory(line)
	}
	s.prompt = extraPrompt
	return []byte(line + "\n"), nil
}

// step reads, evaluates and prints one statement. Starlark errors are
// printed; the returned error is io.EOF at the end of input or a failure
// of the line reader.
func (s *replSession) step() error {
	out := s.env.out
	defer out.Flush()

	s.prompt, s.eof = normalPrompt, false
	f, err := syntax.ParseCompoundStmt("<stdin>", s.readline)
	if err != nil {
		if s.eof {
			return io.EOF
		}
		printError(out, err)
		return nil
	}

	s.env.ctx.ClearCache()

	if expr := soleExpr(f); expr != nil {
		v, err := starlark.EvalExpr(s.thread, expr, s.globals)
		if err != nil {
			printError(out, err)
			return nil
		}
		if v != starlark.None {
			fmt.Fprintln(out, v)
		}
		return nil
	}

	prog, err := starlark.FileProgram(f, s.globals.Has)
	if err != nil {
		printError(out, err)
		return nil
	}
	// Globals are not frozen so later statements can rebind them. On a
	// failure only the globals assigned before it are kept.
	res, err := prog.Init(s.thread, s.globals)
	if err != nil {
		printError(out, err)
	}
	for k, v := range res {
		s.globals[k] = v
	}
	return nil
}

func soleExpr(f *syntax.File) syntax.Expr {
	if len(f.Stmts) == 1 {
		if stmt, ok := f.Stmts[0].(*syntax.ExprStmt); ok {
			return stmt.X
		}
	}
	return nil
}

// printError prints the error to out, or its backtrace if it is a
// Starlark evaluation error.
func printError(out io.Writer, err error) {
	if evalErr, ok := err.(*starlark.EvalError); ok {
		fmt.Fprintln(out, evalErr.Backtrace())
	} else {
		fmt.Fprintln(out, err)
	}
}
