package terminal

import (
	"github.com/monomirror/monomirror/pkg/mirror"
	"github.com/monomirror/monomirror/pkg/mono"
	"github.com/monomirror/monomirror/pkg/terminal/starbind"
)

type starlarkContext struct {
	term *Term
}

var _ starbind.Context = starlarkContext{}

func (ctx starlarkContext) Image() (*mono.Image, error) {
	return ctx.term.m.Root()
}

func (ctx starlarkContext) Mirror() *mirror.Mirror {
	return ctx.term.m
}

func (ctx starlarkContext) ClearCache() {
	if ctx.term.m != nil {
		ctx.term.m.ClearCache()
	}
}

func (ctx starlarkContext) RegisterCommand(name, helpMsg string, fn func(args string) error) {
	ctx.term.cmds.Register(name, func(t *Term, args string) error {
		return fn(args)
	}, helpMsg)
}

func (ctx starlarkContext) CallCommand(cmdstr string) error {
	return ctx.term.cmds.Call(cmdstr, ctx.term)
}
