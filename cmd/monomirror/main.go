package main

import (
	"os"

	"github.com/monomirror/monomirror/cmd/monomirror/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
