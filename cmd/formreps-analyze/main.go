package main

import (
	"os"

	"github.com/claude/formreps/cmd/formreps-analyze/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
