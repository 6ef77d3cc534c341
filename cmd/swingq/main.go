package main

import (
	"os"

	"github.com/foreverwb/swing-workflow/internal/interface/cli"
)

func main() {
	if err := cli.NewRoot().Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
