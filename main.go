package main

import (
	"os"

	"github.com/convoflow/convoflow/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
