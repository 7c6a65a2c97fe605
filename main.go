package main

import (
	"os"

	"github.com/botui/chatflow/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
