package main

import (
	"os"

	"github.com/lorrc/ticket-collab/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
