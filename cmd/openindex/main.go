package main

import (
	"os"

	"github.com/openindex-dev/openindex/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
