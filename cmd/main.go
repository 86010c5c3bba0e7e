package main

import (
	"os"

	"github.com/pathweave/pathweave/cmd/pathweave"
)

func main() {
	if err := pathweave.Execute(); err != nil {
		os.Exit(1)
	}
}
