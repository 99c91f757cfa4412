// Package main is the entry point for the main stream sync service.
package main

import (
	"os"

	"github.com/jwulff/mainstream-sync/cmd/mainstream-sync/command"
)

func main() {
	if err := command.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
