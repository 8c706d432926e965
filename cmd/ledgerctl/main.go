package main

import (
	"os"

	"github.com/ashmitsharp/homeledger-api/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
