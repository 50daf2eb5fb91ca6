package main

import (
	"fmt"
	"os"

	"dagsync/cmd/dagsync/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
