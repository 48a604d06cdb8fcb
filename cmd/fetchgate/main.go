package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fetchgate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	subcmd := "fetch"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "fetch":
		return cmdFetch(args)
	case "stats":
		return cmdStats()
	case "purge":
		return cmdPurge(args)
	case "keygen":
		return cmdKeygen()
	default:
		return fmt.Errorf("unknown command: %s\nUsage: fetchgate [fetch|stats|purge|keygen]", subcmd)
	}
}
