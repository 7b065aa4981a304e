// cmd/kovictl/main.go — operator CLI root. Dispatches to subcommand handlers.
package main

import (
	"fmt"
	"os"
)

const usage = "Usage: kovictl <create|update|status|logs|list|pause|resume|cancel> [options]"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "create":
		runCreate(os.Args[2:])
	case "update":
		runUpdate(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "logs":
		runLogs(os.Args[2:])
	case "list":
		runList(os.Args[2:])
	case "pause":
		runPause(os.Args[2:])
	case "resume":
		runResume(os.Args[2:])
	case "cancel":
		runCancel(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %q\n", os.Args[1])
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
}
